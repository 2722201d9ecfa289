package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propply/compliance-cli/internal/compliance"
	"github.com/propply/compliance-cli/internal/export"
	"github.com/propply/compliance-cli/internal/model"
	"github.com/propply/compliance-cli/internal/store"
)

var servePort int

// reportGenerator is satisfied by both city compliance services.
type reportGenerator interface {
	Generate(ctx context.Context, address string) (*model.ComplianceReport, error)
}

type vendorFinder interface {
	FindWithRadius(ctx context.Context, address string, snap model.ViolationSnapshot, radiusMiles float64) (*model.VendorSearchResult, error)
}

// apiStore is the slice of the store the HTTP handlers read and write.
type apiStore interface {
	GetReport(ctx context.Context, id string) (*model.ComplianceReport, error)
	ListReports(ctx context.Context, filter store.ReportFilter) ([]model.ComplianceReport, error)
	CreateVendorRequest(ctx context.Context, req model.VendorRequest) (*model.VendorRequest, error)
	UpdateVendorRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	ListVendorRequests(ctx context.Context, address string) ([]model.VendorRequest, error)
}

type api struct {
	nyc     reportGenerator
	philly  reportGenerator
	finder  vendorFinder
	store   apiStore
	origins []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compliance HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		a := &api{
			nyc:     env.NYC,
			philly:  env.Philly,
			finder:  env.Matcher,
			store:   env.Store,
			origins: cfg.Server.AllowedOrigins,
		}

		// Hourly sweep of expired vendor search cache rows.
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := env.Store.DeleteExpiredVendorSearches(ctx)
					if err != nil {
						zap.L().Warn("cache sweep failed", zap.Error(err))
					} else if n > 0 {
						zap.L().Info("cache sweep removed expired entries", zap.Int("count", n))
					}
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: a.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func (a *api) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/compliance/generate", a.handleGenerate)
		r.Get("/reports", a.handleListReports)
		r.Get("/reports/{id}", a.handleGetReport)
		r.Get("/reports/{id}/export", a.handleExportReport)
		r.Post("/vendors/search", a.handleVendorSearch)
		r.Post("/vendors/requests", a.handleCreateVendorRequest)
		r.Get("/vendors/requests", a.handleListVendorRequests)
		r.Patch("/vendors/requests/{id}", a.handleUpdateVendorRequest)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *api) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	var svc reportGenerator
	switch strings.ToLower(req.City) {
	case "", "nyc":
		svc = a.nyc
	case "philadelphia", "philly":
		svc = a.philly
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported city %q", req.City))
		return
	}

	report, err := svc.Generate(r.Context(), req.Address)
	if err != nil {
		if eris.Is(err, compliance.ErrPropertyNotFound) {
			writeError(w, http.StatusNotFound, "property not found")
			return
		}
		zap.L().Error("report generation failed", zap.String("address", req.Address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		zap.L().Error("report lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *api) handleListReports(w http.ResponseWriter, r *http.Request) {
	filter := store.ReportFilter{City: r.URL.Query().Get("city")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	reports, err := a.store.ListReports(r.Context(), filter)
	if err != nil {
		zap.L().Error("report listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report listing failed")
		return
	}
	if reports == nil {
		reports = []model.ComplianceReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (a *api) handleExportReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := a.store.GetReport(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		zap.L().Error("report lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}

	var vendors *model.VendorSearchResult
	if v := r.URL.Query().Get("vendors"); v == "true" || v == "1" {
		vendors, err = a.finder.FindWithRadius(r.Context(), report.Address, report.Scores.Snapshot, 0)
		if err != nil {
			zap.L().Warn("vendor search failed, exporting without vendors",
				zap.String("id", id), zap.Error(err))
			vendors = nil
		}
	}

	f, err := export.BuildWorkbook(report, vendors)
	if err != nil {
		zap.L().Error("report export failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%s.xlsx"`, id))
	if err := f.Write(w); err != nil {
		zap.L().Error("report export write failed", zap.String("id", id), zap.Error(err))
	}
}

func (a *api) handleVendorSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address     string                  `json:"address"`
		Snapshot    model.ViolationSnapshot `json:"snapshot"`
		RadiusMiles float64                 `json:"radius_miles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	result, err := a.finder.FindWithRadius(r.Context(), req.Address, req.Snapshot, req.RadiusMiles)
	if err != nil {
		zap.L().Error("vendor search failed", zap.String("address", req.Address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vendor search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) handleCreateVendorRequest(w http.ResponseWriter, r *http.Request) {
	var req model.VendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" || req.PlaceID == "" {
		writeError(w, http.StatusBadRequest, "address and place_id are required")
		return
	}

	created, err := a.store.CreateVendorRequest(r.Context(), req)
	if err != nil {
		zap.L().Error("vendor request create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vendor request create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *api) handleListVendorRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.store.ListVendorRequests(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		zap.L().Error("vendor request listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vendor request listing failed")
		return
	}
	if reqs == nil {
		reqs = []model.VendorRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (a *api) handleUpdateVendorRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.RequestStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case model.RequestStatusOpen, model.RequestStatusContacted, model.RequestStatusClosed:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	id := chi.URLParam(r, "id")
	if err := a.store.UpdateVendorRequestStatus(r.Context(), id, req.Status); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vendor request not found")
			return
		}
		zap.L().Error("vendor request update failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vendor request update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
