package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propply/compliance-cli/internal/compliance"
	"github.com/propply/compliance-cli/internal/resilience"
	"github.com/propply/compliance-cli/internal/store"
	"github.com/propply/compliance-cli/internal/vendor"
	"github.com/propply/compliance-cli/pkg/analysis"
	"github.com/propply/compliance-cli/pkg/carto"
	"github.com/propply/compliance-cli/pkg/geocode"
	"github.com/propply/compliance-cli/pkg/geosearch"
	"github.com/propply/compliance-cli/pkg/opendata"
	"github.com/propply/compliance-cli/pkg/places"
)

// appEnv holds the wired services shared by the CLI commands.
type appEnv struct {
	Store   store.Store
	NYC     *compliance.Service
	Philly  *compliance.PhillyService
	Matcher *vendor.Matcher
}

func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

func newStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: database_url required for postgres driver (or set PROPPLY_STORE_DRIVER=sqlite)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(ctx, cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}

// newAppEnv wires clients, store and services from the loaded config.
func newAppEnv(ctx context.Context) (*appEnv, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}

	retry := resilience.FromConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)

	var summarizer compliance.Summarizer
	if cfg.Anthropic.Key != "" {
		summarizer = analysis.NewSummarizer(
			analysis.NewClient(cfg.Anthropic.Key),
			analysis.WithModel(cfg.Anthropic.Model),
			analysis.WithMaxTokens(cfg.Anthropic.MaxTokens),
		)
	} else {
		zap.L().Debug("no anthropic key, report summaries disabled")
	}

	odOpts := []opendata.Option{
		opendata.WithBaseURL(cfg.OpenData.BaseURL),
		opendata.WithRateLimit(cfg.OpenData.RateLimitRPS),
	}
	if cfg.OpenData.AppToken != "" {
		odOpts = append(odOpts, opendata.WithAppToken(cfg.OpenData.AppToken))
	}

	nycOpts := []compliance.ServiceOption{
		compliance.WithStore(st),
		compliance.WithRetry(retry),
		compliance.WithLimits(cfg.Compliance.MaxRowsPerDataset, cfg.Compliance.FetchLimit),
	}
	phillyOpts := []compliance.PhillyOption{
		compliance.WithPhillyStore(st),
		compliance.WithPhillyRetry(retry),
		compliance.WithPhillyLimits(cfg.Compliance.MaxRowsPerDataset, cfg.Compliance.FetchLimit),
	}
	if summarizer != nil {
		nycOpts = append(nycOpts, compliance.WithSummarizer(summarizer))
		phillyOpts = append(phillyOpts, compliance.WithPhillySummarizer(summarizer))
	}

	nyc := compliance.NewService(
		geosearch.NewClient(geosearch.WithBaseURL(cfg.GeoSearch.BaseURL)),
		opendata.NewClient(odOpts...),
		nycOpts...,
	)
	philly := compliance.NewPhillyService(
		carto.NewClient(carto.WithBaseURL(cfg.Carto.BaseURL)),
		phillyOpts...,
	)

	matcher, err := newMatcher(st)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &appEnv{Store: st, NYC: nyc, Philly: philly, Matcher: matcher}, nil
}

func newMatcher(st store.Store) (*vendor.Matcher, error) {
	catalog := vendor.DefaultCatalog()
	if cfg.Vendor.CatalogPath != "" {
		loaded, err := vendor.LoadCatalog(cfg.Vendor.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	placesClient := places.NewClient(cfg.Google.APIKey,
		places.WithBaseURL(cfg.Google.PlacesBaseURL),
		places.WithRateLimit(cfg.Google.RateLimitRPS),
	)
	geocoder := vendor.NewCachingGeocoder(
		geocode.NewClient(cfg.Google.APIKey,
			geocode.WithBaseURL(cfg.Google.GeocodeBaseURL),
			geocode.WithRateLimit(cfg.Google.RateLimitRPS),
		),
		st,
		time.Duration(cfg.Vendor.CacheTTLHours)*time.Hour,
	)

	return vendor.NewMatcher(
		catalog,
		geocoder,
		vendor.NewSearcher(placesClient, cfg.Vendor.TermConcurrency),
		vendor.NewEnhancer(placesClient, cfg.Vendor.EnhanceTopN),
		st,
		cfg.Vendor,
	), nil
}
