package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024

	summarySystem = "You are a property compliance analyst. You write short, " +
		"factual summaries of building compliance data for property owners. " +
		"Highlight the most urgent open items first, note anything overdue, " +
		"and close with a one-line overall assessment. Plain prose, no markdown."
)

// SummaryInput carries the report fields the summarizer needs.
type SummaryInput struct {
	Address      string
	City         string
	HPDScore     float64
	DOBScore     float64
	OverallScore float64
	Datasets     map[string][]map[string]any
}

// Summarizer produces compliance report summaries.
type Summarizer struct {
	client    Client
	model     string
	maxTokens int64
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithModel overrides the default model.
func WithModel(model string) SummarizerOption {
	return func(s *Summarizer) { s.model = model }
}

// WithMaxTokens overrides the default response token limit.
func WithMaxTokens(n int64) SummarizerOption {
	return func(s *Summarizer) { s.maxTokens = n }
}

// NewSummarizer creates a Summarizer backed by the given client.
func NewSummarizer(client Client, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize generates a plain-text summary of a compliance report.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	prompt, err := buildPrompt(in)
	if err != nil {
		return "", err
	}

	resp, err := s.client.CreateMessage(ctx, MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    summarySystem,
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "analysis: summarize report")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("analysis: empty summary response")
	}

	zap.L().Debug("summary generated",
		zap.String("address", in.Address),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return text, nil
}

func buildPrompt(in SummaryInput) (string, error) {
	data, err := json.Marshal(in.Datasets)
	if err != nil {
		return "", eris.Wrap(err, "analysis: marshal datasets")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the compliance standing of %s", in.Address)
	if in.City != "" {
		fmt.Fprintf(&b, " (%s)", in.City)
	}
	fmt.Fprintf(&b, ".\n\nScores (0-100, higher is better): HPD %.1f, DOB %.1f, overall %.1f.\n\n",
		in.HPDScore, in.DOBScore, in.OverallScore)
	b.WriteString("Raw dataset rows as JSON:\n")
	b.Write(data)
	return b.String(), nil
}
