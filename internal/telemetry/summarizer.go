package telemetry

import "context"

// Summarizer mirrors the site-memory summarizer contract so invocations can
// be counted without a dependency on the memory package.
type Summarizer interface {
	Summarize(ctx context.Context, body string) (string, error)
}

type instrumentedSummarizer struct {
	inner   Summarizer
	metrics *Metrics
}

// InstrumentSummarizer wraps a summarizer so each invocation is recorded.
func InstrumentSummarizer(inner Summarizer, m *Metrics) Summarizer {
	return &instrumentedSummarizer{inner: inner, metrics: m}
}

func (s *instrumentedSummarizer) Summarize(ctx context.Context, body string) (string, error) {
	summary, err := s.inner.Summarize(ctx, body)
	if err != nil {
		s.metrics.RecordSummary("error")
		return "", err
	}
	s.metrics.RecordSummary("ok")
	return summary, nil
}
