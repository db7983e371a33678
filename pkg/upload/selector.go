package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/metrics"
	"github.com/faheemlabs/faheem/pkg/resilience"
)

// Attempt is the transient record of one strategy try. It exists only
// for the duration of a single Upload call.
type Attempt struct {
	ID       string
	Strategy string
	At       time.Time
	Err      error
}

// Selector executes the ordered fallback chain over the upload
// strategies: resumable first, then multipart/direct ordered by file
// size relative to the threshold.
type Selector struct {
	backend   Backend
	threshold int64
	retry     resilience.RetryPolicy
	logger    *slog.Logger
	obs       metrics.Observer
}

type Option func(*Selector)

func WithThreshold(bytes int64) Option {
	return func(s *Selector) {
		if bytes > 0 {
			s.threshold = bytes
		}
	}
}

func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(s *Selector) { s.retry = p }
}

func WithObserver(obs metrics.Observer) Option {
	return func(s *Selector) {
		if obs != nil {
			s.obs = obs
		}
	}
}

func NewSelector(backend Backend, opts ...Option) *Selector {
	s := &Selector{
		backend:   backend,
		threshold: SizeThreshold,
		retry:     resilience.NewRetryPolicy(1, 200*time.Millisecond),
		logger:    logging.NewComponentLogger(slog.Default(), "upload_selector"),
		obs:       metrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Order returns the fallback chain for a file of the given size. Files
// at or above the threshold try multipart before direct; smaller files
// try direct before multipart.
func (s *Selector) Order(size int64) []Strategy {
	resumable := resumableStrategy{backend: s.backend}
	multipart := multipartStrategy{backend: s.backend}
	direct := directStrategy{backend: s.backend, cap: s.threshold}
	if size >= s.threshold {
		return []Strategy{resumable, multipart, direct}
	}
	return []Strategy{resumable, direct, multipart}
}

// Upload transfers the file with the first strategy that succeeds and
// returns the backend-assigned handle plus the attempt trail. When every
// strategy fails the last error propagates, annotated with the
// strategies that were tried.
func (s *Selector) Upload(ctx context.Context, f File) (gemini.FileInfo, []Attempt, error) {
	if f.Open == nil {
		return gemini.FileInfo{}, nil, errorsx.Wrap(errNoSource, errorsx.ReasonUploadTransfer)
	}

	var attempts []Attempt
	var lastErr error
	for _, strategy := range s.Order(f.Size) {
		attempt := Attempt{
			ID:       uuid.NewString(),
			Strategy: strategy.Name(),
			At:       time.Now(),
		}

		var info gemini.FileInfo
		err := s.retry.Do(ctx, func() error {
			var uploadErr error
			info, uploadErr = strategy.Upload(ctx, f)
			return uploadErr
		})
		attempt.Err = err
		attempts = append(attempts, attempt)
		s.record(attempt, f.Size)

		if err == nil {
			s.logger.Info("upload accepted",
				slog.String("strategy", strategy.Name()),
				slog.String("file", f.Name),
				slog.String("handle", info.Name),
				slog.String("state", string(info.State)))
			return info, attempts, nil
		}

		lastErr = err
		s.logger.Warn("upload strategy failed, escalating",
			slog.String("strategy", strategy.Name()),
			slog.String("file", f.Name),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			break
		}
	}

	names := make([]string, 0, len(attempts))
	for _, a := range attempts {
		names = append(names, a.Strategy)
	}
	return gemini.FileInfo{}, attempts, errorsx.Annotate(lastErr, names)
}

func (s *Selector) record(a Attempt, size int64) {
	outcome := "ok"
	if a.Err != nil {
		outcome = "error"
	}
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "upload_attempt",
		Time:  a.At,
		Value: float64(size),
		Tags: map[string]string{
			"attempt_id": a.ID,
			"strategy":   a.Strategy,
			"outcome":    outcome,
		},
	})
}
