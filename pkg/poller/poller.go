package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
	"github.com/faheemlabs/faheem/pkg/logging"
)

// Clock abstracts time so the polling loop can run in tests without
// real delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FileGetter queries the current state of a file resource.
type FileGetter interface {
	GetFile(ctx context.Context, name string) (gemini.FileInfo, error)
}

const defaultInterval = 5 * time.Second

// Poller waits for a file handle to leave the PROCESSING state. Query
// failures are treated as transient and retried silently; only a FAILED
// state surfaces as an error.
type Poller struct {
	backend  FileGetter
	interval time.Duration
	// MaxWait bounds the total wait when positive. The reference
	// behavior is unbounded, so the default is zero.
	maxWait time.Duration
	clock   Clock
	logger  *slog.Logger
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxWait(d time.Duration) Option {
	return func(p *Poller) { p.maxWait = d }
}

func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

func New(backend FileGetter, opts ...Option) *Poller {
	p := &Poller{
		backend:  backend,
		interval: defaultInterval,
		clock:    realClock{},
		logger:   logging.NewComponentLogger(slog.Default(), "readiness_poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AwaitActive polls the handle until it becomes ACTIVE or the backend
// marks it FAILED. PROCESSING and transient query failures keep the
// loop going.
func (p *Poller) AwaitActive(ctx context.Context, name string) (gemini.FileInfo, error) {
	start := p.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return gemini.FileInfo{}, ctx.Err()
		case <-p.clock.After(p.interval):
		}

		if p.maxWait > 0 && p.clock.Now().Sub(start) > p.maxWait {
			return gemini.FileInfo{}, errorsx.Wrap(
				fmt.Errorf("file %s not active after %s", name, p.maxWait),
				errorsx.ReasonProcessingFailed,
			)
		}

		info, err := p.backend.GetFile(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return gemini.FileInfo{}, ctx.Err()
			}
			p.logger.Warn("readiness query failed, will retry",
				slog.String("handle", name),
				slog.String("error", err.Error()))
			continue
		}

		switch info.State {
		case gemini.StateActive:
			return info, nil
		case gemini.StateFailed:
			return gemini.FileInfo{}, errorsx.Wrap(
				fmt.Errorf("file processing failed: %s", info.Error.Detail()),
				errorsx.ReasonProcessingFailed,
			)
		default:
			// PROCESSING or absent: keep waiting.
		}
	}
}
