package transcriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/metrics"
	"github.com/faheemlabs/faheem/pkg/upload"
)

// Uploader transfers file bytes and returns the backend handle.
type Uploader interface {
	Upload(ctx context.Context, f upload.File) (gemini.FileInfo, []upload.Attempt, error)
}

// Awaiter waits for a handle to become ACTIVE.
type Awaiter interface {
	AwaitActive(ctx context.Context, name string) (gemini.FileInfo, error)
}

// Streamer runs the streamed inference call and deletes file resources.
type Streamer interface {
	StreamGenerateContent(ctx context.Context, fileURI, fileMime, prompt string, onText func(string)) error
	DeleteFile(ctx context.Context, name string) error
}

// Callbacks receive one job's transcription progress. Within a run they
// fire in the order status, progress, chunks; any of them may be nil.
type Callbacks struct {
	OnChunk        func(string)
	OnStatusChange func(string)
	OnProgress     func(int)
}

// Orchestrator sequences upload, readiness wait, streamed inference and
// compensating cleanup for one file. It holds no per-job state; callers
// own their job records and hear about everything through Callbacks.
type Orchestrator struct {
	uploader Uploader
	awaiter  Awaiter
	streamer Streamer
	logger   *slog.Logger
	obs      metrics.Observer

	cleanupTimeout time.Duration
}

type Option func(*Orchestrator)

func WithObserver(obs metrics.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(uploader Uploader, awaiter Awaiter, streamer Streamer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		uploader:       uploader,
		awaiter:        awaiter,
		streamer:       streamer,
		logger:         logging.NewComponentLogger(slog.Default(), "orchestrator"),
		obs:            metrics.NoopObserver{},
		cleanupTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives one file through the full transcription sequence. On any
// failure after a handle was obtained it attempts exactly one
// compensating delete; the returned error carries the classified
// user-facing message.
func (o *Orchestrator) Run(ctx context.Context, f upload.File, md Metadata, cb Callbacks) error {
	started := time.Now()
	progress := newProgressTracker(cb.OnProgress)

	o.setStatus(cb, StatusPreparing)
	progress.set(progressStart)
	progress.set(progressUploadBegin)

	info, attempts, err := o.uploader.Upload(ctx, f)
	if err != nil {
		// No handle was ever obtained, nothing to clean up.
		o.record("run_failed", started, f.Name, string(errorsx.Reason(err)))
		return Classify(err)
	}
	o.logger.Info("file uploaded",
		slog.String("file", f.Name),
		slog.String("handle", info.Name),
		slog.Int("attempts", len(attempts)))

	if info.State != gemini.StateActive {
		active, err := o.awaiter.AwaitActive(ctx, info.Name)
		if err != nil {
			o.cleanup(info.Name)
			o.record("run_failed", started, f.Name, string(errorsx.Reason(err)))
			return Classify(err)
		}
		info = active
	}
	progress.set(progressUploadActive)

	o.setStatus(cb, StatusTranscribing)
	progress.set(progressStreamBegin)

	chunks := 0
	err = o.streamer.StreamGenerateContent(ctx, info.URI, info.MimeType, BuildPrompt(md), func(text string) {
		if cb.OnChunk != nil {
			cb.OnChunk(text)
		}
		chunks++
		progress.chunk(chunks)
	})
	if err != nil {
		o.cleanup(info.Name)
		o.record("run_failed", started, f.Name, string(errorsx.Reason(err)))
		return Classify(err)
	}

	progress.set(progressDone)
	o.record("run_completed", started, f.Name, "")
	return nil
}

func (o *Orchestrator) setStatus(cb Callbacks, status string) {
	if cb.OnStatusChange != nil {
		cb.OnStatusChange(status)
	}
}

// cleanup is best effort: a failed delete is logged and swallowed, it is
// never part of the run's success or failure contract.
func (o *Orchestrator) cleanup(handle string) {
	if handle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cleanupTimeout)
	defer cancel()
	if err := o.streamer.DeleteFile(ctx, handle); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonCleanup)
		o.logger.Error("failed to delete orphaned file",
			slog.String("handle", handle),
			slog.String("error", err.Error()))
		return
	}
	o.logger.Info("cleaned up failed upload", slog.String("handle", handle))
}

func (o *Orchestrator) record(name string, started time.Time, file, reason string) {
	tags := map[string]string{"file": file}
	if reason != "" {
		tags["reason"] = reason
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
		Tags:  tags,
	})
}
