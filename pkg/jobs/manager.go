package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faheemlabs/faheem/pkg/events"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/transcriber"
	"github.com/faheemlabs/faheem/pkg/upload"
)

// Runner drives one file through the transcription pipeline.
type Runner interface {
	Run(ctx context.Context, f upload.File, md transcriber.Metadata, cb transcriber.Callbacks) error
}

// Broadcaster receives every job event the manager emits.
type Broadcaster interface {
	Broadcast(ev events.Event)
}

var (
	ErrDuplicate   = errors.New("file already added")
	ErrTooLarge    = fmt.Errorf("file exceeds the %d byte limit", MaxFileSize)
	ErrNotFound    = errors.New("job not found")
	ErrWrongStatus = errors.New("job is not in the required status")

	errFrozen = errors.New("job is terminal")
)

// Manager owns the worklist. Every mutation is an immutable
// read-modify-write of one job keyed by id, so concurrent callbacks from
// different runs interleave safely.
type Manager struct {
	mu      sync.RWMutex
	order   []string
	jobs    map[string]Job
	sources map[string]upload.File

	runner Runner
	hub    Broadcaster
	seq    *events.SeqGen
	logger *slog.Logger

	wg     sync.WaitGroup
	active int
}

type ManagerOption func(*Manager)

func WithBroadcaster(hub Broadcaster) ManagerOption {
	return func(m *Manager) { m.hub = hub }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(runner Runner, opts ...ManagerOption) *Manager {
	m := &Manager{
		jobs:    make(map[string]Job),
		sources: make(map[string]upload.File),
		runner:  runner,
		seq:     events.NewSeqGen(),
		logger:  logging.NewComponentLogger(slog.Default(), "worklist"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a file on the worklist in awaiting_metadata. Oversized
// files are rejected and re-adds of the same file identity are deduped.
func (m *Manager) Add(f upload.File, modTime time.Time) (Job, error) {
	if f.Size > MaxFileSize {
		return Job{}, ErrTooLarge
	}
	id := DeriveID(f.Name, f.Size, modTime)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; ok {
		return Job{}, ErrDuplicate
	}
	job := Job{
		ID:        id,
		FileName:  f.Name,
		MimeType:  f.MimeType,
		ByteSize:  f.Size,
		Status:    StatusAwaitingMetadata,
		UpdatedAt: time.Now(),
	}
	m.jobs[id] = job
	m.sources[id] = f
	m.order = append(m.order, id)
	return job, nil
}

// SetMetadata attaches curriculum metadata and moves the job to queued.
func (m *Manager) SetMetadata(id string, md transcriber.Metadata) (Job, error) {
	return m.applyPatch(id, func(j *Job) error {
		if j.Status != StatusAwaitingMetadata {
			return ErrWrongStatus
		}
		copied := md
		j.Metadata = &copied
		j.Status = StatusQueued
		return nil
	})
}

// List returns the worklist in insertion order.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id])
	}
	return out
}

func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}

// IsTranscribing reports whether any run is in flight.
func (m *Manager) IsTranscribing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active > 0
}

// StartAll launches a run for every queued job. Runs are independent
// tasks with no concurrency limit; one job's failure never touches its
// neighbours. Returns the number of runs started.
func (m *Manager) StartAll(ctx context.Context) int {
	m.mu.Lock()
	var ids []string
	for _, id := range m.order {
		if m.jobs[id].Status == StatusQueued {
			ids = append(ids, id)
		}
	}
	m.active += len(ids)
	m.mu.Unlock()

	for _, id := range ids {
		m.wg.Add(1)
		go func(jobID string) {
			defer m.wg.Done()
			m.runOne(ctx, jobID)
			m.mu.Lock()
			m.active--
			m.mu.Unlock()
		}(id)
	}
	return len(ids)
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runOne(ctx context.Context, id string) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	source, okSrc := m.sources[id]
	m.mu.RUnlock()
	if !ok || !okSrc || job.Metadata == nil {
		return
	}
	md := *job.Metadata

	acc := transcriber.NewAccumulator()
	cb := transcriber.Callbacks{
		OnStatusChange: func(status string) {
			m.patchStatus(id, Status(status))
		},
		OnProgress: func(percent int) {
			m.patchProgress(id, percent)
		},
		OnChunk: func(fragment string) {
			acc.Append(fragment)
			m.patchChunk(id, fragment, acc.Text())
		},
	}

	err := m.runner.Run(ctx, source, md, cb)
	acc.Freeze()

	if err != nil {
		m.logger.Error("transcription failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		m.patchTerminal(id, StatusError, err.Error())
		return
	}
	m.patchTerminal(id, StatusCompleted, "")
}

// ClearCompleted removes every job in a terminal status.
func (m *Manager) ClearCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if m.jobs[id].Status.Terminal() {
			delete(m.jobs, id)
			delete(m.sources, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// ClearAll drops the whole worklist. In-flight runs keep their network
// operations going but their callbacks hit absent ids and are ignored.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.jobs = make(map[string]Job)
	m.sources = make(map[string]upload.File)
}

// ExportPlainText returns the transcript with correction markup
// stripped, byte for byte.
func (m *Manager) ExportPlainText(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return "", ErrNotFound
	}
	return transcriber.StripCorrections(job.Transcription), nil
}

// applyPatch performs the read-modify-write for one job. Patches against
// terminal jobs and illegal status transitions are dropped, which keeps
// accumulated text frozen and the lifecycle strictly forward.
func (m *Manager) applyPatch(id string, mutate func(*Job) error) (Job, error) {
	m.mu.Lock()
	current, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Job{}, ErrNotFound
	}
	if current.Status.Terminal() {
		m.mu.Unlock()
		return current, errFrozen
	}
	next := current
	if err := mutate(&next); err != nil {
		m.mu.Unlock()
		return current, err
	}
	if next.Status != current.Status && !CanTransition(current.Status, next.Status) {
		m.logger.Warn("dropping illegal status transition",
			slog.String("job_id", id),
			slog.String("from", string(current.Status)),
			slog.String("to", string(next.Status)))
		next.Status = current.Status
	}
	next.UpdatedAt = time.Now()
	m.jobs[id] = next
	m.mu.Unlock()
	return next, nil
}

func (m *Manager) patchStatus(id string, status Status) {
	if _, err := m.applyPatch(id, func(j *Job) error {
		j.Status = status
		return nil
	}); err != nil {
		return
	}
	m.emit(events.NewStatusEvent(id, m.seq.Next(id), string(status), nil))
}

func (m *Manager) patchProgress(id string, percent int) {
	if _, err := m.applyPatch(id, func(j *Job) error {
		p := percent
		j.Progress = &p
		return nil
	}); err != nil {
		return
	}
	m.emit(events.NewProgressEvent(id, m.seq.Next(id), percent, nil))
}

func (m *Manager) patchChunk(id, fragment, full string) {
	if _, err := m.applyPatch(id, func(j *Job) error {
		j.Transcription = full
		return nil
	}); err != nil {
		return
	}
	m.emit(events.NewChunkEvent(id, m.seq.Next(id), fragment, nil))
}

func (m *Manager) patchTerminal(id string, status Status, errMsg string) {
	if _, err := m.applyPatch(id, func(j *Job) error {
		j.Status = status
		j.Error = errMsg
		// A completed job keeps its final progress. A mid-run value on a
		// failed job would be misleading, so that one is cleared.
		if status != StatusCompleted {
			j.Progress = nil
		}
		return nil
	}); err != nil {
		return
	}
	m.emit(events.NewStatusEvent(id, m.seq.Next(id), string(status), map[string]string{events.MetaReason: errMsg}))
}

func (m *Manager) emit(ev events.Event) {
	if m.hub != nil {
		m.hub.Broadcast(ev)
	}
}
