package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faheemlabs/faheem/pkg/events"
	"github.com/faheemlabs/faheem/pkg/transcriber"
	"github.com/faheemlabs/faheem/pkg/upload"
)

type scriptedRunner struct {
	mu        sync.Mutex
	fragments []string
	err       error
	callbacks transcriber.Callbacks
	block     chan struct{}
}

func (r *scriptedRunner) Run(ctx context.Context, f upload.File, md transcriber.Metadata, cb transcriber.Callbacks) error {
	r.mu.Lock()
	r.callbacks = cb
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	cb.OnStatusChange(transcriber.StatusPreparing)
	cb.OnProgress(0)
	cb.OnProgress(10)
	cb.OnStatusChange(transcriber.StatusTranscribing)
	cb.OnProgress(60)
	for _, fragment := range r.fragments {
		cb.OnChunk(fragment)
	}
	if r.err != nil {
		return r.err
	}
	cb.OnProgress(100)
	return nil
}

type captureHub struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *captureHub) Broadcast(ev events.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *captureHub) all() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Event, len(h.events))
	copy(out, h.events)
	return out
}

func sourceFile(name string, size int64) upload.File {
	return upload.File{
		Name:     name,
		MimeType: "video/mp4",
		Size:     size,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("x")), nil },
	}
}

var fixedTime = time.UnixMilli(1700000000000)

func TestAddRejectsOversizeAndDuplicates(t *testing.T) {
	m := NewManager(&scriptedRunner{})

	if _, err := m.Add(sourceFile("huge.mp4", MaxFileSize+1), fixedTime); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}

	job, err := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.Status != StatusAwaitingMetadata {
		t.Fatalf("status = %q", job.Status)
	}
	if job.ID != DeriveID("clip.mp4", 1024, fixedTime) {
		t.Fatalf("id = %q", job.ID)
	}

	if _, err := m.Add(sourceFile("clip.mp4", 1024), fixedTime); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestSetMetadataRequiresAwaiting(t *testing.T) {
	m := NewManager(&scriptedRunner{})
	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)

	updated, err := m.SetMetadata(job.ID, transcriber.Metadata{Grade: "1", Subject: "عربي", Unit: "2"})
	if err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if updated.Status != StatusQueued || updated.Metadata == nil {
		t.Fatalf("job = %+v", updated)
	}

	if _, err := m.SetMetadata(job.ID, transcriber.Metadata{}); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("err = %v, want ErrWrongStatus", err)
	}
	if _, err := m.SetMetadata("missing", transcriber.Metadata{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLifecycleCompletes(t *testing.T) {
	hub := &captureHub{}
	runner := &scriptedRunner{fragments: []string{"مرحبا ", "<u>بالعالم</u>"}}
	m := NewManager(runner, WithBroadcaster(hub))

	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	if _, err := m.SetMetadata(job.ID, transcriber.Metadata{Grade: "1"}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	if n := m.StartAll(context.Background()); n != 1 {
		t.Fatalf("StartAll = %d", n)
	}
	m.Wait()

	final, _ := m.Get(job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q, error = %q", final.Status, final.Error)
	}
	if final.Transcription != "مرحبا <u>بالعالم</u>" {
		t.Fatalf("transcription = %q", final.Transcription)
	}
	if final.Progress == nil || *final.Progress != 100 {
		t.Fatalf("completed job lost final progress: %+v", final.Progress)
	}

	var lastSeq int64 = -1
	for _, ev := range hub.all() {
		if ev.JobID() != job.ID {
			continue
		}
		if ev.Seq() <= lastSeq {
			t.Fatalf("sequence not strictly increasing: %d after %d", ev.Seq(), lastSeq)
		}
		lastSeq = ev.Seq()
	}
	if lastSeq < 0 {
		t.Fatalf("no events broadcast for job %s", job.ID)
	}
}

func TestRunFailureMarksError(t *testing.T) {
	runner := &scriptedRunner{
		fragments: []string{"جزء"},
		err:       &transcriber.TranscriptionError{Message: "فشل الحصول على التفريغ"},
	}
	m := NewManager(runner)

	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	m.SetMetadata(job.ID, transcriber.Metadata{})
	m.StartAll(context.Background())
	m.Wait()

	final, _ := m.Get(job.ID)
	if final.Status != StatusError {
		t.Fatalf("status = %q", final.Status)
	}
	if final.Error != "فشل الحصول على التفريغ" {
		t.Fatalf("error = %q", final.Error)
	}
	if final.Transcription != "جزء" {
		t.Fatalf("partial transcript lost: %q", final.Transcription)
	}
	if final.Progress != nil {
		t.Fatalf("progress should be cleared on failure")
	}
}

func TestLateCallbacksDroppedAfterTerminal(t *testing.T) {
	runner := &scriptedRunner{fragments: []string{"نص"}}
	m := NewManager(runner)

	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	m.SetMetadata(job.ID, transcriber.Metadata{})
	m.StartAll(context.Background())
	m.Wait()

	runner.mu.Lock()
	cb := runner.callbacks
	runner.mu.Unlock()
	cb.OnChunk(" متأخر")
	cb.OnProgress(10)
	cb.OnStatusChange(transcriber.StatusTranscribing)

	final, _ := m.Get(job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %q", final.Status)
	}
	if strings.Contains(final.Transcription, "متأخر") {
		t.Fatalf("terminal transcript mutated: %q", final.Transcription)
	}
}

func TestClearCompletedKeepsActive(t *testing.T) {
	m := NewManager(&scriptedRunner{})

	done, _ := m.Add(sourceFile("done.mp4", 1024), fixedTime)
	m.SetMetadata(done.ID, transcriber.Metadata{})
	m.StartAll(context.Background())
	m.Wait()

	pending, _ := m.Add(sourceFile("pending.mp4", 2048), fixedTime)

	m.ClearCompleted()
	if _, ok := m.Get(done.ID); ok {
		t.Fatalf("terminal job survived ClearCompleted")
	}
	if _, ok := m.Get(pending.ID); !ok {
		t.Fatalf("pending job removed by ClearCompleted")
	}
	if got := len(m.List()); got != 1 {
		t.Fatalf("list length = %d", got)
	}
}

func TestExportPlainTextStripsMarkup(t *testing.T) {
	runner := &scriptedRunner{fragments: []string{"ذهبت ", "<u>لأصلي</u>"}}
	m := NewManager(runner)

	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	m.SetMetadata(job.ID, transcriber.Metadata{})
	m.StartAll(context.Background())
	m.Wait()

	text, err := m.ExportPlainText(job.ID)
	if err != nil {
		t.Fatalf("ExportPlainText: %v", err)
	}
	if text != "ذهبت لأصلي" {
		t.Fatalf("text = %q", text)
	}

	final, _ := m.Get(job.ID)
	if !strings.Contains(final.Transcription, "<u>") {
		t.Fatalf("stored transcript lost its markup: %q", final.Transcription)
	}
}

func TestIsTranscribingWhileRunning(t *testing.T) {
	runner := &scriptedRunner{block: make(chan struct{})}
	m := NewManager(runner)

	job, _ := m.Add(sourceFile("clip.mp4", 1024), fixedTime)
	m.SetMetadata(job.ID, transcriber.Metadata{})
	m.StartAll(context.Background())

	deadline := time.Now().Add(time.Second)
	for !m.IsTranscribing() {
		if time.Now().After(deadline) {
			t.Fatalf("run never became active")
		}
		time.Sleep(time.Millisecond)
	}

	close(runner.block)
	m.Wait()
	if m.IsTranscribing() {
		t.Fatalf("still active after Wait")
	}
}
