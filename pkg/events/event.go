package events

import (
	"sync"
)

type Kind string

const (
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindChunk    Kind = "chunk"
)

const (
	MetaJobID     = "job_id"
	MetaAttemptID = "attempt_id"
	MetaStrategy  = "strategy"
	MetaReason    = "reason"
)

// Event is one element of a job's callback stream. Within a job, events
// are delivered in emission order; across jobs no ordering holds.
type Event interface {
	Kind() Kind
	JobID() string
	Seq() int64
	Meta() map[string]string
}

type StatusEvent struct {
	jobID  string
	seq    int64
	status string
	meta   map[string]string
}

func NewStatusEvent(jobID string, seq int64, status string, meta map[string]string) StatusEvent {
	return StatusEvent{jobID: jobID, seq: seq, status: status, meta: cloneMeta(meta)}
}

func (e StatusEvent) Kind() Kind              { return KindStatus }
func (e StatusEvent) JobID() string           { return e.jobID }
func (e StatusEvent) Seq() int64              { return e.seq }
func (e StatusEvent) Meta() map[string]string { return cloneMeta(e.meta) }
func (e StatusEvent) Status() string          { return e.status }

type ProgressEvent struct {
	jobID   string
	seq     int64
	percent int
	meta    map[string]string
}

func NewProgressEvent(jobID string, seq int64, percent int, meta map[string]string) ProgressEvent {
	return ProgressEvent{jobID: jobID, seq: seq, percent: percent, meta: cloneMeta(meta)}
}

func (e ProgressEvent) Kind() Kind              { return KindProgress }
func (e ProgressEvent) JobID() string           { return e.jobID }
func (e ProgressEvent) Seq() int64              { return e.seq }
func (e ProgressEvent) Meta() map[string]string { return cloneMeta(e.meta) }
func (e ProgressEvent) Percent() int            { return e.percent }

type ChunkEvent struct {
	jobID string
	seq   int64
	text  string
	meta  map[string]string
}

func NewChunkEvent(jobID string, seq int64, text string, meta map[string]string) ChunkEvent {
	return ChunkEvent{jobID: jobID, seq: seq, text: text, meta: cloneMeta(meta)}
}

func (e ChunkEvent) Kind() Kind              { return KindChunk }
func (e ChunkEvent) JobID() string           { return e.jobID }
func (e ChunkEvent) Seq() int64              { return e.seq }
func (e ChunkEvent) Meta() map[string]string { return cloneMeta(e.meta) }
func (e ChunkEvent) Text() string            { return e.text }

// SeqGen hands out per-job monotonically increasing sequence numbers.
type SeqGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewSeqGen() *SeqGen {
	return &SeqGen{value: make(map[string]int64)}
}

func (g *SeqGen) Next(jobID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[jobID] + 1
	g.value[jobID] = v
	return v
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
