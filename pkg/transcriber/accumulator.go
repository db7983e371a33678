package transcriber

import (
	"strings"
	"sync"
)

// Accumulator builds a job's transcript from streamed fragments. Text is
// append-only while the stream runs and frozen once the job reaches a
// terminal status.
type Accumulator struct {
	mu     sync.Mutex
	sb     strings.Builder
	chunks int
	frozen bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds one fragment verbatim. Appends after Freeze are dropped.
func (a *Accumulator) Append(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return
	}
	a.sb.WriteString(fragment)
	a.chunks++
}

// Freeze stops further appends; the accumulated text is final.
func (a *Accumulator) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sb.String()
}

func (a *Accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// PlainText returns the transcript with the correction markup stripped,
// suitable for plain-text export.
func (a *Accumulator) PlainText() string {
	return StripCorrections(a.Text())
}

// StripCorrections removes the correction delimiters while leaving the
// corrected words in place.
func StripCorrections(s string) string {
	s = strings.ReplaceAll(s, CorrectionOpen, "")
	return strings.ReplaceAll(s, CorrectionClose, "")
}
