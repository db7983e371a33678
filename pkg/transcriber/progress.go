package transcriber

// Synthetic progress milestones. Progress is an estimate, not derived
// from true byte or token counts; the sequence must stay monotonically
// non-decreasing within [0,100].
const (
	progressStart        = 0
	progressUploadBegin  = 10
	progressUploadActive = 50
	progressStreamBegin  = 60
	progressPerChunk     = 2
	progressStreamCap    = 95
	progressDone         = 100
)

type progressTracker struct {
	emit func(int)
	last int
}

func newProgressTracker(emit func(int)) *progressTracker {
	return &progressTracker{emit: emit, last: -1}
}

func (t *progressTracker) set(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < t.last {
		return
	}
	t.last = percent
	if t.emit != nil {
		t.emit(percent)
	}
}

// chunk advances progress for the n-th received fragment, capped below
// the completion milestone.
func (t *progressTracker) chunk(n int) {
	p := progressStreamBegin + n*progressPerChunk
	if p > progressStreamCap {
		p = progressStreamCap
	}
	t.set(p)
}
