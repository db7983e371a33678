package transcriber

import (
	"errors"
	"strings"
	"testing"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
)

func TestClassifySafety(t *testing.T) {
	err := Classify(errorsx.Wrap(errors.New("blocked"), errorsx.ReasonSafetyTermination))
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
	if te.Message != msgSafety {
		t.Fatalf("message = %q", te.Message)
	}
}

func TestClassifyTooLargeFromStatusCode(t *testing.T) {
	err := Classify(&gemini.StatusError{Code: 413, Body: "Payload Too Large"})
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
	if te.Message != msgTooLarge {
		t.Fatalf("message = %q", te.Message)
	}
}

func TestClassifyGenericKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Classify(cause)
	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(te.Message, "connection reset") {
		t.Fatalf("message = %q, want underlying cause embedded", te.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost from chain")
	}
}

func TestAccumulatorAppendAndFreeze(t *testing.T) {
	a := NewAccumulator()
	a.Append("ذهبت إلى المسجد ")
	a.Append("<u>لأصلي</u>")
	if a.Chunks() != 2 {
		t.Fatalf("chunks = %d", a.Chunks())
	}
	a.Freeze()
	a.Append(" زيادة")
	if got := a.Text(); got != "ذهبت إلى المسجد <u>لأصلي</u>" {
		t.Fatalf("text after freeze = %q", got)
	}
	if got := a.PlainText(); got != "ذهبت إلى المسجد لأصلي" {
		t.Fatalf("plain text = %q", got)
	}
}

func TestStripCorrectionsLeavesWords(t *testing.T) {
	got := StripCorrections("قال <u>لأصلي</u> ثم <u>ذهب</u>")
	if got != "قال لأصلي ثم ذهب" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildPromptIncludesMetadataAndMarkup(t *testing.T) {
	prompt := BuildPrompt(Metadata{Grade: "الصف الأول الثانوي", Subject: "اللغة العربية", Unit: "الوحدة الثانية"})
	for _, want := range []string{"الصف الأول الثانوي", "اللغة العربية", "الوحدة الثانية", CorrectionOpen, CorrectionClose} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestProgressTrackerMonotone(t *testing.T) {
	var emitted []int
	tr := newProgressTracker(func(p int) { emitted = append(emitted, p) })
	tr.set(10)
	tr.set(5)
	tr.set(50)
	tr.chunk(1)
	tr.chunk(30)
	tr.set(100)

	want := []int{10, 50, 62, 95, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted = %v", emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted = %v, want %v", emitted, want)
		}
	}
}
