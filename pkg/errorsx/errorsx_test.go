package errorsx

import (
	"strings"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonUploadTransfer)
	if Reason(err) != ReasonUploadTransfer {
		t.Fatalf("expected reason %s, got %s", ReasonUploadTransfer, Reason(err))
	}
	if !HasReason(err, ReasonUploadTransfer) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonUploadInit)
	second := Wrap(first, ReasonTranscriptionRequest)
	if Reason(second) != ReasonUploadInit {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestAnnotateAttempted(t *testing.T) {
	err := Annotate(Wrap(assertErr{}, ReasonUploadInit), []string{"resumable", "direct", "multipart"})
	got := Attempted(err)
	if len(got) != 3 || got[0] != "resumable" {
		t.Fatalf("unexpected attempted list: %v", got)
	}
	if !strings.Contains(err.Error(), "attempted: resumable, direct, multipart") {
		t.Fatalf("attempted strategies missing from message: %s", err.Error())
	}
	if Reason(err) != ReasonUploadInit {
		t.Fatalf("annotation must not hide the reason, got %s", Reason(err))
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
