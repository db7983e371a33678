package transcriber

import (
	"errors"
	"fmt"
	"strings"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
)

// TranscriptionError carries the localized, user-facing message for a
// terminal failure while keeping the technical cause in the chain.
type TranscriptionError struct {
	Message string
	Cause   error
}

func (e *TranscriptionError) Error() string { return e.Message }
func (e *TranscriptionError) Unwrap() error { return e.Cause }

const (
	msgSafety   = "توقف التفريغ بسبب إعدادات السلامة. قد يكون المحتوى غير لائق."
	msgTooLarge = "حجم ملف الفيديو كبير جدًا بالنسبة للطلب المباشر. حاول استخدام ملف أصغر."
	msgGeneric  = "فشل الحصول على التفريغ من Gemini API. قد لا يتمكن النموذج من معالجة هذا الفيديو. السبب: %s"
)

// Classify maps a pipeline failure to its user-facing message. Safety
// terminations and payload-too-large rejections get dedicated guidance
// because they need different user remediation.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	raw := err.Error()

	if errorsx.HasReason(err, errorsx.ReasonSafetyTermination) || strings.Contains(raw, "finishReason: SAFETY") {
		return &TranscriptionError{Message: msgSafety, Cause: err}
	}
	if errorsx.HasReason(err, errorsx.ReasonUploadTooLarge) || isPayloadTooLarge(err, raw) {
		return &TranscriptionError{Message: msgTooLarge, Cause: err}
	}
	return &TranscriptionError{Message: fmt.Sprintf(msgGeneric, raw), Cause: err}
}

func isPayloadTooLarge(err error, raw string) bool {
	var se *gemini.StatusError
	if errors.As(err, &se) && se.Code == 413 {
		return true
	}
	return strings.Contains(raw, "413") || strings.Contains(raw, "Too Large")
}
