package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonUploadInit     ReasonCode = "upload_init"
	ReasonUploadTransfer ReasonCode = "upload_transfer"
	ReasonUploadTooLarge ReasonCode = "upload_too_large"

	ReasonProcessingFailed ReasonCode = "processing_failed"

	ReasonTranscriptionRequest ReasonCode = "transcription_request"
	ReasonSafetyTermination    ReasonCode = "safety_termination"

	ReasonCleanup ReasonCode = "cleanup"

	ReasonRelayTimeout ReasonCode = "relay_timeout"
)
