package transcriber

import "fmt"

// Metadata tags a transcription with its curriculum position. It is an
// opaque value to the pipeline; only the prompt builder reads it.
type Metadata struct {
	Grade   string `json:"grade"`
	Subject string `json:"subject"`
	Unit    string `json:"unit"`
}

// Statuses surfaced through OnStatusChange, in order.
const (
	StatusPreparing    = "preparing"
	StatusTranscribing = "transcribing"
)

// CorrectionOpen and CorrectionClose delimit a word or phrase the model
// corrected from the raw audio. Fragments keep the delimiters; plain-text
// export strips them.
const (
	CorrectionOpen  = "<u>"
	CorrectionClose = "</u>"
)

// BuildPrompt renders the fixed Arabic instruction prompt: transcribe the
// spoken audio, no timestamps, wrap every correction in the delimiter
// pair, stream clean text only.
func BuildPrompt(md Metadata) string {
	contextSentence := fmt.Sprintf(
		"الفيديو الحالي خاص بالمنهج التعليمي المصري. الصف الدراسي (وقد يتضمن الشعبة): \"%s\", المادة: \"%s\", الوحدة الدراسية: \"%s\".",
		md.Grade, md.Subject, md.Unit,
	)

	return "أنت خدمة تفريغ صوتي خبيرة متخصصة في اللغة العربية والمناهج التعليمية المصرية.\n" +
		contextSentence + "\n\n" +
		"مهامك هي:\n" +
		"1. قم بتفريغ الصوت المنطوق من الفيديو إلى نص باللغة العربية.\n" +
		"2. **هام للغاية: لا تقم بتضمين أي طوابع زمنية.** يجب أن يكون الناتج نصًا نظيفًا فقط.\n" +
		"3. **هام للغاية: تحديد وتصحيح أي أخطاء في التفريغ.** عندما تقوم بإجراء تصحيح، **يجب** عليك وضع الكلمة أو العبارة المصححة بين علامتي `<u>` و `</u>`. على سبيل المثال، إذا قال المتحدث شيئًا يبدو مثل \"ذهبت إلى المسجد لي أصلي\" ولكن السياق يشير إلى أنه قصد \"ذهبت إلى المسجد <u>لأصلي</u>\"، فيجب عليك إخراج \"ذهبت إلى المسجد <u>لأصلي</u>\".\n" +
		"4. قم بتوفير النص النهائي النظيف والمصحح فقط كبث مباشر (stream). لا تقم بإضافة أي تعليقات أو شروحات إضافية.\n"
}
