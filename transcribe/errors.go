package transcribe

import "errors"

// ExtractionKind classifies audio extraction failures.
type ExtractionKind int

const (
	// UnsupportedFormat: the container/codec cannot be demuxed.
	UnsupportedFormat ExtractionKind = iota
	// Truncated: the source is shorter than the minimum viable duration and
	// is treated as a corrupt capture (not retried).
	Truncated
)

func (k ExtractionKind) String() string {
	if k == Truncated {
		return "truncated"
	}
	return "unsupported-format"
}

// ExtractionError is fatal for its recording; the recording file itself is
// always preserved so the failure can be retried manually.
type ExtractionError struct {
	Kind ExtractionKind
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	msg := "extract " + e.Path + " (" + e.Kind.String() + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RecognitionKind classifies speech recognition failures.
type RecognitionKind int

const (
	// ModelLoad: the model directory is malformed or missing required files.
	// Fatal for the supervisor's transcription capability, never for recording.
	ModelLoad RecognitionKind = iota
	// Decode: a single chunk failed to decode. Logged and degraded to an
	// empty-text segment, never fatal for the file.
	Decode
)

func (k RecognitionKind) String() string {
	if k == Decode {
		return "decode"
	}
	return "model-load"
}

type RecognitionError struct {
	Kind RecognitionKind
	Err  error
}

func (e *RecognitionError) Error() string {
	msg := "recognize (" + e.Kind.String() + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsModelLoad reports whether err is a model-load failure, which disables the
// caller's transcription capability until configuration is fixed.
func IsModelLoad(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re) && re.Kind == ModelLoad
}

// IsTruncated reports whether err marks a corrupt (too short) capture.
func IsTruncated(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == Truncated
}
