package optimize

import (
	"fmt"

	"github.com/wudi/pdfslim/ir/raw"
)

// ErrorKind classifies compression failures.
type ErrorKind int

const (
	KindLoad ErrorKind = iota + 1
	KindSave
	KindImageDecode
	KindImageEncode
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindLoad:
		return "failed to load PDF"
	case KindSave:
		return "failed to save PDF"
	case KindImageDecode:
		return "failed to load image"
	case KindImageEncode:
		return "failed to save image"
	case KindIO:
		return "I/O error"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by the optimizer. Image kinds carry the
// reference of the stream they apply to and only surface in reports.
type Error struct {
	Kind ErrorKind
	Ref  raw.ObjectRef
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Ref.Num != 0 {
		msg = fmt.Sprintf("object %v: %s", e.Ref, msg)
	}
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Ref.Num == 0
}

var (
	ErrLoad        = &Error{Kind: KindLoad}
	ErrSave        = &Error{Kind: KindSave}
	ErrImageDecode = &Error{Kind: KindImageDecode}
	ErrImageEncode = &Error{Kind: KindImageEncode}
	ErrIO          = &Error{Kind: KindIO}
)
