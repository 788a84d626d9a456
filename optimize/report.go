package optimize

import "github.com/wudi/pdfslim/ir/raw"

type Stage string

const (
	StageImage   Stage = "image"
	StageGeneric Stage = "generic"
)

// Outcome is the replace-or-keep decision for one stream.
type Outcome int

const (
	OutcomeKept Outcome = iota
	OutcomeReplaced
)

func (o Outcome) String() string {
	if o == OutcomeReplaced {
		return "replaced"
	}
	return "kept"
}

// Reason explains why a stream was kept.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonDecodeFailed
	ReasonEncodeFailed
	ReasonNotSmaller
	ReasonUnsupported
)

func (r Reason) String() string {
	switch r {
	case ReasonDecodeFailed:
		return "decode failed"
	case ReasonEncodeFailed:
		return "encode failed"
	case ReasonNotSmaller:
		return "not smaller"
	case ReasonUnsupported:
		return "unsupported"
	default:
		return ""
	}
}

type StreamResult struct {
	Ref          raw.ObjectRef
	Stage        Stage
	Encoding     Encoding
	Outcome      Outcome
	Reason       Reason
	OriginalSize int
	NewSize      int
	Err          error
}

// Reduction is the size saving in percent; zero for kept streams.
func (r StreamResult) Reduction() float64 {
	if r.Outcome != OutcomeReplaced || r.OriginalSize == 0 {
		return 0
	}
	return (1 - float64(r.NewSize)/float64(r.OriginalSize)) * 100
}

type Report struct {
	InputSize        int
	OutputSize       int
	Streams          []StreamResult
	MetadataStripped bool

	// Output tallies: indirect objects written, and the serialized size of
	// stream objects with their dictionaries and keywords.
	ObjectsWritten    int
	StreamObjectBytes int64
}

// Replaced counts streams whose payload was swapped, optionally for one stage.
func (r *Report) Replaced(stage Stage) int {
	n := 0
	for _, s := range r.Streams {
		if s.Outcome == OutcomeReplaced && (stage == "" || s.Stage == stage) {
			n++
		}
	}
	return n
}

// StreamBytesSaved sums payload savings over replaced streams.
func (r *Report) StreamBytesSaved() int64 {
	var n int64
	for _, s := range r.Streams {
		if s.Outcome == OutcomeReplaced {
			n += int64(s.OriginalSize - s.NewSize)
		}
	}
	return n
}

// Result bundles the serialized output with its report.
type Result struct {
	Input  []byte
	Output []byte
	Report Report
}

// Effective reports whether the output is strictly smaller than the input.
func (r *Result) Effective() bool { return len(r.Output) < len(r.Input) }

// Smallest returns the output when it is effective and the input otherwise.
func (r *Result) Smallest() []byte {
	if r.Effective() {
		return r.Output
	}
	return r.Input
}
