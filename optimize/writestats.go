package optimize

import (
	"context"

	"github.com/wudi/pdfslim/ir/raw"
)

// writeStats tallies objects as the writer emits them.
type writeStats struct {
	objects     int
	bytes       int64
	streamBytes int64
}

func (s *writeStats) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error { return nil }

func (s *writeStats) AfterWrite(_ context.Context, _ raw.ObjectRef, obj raw.Object, n int64) error {
	s.objects++
	s.bytes += n
	if _, ok := obj.(*raw.StreamObj); ok {
		s.streamBytes += n
	}
	return nil
}
