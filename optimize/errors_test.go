package optimize

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/pdfslim/ir/raw"
)

func TestErrorMatchesSentinels(t *testing.T) {
	cause := errors.New("bad xref")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindLoad, Err: cause})

	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrSave)

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, KindLoad, e.Kind)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{ErrLoad, "failed to load PDF"},
		{&Error{Kind: KindSave, Err: errors.New("no root")}, "failed to save PDF: no root"},
		{&Error{Kind: KindImageDecode, Ref: raw.ObjectRef{Num: 4}, Err: errors.New("eof")}, "object 4 0 R: failed to load image: eof"},
		{&Error{Kind: KindIO}, "I/O error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
