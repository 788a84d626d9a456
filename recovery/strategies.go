package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfslim/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error it sees and asks the caller to fix up
// the input and continue.
type LenientStrategy struct {
	mu     sync.Mutex
	logger observability.Logger
	Errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{logger: observability.NopLogger{}}
}

// WithLogger reports each recovered error at warn level.
func (s *LenientStrategy) WithLogger(l observability.Logger) *LenientStrategy {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.logger.Warn("recovered from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.Error("error", err),
	)
	return ActionFix
}
