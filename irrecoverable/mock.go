package irrecoverable

import (
	"context"
	"testing"
)

// MockSignalerContext fails the test immediately if Throw is ever called,
// for use in unit tests that don't expect any irrecoverable error.
type MockSignalerContext struct {
	context.Context
	t *testing.T
}

var _ SignalerContext = (*MockSignalerContext)(nil)

func (*MockSignalerContext) sealed() {}

// Throw fails the enclosing test.
func (m *MockSignalerContext) Throw(err error) {
	m.t.Fatalf("mock signaler context received unexpected irrecoverable error: %v", err)
}

// NewMockSignalerContext builds a MockSignalerContext around ctx.
func NewMockSignalerContext(t *testing.T, ctx context.Context) *MockSignalerContext {
	return &MockSignalerContext{Context: ctx, t: t}
}
