package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// newTestEvalService creates an EvalService with its own runner. The
// runner is stopped when the test ends.
func newTestEvalService(t *testing.T, maxSteps int) *EvalService {
	t.Helper()
	r := NewRunner(2)
	t.Cleanup(r.Stop)
	return NewEvalService(r, maxSteps)
}

// newTestServer starts a Server behind an httptest server.
func newTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return ts
}

// ---------------------------------------------------------------------------
// Request builder helpers.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
