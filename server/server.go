package server

import (
	"fmt"
	"net/http"
	"runtime"

	"connectrpc.com/connect"
)

// Server exposes EvalService over Connect. Both the Connect and gRPC-Web
// protocols are accepted on the same port; messages are JSON or CBOR.
type Server struct {
	runner *Runner
	mux    *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxSteps int
	workers  int
}

// WithMaxSteps caps the instructions any single run may execute.
func WithMaxSteps(n int) ServerOption {
	return func(c *serverConfig) { c.maxSteps = n }
}

// WithWorkers sets how many programs may run concurrently.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// New creates a Server and starts its workers.
func New(opts ...ServerOption) (*Server, error) {
	cfg := &serverConfig{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cborCodec, err := NewCBORCodec()
	if err != nil {
		return nil, err
	}
	handlerOpts := []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithCodec(cborCodec),
	}

	s := &Server{
		runner: NewRunner(cfg.workers),
		mux:    http.NewServeMux(),
	}

	evalSvc := NewEvalService(s.runner, cfg.maxSteps)
	s.mux.Handle(EvalServiceRunProcedure,
		connect.NewUnaryHandler(EvalServiceRunProcedure, evalSvc.Run, handlerOpts...))
	s.mux.Handle(EvalServiceCheckProcedure,
		connect.NewUnaryHandler(EvalServiceCheckProcedure, evalSvc.Check, handlerOpts...))
	s.mux.Handle(EvalServiceDisasmProcedure,
		connect.NewUnaryHandler(EvalServiceDisasmProcedure, evalSvc.Disassemble, handlerOpts...))

	log.Infof("eval service ready: %d workers, max steps %d", cfg.workers, cfg.maxSteps)
	return s, nil
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	fmt.Printf("Pinky server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, EvalServiceRunProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the workers.
func (s *Server) Stop() {
	s.runner.Stop()
}
