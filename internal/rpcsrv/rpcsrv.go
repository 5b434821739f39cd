// Package rpcsrv implements the control surface (spec.md 4.I): a
// stateless JSON-over-TCP request/response server translating named
// commands into core operations. No ecosystem JSON-RPC-over-raw-TCP
// library appears anywhere in the retrieval pack, so the wire codec is
// hand-rolled on encoding/json + net, matching spec.md §6's wire shape
// exactly ("request carries a string method name and a parameters object.
// Responses are either {"result": true}..., or an error with code and
// message").
//
// rpcsrv never imports the root package: handlers are registered by name
// from outside (cmd/longhornd wires *Volume/*registry.Registry
// operations in as closures), the same boundary internal/channel draws
// around MetricsSink and internal/registry draws around Entry.
package rpcsrv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/longhorn-io/go-longhorn-bdev/internal/logging"
)

// Error is the wire shape of an RPC failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// NewError builds an *Error, used by handlers to report a typed failure.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Handler processes one method's decoded params and returns a result value
// to marshal back, or an *Error.
type Handler func(params json.RawMessage) (any, *Error)

// Server is the control-surface listener: one goroutine accepting
// connections, one goroutine per connection decoding a stream of
// request/response pairs.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *logging.Logger
}

// New creates an empty Server; register methods with Handle before Serve.
func New() *Server {
	return &Server{handlers: make(map[string]Handler), logger: logging.Default()}
}

// Handle registers fn as the handler for method. Re-registering a method
// replaces its handler, used by tests to stub individual methods.
func (s *Server) Handle(method string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(bufio.NewReader(conn))
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		enc.Encode(s.dispatch(req))
	}
}

func (s *Server) dispatch(req request) response {
	s.mu.RLock()
	fn, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		return response{Error: &Error{Code: "NotFound", Message: fmt.Sprintf("unknown method %q", req.Method)}}
	}

	result, rpcErr := fn(req.Params)
	if rpcErr != nil {
		s.logger.Warnf("rpc method %s failed: %s", req.Method, rpcErr.Error())
		return response{Error: rpcErr}
	}
	if result == nil {
		result = true
	}
	return response{Result: result}
}
