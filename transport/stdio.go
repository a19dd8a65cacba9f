package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/greg-py/mcp-forge/protocol"
)

// Stdio implements the transport over stdin/stdout. It carries no request
// metadata, so invocations arriving through it are treated as trusted
// local calls by metadata-aware middleware.
type Stdio struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.errOut = w
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve starts processing requests from stdin, one JSON-RPC message per
// line. It returns nil on EOF.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	scanner := bufio.NewScanner(s.in)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil // EOF
			}
			s.handleLine(ctx, handler, line)
		}
	}
}

// SendNotification sends a JSON-RPC notification to the client.
func (s *Stdio) SendNotification(method string, params any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsData, err := json.Marshal(params)
	if err != nil {
		return err
	}

	notif := Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsData,
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}

	_, err = s.out.Write(data)
	if err != nil {
		return err
	}
	_, err = s.out.Write([]byte("\n"))
	return err
}

func (s *Stdio) handleLine(ctx context.Context, handler Handler, line string) {
	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		resp := protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
		s.writeResponse(resp)
		return
	}

	// Attach notification sender so handlers can push server-to-client
	// messages. No request metadata is attached: stdio is a trusted
	// local connection.
	ctx = ContextWithNotificationSender(ctx, s)

	resp, err := handler.HandleRequest(ctx, &req)

	// Notifications get no response.
	if req.IsNotification() {
		return
	}

	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			resp = protocol.NewErrorResponse(req.ID, perr)
		} else {
			resp = protocol.NewErrorResponse(req.ID, protocol.NewInternalError(err.Error()))
		}
	}

	if resp != nil {
		s.writeResponse(resp)
	}
}

func (s *Stdio) writeResponse(resp *protocol.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	_, _ = s.out.Write(data)
	_, _ = s.out.Write([]byte("\n"))
}
