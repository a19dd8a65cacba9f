// Package testutil provides testing utilities for dispatch servers.
//
// It helps developers write tests for their servers by driving the full
// JSON-RPC surface in-process, without a real transport.
//
// Example usage:
//
//	func TestMyServer(t *testing.T) {
//	    d := forge.NewDispatcher(forge.Info{Name: "test", Version: "1.0.0"})
//	    d.Tool("greet").Handler(func(ctx context.Context, input GreetInput) (string, error) {
//	        return "Hello, " + input.Name, nil
//	    })
//
//	    tc := testutil.NewTestClient(t, d)
//
//	    result, err := tc.CallTool("greet", map[string]any{"name": "World"})
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	forge "github.com/greg-py/mcp-forge"
	"github.com/greg-py/mcp-forge/protocol"
	"github.com/greg-py/mcp-forge/transport"
)

// TestClient drives a dispatcher through its JSON-RPC handler.
type TestClient struct {
	t       testing.TB
	handler transport.Handler
	ctx     context.Context
	reqID   atomic.Int64
}

// NewTestClient creates a test client for the given dispatcher and
// verifies it initializes.
func NewTestClient(t testing.TB, d *forge.Dispatcher) *TestClient {
	t.Helper()

	tc := &TestClient{
		t:       t,
		handler: forge.NewHandler(d),
		ctx:     context.Background(),
	}

	if _, err := tc.Initialize(); err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}

	return tc
}

// WithContext sets the context used for subsequent requests. Attach
// protocol.RequestMeta here to simulate a remote transport.
func (tc *TestClient) WithContext(ctx context.Context) *TestClient {
	tc.ctx = ctx
	return tc
}

// Call sends a raw JSON-RPC request and returns the response.
func (tc *TestClient) Call(method string, params any) (*protocol.Response, error) {
	tc.t.Helper()

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	id, err := json.Marshal(tc.reqID.Add(1))
	if err != nil {
		return nil, err
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  rawParams,
	}

	return tc.handler.HandleRequest(tc.ctx, req)
}

// Initialize performs the initialization handshake.
func (tc *TestClient) Initialize() (map[string]any, error) {
	tc.t.Helper()

	resp, err := tc.Call(protocol.MethodInitialize, map[string]any{})
	if err != nil {
		return nil, err
	}
	return resultMap(resp)
}

// Ping sends a ping request.
func (tc *TestClient) Ping() error {
	tc.t.Helper()

	_, err := tc.Call(protocol.MethodPing, nil)
	return err
}

// ListTools returns the registered tool listing.
func (tc *TestClient) ListTools() ([]map[string]any, error) {
	tc.t.Helper()
	return tc.listItems(protocol.MethodToolsList, "tools")
}

// ListResources returns the registered resource listing.
func (tc *TestClient) ListResources() ([]map[string]any, error) {
	tc.t.Helper()
	return tc.listItems(protocol.MethodResourcesList, "resources")
}

// ListPrompts returns the registered prompt listing.
func (tc *TestClient) ListPrompts() ([]map[string]any, error) {
	tc.t.Helper()
	return tc.listItems(protocol.MethodPromptsList, "prompts")
}

// CallTool invokes a tool and returns the result envelope.
func (tc *TestClient) CallTool(name string, args map[string]any) (*protocol.Result, error) {
	tc.t.Helper()

	resp, err := tc.Call(protocol.MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	res, ok := resp.Result.(*protocol.Result)
	if !ok {
		return nil, fmt.Errorf("unexpected tool result type %T", resp.Result)
	}
	return res, nil
}

// CallToolText invokes a tool and returns its first text content item,
// failing the test on error envelopes.
func (tc *TestClient) CallToolText(name string, args map[string]any) string {
	tc.t.Helper()

	res, err := tc.CallTool(name, args)
	if err != nil {
		tc.t.Fatalf("tool %q: %v", name, err)
	}
	if res.IsError {
		tc.t.Fatalf("tool %q returned error envelope: %v", name, res.Content)
	}
	if len(res.Content) == 0 {
		tc.t.Fatalf("tool %q returned empty content", name)
	}
	return res.Content[0].Text
}

// ReadResource reads a resource by URI.
func (tc *TestClient) ReadResource(uri string) (map[string]any, error) {
	tc.t.Helper()

	resp, err := tc.Call(protocol.MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	return resultMap(resp)
}

// GetPrompt gets a prompt with the given arguments.
func (tc *TestClient) GetPrompt(name string, args map[string]string) (map[string]any, error) {
	tc.t.Helper()

	resp, err := tc.Call(protocol.MethodPromptsGet, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return resultMap(resp)
}

func (tc *TestClient) listItems(method, field string) ([]map[string]any, error) {
	resp, err := tc.Call(method, nil)
	if err != nil {
		return nil, err
	}
	m, err := resultMap(resp)
	if err != nil {
		return nil, err
	}
	items, ok := m[field].([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected %s listing type %T", field, m[field])
	}
	return items, nil
}

func resultMap(resp *protocol.Response) (map[string]any, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	m, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", resp.Result)
	}
	return m, nil
}
