package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/greg-py/mcp-forge/middleware"
	"github.com/greg-py/mcp-forge/protocol"
)

// Info contains dispatcher metadata exposed to clients.
type Info struct {
	Name         string
	Version      string
	Capabilities Capabilities
}

// Capabilities declares which handler kinds the host exposes.
type Capabilities struct {
	Tools     bool
	Resources bool
	Prompts   bool
}

// Manifest is the metadata returned to clients during initialization.
type Manifest struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// Dispatcher owns the handler registry and orchestrates invocations:
// lookup, input validation, invocation context construction, the
// middleware chain and result normalization.
//
// Names are unique per kind; registering a duplicate is rejected with a
// duplicate error. Middleware registration is append-only and must finish
// before dispatching begins; the chain is never mutated during dispatch.
type Dispatcher struct {
	mu sync.RWMutex

	info      Info
	tools     map[string]*Tool
	resources map[string]*Resource
	prompts   map[string]*Prompt
	chain     []middleware.Middleware
}

// New creates a dispatcher with the given info and options.
func New(info Info, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		info:      info,
		tools:     make(map[string]*Tool),
		resources: make(map[string]*Resource),
		prompts:   make(map[string]*Prompt),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Info returns the dispatcher info.
func (d *Dispatcher) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Manifest returns the manifest for client initialization.
func (d *Dispatcher) Manifest() Manifest {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Manifest{
		Name:            d.info.Name,
		Version:         d.info.Version,
		ProtocolVersion: protocol.Version,
		Capabilities:    d.info.Capabilities,
	}
}

// Use appends middleware to the chain. Execution order equals
// registration order. Must not be called once dispatching has begun.
func (d *Dispatcher) Use(mw ...middleware.Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = append(d.chain, mw...)
}

// middlewareChain returns the composed middleware under the read lock.
func (d *Dispatcher) middlewareChain() middleware.Middleware {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return middleware.Chain(d.chain...)
}

// Dispatch routes one invocation: it looks up the handler, validates the
// raw arguments (failures are reported directly, before any middleware
// runs), builds the invocation context and runs it through the middleware
// chain ending in the handler call.
//
// For tools the name is the tool name and any failure surfacing from the
// chain is normalized into the standard error envelope; callers never see
// a raw error. For resources the name is the concrete URI; resource and
// prompt failures propagate unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, kind protocol.Kind, name string, rawArgs json.RawMessage, headers protocol.RequestMeta) (*protocol.Result, error) {
	switch kind {
	case protocol.KindTool:
		return d.dispatchTool(ctx, name, rawArgs, headers)
	case protocol.KindResource:
		return d.dispatchResource(ctx, name, headers)
	case protocol.KindPrompt:
		return d.dispatchPrompt(ctx, name, rawArgs, headers)
	default:
		return nil, protocol.NewInvalidRequest("unknown handler kind: " + string(kind))
	}
}

func (d *Dispatcher) dispatchTool(ctx context.Context, name string, rawArgs json.RawMessage, headers protocol.RequestMeta) (*protocol.Result, error) {
	tool, ok := d.GetTool(name)
	if !ok {
		return nil, protocol.NewNotFound("tool not found: " + name)
	}

	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage("{}")
	}

	args, err := tool.validate(rawArgs)
	if err != nil {
		return nil, err
	}

	inv := protocol.NewInvocation(protocol.KindTool, name, args, headers)
	inv.Schema = tool.inputSchema

	terminal := func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
		value, err := tool.call(ctx, rawArgs)
		if err != nil {
			return nil, err
		}
		return protocol.Normalize(value)
	}

	res, err := d.middlewareChain()(terminal)(ctx, inv)
	if err != nil {
		// Tool failures never cross the boundary as raw errors.
		return protocol.NewErrorResult(errorMessage(err)), nil
	}
	return res, nil
}

func (d *Dispatcher) dispatchResource(ctx context.Context, uri string, headers protocol.RequestMeta) (*protocol.Result, error) {
	resource, params, ok := d.FindResourceForURI(uri)
	if !ok {
		return nil, protocol.NewNotFound("resource not found: " + uri)
	}

	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v
	}

	inv := protocol.NewInvocation(protocol.KindResource, uri, args, headers)

	terminal := func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
		content, err := resource.handler(ctx, uri, params)
		if err != nil {
			return nil, err
		}
		res := &protocol.Result{
			Content: []protocol.Content{{
				Type:     "resource",
				URI:      content.URI,
				MimeType: content.MimeType,
				Text:     content.Text,
				Data:     content.Blob,
			}},
			Structured: content,
		}
		return res, nil
	}

	return d.middlewareChain()(terminal)(ctx, inv)
}

func (d *Dispatcher) dispatchPrompt(ctx context.Context, name string, rawArgs json.RawMessage, headers protocol.RequestMeta) (*protocol.Result, error) {
	prompt, ok := d.GetPrompt(name)
	if !ok {
		return nil, protocol.NewNotFound("prompt not found: " + name)
	}

	promptArgs := make(map[string]string)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &promptArgs); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
	}

	// Required arguments are checked before any middleware runs.
	if err := prompt.validate(promptArgs); err != nil {
		return nil, err
	}

	args := make(map[string]any, len(promptArgs))
	for k, v := range promptArgs {
		args[k] = v
	}

	inv := protocol.NewInvocation(protocol.KindPrompt, name, args, headers)

	terminal := func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
		result, err := prompt.handler(ctx, promptArgs)
		if err != nil {
			return nil, err
		}
		res := &protocol.Result{Structured: result}
		if result.Description != "" {
			res.Content = []protocol.Content{{Type: "text", Text: result.Description}}
		}
		return res, nil
	}

	return d.middlewareChain()(terminal)(ctx, inv)
}

// errorMessage extracts the human-readable message for the error envelope.
func errorMessage(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

// registerTool adds a tool, rejecting duplicate names.
func (d *Dispatcher) registerTool(t *Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.name]; exists {
		return protocol.NewDuplicate("tool already registered: " + t.name)
	}
	d.tools[t.name] = t
	return nil
}

// GetTool retrieves a tool by name.
func (d *Dispatcher) GetTool(name string) (*Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Tools returns info about all registered tools.
func (d *Dispatcher) Tools() []ToolInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]ToolInfo, 0, len(d.tools))
	for _, t := range d.tools {
		result = append(result, ToolInfo{
			Name:        t.name,
			Description: t.description,
			InputSchema: t.inputSchema,
		})
	}
	return result
}

// registerResource adds a resource, rejecting duplicate templates.
func (d *Dispatcher) registerResource(r *Resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.resources[r.template.Raw()]; exists {
		return protocol.NewDuplicate("resource already registered: " + r.template.Raw())
	}
	d.resources[r.template.Raw()] = r
	return nil
}

// GetResource retrieves a resource by its URI template.
func (d *Dispatcher) GetResource(uriTemplate string) (*Resource, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.resources[uriTemplate]
	return r, ok
}

// Resources returns info about all registered resources.
func (d *Dispatcher) Resources() []ResourceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]ResourceInfo, 0, len(d.resources))
	for _, r := range d.resources {
		result = append(result, ResourceInfo{
			URITemplate: r.template.Raw(),
			Name:        r.name,
			Description: r.description,
			MimeType:    r.mimeType,
		})
	}
	return result
}

// FindResourceForURI finds the resource whose compiled template matches
// the URI and returns the extracted parameters.
func (d *Dispatcher) FindResourceForURI(uri string) (*Resource, map[string]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, r := range d.resources {
		if params, ok := r.template.Match(uri); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

// registerPrompt adds a prompt, rejecting duplicate names.
func (d *Dispatcher) registerPrompt(p *Prompt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.prompts[p.name]; exists {
		return protocol.NewDuplicate("prompt already registered: " + p.name)
	}
	d.prompts[p.name] = p
	return nil
}

// GetPrompt retrieves a prompt by name.
func (d *Dispatcher) GetPrompt(name string) (*Prompt, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.prompts[name]
	return p, ok
}

// Prompts returns info about all registered prompts.
func (d *Dispatcher) Prompts() []PromptInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]PromptInfo, 0, len(d.prompts))
	for _, p := range d.prompts {
		result = append(result, PromptInfo{
			Name:        p.name,
			Description: p.description,
			Arguments:   p.arguments,
		})
	}
	return result
}
