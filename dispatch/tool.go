package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/greg-py/mcp-forge/protocol"
	"github.com/greg-py/mcp-forge/schema"
)

// Tool is a callable handler registered under a unique name. The record
// is immutable after registration.
type Tool struct {
	name           string
	description    string
	inputType      reflect.Type
	inputSchema    *schema.Schema
	handler        any
	hasContext     bool
	skipValidation bool
}

// ToolInfo represents metadata about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema any
}

// ToolBuilder provides a fluent API for registering tools.
type ToolBuilder struct {
	tool       *Tool
	dispatcher *Dispatcher
	err        error
}

// Tool starts building a new tool with the given name.
func (d *Dispatcher) Tool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool:       &Tool{name: name},
		dispatcher: d,
	}
}

// Description sets the tool description.
func (b *ToolBuilder) Description(desc string) *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.tool.description = desc
	return b
}

// ValidateInput controls whether arguments are checked against the
// generated schema before dispatch. Enabled by default; disable it for
// tools that do their own argument handling.
func (b *ToolBuilder) ValidateInput(enabled bool) *ToolBuilder {
	if b.err != nil {
		return b
	}
	b.tool.skipValidation = !enabled
	return b
}

// Handler sets the tool handler and registers the tool. The input schema
// is generated from the handler's input type and every invocation is
// validated against it before any middleware runs.
//
// Handler signature must be one of:
//   - func(input T) (R, error)
//   - func(ctx context.Context, input T) (R, error)
func (b *ToolBuilder) Handler(fn any) *ToolBuilder {
	if b.err != nil {
		return b
	}

	if err := b.validateHandler(fn); err != nil {
		b.err = err
		return b
	}

	b.tool.handler = fn
	b.err = b.dispatcher.registerTool(b.tool)
	return b
}

// Err returns the first error encountered while building, including a
// duplicate-name rejection at registration.
func (b *ToolBuilder) Err() error {
	return b.err
}

// validateHandler checks the handler function signature and derives the
// input schema.
func (b *ToolBuilder) validateHandler(fn any) error {
	fnType := reflect.TypeOf(fn)

	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %v", fnType)
	}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return fmt.Errorf("handler must have 1 or 2 parameters, got %d", numIn)
	}

	var inputParamIdx int
	if numIn == 2 {
		if !fnType.In(0).Implements(reflect.TypeOf((*context.Context)(nil)).Elem()) {
			return fmt.Errorf("first parameter must be context.Context when using 2 parameters")
		}
		b.tool.hasContext = true
		inputParamIdx = 1
	}

	inputType := fnType.In(inputParamIdx)
	if inputType.Kind() == reflect.Ptr {
		inputType = inputType.Elem()
	}
	b.tool.inputType = inputType

	inputSchema, err := schema.GenerateFromType(inputType)
	if err != nil {
		return fmt.Errorf("failed to generate input schema: %w", err)
	}
	b.tool.inputSchema = inputSchema

	if fnType.NumOut() != 2 {
		return fmt.Errorf("handler must return (result, error), got %d return values", fnType.NumOut())
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errType) {
		return fmt.Errorf("second return value must be error")
	}

	return nil
}

// validate checks raw arguments against the input schema and returns them
// as a map for the invocation context. Failures carry field-level detail.
func (t *Tool) validate(rawArgs json.RawMessage) (map[string]any, error) {
	if t.inputSchema != nil && !t.skipValidation {
		if err := t.inputSchema.Validate(rawArgs); err != nil {
			perr := protocol.NewInvalidParams(fmt.Sprintf("input validation failed: %v", err))
			if verrs, ok := err.(schema.ValidationErrors); ok {
				details := make([]map[string]string, 0, len(verrs))
				for _, ve := range verrs {
					details = append(details, map[string]string{
						"field":   ve.Path,
						"message": ve.Message,
					})
				}
				perr = perr.WithData(details)
			}
			return nil, perr
		}
	}

	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to parse arguments: %v", err))
	}
	return args, nil
}

// call runs the tool handler with the given JSON input.
func (t *Tool) call(ctx context.Context, rawArgs json.RawMessage) (any, error) {
	inputPtr := reflect.New(t.inputType)
	if err := json.Unmarshal(rawArgs, inputPtr.Interface()); err != nil {
		return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to parse arguments: %v", err))
	}

	fnVal := reflect.ValueOf(t.handler)
	var callArgs []reflect.Value
	if t.hasContext {
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	callArgs = append(callArgs, inputPtr.Elem())

	results := fnVal.Call(callArgs)

	if errVal := results[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return results[0].Interface(), nil
}
