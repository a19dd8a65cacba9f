// Package dispatch provides the central handler registry and invocation
// orchestration.
//
// The Dispatcher owns tool, resource and prompt registrations keyed by
// (kind, name), validates inputs before any middleware runs, and routes
// every invocation through the registered middleware chain ending in the
// handler call. Most users should use the higher-level forge package.
//
// # Registration
//
// Handlers are registered with fluent builders. Names are unique per
// kind; duplicates are rejected:
//
//	type SearchInput struct {
//	    Query string `json:"query" jsonschema:"required"`
//	}
//
//	b := d.Tool("search").
//	    Description("Search for items").
//	    Handler(func(ctx context.Context, input SearchInput) ([]string, error) {
//	        return []string{"result1", "result2"}, nil
//	    })
//	if err := b.Err(); err != nil {
//	    // duplicate name or invalid handler signature
//	}
//
// # Resources
//
// Resources are addressed by URI templates, compiled once at
// registration:
//
//	d.Resource("file://{path}").
//	    Name("File").
//	    MimeType("text/plain").
//	    Handler(func(ctx context.Context, uri string, params map[string]string) (*dispatch.ResourceContent, error) {
//	        return &dispatch.ResourceContent{URI: uri, Text: "content"}, nil
//	    })
//
// # Prompts
//
// Prompts expose parameterized templates:
//
//	d.Prompt("greet").
//	    Argument("name", "Name to greet", true).
//	    Handler(func(ctx context.Context, args map[string]string) (*dispatch.PromptResult, error) {
//	        return &dispatch.PromptResult{
//	            Messages: []dispatch.PromptMessage{{Role: "user", Content: dispatch.TextContent{Type: "text", Text: "Hello, " + args["name"]}}},
//	        }, nil
//	    })
//
// # Failure Asymmetry
//
// Tool failures are always normalized into the standard error envelope
// at the dispatch boundary. Resource and prompt failures propagate to
// the protocol layer unchanged.
package dispatch
