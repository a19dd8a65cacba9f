package dispatch

import "context"

// ResourceContent represents the content returned by a resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64 encoded binary data
}

// ResourceHandler is the function signature for resource handlers.
// Params holds the raw string captures from the URI template; the handler
// is responsible for any conversion or validation.
type ResourceHandler func(ctx context.Context, uri string, params map[string]string) (*ResourceContent, error)

// Resource is a readable handler addressed by a URI template.
type Resource struct {
	template    *URITemplate
	name        string
	description string
	mimeType    string
	handler     ResourceHandler
}

// ResourceInfo represents metadata about a registered resource.
type ResourceInfo struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
}

// ResourceBuilder provides a fluent API for registering resources.
type ResourceBuilder struct {
	uriTemplate string
	resource    *Resource
	dispatcher  *Dispatcher
	err         error
}

// Resource starts building a new resource with the given URI template.
func (d *Dispatcher) Resource(uriTemplate string) *ResourceBuilder {
	return &ResourceBuilder{
		uriTemplate: uriTemplate,
		resource:    &Resource{},
		dispatcher:  d,
	}
}

// Name sets an optional human-readable name for the resource.
func (b *ResourceBuilder) Name(name string) *ResourceBuilder {
	if b.err != nil {
		return b
	}
	b.resource.name = name
	return b
}

// Description sets the resource description.
func (b *ResourceBuilder) Description(desc string) *ResourceBuilder {
	if b.err != nil {
		return b
	}
	b.resource.description = desc
	return b
}

// MimeType sets the MIME type of the resource content.
func (b *ResourceBuilder) MimeType(mimeType string) *ResourceBuilder {
	if b.err != nil {
		return b
	}
	b.resource.mimeType = mimeType
	return b
}

// Handler sets the resource handler, compiles the URI template and
// registers the resource. Compilation fails on duplicate parameter names.
func (b *ResourceBuilder) Handler(fn ResourceHandler) *ResourceBuilder {
	if b.err != nil {
		return b
	}

	template, err := CompileTemplate(b.uriTemplate)
	if err != nil {
		b.err = err
		return b
	}

	b.resource.template = template
	b.resource.handler = fn
	b.err = b.dispatcher.registerResource(b.resource)
	return b
}

// Err returns the first error encountered while building, including
// template compilation failures and duplicate-template rejections.
func (b *ResourceBuilder) Err() error {
	return b.err
}

// Template returns the resource's compiled URI template.
func (r *Resource) Template() *URITemplate {
	return r.template
}
