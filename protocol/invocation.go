package protocol

import "errors"

// Kind identifies the class of a registered handler.
type Kind string

// Handler kinds.
const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// ErrAuthAlreadySet is returned when auth data is attached to an invocation
// more than once.
var ErrAuthAlreadySet = errors.New("auth data already set on invocation")

// Invocation carries a single dispatch through the middleware chain.
// It is created per dispatch, passed by pointer, and never shared across
// invocations. Middleware may annotate it (auth data) for downstream
// middleware and the handler to read.
type Invocation struct {
	// Kind and Name identify the handler being invoked.
	Kind Kind
	Name string

	// Args holds the validated arguments. Middleware must treat the map
	// as read-only.
	Args map[string]any

	// Schema is the opaque input schema the arguments were validated
	// against, if any.
	Schema any

	// Headers holds transport metadata. A nil map signals a trusted
	// local transport such as stdio.
	Headers RequestMeta

	auth map[string]any
}

// NewInvocation creates an invocation for a single dispatch.
func NewInvocation(kind Kind, name string, args map[string]any, headers RequestMeta) *Invocation {
	return &Invocation{
		Kind:    kind,
		Name:    name,
		Args:    args,
		Headers: headers,
	}
}

// SetAuth attaches authentication data to the invocation. It may be called
// at most once; a second call returns ErrAuthAlreadySet and leaves the
// original data in place.
func (inv *Invocation) SetAuth(data map[string]any) error {
	if inv.auth != nil {
		return ErrAuthAlreadySet
	}
	inv.auth = data
	return nil
}

// Auth returns the authentication data attached by the auth middleware,
// or nil if the invocation is unauthenticated.
func (inv *Invocation) Auth() map[string]any {
	return inv.auth
}

// Trusted reports whether the invocation arrived without transport
// metadata, which signals a trusted local transport.
func (inv *Invocation) Trusted() bool {
	return inv.Headers == nil
}

// Header returns a transport metadata value, or the empty string if the
// key is absent or the invocation carries no metadata.
func (inv *Invocation) Header(key string) string {
	if inv.Headers == nil {
		return ""
	}
	return inv.Headers[key]
}
