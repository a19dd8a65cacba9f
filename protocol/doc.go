// Package protocol defines the shared vocabulary of the dispatch framework.
//
// It contains the JSON-RPC 2.0 message types used at the wire boundary, the
// error taxonomy, transport metadata handling, the per-dispatch Invocation
// record and the boundary Result envelope.
//
// # Invocation
//
// Every dispatch builds one Invocation and passes it by pointer through the
// whole middleware chain:
//
//	type Invocation struct {
//	    Kind    Kind
//	    Name    string
//	    Args    map[string]any
//	    Schema  any
//	    Headers RequestMeta
//	}
//
// Middleware may annotate it for downstream readers; auth data can be set
// at most once via SetAuth.
//
// # Result Envelope
//
// Handlers return either a plain value or a pre-formed envelope. Normalize
// converts plain values into the standard shape:
//
//	{content: [{type: "text", text: ...}], isError?: bool}
//
// Failures crossing the tool boundary are rendered with NewErrorResult,
// which prefixes the message with "Error: ".
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes plus framework codes:
//
//	CodeNotFound     = -32001  // unknown handler name
//	CodeUnauthorized = -32002  // missing or invalid credential
//	CodeRateLimited  = -32003  // window budget exhausted
//	CodeTimeout      = -32004  // deadline elapsed
//	CodeDuplicate    = -32005  // registration conflict
package protocol
