// Package schema provides JSON Schema generation from Go types and
// validation of raw arguments against the generated schemas.
//
// It is the dispatcher's validator: arguments are checked before any
// middleware runs, and failures carry field-level detail as
// ValidationErrors.
//
// # Generation
//
// Generate a schema from a Go value or type:
//
//	type Person struct {
//	    Name string `json:"name" jsonschema:"required"`
//	    Age  int    `json:"age" jsonschema:"minimum=0"`
//	}
//
//	s, err := schema.Generate(Person{})
//
// # Supported Types
//
//   - Structs: JSON objects with properties
//   - Strings, integers (all sizes), floats, booleans
//   - Slices/arrays: JSON arrays with item schemas
//   - Maps: JSON objects
//   - Pointers: dereferenced to their element type
//
// # Struct Tags
//
// The json tag controls the property name ("-" excludes the field).
// The jsonschema tag adds constraints:
//
//	type Example struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	    Level string `json:"level" jsonschema:"enum=debug|info|warn"`
//	    Count int    `json:"count" jsonschema:"minimum=1,maximum=100"`
//	}
//
// # Validation
//
// Validate raw JSON against a schema:
//
//	if err := s.Validate(rawArgs); err != nil {
//	    var verrs schema.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        // field-level details in verrs
//	    }
//	}
package schema
