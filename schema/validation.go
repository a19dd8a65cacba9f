package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Schema type constants.
const (
	typeObject  = "object"
	typeArray   = "array"
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
)

// ValidationError represents a single field-level validation failure.
type ValidationError struct {
	Path    string // JSON path to the invalid field (e.g., "user.email")
	Message string // human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate validates JSON data against the schema.
// Returns nil if valid, or ValidationErrors if invalid.
func (s *Schema) Validate(data json.RawMessage) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid JSON: %s", err)}
	}
	return s.ValidateValue(value)
}

// ValidateValue validates a decoded Go value against the schema.
func (s *Schema) ValidateValue(value any) error {
	var errs ValidationErrors
	s.validate("", value, &errs)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Schema) validate(path string, value any, errs *ValidationErrors) {
	// null passes any type check; required-field enforcement happens at
	// the object level.
	if value == nil {
		return
	}

	switch s.Type {
	case typeObject:
		s.validateObject(path, value, errs)
	case typeArray:
		s.validateArray(path, value, errs)
	case typeString:
		s.validateString(path, value, errs)
	case typeInteger, typeNumber:
		s.validateNumeric(path, value, errs)
	case typeBoolean:
		if _, ok := value.(bool); !ok {
			addError(errs, path, fmt.Sprintf("expected boolean, got %T", value))
		}
	}
}

func (s *Schema) validateObject(path string, value any, errs *ValidationErrors) {
	obj, ok := value.(map[string]any)
	if !ok {
		addError(errs, path, fmt.Sprintf("expected object, got %T", value))
		return
	}

	for _, req := range s.Required {
		if _, exists := obj[req]; !exists {
			addError(errs, joinPath(path, req), "required field is missing")
		}
	}

	for name, propSchema := range s.Properties {
		if val, exists := obj[name]; exists {
			propSchema.validate(joinPath(path, name), val, errs)
		}
	}
}

func (s *Schema) validateArray(path string, value any, errs *ValidationErrors) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		addError(errs, path, fmt.Sprintf("expected array, got %T", value))
		return
	}

	if s.Items == nil {
		return
	}
	for i := 0; i < rv.Len(); i++ {
		s.Items.validate(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface(), errs)
	}
}

func (s *Schema) validateString(path string, value any, errs *ValidationErrors) {
	str, ok := value.(string)
	if !ok {
		addError(errs, path, fmt.Sprintf("expected string, got %T", value))
		return
	}

	if len(s.Enum) > 0 {
		for _, e := range s.Enum {
			if e == str {
				return
			}
		}
		addError(errs, path, fmt.Sprintf("value must be one of: %v", s.Enum))
	}
}

func (s *Schema) validateNumeric(path string, value any, errs *ValidationErrors) {
	num, ok := toFloat(value)
	if !ok {
		addError(errs, path, fmt.Sprintf("expected %s, got %T", s.Type, value))
		return
	}

	if s.Type == typeInteger && num != float64(int64(num)) {
		addError(errs, path, "expected integer, got decimal number")
		return
	}

	if s.Minimum != nil && num < *s.Minimum {
		addError(errs, path, fmt.Sprintf("value %v is less than minimum %v", num, *s.Minimum))
	}
	if s.Maximum != nil && num > *s.Maximum {
		addError(errs, path, fmt.Sprintf("value %v is greater than maximum %v", num, *s.Maximum))
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func addError(errs *ValidationErrors, path, msg string) {
	*errs = append(*errs, &ValidationError{Path: path, Message: msg})
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
