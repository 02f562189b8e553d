package tools

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of a tool input.
type FieldType string

const (
	FieldString FieldType = "String"
	FieldNumber FieldType = "Number"
	FieldBool   FieldType = "Boolean"
)

func (t FieldType) accepts(v any) bool {
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case FieldBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// Specification is the static policy of one tool: who may call it and what
// inputs it takes.
type Specification struct {
	Name           string
	RequiredRoles  []string
	InputSchema    map[string]FieldType
	RequiredFields []string
	Audit          bool
}

// Authorized reports whether any caller role matches a required role,
// ignoring case. A tool without required roles is open to everyone.
func (s Specification) Authorized(callerRoles []string) bool {
	if len(s.RequiredRoles) == 0 {
		return true
	}
	for _, required := range s.RequiredRoles {
		for _, role := range callerRoles {
			if strings.EqualFold(strings.TrimSpace(role), required) {
				return true
			}
		}
	}
	return false
}

// Validate checks slots against the schema and returns only the known,
// well-typed fields. String values are trimmed.
func (s Specification) Validate(slots map[string]any) (map[string]any, error) {
	sanitized := make(map[string]any, len(s.InputSchema))
	for key, fieldType := range s.InputSchema {
		raw, ok := slots[key]
		if !ok || raw == nil {
			continue
		}
		if !fieldType.accepts(raw) {
			return nil, &ValidationError{Detail: fmt.Sprintf("Slot %s must be of type %s", key, fieldType)}
		}
		if str, ok := raw.(string); ok {
			raw = strings.TrimSpace(str)
		}
		sanitized[key] = raw
	}
	for _, required := range s.RequiredFields {
		v, ok := sanitized[required]
		if !ok || strings.TrimSpace(fmt.Sprint(v)) == "" {
			return nil, &ValidationError{Detail: fmt.Sprintf("Required slot %s was missing", required)}
		}
	}
	return sanitized, nil
}

// ValidationError carries the user-facing reason a tool input was rejected.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}
