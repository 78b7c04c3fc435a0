package types

import (
	"sort"
)

// FieldType is the coarse type class observed for an event field.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldBool      FieldType = "bool"
	FieldTimestamp FieldType = "timestamp"
	FieldObject    FieldType = "object"
	FieldNull      FieldType = "null"
)

// FieldSet maps field name to its observed type. It is the unit the
// schema-drift evaluator diffs against the baseline.
type FieldSet map[string]FieldType

// Clone returns a copy of the field set.
func (fs FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// Names returns the field names in sorted order.
func (fs FieldSet) Names() []string {
	names := make([]string, 0, len(fs))
	for k := range fs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BaselineFieldSet returns the known-good event field set the pipeline was
// built against. Any field outside this set, or carrying a different type,
// is schema drift.
func BaselineFieldSet() FieldSet {
	return FieldSet{
		"event_id":       FieldString,
		"version":        FieldInteger,
		"event_time":     FieldTimestamp,
		"event_type":     FieldString,
		"session_id":     FieldString,
		"user_id":        FieldInteger,
		"premium_amount": FieldInteger,
		"channel":        FieldString,
	}
}

// identityFields are the fields that participate in event identity,
// ordering, or aggregate grouping keys. Drift on any of these is critical.
var identityFields = map[string]bool{
	"event_id":       true,
	"version":        true,
	"event_time":     true,
	"event_type":     true,
	"session_id":     true,
	"user_id":        true,
	"channel":        true,
}

// IsIdentityField reports whether name is part of the identifier, timestamp,
// or grouping-key field set.
func IsIdentityField(name string) bool {
	return identityFields[name]
}

// InferFieldType classifies a decoded JSON value into a FieldType.
func InferFieldType(v interface{}) FieldType {
	switch v.(type) {
	case string:
		return FieldString
	case float64:
		// encoding/json decodes all numbers to float64; integral values
		// are classified as integers
		f := v.(float64)
		if f == float64(int64(f)) {
			return FieldInteger
		}
		return FieldFloat
	case bool:
		return FieldBool
	case int, int64:
		return FieldInteger
	case map[string]interface{}:
		return FieldObject
	case nil:
		return FieldNull
	default:
		return FieldObject
	}
}

// FieldsOf returns the full observed field set of an event: the fixed core
// fields plus every extension attribute with its inferred type.
func FieldsOf(e *Event) FieldSet {
	fs := FieldSet{
		"event_id":       FieldString,
		"version":        FieldInteger,
		"event_time":     FieldTimestamp,
		"event_type":     FieldString,
		"session_id":     FieldString,
		"user_id":        FieldInteger,
		"premium_amount": FieldInteger,
		"channel":        FieldString,
	}
	for name, val := range e.Attrs {
		fs[name] = InferFieldType(val)
	}
	return fs
}
