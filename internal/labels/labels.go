// Package labels manages the ordered class-name table a classifier output
// indexes into. The table is parsed once at startup and read-only afterward.
package labels

import (
	"encoding/json"
	"fmt"
)

// InvalidDataError reports a malformed or empty label payload. Callers treat
// it as recoverable: log and continue with an empty table.
type InvalidDataError struct {
	Reason string
	Err    error
}

func (e *InvalidDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid label data: %s: %v", e.Reason, e.Err)
	}
	return "invalid label data: " + e.Reason
}

func (e *InvalidDataError) Unwrap() error { return e.Err }

// IndexError reports a class index outside [0, Count).
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("class index %d out of range [0,%d)", e.Index, e.Count)
}

// Table is an ordered, immutable sequence of class names. Index i matches
// the i-th value on the output tensor's class axis.
type Table struct {
	names []string
}

type labelPayload struct {
	Classes []string `json:"classes"`
}

// Parse decodes a label payload of the form {"classes": ["cat", ...]}.
// A payload without the classes key yields an empty table, not an error;
// empty or malformed input returns *InvalidDataError.
func Parse(raw []byte) (*Table, error) {
	if len(raw) == 0 {
		return &Table{}, &InvalidDataError{Reason: "empty payload"}
	}

	var payload labelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &Table{}, &InvalidDataError{Reason: "decode", Err: err}
	}

	for i, name := range payload.Classes {
		if name == "" {
			return &Table{}, &InvalidDataError{Reason: fmt.Sprintf("class %d has empty name", i)}
		}
	}

	return &Table{names: append([]string(nil), payload.Classes...)}, nil
}

// Count returns the number of classes.
func (t *Table) Count() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// ClassName returns the name for a class index.
func (t *Table) ClassName(index int) (string, error) {
	if index < 0 || index >= t.Count() {
		return "", &IndexError{Index: index, Count: t.Count()}
	}
	return t.names[index], nil
}

// Names returns a copy of all class names in index order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.names...)
}
