package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Errors contains the validation failures of one record, keyed by field or entity rule name
type Errors struct {
	Fields map[string][]string `json:"fields"`
}

// NewErrors creates an empty Errors
func NewErrors() *Errors {
	return &Errors{
		Fields: make(map[string][]string),
	}
}

// Add adds a message for a field
func (ve *Errors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (ve *Errors) HasErrors() bool {
	return ve != nil && len(ve.Fields) > 0
}

// Count returns the total number of messages across all fields
func (ve *Errors) Count() int {
	if ve == nil {
		return 0
	}
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface. Fields are listed in name order.
func (ve *Errors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	names := make([]string, 0, len(ve.Fields))
	for name := range ve.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var messages []string
	for _, name := range names {
		for _, msg := range ve.Fields[name] {
			messages = append(messages, fmt.Sprintf("  - %s: %s", name, msg))
		}
	}

	if len(messages) == 1 {
		return fmt.Sprintf("validation failed: %s", strings.TrimPrefix(messages[0], "  - "))
	}
	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// MarshalJSON implements json.Marshaler
func (ve *Errors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}
