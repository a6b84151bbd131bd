package validator

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONValidator checks that content is a single well-formed JSON
// document. The decoder reads from r as it goes, but holds the whole
// decoded document in memory.
type JSONValidator struct{}

func (JSONValidator) Validate(r io.Reader) error {
	dec := json.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: trailing content after document")
	}
	return nil
}
