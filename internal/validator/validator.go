// Package validator dispatches format validation by file extension. Each
// validator is a pure predicate over a file's bytes; the registry's job
// is just picking which one applies.
package validator

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/lyallcooper/fspulse/internal/model"
)

// Validator checks that r's content conforms to a format, returning a
// non-nil error describing the first violation found.
type Validator interface {
	Validate(r io.Reader) error
}

// Registry maps lowercased, dot-less file extensions to validators.
type Registry struct {
	byExt map[string]Validator
}

// NewRegistry builds the default registry: every format validator this
// package ships with, keyed by extension.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Validator)}
	r.Register("txt", TextValidator{})
	r.Register("json", JSONValidator{})
	return r
}

// Register adds or replaces the validator for ext (without a leading dot).
func (r *Registry) Register(ext string, v Validator) {
	r.byExt[strings.ToLower(ext)] = v
}

// Lookup returns the validator for path's extension, and false if none is
// registered — the NoValidator case.
func (r *Registry) Lookup(path string) (Validator, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	v, ok := r.byExt[ext]
	return v, ok
}

// Validate runs the appropriate validator for path against r's content.
// It reports model.ValNoValidator when no validator is registered for
// path's extension, rather than treating that as an error.
func (r *Registry) Validate(path string, reader io.Reader) (model.ValState, error) {
	v, ok := r.Lookup(path)
	if !ok {
		return model.ValNoValidator, nil
	}
	if err := v.Validate(reader); err != nil {
		return model.ValInvalid, err
	}
	return model.ValValid, nil
}
