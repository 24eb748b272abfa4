// Package oracle turns combined report text into the raw JSON answer of a
// language model.
package oracle

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInstructionsMissing means the instruction template could not be found.
// No analysis can run without it.
var ErrInstructionsMissing = errors.New("oracle: instructions missing")

// Oracle answers a prompt built from its instructions and the given text.
type Oracle interface {
	Run(ctx context.Context, text string) (string, error)
}

// EntityScoped is implemented by oracles that tag their logs and retries
// with the entity being analyzed.
type EntityScoped interface {
	ForEntity(entity string) Oracle
}

// Scope returns o tagged with entity when it supports it, o otherwise.
func Scope(o Oracle, entity string) Oracle {
	if s, ok := o.(EntityScoped); ok {
		return s.ForEntity(entity)
	}
	return o
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, text string) (string, error)

// Run calls f.
func (f Func) Run(ctx context.Context, text string) (string, error) { return f(ctx, text) }

// LoadInstructions reads the instruction template. A missing or blank file
// yields ErrInstructionsMissing.
func LoadInstructions(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", eris.Wrapf(ErrInstructionsMissing, "read %s", path)
	}
	if err != nil {
		return "", eris.Wrapf(err, "oracle: read instructions %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", eris.Wrapf(ErrInstructionsMissing, "%s is empty", path)
	}
	return string(data), nil
}
