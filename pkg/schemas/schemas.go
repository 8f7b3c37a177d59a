// Package schemas holds the JSON Schema contracts of the documents written to the artifacts
// directory.
package schemas

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed handoff-artifact.schema.json
var handoffArtifact []byte

// ErrInvalidDocument is returned when a document does not satisfy its schema.
var ErrInvalidDocument = errors.New("document does not match schema")

// HandoffArtifact returns the built-in handoff artifact schema document.
func HandoffArtifact() []byte {
	return handoffArtifact
}

// LoadHandoffArtifact compiles the handoff artifact schema stored at path, or the built-in
// schema when path is empty.
func LoadHandoffArtifact(path string) (*gojsonschema.Schema, error) {
	document := handoffArtifact

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
		}

		document = raw
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}

// Validate checks document against schema. Every violation is reported in the returned
// error, which wraps ErrInvalidDocument.
func Validate(schema *gojsonschema.Schema, document any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return err
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		messages = append(messages, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(messages, "; "))
}
