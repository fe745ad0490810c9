// # internal/server/openapi.go
package server

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.json
var openapiJSON []byte

// openAPIDocument validates the embedded API contract once at startup and
// returns the raw bytes served from /openapi.json.
func openAPIDocument() ([]byte, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiJSON)
	if err != nil {
		return nil, fmt.Errorf("load embedded openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate embedded openapi document: %w", err)
	}
	return openapiJSON, nil
}
