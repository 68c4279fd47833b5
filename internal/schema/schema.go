// Package schema holds the JSON Schemas for request bodies accepted by the
// HTTP API and the apply_patch tool, and validates payloads against them.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Name identifies one of the embedded schemas.
type Name string

const (
	ParseRequest Name = "parse_request"
	ApplyRequest Name = "apply_request"
	ToolInput    Name = "tool_input"
)

//go:embed schemas/*.json
var files embed.FS

type compiled struct {
	doc    map[string]any
	loader gojsonschema.JSONLoader
}

var (
	cacheMu sync.Mutex
	cache   = map[Name]*compiled{}
)

func load(name Name) (*compiled, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if c, ok := cache[name]; ok {
		return c, nil
	}
	raw, err := files.ReadFile("schemas/" + string(name) + ".json")
	if err != nil {
		return nil, fmt.Errorf("schema: unknown schema %q: %w", name, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", name, err)
	}
	c := &compiled{doc: doc, loader: gojsonschema.NewGoLoader(doc)}
	cache[name] = c
	return c, nil
}

// Document returns a copy of the decoded schema, suitable for publishing as a
// tool input schema.
func Document(name Name) (map[string]any, error) {
	c, err := load(name)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(c.doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidationError lists every schema violation found in a payload.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "request failed schema validation"
	}
	return strings.Join(e.Issues, "; ")
}

// Validate checks raw JSON against the named schema. Malformed JSON and
// schema violations are reported as *ValidationError.
func Validate(name Name, raw []byte) error {
	c, err := load(name)
	if err != nil {
		return err
	}
	if !json.Valid(raw) {
		return &ValidationError{Issues: []string{"body is not valid JSON"}}
	}
	result, err := gojsonschema.Validate(c.loader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema: validate %s: %w", name, err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return &ValidationError{Issues: issues}
}
