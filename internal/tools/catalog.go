// Package tools models the MCP tool catalog advertised by codex mcp-server
// and validates tools/call arguments against the advertised input schemas.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool describes one entry from a tools/list result.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// ParseListResult extracts tool definitions from a tools/list result.
//
// Entries without a name are skipped; entries whose schema fails to decode
// keep a nil schema and simply skip validation later.
func ParseListResult(result any) ([]Tool, error) {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tools/list result is not an object: %T", result)
	}

	rawTools, ok := obj["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("tools/list result has no tools array")
	}

	parsed := make([]Tool, 0, len(rawTools))

	for _, rawTool := range rawTools {
		entry, ok := rawTool.(map[string]any)
		if !ok {
			continue
		}

		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}

		tool := Tool{Name: name}
		tool.Description, _ = entry["description"].(string)

		if rawSchema, ok := entry["inputSchema"].(map[string]any); ok {
			tool.InputSchema = decodeSchema(rawSchema)
		}

		parsed = append(parsed, tool)
	}

	return parsed, nil
}

// decodeSchema converts a raw JSON schema object to *jsonschema.Schema via
// a marshal round-trip. Returns nil if the schema does not decode.
func decodeSchema(raw map[string]any) *jsonschema.Schema {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil
	}

	return &schema
}

// Catalog is a lookup table of advertised tools with cached resolved
// schemas for argument validation.
type Catalog struct {
	mu       sync.Mutex
	byName   map[string]Tool
	resolved map[string]*jsonschema.Resolved
}

// NewCatalog builds a catalog from parsed tools.
func NewCatalog(list []Tool) *Catalog {
	byName := make(map[string]Tool, len(list))
	for _, tool := range list {
		byName[tool.Name] = tool
	}

	return &Catalog{
		byName:   byName,
		resolved: make(map[string]*jsonschema.Resolved, len(list)),
	}
}

// Get returns the tool definition for name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tool, ok := c.byName[name]

	return tool, ok
}

// Names returns the advertised tool names.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}

	return names
}

// ValidateArguments checks args against the tool's input schema.
//
// Unknown tools and tools without a usable schema pass: validation is a
// pre-flight convenience, and the server remains the authority.
func (c *Catalog) ValidateArguments(name string, args map[string]any) error {
	c.mu.Lock()

	tool, ok := c.byName[name]
	if !ok || tool.InputSchema == nil {
		c.mu.Unlock()

		return nil
	}

	resolved, ok := c.resolved[name]
	if !ok {
		var err error

		resolved, err = tool.InputSchema.Resolve(nil)
		if err != nil {
			// Schema the library cannot resolve; let the server decide.
			c.mu.Unlock()

			return nil
		}

		c.resolved[name] = resolved
	}

	c.mu.Unlock()

	if args == nil {
		args = map[string]any{}
	}

	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("arguments for tool %q: %w", name, err)
	}

	return nil
}
