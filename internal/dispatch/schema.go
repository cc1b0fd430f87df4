package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ansiColor   = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	ansiPrivate = regexp.MustCompile(`\x1b\[\?[0-9]+[hl]`)
)

// StripANSI removes color and private-mode escape sequences from PowerShell output.
func StripANSI(s string) string {
	s = ansiColor.ReplaceAllString(s, "")
	return ansiPrivate.ReplaceAllString(s, "")
}

func runInputSchema() map[string]any {
	modules := make([]any, len(Modules))
	for i, m := range Modules {
		modules[i] = m
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"connection": map[string]any{
				"type":        "string",
				"description": "Connection name (e.g., 'ForIT-GA')",
			},
			"module": map[string]any{
				"type":        "string",
				"description": "exo=Exchange, pnp=SharePoint, azure, teams",
				"enum":        modules,
			},
			"command": map[string]any{
				"type":        "string",
				"description": "PowerShell command",
			},
		},
	}
}

// compileSchema round-trips schema through JSON so the compiler sees plain
// decoded values.
func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("run.json", doc); err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	sch, err := c.Compile("run.json")
	if err != nil {
		return nil, fmt.Errorf("compileSchema: %w", err)
	}
	return sch, nil
}
