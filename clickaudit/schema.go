package clickaudit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxSettleMs caps settle waits on every transport. Config.MaxDuration
// applies on top.
const maxSettleMs = 600000

// Request bodies of the HTTP API. Unknown fields are rejected so a typo in
// an option is not silently ignored.
var requestSchemas = map[string]string{
	"snapshot": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["origin_url", "click_type", "click_value"],
		"additionalProperties": false,
		"properties": {
			"origin_url":          {"type": "string", "minLength": 1, "maxLength": 8192},
			"click_type":          {"enum": ["text", "css", "xpath", "aria"]},
			"click_value":         {"type": "string", "minLength": 1, "maxLength": 4096},
			"settle_wait_ms":      {"type": "integer", "minimum": 0, "maximum": 600000},
			"wait_after_click_ms": {"type": "integer", "minimum": 0, "maximum": 600000},
			"full_page":           {"type": "boolean"}
		}
	}`,
	"day": `{
		"type": "object",
		"required": ["day"],
		"properties": {"day": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}}
	}`,
	"month": `{
		"type": "object",
		"required": ["year", "month"],
		"properties": {
			"year":  {"type": "integer", "minimum": 1970, "maximum": 9999},
			"month": {"type": "integer", "minimum": 1, "maximum": 12}
		}
	}`,
	"range": `{
		"type": "object",
		"required": ["start_time", "end_time"],
		"properties": {
			"start_time": {"type": "string", "minLength": 10},
			"end_time":   {"type": "string", "minLength": 10}
		}
	}`,
	"stats": `{
		"type": "object",
		"properties": {"days": {"type": "integer", "minimum": 1, "maximum": 3650}}
	}`,
	"history": `{
		"type": "object",
		"required": ["origin_url", "click_type", "click_value"],
		"properties": {
			"origin_url":  {"type": "string", "minLength": 1},
			"click_type":  {"enum": ["text", "css", "xpath", "aria"]},
			"click_value": {"type": "string", "minLength": 1}
		}
	}`,
}

var compiledSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	out := make(map[string]*jsonschema.Schema, len(requestSchemas))
	for name, src := range requestSchemas {
		url := "mem://linkaudit/" + name + ".json"
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("clickaudit: schema %s: %v", name, err))
		}
		out[name] = c.MustCompile(url)
	}
	return out
}

// decodeValid validates data against the named schema, then decodes it
// into dst. Empty data is treated as an empty object.
func decodeValid(name string, data []byte, dst any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalidRequest, err)
	}
	if err := compiledSchemas[name].Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
