// Package chanconfig loads the optional channel-metadata file REthos's
// admin surfaces use to give opaque user channels (≥4) a human-readable
// name, validated against a fixed JSON Schema document. There is exactly
// one schema, so it is compiled once at Load time rather than cached per
// document.
package chanconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// metadataSchema constrains the channel-metadata file's shape: a list of
// entries, each naming a channel 4..255 with a short label.
const metadataSchema = `{
  "type": "object",
  "required": ["channels"],
  "properties": {
    "channels": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["channel", "name"],
        "properties": {
          "channel": {"type": "integer", "minimum": 4, "maximum": 255},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

// Entry describes one user channel's metadata.
type Entry struct {
	Channel     uint8  `json:"channel"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type document struct {
	Channels []Entry `json:"channels"`
}

// Config is the loaded, validated channel-metadata file, indexed by
// channel number for O(1) lookup from the admin and MCP introspection
// surfaces.
type Config struct {
	byChannel map[uint8]Entry
}

// Load reads and validates the metadata file at path. An empty path
// yields an empty Config (no metadata configured is a valid state — the
// feature is optional).
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{byChannel: map[uint8]Entry{}}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chanconfig: read %s: %w", path, err)
	}

	compiled, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("chanconfig: compile schema: %w", err)
	}

	var asAny any
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return nil, fmt.Errorf("chanconfig: parse %s: %w", path, err)
	}
	if err := compiled.Validate(asAny); err != nil {
		return nil, fmt.Errorf("chanconfig: %s failed schema validation: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("chanconfig: decode %s: %w", path, err)
	}

	cfg := &Config{byChannel: make(map[uint8]Entry, len(doc.Channels))}
	for _, e := range doc.Channels {
		cfg.byChannel[e.Channel] = e
	}
	return cfg, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	var schemaMap any
	if err := json.Unmarshal([]byte(metadataSchema), &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal embedded schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("channels.json", schemaMap); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile("channels.json")
}

// Lookup returns the metadata entry for channel, if any was configured.
func (c *Config) Lookup(channel uint8) (Entry, bool) {
	e, ok := c.byChannel[channel]
	return e, ok
}

// Entries returns all configured entries, for the admin/MCP channel list.
func (c *Config) Entries() []Entry {
	out := make([]Entry, 0, len(c.byChannel))
	for _, e := range c.byChannel {
		out = append(out, e)
	}
	return out
}
