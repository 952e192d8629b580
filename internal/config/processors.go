package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ProcessorEntry is one configured processor. Options is the processor's
// own configuration as JSON, whichever format the file was written in.
type ProcessorEntry struct {
	ID      string
	Options json.RawMessage
}

// Processors is the ordered processor mapping. Declaration order is the
// pipeline order, so it is decoded token by token instead of into a map.
type Processors []ProcessorEntry

// IDs lists the processor identifiers in order.
func (p Processors) IDs() []string {
	ids := make([]string, 0, len(p))
	for _, entry := range p {
		ids = append(ids, entry.ID)
	}
	return ids
}

func (p *Processors) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("processors: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("processors: expected an object mapping id to options")
	}

	entries := Processors{}
	seen := map[string]struct{}{}
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("processors: %w", err)
		}
		id, _ := token.(string)
		var options json.RawMessage
		if err := decoder.Decode(&options); err != nil {
			return fmt.Errorf("processors.%s: %w", id, err)
		}
		if err := entries.add(seen, id, options); err != nil {
			return err
		}
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("processors: %w", err)
	}

	*p = entries
	return nil
}

func (p *Processors) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*p = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("processors: line %d: expected a mapping of id to options", node.Line)
	}

	entries := Processors{}
	seen := map[string]struct{}{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var decoded any
		if err := value.Decode(&decoded); err != nil {
			return fmt.Errorf("processors.%s: %w", key.Value, err)
		}
		options, err := json.Marshal(decoded)
		if err != nil {
			return fmt.Errorf("processors.%s: options must be JSON compatible: %w", key.Value, err)
		}
		if err := entries.add(seen, key.Value, options); err != nil {
			return err
		}
	}

	*p = entries
	return nil
}

// MarshalJSON writes the mapping back in order.
func (p Processors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(entry.Options) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(entry.Options)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Processors) add(seen map[string]struct{}, id string, options json.RawMessage) error {
	if id == "" {
		return fmt.Errorf("processors: empty processor id")
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("processors: duplicate processor id %q", id)
	}
	seen[id] = struct{}{}
	*p = append(*p, ProcessorEntry{ID: id, Options: append(json.RawMessage(nil), options...)})
	return nil
}
