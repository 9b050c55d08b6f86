package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// GroupLog is one group's retained readings, oldest first.
type GroupLog struct {
	Name     string
	Readings []Reading
}

// Document is the full persisted state: every group in insertion order.
// It encodes as a JSON object, which encoding/json cannot do for a map
// without sorting the keys, hence the hand-written codec below.
type Document struct {
	Groups []GroupLog
}

// Len returns the number of groups in the document.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Groups)
}

// MarshalJSON encodes d as {"<group>": [<reading>...], ...}.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range d.Groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Name)
		if err != nil {
			return nil, err
		}
		readings := g.Readings
		if readings == nil {
			readings = []Reading{}
		}
		val, err := json.Marshal(readings)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a snapshot object, keeping the key order of the
// input. A key repeated later in the object replaces the earlier value but
// keeps the earlier position.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("snapshot document must be a JSON object")
	}

	var groups []GroupLog
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var readings []Reading
		if err := dec.Decode(&readings); err != nil {
			return fmt.Errorf("group %q: %w", name, err)
		}
		if i, dup := index[name]; dup {
			groups[i].Readings = readings
			continue
		}
		index[name] = len(groups)
		groups = append(groups, GroupLog{Name: name, Readings: readings})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	d.Groups = groups
	return nil
}
