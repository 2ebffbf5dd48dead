package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldPattern constrains one logical field to values containing Pattern
type FieldPattern struct {
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
}

// FilterSpec is an ordered mapping from logical field id to a free-text pattern.
//
// It decodes from either a JSON object ({"uf":"SP"}, key order preserved) or an
// array of FieldPattern, and always encodes as an object in insertion order.
type FilterSpec []FieldPattern

// Set replaces the pattern of an existing field or appends a new one
func (s *FilterSpec) Set(field, pattern string) {
	for i := range *s {
		if (*s)[i].Field == field {
			(*s)[i].Pattern = pattern
			return
		}
	}
	*s = append(*s, FieldPattern{Field: field, Pattern: pattern})
}

// Get returns the pattern stored for field
func (s FilterSpec) Get(field string) (string, bool) {
	for _, fp := range s {
		if fp.Field == field {
			return fp.Pattern, true
		}
	}
	return "", false
}

// Active returns the constraints with a non-blank pattern, trimmed
func (s FilterSpec) Active() []FieldPattern {
	var active []FieldPattern
	for _, fp := range s {
		p := strings.TrimSpace(fp.Pattern)
		if p == "" {
			continue
		}
		active = append(active, FieldPattern{Field: fp.Field, Pattern: p})
	}
	return active
}

// MarshalJSON encodes the spec as an object preserving field order
func (s FilterSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fp := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fp.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fp.Pattern)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object, an array of {field, pattern} or null
func (s *FilterSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	if trimmed[0] == '[' {
		var pairs []FieldPattern
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return fmt.Errorf("invalid filter list: %w", err)
		}
		spec := FilterSpec{}
		for _, fp := range pairs {
			spec.Set(fp.Field, fp.Pattern)
		}
		*s = spec
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("filters must be an object or a list")
	}

	spec := FilterSpec{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid filter key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		pattern, err := patternFromJSON(raw)
		if err != nil {
			return fmt.Errorf("filter %q: %w", key, err)
		}
		spec.Set(key, pattern)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = spec
	return nil
}

// patternFromJSON turns a scalar JSON value into its pattern text
func patternFromJSON(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		return "", nil
	case len(raw) > 0 && raw[0] == '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", err
		}
		return str, nil
	case len(raw) > 0 && (raw[0] == '{' || raw[0] == '['):
		return "", fmt.Errorf("pattern must be a scalar")
	default:
		// numbers and booleans keep their literal spelling
		return string(raw), nil
	}
}

// Value implements driver.Valuer for database storage
func (s FilterSpec) Value() (driver.Value, error) {
	return s.MarshalJSON()
}

// Scan implements sql.Scanner for database retrieval
func (s *FilterSpec) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into FilterSpec", value)
	}
}

// SavedFilter is a named FilterSpec persisted for reuse
type SavedFilter struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Name      string     `json:"name" db:"name"`
	Filters   FilterSpec `json:"filters" db:"filters"`
	Columns   []string   `json:"columns" db:"columns"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
