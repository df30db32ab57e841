package notification

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is stored as a jsonb object of strings.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	// Triggers like "<1h" stay readable in the stored row.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea, so jsonb has to travel as text.
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("error decoding notification metadata: %w", err)
	}
	*m = out
	return nil
}
