package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON is a schemaless document column (audit previews and reports).
type JSON map[string]interface{}

// Value implements database writing.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements database reading.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSON column")
	}
	if len(data) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(data, j)
}
