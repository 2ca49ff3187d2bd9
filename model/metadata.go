package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/siherrmann/memoria/helper"
)

// Metadata is free-form JSON attached to an entry. It is stored as JSONB
// on postgres and as TEXT on sqlite.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case []byte:
		return m.unmarshal(v)
	case string:
		return m.unmarshal([]byte(v))
	}
	return helper.NewError("scan metadata", fmt.Errorf("unsupported type %T", value))
}

func (m *Metadata) unmarshal(b []byte) error {
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}
