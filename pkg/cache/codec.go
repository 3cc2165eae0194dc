package cache

import (
	"encoding/json"
	"strings"
)

// Key joins parts with ':' into a namespaced key.
func Key(parts ...string) string { return strings.Join(parts, ":") }

// encode stores strings verbatim and everything else as JSON.
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case *string:
		return []byte(*v), nil
	case []byte:
		return v, nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, dest)
}
