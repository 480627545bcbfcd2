package component

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serialize encodes a component tree as its wire JSON form.
func Serialize(c Component) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("serialize component: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes the wire JSON form of a component tree. Unknown fields
// are rejected so a packet carrying something that is not a component fails
// loudly instead of arriving half-empty.
func Deserialize(s string) (Component, error) {
	var c Component
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Component{}, fmt.Errorf("deserialize component: %w", err)
	}
	return c, nil
}
