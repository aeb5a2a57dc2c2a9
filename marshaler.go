package yessql

import "encoding/json"

// Marshaler encodes entities to a canonical byte form and back, used both
// for document storage payloads and for the change tracker's
// serialization-based equality check.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonMarshaler struct{}

// NewMarshaler returns the default Marshaler, which uses encoding/json.
func NewMarshaler() Marshaler {
	return jsonMarshaler{}
}

func (jsonMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
