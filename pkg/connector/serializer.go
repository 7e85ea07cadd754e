package connector

import "encoding/json"

// Serializer encodes request payloads and decodes response payloads.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONSerializer) ContentType() string                { return "application/json" }
