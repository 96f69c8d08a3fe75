package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype of the control API
const CodecName string = "json"

// jsonCodec marshals messages of the control API as JSON
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec returns the codec both ends of the control API must use
func Codec() encoding.Codec {
	return jsonCodec{}
}

// ClientIDMetadataKey is the gRPC metadata key carrying the id of the calling client
const ClientIDMetadataKey string = "mira-client-id"
