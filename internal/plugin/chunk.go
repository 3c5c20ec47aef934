package plugin

import "encoding/base64"

// Chunk custom-data entries store opaque plugin state as base64 text.
const CustomDataTypeChunk = "Chunk"

func encodeChunk(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeChunk reverses encodeChunk. Invalid text yields nil.
func DecodeChunk(s string) []byte {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}
