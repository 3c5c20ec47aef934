//go:build linux

package worker

import (
	"os"
)

// Chunk state crosses process boundaries through temp files: the ring
// buffers are for control traffic, not bulk plugin state.

func writeChunkTemp(chunk []byte) (string, error) {
	f, err := os.CreateTemp("", "rackbay-chunk-*.bin")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(chunk); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func readChunkTemp(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The file is a one-shot hand-off.
	os.Remove(path)
	return data, nil
}
