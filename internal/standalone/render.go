package standalone

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rackbay/rackbay/internal/engine"
	"github.com/rackbay/rackbay/internal/errors"
)

// RenderWAV streams a WAV file through the engine offline and writes the
// processed result. The engine runs in offline mode so bridged plugins may
// block past their realtime deadline.
func RenderWAV(e *engine.Engine, inPath, outPath string) error {
	inFile, err := os.Open(inPath)
	if err != nil {
		return fileErr(err, inPath)
	}
	defer inFile.Close()

	decoder := wav.NewDecoder(inFile)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return errors.Newf("%s is not a usable wav file", inPath).
			Component("standalone").
			Category(errors.CategoryFileIO).
			Build()
	}
	channels := int(decoder.NumChans)
	if channels == 0 {
		channels = 2
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return fileErr(err, outPath)
	}
	defer outFile.Close()

	encoder := wav.NewEncoder(outFile, int(decoder.SampleRate), int(decoder.BitDepth), channels, 1)
	defer encoder.Close()

	e.OfflineChanged(true)
	defer e.OfflineChanged(false)
	e.SampleRateChanged(float64(decoder.SampleRate))
	e.Activate()
	defer e.Deactivate()

	frames := int(e.BufferSize())
	chunk := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(decoder.SampleRate)},
		Data:   make([]int, frames*channels),
	}
	inBufs := make([][]float32, channels)
	outBufs := make([][]float32, channels)
	for i := range channels {
		inBufs[i] = make([]float32, frames)
		outBufs[i] = make([]float32, frames)
	}

	scale := float32(int(1) << (decoder.BitDepth - 1))
	for {
		n, err := decoder.PCMBuffer(chunk)
		if err != nil {
			return fileErr(err, inPath)
		}
		if n == 0 {
			return nil
		}
		got := n / channels
		for f := range got {
			for c := range channels {
				inBufs[c][f] = float32(chunk.Data[f*channels+c]) / scale
			}
		}
		for c := range channels {
			clear(inBufs[c][got:frames])
		}

		e.Process(inBufs, outBufs, uint32(got), nil)
		e.Idle()

		outChunk := &audio.IntBuffer{
			Format: chunk.Format,
			Data:   make([]int, got*channels),
		}
		for f := range got {
			for c := range channels {
				v := outBufs[c][f] * scale
				if v > scale-1 {
					v = scale - 1
				}
				if v < -scale {
					v = -scale
				}
				outChunk.Data[f*channels+c] = int(v)
			}
		}
		if err := encoder.Write(outChunk); err != nil {
			return fileErr(err, outPath)
		}
	}
}

func fileErr(err error, path string) error {
	return errors.New(err).
		Component("standalone").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
