//go:build linux

package bridge

import (
	"unsafe"

	"github.com/rackbay/rackbay/internal/ringbuf"
	"github.com/rackbay/rackbay/internal/shmem"
)

// TimeInfo is the transport snapshot shared with the worker each cycle.
// Both sides map the same struct at a fixed offset of the RT region; all
// fields are naturally aligned so the layout is identical on both ends.
type TimeInfo struct {
	Playing  uint32
	BBTValid uint32
	Frame    uint64
	Usecs    uint64

	Bar            int32
	Beat           int32
	Tick           float64
	BarStartTick   float64
	BeatsPerBar    float32
	BeatType       float32
	TicksPerBeat   float64
	BeatsPerMinute float64
}

// MidiOutSize is the worker's outbound MIDI byte array inside the RT
// region: length-prefixed packets, zero length terminates.
const MidiOutSize = 4096

// RT-client region layout: two semaphores, the time info block, the MIDI
// out array, then a small stack ring buffer.
const (
	rtOffSemServer = 0
	rtOffSemClient = shmem.SemSize
	rtOffTimeInfo  = 2 * shmem.SemSize
	rtOffMidiOut   = rtOffTimeInfo + 96
	rtOffRing      = rtOffMidiOut + MidiOutSize
)

var rtRegionSize = rtOffRing + int(ringbuf.RegionSize(ringbuf.SmallStackSize))

// Non-RT rings embed the big and huge stack sizes.
var (
	nonRtClientRegionSize = int(ringbuf.RegionSize(ringbuf.BigStackSize))
	nonRtServerRegionSize = int(ringbuf.RegionSize(ringbuf.HugeStackSize))
)

// TimeInfoAt binds the shared time-info block of an RT region.
func TimeInfoAt(mem []byte) *TimeInfo {
	return (*TimeInfo)(unsafe.Pointer(&mem[rtOffTimeInfo]))
}

// MidiOutAt returns the worker's outbound MIDI array of an RT region.
func MidiOutAt(mem []byte) []byte {
	return mem[rtOffMidiOut : rtOffMidiOut+MidiOutSize]
}

// RTRingOffset is where the small stack ring starts inside the RT region.
func RTRingOffset() int { return rtOffRing }
