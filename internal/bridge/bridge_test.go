//go:build linux

package bridge

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackbay/rackbay/internal/ringbuf"
)

func TestStringFramingRoundTrip(t *testing.T) {
	mem := make([]byte, ringbuf.RegionSize(ringbuf.BigStackSize))
	w := ringbuf.InitAt(mem)
	r := ringbuf.At(mem)

	require.True(t, WriteString(w, "hello world"))
	require.True(t, WriteString(w, ""))
	require.True(t, WriteString(w, "Ääkkösiä"))
	require.True(t, w.CommitWrite())

	got, ok := ReadString(r)
	require.True(t, ok)
	assert.Equal(t, "hello world", got)
	got, ok = ReadString(r)
	require.True(t, ok)
	assert.Equal(t, "", got)
	got, ok = ReadString(r)
	require.True(t, ok)
	assert.Equal(t, "Ääkkösiä", got)
}

func TestReadStringRejectsAbsurdLength(t *testing.T) {
	mem := make([]byte, ringbuf.RegionSize(ringbuf.SmallStackSize))
	w := ringbuf.InitAt(mem)
	r := ringbuf.At(mem)

	require.True(t, w.WriteUint32(ringbuf.HugeStackSize+1))
	require.True(t, w.CommitWrite())

	_, ok := ReadString(r)
	assert.False(t, ok, "oversized length is a protocol violation")
}

func TestRTRegionLayout(t *testing.T) {
	// The time-info block must fit its reserved slot and stay naturally
	// aligned for both sides of the mapping.
	assert.LessOrEqual(t, unsafe.Sizeof(TimeInfo{}), uintptr(96))
	assert.Equal(t, uintptr(0), unsafe.Sizeof(TimeInfo{})%8)

	mem := make([]byte, rtRegionSize)
	ti := TimeInfoAt(mem)
	ti.Frame = 0xDEADBEEF
	assert.Equal(t, uint64(0xDEADBEEF), TimeInfoAt(mem).Frame)

	midi := MidiOutAt(mem)
	assert.Len(t, midi, MidiOutSize)

	ring := ringbuf.InitAt(mem[RTRingOffset():])
	require.NotNil(t, ring)
	assert.Equal(t, uint32(ringbuf.SmallStackSize), ring.Size())
}

func TestOpcodeSpacesAreDisjointFromNull(t *testing.T) {
	assert.Equal(t, NonRtClientOpcode(0), NonRtClientNull)
	assert.Equal(t, RtClientOpcode(0), RtClientNull)
	assert.Equal(t, NonRtServerOpcode(0), NonRtServerNull)
	// Quit must terminate both client enums.
	assert.Equal(t, uint32(26), uint32(NonRtClientQuit))
	assert.Equal(t, uint32(9), uint32(RtClientQuit))
}
