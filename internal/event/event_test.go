package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndOverflow(t *testing.T) {
	var b Buffer
	for i := range MaxInternalCount {
		require.True(t, b.Append(Event{Time: uint32(i), Type: TypeControl}))
	}
	assert.Equal(t, MaxInternalCount, b.Len())
	assert.False(t, b.Append(Event{Type: TypeControl}), "overflow must drop the tail entry")
	assert.Equal(t, MaxInternalCount, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, TypeNull, b.At(0).Type)
}

func TestToRawMidiParameter(t *testing.T) {
	e := Event{
		Type:    TypeControl,
		Channel: 3,
		Ctrl:    Ctrl{Subtype: CtrlParameter, Param: 7, Value: 1.0},
	}
	var out [6]byte
	n := ToRawMidi(&e, out[:])
	require.Equal(t, 3, n)
	assert.Equal(t, byte(0xB3), out[0])
	assert.Equal(t, byte(7), out[1])
	assert.Equal(t, byte(127), out[2])
}

func TestToRawMidiBankAndProgram(t *testing.T) {
	bank := Event{
		Type:    TypeControl,
		Channel: 1,
		Ctrl:    Ctrl{Subtype: CtrlMidiBank, Param: 5},
	}
	var out [6]byte
	n := ToRawMidi(&bank, out[:])
	require.Equal(t, 6, n)
	assert.Equal(t, []byte{0xB1, 0x00, 0x00, 0xB1, 0x20, 0x05}, out[:n])

	prog := Event{
		Type:    TypeControl,
		Channel: 2,
		Ctrl:    Ctrl{Subtype: CtrlMidiProgram, Param: 9},
	}
	n = ToRawMidi(&prog, out[:])
	require.Equal(t, 2, n)
	assert.Equal(t, []byte{0xC2, 0x09}, out[:n])
}

func TestToRawMidiNoteOnZeroVelocityBecomesNoteOff(t *testing.T) {
	e := Event{
		Type: TypeMIDI,
		Midi: Midi{Size: 3, Data: [MidiDataSize]byte{0x95, 60, 0}},
	}
	var out [6]byte
	n := ToRawMidi(&e, out[:])
	require.Equal(t, 3, n)
	assert.Equal(t, byte(0x85), out[0])
}

func TestToRawMidiDropsOversizedAndNull(t *testing.T) {
	var out [6]byte
	oversized := Event{Type: TypeMIDI, Midi: Midi{Size: MidiDataSize + 1}}
	assert.Equal(t, 0, ToRawMidi(&oversized, out[:]))

	null := Event{Type: TypeNull}
	assert.Equal(t, 0, ToRawMidi(&null, out[:]))
}

func TestPostRtQueueOrderAndBatch(t *testing.T) {
	var q PostRtQueue
	for i := range int32(10) {
		require.True(t, q.AppendRT(PostRtEvent{Type: 1, Value1: i}))
	}

	var got []int32
	n := q.DrainBatch(4, func(e PostRtEvent) { got = append(got, e.Value1) })
	assert.Equal(t, 4, n)
	n = q.DrainBatch(0, func(e PostRtEvent) { got = append(got, e.Value1) })
	assert.Equal(t, 6, n)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestPostRtQueueOverflowDrops(t *testing.T) {
	var q PostRtQueue
	for range postRtPendingSize {
		require.True(t, q.AppendRT(PostRtEvent{}))
	}
	assert.False(t, q.AppendRT(PostRtEvent{}))

	q.DrainBatch(0, func(PostRtEvent) {})
	assert.True(t, q.AppendRT(PostRtEvent{}))
}

func TestPostRtSpliceDeferredUnderContention(t *testing.T) {
	var q PostRtQueue
	require.True(t, q.AppendRT(PostRtEvent{Value1: 1}))

	q.mu.Lock()
	assert.False(t, q.TrySplice())
	q.mu.Unlock()
	assert.True(t, q.TrySplice())

	var got []int32
	q.DrainBatch(0, func(e PostRtEvent) { got = append(got, e.Value1) })
	assert.Equal(t, []int32{1}, got)
}
