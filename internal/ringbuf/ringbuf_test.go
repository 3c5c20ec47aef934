package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newPair(t *testing.T, dataSize uint32) (w, r *Buffer) {
	t.Helper()
	mem := make([]byte, RegionSize(dataSize))
	w = InitAt(mem)
	require.NotNil(t, w)
	r = At(mem)
	require.NotNil(t, r)
	return w, r
}

func TestRejectsNonPowerOfTwo(t *testing.T) {
	mem := make([]byte, RegionSize(1000))
	assert.Nil(t, At(mem))
	assert.Nil(t, InitAt(mem))
}

func TestTypedRoundTrip(t *testing.T) {
	w, r := newPair(t, SmallStackSize)

	require.True(t, w.WriteOpcode(42))
	require.True(t, w.WriteByte(0x7f))
	require.True(t, w.WriteBool(true))
	require.True(t, w.WriteShort(-1234))
	require.True(t, w.WriteUShort(65000))
	require.True(t, w.WriteInt(-7))
	require.True(t, w.WriteUint32(0xdeadbeef))
	require.True(t, w.WriteLong(-1<<40))
	require.True(t, w.WriteULong(1<<60))
	require.True(t, w.WriteFloat(0.5))
	require.True(t, w.WriteDouble(3.25))
	require.True(t, w.WriteCustomData([]byte{1, 2, 3}))

	// Nothing visible before commit.
	assert.False(t, r.IsDataAvailableForReading())
	require.True(t, w.CommitWrite())
	require.True(t, r.IsDataAvailableForReading())

	op, ok := r.ReadOpcode()
	require.True(t, ok)
	assert.Equal(t, uint32(42), op)
	bv, ok := r.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(0x7f), bv)
	b, ok := r.ReadBool()
	require.True(t, ok)
	assert.True(t, b)
	s, ok := r.ReadShort()
	require.True(t, ok)
	assert.Equal(t, int16(-1234), s)
	us, ok := r.ReadUShort()
	require.True(t, ok)
	assert.Equal(t, uint16(65000), us)
	i, ok := r.ReadInt()
	require.True(t, ok)
	assert.Equal(t, int32(-7), i)
	u, ok := r.ReadUint32()
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), u)
	l, ok := r.ReadLong()
	require.True(t, ok)
	assert.Equal(t, int64(-1<<40), l)
	ul, ok := r.ReadULong()
	require.True(t, ok)
	assert.Equal(t, uint64(1<<60), ul)
	f, ok := r.ReadFloat()
	require.True(t, ok)
	assert.Equal(t, float32(0.5), f)
	d, ok := r.ReadDouble()
	require.True(t, ok)
	assert.Equal(t, 3.25, d)
	custom := make([]byte, 3)
	require.True(t, r.ReadCustomData(custom))
	assert.Equal(t, []byte{1, 2, 3}, custom)

	assert.False(t, r.IsDataAvailableForReading())
}

func TestOverflowDropsWholeFrame(t *testing.T) {
	w, r := newPair(t, 64)

	// Stage a frame larger than the ring; every later write in the frame
	// fails too and the commit discards it all.
	big := make([]byte, 60)
	require.True(t, w.WriteCustomData(big))
	assert.False(t, w.WriteCustomData(big))
	assert.False(t, w.WriteOpcode(1))
	assert.False(t, w.CommitWrite())
	assert.False(t, r.IsDataAvailableForReading())

	// The ring is usable again for the next frame.
	require.True(t, w.WriteOpcode(7))
	require.True(t, w.CommitWrite())
	op, ok := r.ReadOpcode()
	require.True(t, ok)
	assert.Equal(t, uint32(7), op)
}

func TestWraparound(t *testing.T) {
	w, r := newPair(t, 64)

	chunk := make([]byte, 24)
	got := make([]byte, 24)
	for round := range 100 {
		for i := range chunk {
			chunk[i] = byte(round + i)
		}
		require.True(t, w.WriteCustomData(chunk))
		require.True(t, w.CommitWrite())
		require.True(t, r.ReadCustomData(got))
		assert.Equal(t, chunk, got)
	}
}

func TestShortReadConsumesNothing(t *testing.T) {
	w, r := newPair(t, 64)
	require.True(t, w.WriteByte(9))
	require.True(t, w.CommitWrite())

	_, ok := r.ReadUint32()
	assert.False(t, ok)
	v, ok := r.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(9), v)
}

// Framing atomicity: whatever interleaving of staged writes and commits the
// writer performs, the reader observes exactly the committed frames, in
// order, and never a partial frame.
func TestFramingAtomicityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mem := make([]byte, RegionSize(256))
		w := InitAt(mem)
		r := At(mem)

		var committed []byte
		frames := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 1, 64), 0, 16).Draw(t, "frames")
		for _, frame := range frames {
			ok := w.WriteCustomData(frame)
			if ok {
				ok = w.CommitWrite()
			} else {
				w.CommitWrite()
			}
			if ok {
				committed = append(committed, frame...)
			}

			// Reader drains lazily on a coin flip, like the real consumer.
			if rapid.Bool().Draw(t, "drain") {
				committed = drain(t, r, committed)
			}
		}
		if rest := drain(t, r, committed); len(rest) != 0 {
			t.Fatalf("%d committed bytes never became readable", len(rest))
		}
	})
}

func drain(t *rapid.T, r *Buffer, committed []byte) []byte {
	var tmp [1]byte
	for r.IsDataAvailableForReading() {
		if !r.ReadCustomData(tmp[:]) {
			t.Fatalf("available but unreadable")
		}
		if len(committed) == 0 {
			t.Fatalf("read byte %d beyond committed data", tmp[0])
		}
		if tmp[0] != committed[0] {
			t.Fatalf("read %d, committed order says %d", tmp[0], committed[0])
		}
		committed = committed[1:]
	}
	return committed
}
