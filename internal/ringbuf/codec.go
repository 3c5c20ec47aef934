package ringbuf

import (
	"encoding/binary"
	"math"
)

// Typed helpers for the opcode protocol. All integers are little-endian.
// The scratch arrays live on the stack; nothing here allocates.

// WriteOpcode stages a protocol opcode.
func (b *Buffer) WriteOpcode(op uint32) bool {
	return b.WriteUint32(op)
}

// WriteByte stages a single byte.
func (b *Buffer) WriteByte(v byte) bool {
	var tmp [1]byte
	tmp[0] = v
	return b.writeBytes(tmp[:])
}

// WriteBool stages a bool as one byte.
func (b *Buffer) WriteBool(v bool) bool {
	if v {
		return b.WriteByte(1)
	}
	return b.WriteByte(0)
}

// WriteShort stages an int16.
func (b *Buffer) WriteShort(v int16) bool {
	return b.WriteUShort(uint16(v))
}

// WriteUShort stages a uint16.
func (b *Buffer) WriteUShort(v uint16) bool {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return b.writeBytes(tmp[:])
}

// WriteInt stages an int32.
func (b *Buffer) WriteInt(v int32) bool {
	return b.WriteUint32(uint32(v))
}

// WriteUint32 stages a uint32.
func (b *Buffer) WriteUint32(v uint32) bool {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return b.writeBytes(tmp[:])
}

// WriteLong stages an int64.
func (b *Buffer) WriteLong(v int64) bool {
	return b.WriteULong(uint64(v))
}

// WriteULong stages a uint64.
func (b *Buffer) WriteULong(v uint64) bool {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return b.writeBytes(tmp[:])
}

// WriteFloat stages a float32.
func (b *Buffer) WriteFloat(v float32) bool {
	return b.WriteUint32(math.Float32bits(v))
}

// WriteDouble stages a float64.
func (b *Buffer) WriteDouble(v float64) bool {
	return b.WriteULong(math.Float64bits(v))
}

// WriteCustomData stages raw bytes of a length both sides agreed on.
func (b *Buffer) WriteCustomData(p []byte) bool {
	return b.writeBytes(p)
}

// ReadOpcode consumes a protocol opcode. Returns 0, false when no full
// opcode is committed.
func (b *Buffer) ReadOpcode() (uint32, bool) {
	return b.ReadUint32()
}

// ReadByte consumes one byte.
func (b *Buffer) ReadByte() (byte, bool) {
	var tmp [1]byte
	if !b.readBytes(tmp[:]) {
		return 0, false
	}
	return tmp[0], true
}

// ReadBool consumes one byte as a bool.
func (b *Buffer) ReadBool() (bool, bool) {
	v, ok := b.ReadByte()
	return v != 0, ok
}

// ReadShort consumes an int16.
func (b *Buffer) ReadShort() (int16, bool) {
	v, ok := b.ReadUShort()
	return int16(v), ok
}

// ReadUShort consumes a uint16.
func (b *Buffer) ReadUShort() (uint16, bool) {
	var tmp [2]byte
	if !b.readBytes(tmp[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(tmp[:]), true
}

// ReadInt consumes an int32.
func (b *Buffer) ReadInt() (int32, bool) {
	v, ok := b.ReadUint32()
	return int32(v), ok
}

// ReadUint32 consumes a uint32.
func (b *Buffer) ReadUint32() (uint32, bool) {
	var tmp [4]byte
	if !b.readBytes(tmp[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(tmp[:]), true
}

// ReadLong consumes an int64.
func (b *Buffer) ReadLong() (int64, bool) {
	v, ok := b.ReadULong()
	return int64(v), ok
}

// ReadULong consumes a uint64.
func (b *Buffer) ReadULong() (uint64, bool) {
	var tmp [8]byte
	if !b.readBytes(tmp[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(tmp[:]), true
}

// ReadFloat consumes a float32.
func (b *Buffer) ReadFloat() (float32, bool) {
	v, ok := b.ReadUint32()
	return math.Float32frombits(v), ok
}

// ReadDouble consumes a float64.
func (b *Buffer) ReadDouble() (float64, bool) {
	v, ok := b.ReadULong()
	return math.Float64frombits(v), ok
}

// ReadCustomData consumes len(p) raw bytes into p.
func (b *Buffer) ReadCustomData(p []byte) bool {
	return b.readBytes(p)
}
