// Package ringbuf implements the single-producer single-consumer byte queue
// that carries the bridge opcode protocol. The queue binds to a caller
// provided memory region so both ends of a shared-memory mapping can drive
// it; the control header lives at the start of the region.
//
// Writes are staged: nothing a writer stages becomes visible to the reader
// before CommitWrite publishes it. A staged frame that runs out of space
// invalidates the whole frame; half-framed data is never readable. The
// realtime writer never blocks; blocking-with-retry for non-RT writers is
// the transport's concern.
package ringbuf

import (
	"sync/atomic"
	"unsafe"
)

// Stack sizes for the three channel flavours. All powers of two.
const (
	SmallStackSize = 4 * 1024
	BigStackSize   = 16 * 1024
	HugeStackSize  = 64 * 1024
)

// HeaderSize is the fixed control header at the start of every region.
const HeaderSize = 32

// control is the shared header. head is the committed write position,
// tail the read position, wrtn the staged (uncommitted) write position.
// All are free-running counters masked by the data size.
type control struct {
	head    uint32
	tail    uint32
	wrtn    uint32
	invalid uint32 // staged frame overflowed; commit will discard it
	_       [16]byte
}

// Buffer is one end of a ring bound to a memory region. A Buffer value is
// confined to a single goroutine; the producer and consumer each bind their
// own Buffer to the same region.
type Buffer struct {
	ctrl *control
	data []byte
	mask uint32
}

// RegionSize returns the bytes needed for a ring with the given data size.
func RegionSize(dataSize uint32) uint32 {
	return dataSize + HeaderSize
}

// At binds a ring to mem without touching its contents. Used to attach to a
// region initialized by the other process. The data size (len(mem) minus
// header) must be a power of two.
func At(mem []byte) *Buffer {
	dataSize := uint32(len(mem)) - HeaderSize
	if dataSize == 0 || dataSize&(dataSize-1) != 0 {
		return nil
	}
	return &Buffer{
		ctrl: (*control)(unsafe.Pointer(&mem[0])),
		data: mem[HeaderSize:],
		mask: dataSize - 1,
	}
}

// InitAt zeroes the control header and binds a ring to mem.
func InitAt(mem []byte) *Buffer {
	b := At(mem)
	if b == nil {
		return nil
	}
	atomic.StoreUint32(&b.ctrl.head, 0)
	atomic.StoreUint32(&b.ctrl.tail, 0)
	atomic.StoreUint32(&b.ctrl.wrtn, 0)
	atomic.StoreUint32(&b.ctrl.invalid, 0)
	return b
}

// Size returns the ring's data capacity in bytes.
func (b *Buffer) Size() uint32 {
	return b.mask + 1
}

// --- producer side ---

// writeBytes stages p into the ring. On insufficient space the staged frame
// is marked invalid and false is returned; CommitWrite will discard it.
func (b *Buffer) writeBytes(p []byte) bool {
	if atomic.LoadUint32(&b.ctrl.invalid) != 0 {
		return false
	}
	wrtn := atomic.LoadUint32(&b.ctrl.wrtn)
	tail := atomic.LoadUint32(&b.ctrl.tail)
	free := b.Size() - (wrtn - tail)
	if uint32(len(p)) > free {
		atomic.StoreUint32(&b.ctrl.invalid, 1)
		return false
	}
	for i := range p {
		b.data[(wrtn+uint32(i))&b.mask] = p[i]
	}
	atomic.StoreUint32(&b.ctrl.wrtn, wrtn+uint32(len(p)))
	return true
}

// CommitWrite publishes everything staged since the previous commit. If the
// staged frame overflowed it is discarded instead and false is returned.
func (b *Buffer) CommitWrite() bool {
	wrtn := atomic.LoadUint32(&b.ctrl.wrtn)
	if atomic.LoadUint32(&b.ctrl.invalid) != 0 {
		atomic.StoreUint32(&b.ctrl.wrtn, atomic.LoadUint32(&b.ctrl.head))
		atomic.StoreUint32(&b.ctrl.invalid, 0)
		return false
	}
	atomic.StoreUint32(&b.ctrl.head, wrtn)
	return true
}

// --- consumer side ---

// IsDataAvailableForReading reports whether at least one committed byte is
// pending.
func (b *Buffer) IsDataAvailableForReading() bool {
	return atomic.LoadUint32(&b.ctrl.head) != atomic.LoadUint32(&b.ctrl.tail)
}

// readBytes copies len(p) committed bytes out of the ring. Returns false,
// consuming nothing, if fewer bytes are committed.
func (b *Buffer) readBytes(p []byte) bool {
	head := atomic.LoadUint32(&b.ctrl.head)
	tail := atomic.LoadUint32(&b.ctrl.tail)
	avail := head - tail
	if uint32(len(p)) > avail {
		return false
	}
	for i := range p {
		p[i] = b.data[(tail+uint32(i))&b.mask]
	}
	atomic.StoreUint32(&b.ctrl.tail, tail+uint32(len(p)))
	return true
}

// SkipPending discards all committed-but-unread bytes. Used by a transport
// to resynchronize after a protocol violation.
func (b *Buffer) SkipPending() {
	atomic.StoreUint32(&b.ctrl.tail, atomic.LoadUint32(&b.ctrl.head))
}
