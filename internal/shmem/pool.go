//go:build linux

package shmem

import (
	"unsafe"
)

// AudioPool is the contiguous float region audio travels through between
// engine and worker. The engine writes input frames into the leading
// audio-in + cv-in slots and reads output frames from the trailing
// audio-out + cv-out slots after the worker processed a cycle.
type AudioPool struct {
	region     *Region
	bufferSize uint32
	ports      uint32
}

// poolBytes returns the byte size for a port/buffer combination, never
// smaller than one float.
func poolBytes(ports, bufferSize uint32) int {
	n := int(ports) * int(bufferSize) * 4
	if n < 4 {
		n = 4
	}
	return n
}

// CreateAudioPool makes the pool region sized for the given topology.
func CreateAudioPool(suffix string, ports, bufferSize uint32) (*AudioPool, error) {
	region, err := Create(RoleAudioPool, suffix, poolBytes(ports, bufferSize))
	if err != nil {
		return nil, err
	}
	return &AudioPool{region: region, bufferSize: bufferSize, ports: ports}, nil
}

// AttachAudioPool maps an existing pool. The attaching side learns ports and
// buffer size from the non-RT opcodes, not from the mapping.
func AttachAudioPool(suffix string, ports, bufferSize uint32) (*AudioPool, error) {
	region, err := Attach(RoleAudioPool, suffix)
	if err != nil {
		return nil, err
	}
	return &AudioPool{region: region, bufferSize: bufferSize, ports: ports}, nil
}

// Resize regrows the pool for a new topology or buffer size. The caller
// guarantees no engine/worker wait straddles the resize: the resize opcode
// is acknowledged before the next cycle enters.
func (p *AudioPool) Resize(ports, bufferSize uint32) error {
	if err := p.region.Resize(poolBytes(ports, bufferSize)); err != nil {
		return err
	}
	p.ports = ports
	p.bufferSize = bufferSize
	return nil
}

// Remap refreshes the attached side's mapping after the creator resized.
func (p *AudioPool) Remap(ports, bufferSize uint32) error {
	if err := p.region.Remap(); err != nil {
		return err
	}
	p.ports = ports
	p.bufferSize = bufferSize
	return nil
}

// Floats returns the whole pool as a float slice.
func (p *AudioPool) Floats() []float32 {
	mem := p.region.Bytes()
	return unsafe.Slice((*float32)(unsafe.Pointer(&mem[0])), len(mem)/4)
}

// Slot returns the buffer of one port slot. Slots are laid out input-first:
// audio-in, cv-in, audio-out, cv-out.
func (p *AudioPool) Slot(index uint32) []float32 {
	f := p.Floats()
	start := index * p.bufferSize
	return f[start : start+p.bufferSize]
}

// BufferSize returns the per-slot frame count.
func (p *AudioPool) BufferSize() uint32 {
	return p.bufferSize
}

// Ports returns the slot count.
func (p *AudioPool) Ports() uint32 {
	return p.ports
}

// Suffix returns the pool region's name suffix.
func (p *AudioPool) Suffix() string {
	return p.region.Suffix()
}

// Close releases the mapping and, on the creator side, the file.
func (p *AudioPool) Close() error {
	return p.region.Close()
}
