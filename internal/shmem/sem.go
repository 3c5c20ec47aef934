//go:build linux

package shmem

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SemSize is the space one semaphore occupies inside a region.
const SemSize = 16

// Linux futex(2) operation codes. golang.org/x/sys/unix exposes the futex
// syscall numbers (SYS_FUTEX/SYS_FUTEX_WAIT/SYS_FUTEX_WAKE) but not these
// op constants, so they're defined here with their kernel values.
const (
	futexWait = 0
	futexWake = 1
)

// Sem is a counting semaphore living in shared memory, usable from both
// sides of the mapping. Waiters sleep on a futex, so a Wait pins its OS
// thread but burns no CPU.
type Sem struct {
	v *uint32
}

// SemAt binds a semaphore to a 4-byte-aligned offset inside mem.
func SemAt(mem []byte, off int) *Sem {
	return &Sem{v: (*uint32)(unsafe.Pointer(&mem[off]))}
}

// SemInitAt binds and zeroes a semaphore.
func SemInitAt(mem []byte, off int) *Sem {
	s := SemAt(mem, off)
	atomic.StoreUint32(s.v, 0)
	return s
}

// Post increments the semaphore and wakes one waiter.
func (s *Sem) Post() {
	atomic.AddUint32(s.v, 1)
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(s.v)),
		uintptr(futexWake), 1, 0, 0, 0)
}

// Wait decrements the semaphore, sleeping until it is positive. A negative
// timeout blocks indefinitely (offline mode). Returns false on timeout.
func (s *Sem) Wait(timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		v := atomic.LoadUint32(s.v)
		if v > 0 {
			if atomic.CompareAndSwapUint32(s.v, v, v-1) {
				return true
			}
			continue
		}

		var tsp *unix.Timespec
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return s.tryAcquire()
			}
			ts := unix.NsecToTimespec(remaining.Nanoseconds())
			tsp = &ts
		}
		// EAGAIN (value changed), EINTR and ETIMEDOUT all loop back to
		// re-examine the count; the deadline check above bounds the loop.
		_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(s.v)),
			uintptr(futexWait), 0, uintptr(unsafe.Pointer(tsp)), 0, 0)
		if timeout >= 0 && !time.Now().Before(deadline) {
			return s.tryAcquire()
		}
	}
}

// TryWait decrements without blocking.
func (s *Sem) TryWait() bool {
	return s.tryAcquire()
}

func (s *Sem) tryAcquire() bool {
	for {
		v := atomic.LoadUint32(s.v)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.v, v, v-1) {
			return true
		}
	}
}
