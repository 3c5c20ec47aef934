//go:build linux

// Package shmem manages the shared-memory regions and process-shared
// semaphores behind the plugin bridge. Regions are files under /dev/shm
// named rackbay-bridge_<role>_<suffix>; the six character suffix is random
// and the four suffixes of one bridge are handed to the worker through the
// ENGINE_BRIDGE_SHM_IDS environment variable.
package shmem

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/rackbay/rackbay/internal/errors"
)

const shmDir = "/dev/shm"

// NamePrefix is the common prefix of every bridge region file.
const NamePrefix = "rackbay-bridge"

// Role names a region's function inside one bridge.
type Role string

const (
	RoleAudioPool   Role = "shm"
	RoleRTClient    Role = "shm_rt"
	RoleNonRTClient Role = "shm_non-rt"
	RoleNonRTServer Role = "shm_rts"
)

// Region is one mapped shared-memory file.
type Region struct {
	name    string
	suffix  string
	file    *os.File
	mem     []byte
	creator bool
}

// NewSuffix returns a random six character region suffix.
func NewSuffix() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:6]
}

func regionPath(role Role, suffix string) string {
	return filepath.Join(shmDir, NamePrefix+"_"+string(role)+"_"+suffix)
}

// Create makes and maps a new region of the given size.
func Create(role Role, suffix string, size int) (*Region, error) {
	path := regionPath(role, suffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.New(err).
			Component("shmem").
			Category(errors.CategoryResource).
			Context("role", string(role)).
			Build()
	}
	r := &Region{name: path, suffix: suffix, file: file, creator: true}
	if err := r.remap(size); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Attach maps an existing region created by the other process.
func Attach(role Role, suffix string) (*Region, error) {
	path := regionPath(role, suffix)
	file, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.New(err).
			Component("shmem").
			Category(errors.CategoryResource).
			Context("role", string(role)).
			Build()
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.New(err).Component("shmem").Category(errors.CategoryResource).Build()
	}
	r := &Region{name: path, suffix: suffix, file: file}
	if err := r.remap(int(info.Size())); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// remap sizes the file (creator only) and replaces the mapping.
func (r *Region) remap(size int) error {
	if r.mem != nil {
		_ = unix.Munmap(r.mem)
		r.mem = nil
	}
	if r.creator {
		if err := r.file.Truncate(int64(size)); err != nil {
			return errors.New(err).
				Component("shmem").
				Category(errors.CategoryResource).
				Context("size", size).
				Build()
		}
	}
	mem, err := unix.Mmap(int(r.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.New(err).
			Component("shmem").
			Category(errors.CategoryResource).
			Context("size", size).
			Build()
	}
	r.mem = mem
	return nil
}

// Resize grows or shrinks the region, replacing the mapping. Only the
// creator resizes; the attached side re-attaches after the resize opcode.
func (r *Region) Resize(size int) error {
	return r.remap(size)
}

// Remap refreshes the mapping to the file's current size. The attached side
// calls this after the creator resized.
func (r *Region) Remap() error {
	info, err := r.file.Stat()
	if err != nil {
		return errors.New(err).Component("shmem").Category(errors.CategoryResource).Build()
	}
	return r.remap(int(info.Size()))
}

// Bytes returns the mapped memory.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Suffix returns the region's six character name suffix.
func (r *Region) Suffix() string {
	return r.suffix
}

// Close unmaps the region and, on the creating side, unlinks the file.
func (r *Region) Close() error {
	var errs []error
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			errs = append(errs, err)
		}
		r.mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		r.file = nil
	}
	if r.creator {
		if err := os.Remove(r.name); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
