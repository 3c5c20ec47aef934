//go:build linux

package shmem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionCreateAttachRoundTrip(t *testing.T) {
	suffix := NewSuffix()
	require.Len(t, suffix, 6)

	creator, err := Create(RoleNonRTClient, suffix, 4096)
	require.NoError(t, err)
	defer creator.Close()

	attached, err := Attach(RoleNonRTClient, suffix)
	require.NoError(t, err)
	defer attached.Close()

	creator.Bytes()[100] = 0xAB
	assert.Equal(t, byte(0xAB), attached.Bytes()[100])

	attached.Bytes()[200] = 0xCD
	assert.Equal(t, byte(0xCD), creator.Bytes()[200])
}

func TestRegionResizeAndRemap(t *testing.T) {
	suffix := NewSuffix()
	creator, err := Create(RoleAudioPool, suffix, 1024)
	require.NoError(t, err)
	defer creator.Close()

	attached, err := Attach(RoleAudioPool, suffix)
	require.NoError(t, err)
	defer attached.Close()

	require.NoError(t, creator.Resize(8192))
	require.NoError(t, attached.Remap())
	assert.Len(t, attached.Bytes(), 8192)

	creator.Bytes()[8000] = 0x42
	assert.Equal(t, byte(0x42), attached.Bytes()[8000])
}

func TestSemPostWait(t *testing.T) {
	mem := make([]byte, SemSize)
	s := SemInitAt(mem, 0)

	assert.False(t, s.TryWait())
	s.Post()
	assert.True(t, s.TryWait())
	assert.False(t, s.Wait(10*time.Millisecond))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		s.Post()
	}()
	assert.True(t, s.Wait(2*time.Second))
	wg.Wait()
}

func TestSemCountsPosts(t *testing.T) {
	mem := make([]byte, SemSize)
	s := SemInitAt(mem, 0)

	s.Post()
	s.Post()
	s.Post()
	assert.True(t, s.Wait(0))
	assert.True(t, s.Wait(0))
	assert.True(t, s.Wait(0))
	assert.False(t, s.Wait(0))
}

func TestAudioPoolSlots(t *testing.T) {
	pool, err := CreateAudioPool(NewSuffix(), 4, 128)
	require.NoError(t, err)
	defer pool.Close()

	assert.Len(t, pool.Floats(), 4*128)
	for i := range uint32(4) {
		slot := pool.Slot(i)
		require.Len(t, slot, 128)
		slot[0] = float32(i) + 0.5
	}
	f := pool.Floats()
	for i := range uint32(4) {
		assert.Equal(t, float32(i)+0.5, f[i*128])
	}
}

func TestAudioPoolMinimumOneFloat(t *testing.T) {
	pool, err := CreateAudioPool(NewSuffix(), 0, 0)
	require.NoError(t, err)
	defer pool.Close()
	assert.Len(t, pool.Floats(), 1)
}
