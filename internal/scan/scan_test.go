package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackbay/rackbay/internal/plugin"
)

func makeFakePlugins(t *testing.T) (string, map[plugin.Type]string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"reverb.so", "chorus.so", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644))
	}
	sf2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sf2, "piano.sf2"), []byte{0}, 0o644))
	return dir, map[plugin.Type]string{
		plugin.TypeLADSPA: dir,
		plugin.TypeSF2:    sf2,
	}
}

func TestScanFindsByExtension(t *testing.T) {
	_, paths := makeFakePlugins(t)
	s := New(paths, time.Minute, "")

	found, err := s.Scan(plugin.TypeLADSPA)
	require.NoError(t, err)
	require.Len(t, found, 2)
	labels := []string{found[0].Label, found[1].Label}
	assert.ElementsMatch(t, []string{"reverb", "chorus"}, labels)

	sf2, err := s.Scan(plugin.TypeSF2)
	require.NoError(t, err)
	require.Len(t, sf2, 1)
	assert.Equal(t, "piano", sf2[0].Label)
}

func TestScanUsesCacheUntilInvalidated(t *testing.T) {
	dir, paths := makeFakePlugins(t)
	s := New(paths, time.Minute, "")

	first, err := s.Scan(plugin.TypeLADSPA)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gate.so"), []byte{0}, 0o644))

	cached, err := s.Scan(plugin.TypeLADSPA)
	require.NoError(t, err)
	assert.Len(t, cached, 2, "cache must answer until invalidated")

	s.Invalidate()
	fresh, err := s.Scan(plugin.TypeLADSPA)
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestCacheFileRoundTrip(t *testing.T) {
	_, paths := makeFakePlugins(t)
	cacheFile := filepath.Join(t.TempDir(), "cache.yaml")

	s := New(paths, time.Minute, cacheFile)
	all, err := s.ScanAll()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	// A fresh scanner with empty paths must answer from the file.
	cold := New(map[plugin.Type]string{}, time.Minute, cacheFile)
	require.NoError(t, cold.LoadCacheFile())
	found, err := cold.Scan(plugin.TypeLADSPA)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestMissingDirsAreNotErrors(t *testing.T) {
	s := New(map[plugin.Type]string{plugin.TypeVST2: "/does/not/exist"}, time.Minute, "")
	found, err := s.Scan(plugin.TypeVST2)
	require.NoError(t, err)
	assert.Empty(t, found)
}
