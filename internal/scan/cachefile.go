package scan

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// cacheDoc is the on-disk shape of a full scan.
type cacheDoc struct {
	Version     int                     `yaml:"version"`
	Descriptors map[string][]Descriptor `yaml:"descriptors"`
}

func (s *Scanner) saveCacheFile(all map[string][]Descriptor) error {
	doc := cacheDoc{Version: 1, Descriptors: all}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return loadError(err, s.file)
	}
	if dir := filepath.Dir(s.file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return loadError(err, s.file)
		}
	}
	if err := os.WriteFile(s.file, data, 0o644); err != nil {
		return loadError(err, s.file)
	}
	return nil
}

// LoadCacheFile warms the memory cache from a previous run's scan.
func (s *Scanner) LoadCacheFile() error {
	if s.file == "" {
		return nil
	}
	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return loadError(err, s.file)
	}
	var doc cacheDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return loadError(err, s.file)
	}
	for ptypeName, descriptors := range doc.Descriptors {
		s.mem.SetDefault(memCacheKey+ptypeName, descriptors)
	}
	return nil
}
