// Package scan discovers plugins on the per-format search paths and caches
// their descriptors: a TTL memory cache for repeat queries and a YAML file
// for cold starts. A directory watcher invalidates entries when a search
// path changes.
package scan

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Descriptor is one discovered plugin, enough to add it later.
type Descriptor struct {
	Type     string `yaml:"type"`
	Filename string `yaml:"filename"`
	Label    string `yaml:"label"`
	Name     string `yaml:"name"`
	ModTime  int64  `yaml:"mtime"`
}

// extensions per format; a match is a candidate, the format wrapper makes
// the final call when the plugin actually loads.
var formatExtensions = map[plugin.Type][]string{
	plugin.TypeLADSPA: {".so"},
	plugin.TypeDSSI:   {".so"},
	plugin.TypeLV2:    {".lv2"},
	plugin.TypeVST2:   {".so", ".dll", ".vst"},
	plugin.TypeVST3:   {".vst3"},
	plugin.TypeAU:     {".component"},
	plugin.TypeGIG:    {".gig"},
	plugin.TypeSF2:    {".sf2"},
	plugin.TypeSFZ:    {".sfz"},
}

const memCacheKey = "descriptors:"

// Scanner walks search paths and keeps the caches warm.
type Scanner struct {
	paths map[plugin.Type]string
	mem   *gocache.Cache
	file  string
}

// New builds a scanner over the engine's search paths. cacheFile may be
// empty to skip disk persistence.
func New(paths map[plugin.Type]string, ttl time.Duration, cacheFile string) *Scanner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Scanner{
		paths: paths,
		mem:   gocache.New(ttl, 2*ttl),
		file:  cacheFile,
	}
}

// Scan returns the descriptors for one format, from cache when warm.
func (s *Scanner) Scan(ptype plugin.Type) ([]Descriptor, error) {
	key := memCacheKey + ptype.String()
	if cached, ok := s.mem.Get(key); ok {
		return cached.([]Descriptor), nil
	}

	found, err := s.walk(ptype)
	if err != nil {
		return nil, err
	}
	s.mem.SetDefault(key, found)
	return found, nil
}

// ScanAll covers every configured format and persists the result.
func (s *Scanner) ScanAll() (map[string][]Descriptor, error) {
	out := map[string][]Descriptor{}
	for ptype := range s.paths {
		found, err := s.Scan(ptype)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			out[ptype.String()] = found
		}
	}
	if s.file != "" {
		if err := s.saveCacheFile(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Invalidate drops every cached entry; the watcher calls this on any
// search-path change.
func (s *Scanner) Invalidate() {
	s.mem.Flush()
}

func (s *Scanner) walk(ptype plugin.Type) ([]Descriptor, error) {
	exts := formatExtensions[ptype]
	if len(exts) == 0 {
		return nil, nil
	}
	var found []Descriptor
	for _, dir := range splitPathList(s.paths[ptype]) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Missing search directories are normal.
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if !hasAnyExt(name, exts) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			found = append(found, Descriptor{
				Type:     ptype.String(),
				Filename: filepath.Join(dir, name),
				Label:    strings.TrimSuffix(name, filepath.Ext(name)),
				Name:     strings.TrimSuffix(name, filepath.Ext(name)),
				ModTime:  info.ModTime().Unix(),
			})
		}
	}
	return found, nil
}

func splitPathList(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, string(os.PathListSeparator))
}

func hasAnyExt(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Dirs lists every existing search directory, for the watcher.
func (s *Scanner) Dirs() []string {
	var dirs []string
	for _, list := range s.paths {
		for _, dir := range splitPathList(list) {
			if st, err := os.Stat(dir); err == nil && st.IsDir() {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs
}

// loadError wraps a cache file or watcher problem.
func loadError(err error, path string) error {
	return errors.New(err).
		Component("scan").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
