package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const defaultBaseDir = ".chatconn"

// Paths holds resolved filesystem paths for chatconn data.
type Paths struct {
	Base   string // ~/.chatconn
	Config string // ~/.chatconn/config.yaml
	Data   string // ~/.chatconn/data
	Cache  string // ~/.chatconn/data/cache
	Logs   string // ~/.chatconn/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If CHATCONN_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CHATCONN_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	data := filepath.Join(base, "data")
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   data,
		Cache:  filepath.Join(data, "cache"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// DatabasePath returns the sqlite file to use for cfg.
func (p Paths) DatabasePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "chatconn.db")
}

// CachePath returns the badger directory to use for cfg.
func (p Paths) CachePath(cfg CacheConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return p.Cache
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// reservedSegments may not appear in a config path.
var reservedSegments = []string{"__proto__", "prototype", "constructor"}

// ParseConfigPath splits a dotted key such as "cache.ttlSeconds" into its
// segments. Empty and reserved segments are rejected.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	segments := strings.Split(raw, ".")
	if slices.Contains(segments, "") {
		return nil, &ConfigError{Message: fmt.Sprintf("config path %q has an empty segment", raw)}
	}
	for _, seg := range segments {
		if slices.Contains(reservedSegments, seg) {
			return nil, &ConfigError{Message: fmt.Sprintf("config path %q uses reserved segment %q", raw, seg)}
		}
	}
	return segments, nil
}

// parentOf returns the map holding the last segment of path. With create,
// missing or non-map intermediates are replaced by empty maps.
func parentOf(root map[string]any, path []string, create bool) (map[string]any, bool) {
	node := root
	for _, seg := range path[:len(path)-1] {
		child, isMap := node[seg].(map[string]any)
		if !isMap {
			if !create {
				return nil, false
			}
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	return node, true
}

// GetValueAtPath returns the value stored under path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return root, true
	}
	parent, ok := parentOf(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value under path, creating intermediate maps.
func SetValueAtPath(root map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	parent, _ := parentOf(root, path, true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value under path and reports whether it
// existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	parent, ok := parentOf(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}
