package fetchcache

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"xiaoer/internal/errs"
)

var ErrUnknownEndpoint = errors.New("unknown endpoint key")

// CatalogEndpoint is one configured remote source: where to fetch it and
// how long its payload stays fresh.
type CatalogEndpoint struct {
	URL        string `toml:"url"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

type catalogFile struct {
	Version   int                        `toml:"version"`
	Endpoints map[string]CatalogEndpoint `toml:"endpoints"`
}

// Catalog maps endpoint keys to their source descriptors. It is immutable
// after load.
type Catalog struct {
	endpoints map[string]CatalogEndpoint
}

func NewCatalog(endpoints map[string]CatalogEndpoint) *Catalog {
	cloned := make(map[string]CatalogEndpoint, len(endpoints))
	for key, entry := range endpoints {
		cloned[key] = entry
	}
	return &Catalog{endpoints: cloned}
}

func LoadCatalog(catalogFilePath string) (*Catalog, error) {
	path := strings.TrimSpace(catalogFilePath)
	if path == "" {
		return nil, errors.New("catalog file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read catalog file %q", path)
	}

	var file catalogFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrapf(err, "parse catalog file %q", path)
	}

	for key, entry := range file.Endpoints {
		if strings.TrimSpace(entry.URL) == "" {
			return nil, fmt.Errorf("endpoint %q is missing url", key)
		}
		if entry.TTLSeconds < 0 {
			return nil, fmt.Errorf("endpoint %q has negative ttl_seconds", key)
		}
	}

	return NewCatalog(file.Endpoints), nil
}

func (c *Catalog) Lookup(key string) (CatalogEndpoint, bool) {
	entry, ok := c.endpoints[strings.TrimSpace(key)]
	return entry, ok
}

func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.endpoints))
	for key := range c.endpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (c *Catalog) Len() int {
	return len(c.endpoints)
}
