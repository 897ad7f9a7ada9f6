package archive

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog serves the read-only, domain-partitioned practice video tree. The
// tree is populated out of band and never mutated at runtime.
type Catalog struct {
	root string
}

func NewCatalog(root string) *Catalog {
	return &Catalog{root: root}
}

// List returns URL paths for every video under the domain's folder, sorted
// by file name. A missing or empty domain folder yields an empty slice, not
// an error.
func (c *Catalog) List(domain string) ([]string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" || domain != filepath.Base(domain) || strings.HasPrefix(domain, ".") {
		// never follow a selector outside the catalog root
		return []string{}, nil
	}

	entries, err := os.ReadDir(filepath.Join(c.root, domain))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		urls = append(urls, "/videos/"+url.PathEscape(domain)+"/"+url.PathEscape(name))
	}

	sort.Strings(urls)
	return urls, nil
}
