package catalog

import (
	"sync"

	"github.com/totegamma/humayat"
)

// SearchView holds a query and the photos matching it. Results are recomputed
// only when the query or the catalog has changed since the last read.
type SearchView struct {
	catalog *Catalog

	mu      sync.Mutex
	query   string
	version uint64
	valid   bool
	results []humayat.Image
}

func (c *Catalog) NewSearchView() *SearchView {
	return &SearchView{catalog: c}
}

func (v *SearchView) SetQuery(query string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if query != v.query {
		v.query = query
		v.valid = false
	}
}

func (v *SearchView) Query() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

func (v *SearchView) Results() []humayat.Image {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.valid || v.catalog.Version() != v.version {
		v.results, v.version = v.catalog.search(v.query)
		v.valid = true
	}

	out := make([]humayat.Image, len(v.results))
	copy(out, v.results)
	return out
}
