// Package bleve adapts pkg/searchindex.BulkIndex onto an embedded bleve
// index, used for local/offline runs and the test suite in place of the
// production Meilisearch backend. Adapted from the teacher's
// search-adapter pattern of one bleve.Index per logical collection,
// opened lazily and cached by name.
package bleve

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

// Adapter is a searchindex.BulkIndex backed by one bleve.Index per search
// index name, opened under basePath on first use.
type Adapter struct {
	basePath string
	log      hclog.Logger

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// New constructs an Adapter rooted at basePath.
func New(basePath string, log hclog.Logger) *Adapter {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Adapter{basePath: basePath, log: log.Named("searchindex.bleve"), indexes: map[string]bleve.Index{}}
}

func (a *Adapter) indexFor(name string) (bleve.Index, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx, ok := a.indexes[name]; ok {
		return idx, nil
	}

	path := filepath.Join(a.basePath, name)
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %q: %w", name, err)
	}
	a.indexes[name] = idx
	return idx, nil
}

// exists reports whether a document with the given id is already present,
// used to enforce "parent created only on first observation" (§4.8).
func (a *Adapter) exists(idx bleve.Index, id string) bool {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Size = 1
	res, err := idx.Search(req)
	return err == nil && res.Total > 0
}

// Bulk applies updates, grouped into one bleve.Batch per index name, so
// the batch commits atomically per index. Parent documents are skipped
// when already present; child documents are always indexed.
func (a *Adapter) Bulk(ctx context.Context, updates []searchindex.Update) error {
	batches := map[string]*bleve.Batch{}
	indexes := map[string]bleve.Index{}

	for _, u := range updates {
		idx, err := a.indexFor(u.Index)
		if err != nil {
			return err
		}
		indexes[u.Index] = idx

		if !u.DocAsUpsert && a.exists(idx, u.DocID) {
			continue
		}

		doc := make(map[string]interface{}, len(u.Doc)+1)
		for k, v := range u.Doc {
			doc[k] = v
		}
		if u.Routing != "" {
			doc["parent_id"] = u.Routing
		}

		b, ok := batches[u.Index]
		if !ok {
			b = idx.NewBatch()
			batches[u.Index] = b
		}
		if err := b.Index(u.DocID, doc); err != nil {
			return fmt.Errorf("stage bleve doc %s/%s: %w", u.Index, u.DocID, err)
		}
	}

	for name, b := range batches {
		if err := indexes[name].Batch(b); err != nil {
			return fmt.Errorf("flush bleve batch %q: %w", name, err)
		}
	}
	return nil
}

// Close releases every opened bleve index.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for name, idx := range a.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close bleve index %q: %w", name, err)
		}
	}
	return firstErr
}
