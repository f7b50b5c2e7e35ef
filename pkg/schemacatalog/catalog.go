// Package schemacatalog maintains a bare mirror of the schemas Git
// repository and resolves (tag, path) pairs to schema bytes, with a
// per-tag memoized compiled-schema cache (§4.3).
package schemacatalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// refreshInterval matches §4.3's scheduled fetch-with-prune cadence.
const refreshInterval = 12 * time.Hour

// Config configures a Catalog.
type Config struct {
	RepoURL   string
	LocalPath string
}

// OfflineFallback snapshots and restores the local bare mirror to/from an
// out-of-process store, used when the Git remote is unreachable (Design
// Notes §9, "ship an offline fallback for CI").
type OfflineFallback interface {
	Restore(ctx context.Context, destDir string) error
	Snapshot(ctx context.Context, srcDir string) error
}

// Catalog resolves versioned JSON-Schema files out of a Git-mirrored
// schema repository.
type Catalog struct {
	localPath string
	log       hclog.Logger
	fallback  OfflineFallback

	repoMu sync.Mutex
	repo   *git.Repository

	cacheMu  sync.Mutex
	compiled map[string]*jsonschema.Schema

	ready chan struct{}
}

// Open clones the bare mirror at cfg.LocalPath if it does not already
// exist, or opens the existing one, matching §4.3's idempotent-clone
// requirement.
func Open(cfg Config, log hclog.Logger, fallback OfflineFallback) (*Catalog, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	c := &Catalog{
		localPath: cfg.LocalPath,
		log:       log.Named("schemacatalog"),
		fallback:  fallback,
		compiled:  map[string]*jsonschema.Schema{},
		ready:     make(chan struct{}),
	}

	if _, err := os.Stat(filepath.Join(cfg.LocalPath, "HEAD")); err == nil {
		repo, err := git.PlainOpen(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open existing bare mirror: %w", err)
		}
		c.repo = repo
		return c, nil
	}

	repo, err := git.PlainClone(cfg.LocalPath, true, &git.CloneOptions{URL: cfg.RepoURL})
	if err != nil {
		return nil, fmt.Errorf("clone bare mirror: %w", err)
	}
	c.repo = repo
	return c, nil
}

// StartRefresh runs the initial fetch (falling back to the offline bundle
// on failure) and then refreshes every 12h until ctx is cancelled. The
// loader must wait on Ready() before consuming any message.
func (c *Catalog) StartRefresh(ctx context.Context) {
	go func() {
		if err := c.fetch(ctx); err != nil {
			c.log.Warn("initial schema fetch failed", "error", err)
			if c.fallback != nil {
				if ferr := c.fallback.Restore(ctx, c.localPath); ferr != nil {
					c.log.Error("offline fallback restore failed", "error", ferr)
				} else if repo, rerr := git.PlainOpen(c.localPath); rerr == nil {
					c.repoMu.Lock()
					c.repo = repo
					c.repoMu.Unlock()
				}
			}
		}
		close(c.ready)

		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.fetch(ctx); err != nil {
					c.log.Warn("scheduled schema fetch failed", "error", err)
				}
			}
		}
	}()
}

// Ready returns a channel closed once the initial fetch (or fallback
// restore) has completed.
func (c *Catalog) Ready() <-chan struct{} {
	return c.ready
}

func (c *Catalog) fetch(ctx context.Context) error {
	c.repoMu.Lock()
	repo := c.repo
	c.repoMu.Unlock()

	remote, err := repo.Remote("origin")
	if err != nil {
		return err
	}
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{"+refs/*:refs/*"},
		Prune:    true,
		Force:    true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return err
	}
	if c.fallback != nil {
		if serr := c.fallback.Snapshot(ctx, c.localPath); serr != nil {
			c.log.Warn("offline snapshot upload failed", "error", serr)
		}
	}
	return nil
}

// GetFile resolves refs/tags/<tag>:<path> to file bytes.
func (c *Catalog) GetFile(tag, path string) ([]byte, error) {
	c.repoMu.Lock()
	repo := c.repo
	c.repoMu.Unlock()

	ref, err := repo.Reference(plumbing.NewTagReferenceName(tag), true)
	if err != nil {
		return nil, fmt.Errorf("resolve tag %q: %w", tag, err)
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		tagObj, terr := repo.TagObject(ref.Hash())
		if terr != nil {
			return nil, fmt.Errorf("resolve tag object %q: %w", tag, err)
		}
		commit, err = tagObj.Commit()
		if err != nil {
			return nil, fmt.Errorf("resolve annotated tag commit %q: %w", tag, err)
		}
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q at tag %q: %w", path, tag, err)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func yamlToJSONDoc(raw []byte) (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema YAML: %w", err)
	}
	return doc, nil
}

// tagLoader resolves $ref URLs within a single pinned tag back through the
// catalog, so sibling-file $refs keep working without materializing the
// whole tree to disk.
type tagLoader struct {
	catalog *Catalog
	tag     string
}

func (l *tagLoader) Load(url string) (interface{}, error) {
	path := strings.TrimPrefix(url, "kaijs://"+l.tag+"/")
	raw, err := l.catalog.GetFile(l.tag, path)
	if err != nil {
		return nil, err
	}
	return yamlToJSONDoc(raw)
}

// Compile compiles and memoizes the draft-07 schema at (tag, entryPath).
// Subsequent calls for the same (tag, entryPath) return the cached schema.
func (c *Catalog) Compile(tag, entryPath string) (*jsonschema.Schema, error) {
	key := tag + "|" + entryPath

	c.cacheMu.Lock()
	if s, ok := c.compiled[key]; ok {
		c.cacheMu.Unlock()
		return s, nil
	}
	c.cacheMu.Unlock()

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.UseLoader(&tagLoader{catalog: c, tag: tag})

	url := "kaijs://" + tag + "/" + entryPath
	raw, err := c.GetFile(tag, entryPath)
	if err != nil {
		return nil, err
	}
	doc, err := yamlToJSONDoc(raw)
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s@%s: %w", entryPath, tag, err)
	}

	c.cacheMu.Lock()
	c.compiled[key] = schema
	c.cacheMu.Unlock()
	return schema, nil
}
