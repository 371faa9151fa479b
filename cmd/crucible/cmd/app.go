// Package cmd provides the CLI commands for crucible.
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/content"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/edit"
	"github.com/crucible-dev/crucible/internal/embed"
	"github.com/crucible-dev/crucible/internal/lockregistry"
	"github.com/crucible-dev/crucible/internal/project"
	"github.com/crucible-dev/crucible/internal/validate"
	"github.com/crucible-dev/crucible/internal/vcs"
	"github.com/crucible-dev/crucible/internal/vectorindex"
)

// dataDirName is the project-root-relative directory holding crucible's
// own state: the metadata database and persisted vector indexes.
const dataDirName = ".crucible"

// app bundles every long-lived component a subcommand needs, wired from
// one project root's configuration. It owns the database connection and
// must be closed once the command is done with it.
type app struct {
	Root      string
	ProjectID string
	Config    *config.Config
	DB        *db.DB
	Locks     *lockregistry.Registry
	Content   *content.Store
	Pipeline  *validate.Pipeline
	VCS       edit.VCS
	Embedder  embed.Embedder
	Indexes   *diskIndexes
	Log       *slog.Logger
}

// openApp discovers or initializes the project rooted at root, loads its
// configuration, and constructs every component the CLI wires together.
func openApp(root string) (*app, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	info, err := project.Find(absRoot)
	if err != nil {
		info, err = project.Init(absRoot)
		if err != nil {
			return nil, fmt.Errorf("initialize project: %w", err)
		}
	}

	cfg, err := config.Load(info.Root)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dataDir := filepath.Join(info.Root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	database, err := db.Open(filepath.Join(dataDir, "metadata.db"), cfg.Performance.SQLiteCacheMB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	locks, err := lockregistry.New("crucible")
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("initialize lock registry: %w", err)
	}

	ctx := context.Background()
	err = database.Do(ctx, func(tx *sql.Tx) error {
		return db.UpsertProject(ctx, tx, db.Project{ID: info.ID.String(), RootPath: info.Root})
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("register project: %w", err)
	}

	var vcsCommitter edit.VCS
	if cfg.VCS.Enabled {
		vcsCommitter = vcs.New("crucible", "crucible@localhost")
	}

	timeout, err := time.ParseDuration(cfg.Embeddings.Timeout)
	if err != nil {
		timeout = embed.DefaultTimeout
	}
	embedder := embed.New(embed.HTTPConfig{
		Endpoint:  cfg.Embeddings.Endpoint,
		Model:     cfg.Embeddings.Model,
		BatchSize: cfg.Embeddings.BatchSize,
		Timeout:   timeout,
	})

	return &app{
		Root:      info.Root,
		ProjectID: info.ID.String(),
		Config:    cfg,
		DB:        database,
		Locks:     locks,
		Content:   content.New(info.Root),
		Pipeline: validate.New(validate.Stages{
			Compile:   cfg.Validators.Compile,
			Docstring: cfg.Validators.Docstring,
			Lint:      cfg.Validators.Lint,
			TypeCheck: cfg.Validators.TypeCheck,
		}, cfg.Validators.LinterCommand, cfg.Validators.TypeCheckerCommand),
		VCS:      vcsCommitter,
		Embedder: embedder,
		Indexes:  newDiskIndexes(filepath.Join(dataDir, "vectors"), embedder.Dimensions()),
		Log:      slog.Default(),
	}, nil
}

// Close releases every resource openApp acquired.
func (a *app) Close() error {
	_ = a.Indexes.CloseAll()
	_ = a.Embedder.Close()
	return a.DB.Close()
}

// Engine builds an edit.Engine bound to this app's project.
func (a *app) Engine() *edit.Engine {
	return &edit.Engine{
		ProjectRoot: a.Root,
		ProjectID:   a.ProjectID,
		DB:          a.DB,
		Content:     a.Content,
		Pipeline:    a.Pipeline,
		VCS:         a.VCS,
	}
}

// diskIndexes implements chunkworker.Indexes, keeping one vectorindex.Index
// per project in memory and persisting each to its own file under dir.
type diskIndexes struct {
	mu   sync.Mutex
	dir  string
	dims int
	idx  map[string]*vectorindex.Index
}

func newDiskIndexes(dir string, dims int) *diskIndexes {
	return &diskIndexes{dir: dir, dims: dims, idx: make(map[string]*vectorindex.Index)}
}

func (d *diskIndexes) path(projectID string) string {
	return filepath.Join(d.dir, projectID+".idx")
}

// Get returns the in-memory index for projectID, loading it from disk on
// first use or creating an empty one if no file exists yet.
func (d *diskIndexes) Get(projectID string) (*vectorindex.Index, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idx, ok := d.idx[projectID]; ok {
		return idx, nil
	}

	idx, err := vectorindex.Load(d.path(projectID))
	if err != nil {
		idx = vectorindex.New(vectorindex.DefaultConfig(d.dims))
	}
	d.idx[projectID] = idx
	return idx, nil
}

// Persist atomically writes projectID's index to disk.
func (d *diskIndexes) Persist(projectID string) error {
	d.mu.Lock()
	idx, ok := d.idx[projectID]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}
	return idx.Save(d.path(projectID))
}

// CloseAll closes every loaded index.
func (d *diskIndexes) CloseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, idx := range d.idx {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
