// Package chunkworker turns indexed files into embedded, searchable
// chunks: it extracts one docstring chunk per module, class, method,
// and function, requests vectors for whatever chunks still lack one,
// and records the result back onto the database rows. Chunking and
// embedding run as two separate passes over a project's backlog so
// that neither holds a database transaction across the network call
// to the embedding service.
package chunkworker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crucible-dev/crucible/internal/cst"
	"github.com/crucible-dev/crucible/internal/db"
	"github.com/crucible-dev/crucible/internal/embed"
	"github.com/crucible-dev/crucible/internal/vectorindex"
)

// DefaultFileBatchSize bounds how many files' worth of chunks a single
// chunking pass extracts for one project before moving to the next.
const DefaultFileBatchSize = 50

// DefaultProjectConcurrency bounds how many projects are worked in
// parallel.
const DefaultProjectConcurrency = 4

// Options configures a Worker.
type Options struct {
	FileBatchSize      int
	ProjectConcurrency int
}

func (o Options) withDefaults() Options {
	if o.FileBatchSize <= 0 {
		o.FileBatchSize = DefaultFileBatchSize
	}
	if o.ProjectConcurrency <= 0 {
		o.ProjectConcurrency = DefaultProjectConcurrency
	}
	return o
}

// Indexes provides the per-project vector index a Worker writes
// embeddings into. Implementations are expected to load the index
// lazily on first use and persist it after each batch.
type Indexes interface {
	// Get returns the vector index for a project, creating an empty
	// one if none exists on disk yet.
	Get(projectID string) (*vectorindex.Index, error)
	// Persist saves a project's index to disk.
	Persist(projectID string) error
}

// Worker runs the chunk-and-embed backlog across projects.
type Worker struct {
	DB      *db.DB
	Embed   embed.Embedder
	Indexes Indexes
	Log     *slog.Logger
	Options Options
}

// New returns a Worker with defaulted options.
func New(d *db.DB, embedder embed.Embedder, indexes Indexes, log *slog.Logger, opts Options) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{DB: d, Embed: embedder, Indexes: indexes, Log: log, Options: opts.withDefaults()}
}

// RunOnce processes every project with backlog once: chunking first,
// then embedding, each project handled independently so one project's
// failure does not block another's.
func (w *Worker) RunOnce(ctx context.Context) error {
	backlog, err := w.DB.ProjectsWithBacklog(ctx)
	if err != nil {
		return fmt.Errorf("list chunk backlog: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.Options.ProjectConcurrency)

	for _, b := range backlog {
		projectID := b.ProjectID
		g.Go(func() error {
			if err := w.chunkProject(gctx, projectID); err != nil {
				w.Log.Error("chunk project failed", slog.String("project_id", projectID), slog.String("error", err.Error()))
			}
			if err := w.embedProject(gctx, projectID); err != nil {
				w.Log.Error("embed project failed", slog.String("project_id", projectID), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

// chunkProject extracts chunks for every file in projectID still
// flagged needs_chunking, one database transaction per file.
func (w *Worker) chunkProject(ctx context.Context, projectID string) error {
	files, err := w.DB.FilesNeedingChunking(ctx, projectID, w.Options.FileBatchSize)
	if err != nil {
		return fmt.Errorf("list files needing chunking: %w", err)
	}

	for _, f := range files {
		if err := w.chunkFile(ctx, f); err != nil {
			w.Log.Error("chunk file failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
	}
	return nil
}

func (w *Worker) chunkFile(ctx context.Context, f db.File) error {
	project, err := w.DB.GetProject(ctx, f.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", f.ProjectID, err)
	}

	tree, err := w.parseFile(ctx, filepath.Join(project.RootPath, f.Path))
	if err != nil {
		return err
	}

	links, err := w.entityLinks(ctx, f.ID)
	if err != nil {
		return err
	}

	chunks := extractChunks(f, tree, links)

	return w.DB.Do(ctx, func(tx *sql.Tx) error {
		for _, c := range chunks {
			if _, err := db.InsertChunk(ctx, tx, c); err != nil {
				return err
			}
		}
		return db.SetNeedsChunking(ctx, tx, f.ID, false)
	})
}

// entityLinks maps source line numbers, as already recorded by the
// indexer, back to the class/method/function row each line belongs
// to, so a chunk extracted straight from the CST can still carry the
// foreign key of its owning entity.
type entityLinks struct {
	classByLine    map[int]int64
	methodByLine   map[int]int64
	functionByLine map[int]int64
}

func (w *Worker) entityLinks(ctx context.Context, fileID int64) (entityLinks, error) {
	links := entityLinks{
		classByLine:    make(map[int]int64),
		methodByLine:   make(map[int]int64),
		functionByLine: make(map[int]int64),
	}

	classes, err := w.DB.ListClasses(ctx, fileID)
	if err != nil {
		return links, fmt.Errorf("list classes for file %d: %w", fileID, err)
	}
	for _, c := range classes {
		links.classByLine[c.Line] = c.ID

		methods, err := w.DB.ListMethods(ctx, c.ID)
		if err != nil {
			return links, fmt.Errorf("list methods for class %d: %w", c.ID, err)
		}
		for _, m := range methods {
			links.methodByLine[m.Line] = m.ID
		}
	}

	functions, err := w.DB.ListFunctions(ctx, fileID)
	if err != nil {
		return links, fmt.Errorf("list functions for file %d: %w", fileID, err)
	}
	for _, fn := range functions {
		links.functionByLine[fn.Line] = fn.ID
	}
	return links, nil
}

func (w *Worker) parseFile(ctx context.Context, absPath string) (*cst.Tree, error) {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}

	parser := cst.NewParser()
	defer parser.Close()
	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	return tree, nil
}

// extractChunks produces one chunk per documented module, class,
// method, and function: a module chunk when the file itself has a
// leading docstring, and one chunk per entity whose body has one.
// Entities without a docstring are skipped — there is no useful text
// to embed.
func extractChunks(f db.File, tree *cst.Tree, links entityLinks) []db.Chunk {
	var chunks []db.Chunk
	ordinal := 0

	if doc := cst.Docstring(tree.Root, tree.Source); doc != nil {
		chunks = append(chunks, newChunk(f, db.ChunkKindModule, doc.Content(tree.Source), ordinal, 0, nil, nil, nil))
		ordinal++
	}

	for _, entity := range cst.Entities(tree) {
		doc := cst.Docstring(entity.Body, tree.Source)
		if doc == nil {
			continue
		}
		text := doc.Content(tree.Source)
		line := entity.Node.StartLine()

		switch entity.Kind {
		case "class":
			chunks = append(chunks, newChunk(f, db.ChunkKindClass, text, ordinal, line, idPtr(links.classByLine, line), nil, nil))
		case "method":
			chunks = append(chunks, newChunk(f, db.ChunkKindMethod, text, ordinal, line, nil, nil, idPtr(links.methodByLine, line)))
		case "function":
			chunks = append(chunks, newChunk(f, db.ChunkKindFunction, text, ordinal, line, nil, idPtr(links.functionByLine, line), nil))
		}
		ordinal++
	}
	return chunks
}

func idPtr(byLine map[int]int64, line int) *int64 {
	if id, ok := byLine[line]; ok {
		return &id
	}
	return nil
}

func newChunk(f db.File, kind db.ChunkKind, text string, ordinal, line int, classID, functionID, methodID *int64) db.Chunk {
	return db.Chunk{
		ChunkUUID:  uuid.NewString(),
		FileID:     f.ID,
		ProjectID:  f.ProjectID,
		Kind:       kind,
		Text:       text,
		Ordinal:    ordinal,
		ClassID:    classID,
		FunctionID: functionID,
		MethodID:   methodID,
		Line:       line,
		ASTNodeKind: string(kind),
	}
}

// embedProject requests vectors for every chunk in projectID still
// lacking one, writing each batch's results back in its own
// transaction so the embedding request itself never runs inside one.
func (w *Worker) embedProject(ctx context.Context, projectID string) error {
	chunks, err := w.DB.UnvectorizedChunks(ctx, projectID, DefaultFileBatchSize)
	if err != nil {
		return fmt.Errorf("list unvectorized chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	results, err := w.Embed.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(results) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d results for %d chunks", len(results), len(chunks))
	}

	idx, err := w.Indexes.Get(projectID)
	if err != nil {
		return fmt.Errorf("load vector index for project %s: %w", projectID, err)
	}

	err = w.DB.Do(ctx, func(tx *sql.Tx) error {
		for i, r := range results {
			if r.Model == "" {
				// Rejected by the embedding service; leave the chunk
				// unvectorized so a later pass retries it.
				w.Log.Warn("chunk embedding rejected", slog.Int64("chunk_id", chunks[i].ID))
				continue
			}
			vectorID, err := idx.Add(ctx, r.Vector)
			if err != nil {
				return fmt.Errorf("add vector for chunk %d: %w", chunks[i].ID, err)
			}
			if err := db.SetChunkVector(ctx, tx, chunks[i].ID, vectorID, r.Model); err != nil {
				return err
			}
			if err := db.InsertVectorIndexEntry(ctx, tx, db.VectorIndexEntry{
				ProjectID:      projectID,
				EntityKind:     "chunk",
				EntityID:       chunks[i].ID,
				VectorID:       vectorID,
				VectorDim:      len(r.Vector),
				EmbeddingModel: r.Model,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return w.Indexes.Persist(projectID)
}
