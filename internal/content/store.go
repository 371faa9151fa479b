// Package content implements the content-addressed backup store: a
// per-project "old_code" directory holding one file per backup plus an
// append-only pipe-delimited index, guarded by a file lock so
// concurrent backups never interleave writes to the index.
package content

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// DirName is the backup directory name under a project root.
const DirName = "old_code"

// IndexFileName is the append-only backup index file name.
const IndexFileName = "index.txt"

const indexTimeFormat = "2006-01-02T15-04-05"

// Record is one row of the backup index: a prior version of a file.
type Record struct {
	ID       uuid.UUID
	Path     string // project-relative
	Time     time.Time
	Command  string
	Related  []string
	Comment  string
}

// Store is the content-addressed backup store for one project root.
type Store struct {
	root string
	lock *flock.Flock
}

// New returns a Store rooted at projectRoot. It does not create any
// files until the first write.
func New(projectRoot string) *Store {
	return &Store{
		root: projectRoot,
		lock: flock.New(filepath.Join(projectRoot, DirName, ".index.lock")),
	}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, DirName)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir(), IndexFileName)
}

// backupFileName encodes path with separators substituted so that two
// distinct project-relative paths never collide in the flat backup
// directory.
func backupFileName(path string, id uuid.UUID) string {
	encoded := strings.ReplaceAll(path, string(filepath.Separator), "_")
	encoded = strings.ReplaceAll(encoded, "/", "_")
	return fmt.Sprintf("%s-%s", encoded, id.String())
}

// Create backs up the current content of relPath (project-relative),
// allocating a fresh identifier and appending an index row. If the
// backup file cannot be written, no index row is appended (idempotent
// failure handling).
func (s *Store) Create(relPath string, content []byte, command string, related []string, comment string) (uuid.UUID, error) {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("create backup directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return uuid.Nil, fmt.Errorf("acquire backup index lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	id := uuid.New()
	backupPath := filepath.Join(s.dir(), backupFileName(relPath, id))
	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return uuid.Nil, fmt.Errorf("write backup file: %w", err)
	}

	rec := Record{ID: id, Path: relPath, Time: currentTime(), Command: command, Related: related, Comment: comment}
	if err := s.appendIndexRow(rec); err != nil {
		_ = os.Remove(backupPath)
		return uuid.Nil, fmt.Errorf("append backup index row: %w", err)
	}

	return id, nil
}

// currentTime is a seam so tests can stamp deterministic records;
// production code always calls time.Now.
var currentTime = time.Now

func (s *Store) appendIndexRow(r Record) error {
	f, err := os.OpenFile(s.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s|%s|%s|%s|%s|%s\n",
		r.ID.String(), r.Path, r.Time.Format(indexTimeFormat), r.Command,
		strings.Join(r.Related, ","), r.Comment)
	_, err = f.WriteString(line)
	return err
}

// readIndex returns every non-comment, non-empty row in the index file.
func (s *Store) readIndex() ([]Record, error) {
	f, err := os.Open(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open backup index: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseIndexLine(line)
		if err != nil {
			continue // tolerate malformed lines rather than abort listing
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan backup index: %w", err)
	}
	return records, nil
}

func parseIndexLine(line string) (Record, error) {
	fields := strings.SplitN(line, "|", 6)
	if len(fields) != 6 {
		return Record{}, fmt.Errorf("malformed index line: %q", line)
	}

	id, err := uuid.Parse(fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("parse backup id: %w", err)
	}

	t, err := time.Parse(indexTimeFormat, fields[2])
	if err != nil {
		return Record{}, fmt.Errorf("parse backup timestamp: %w", err)
	}

	var related []string
	if fields[4] != "" {
		related = strings.Split(fields[4], ",")
	}

	return Record{
		ID:      id,
		Path:    fields[1],
		Time:    t,
		Command: fields[3],
		Related: related,
		Comment: fields[5],
	}, nil
}

// PathSummary is the latest backup metadata for one project-relative
// path.
type PathSummary struct {
	Path   string
	Latest Record
}

// ListPaths returns the set of distinct paths with any backup, each
// with its latest metadata.
func (s *Store) ListPaths() ([]PathSummary, error) {
	records, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	latest := make(map[string]Record)
	for _, r := range records {
		if existing, ok := latest[r.Path]; !ok || r.Time.After(existing.Time) {
			latest[r.Path] = r
		}
	}

	out := make([]PathSummary, 0, len(latest))
	for path, rec := range latest {
		out = append(out, PathSummary{Path: path, Latest: rec})
	}
	return out, nil
}

// Version is one entry returned by ListVersions: a backup record plus
// size and line count derived from the backup file on disk.
type Version struct {
	Record
	SizeBytes int64
	LineCount int
}

// ListVersions returns every backup of relPath, newest first.
func (s *Store) ListVersions(relPath string) ([]Version, error) {
	records, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	var matches []Record
	for _, r := range records {
		if r.Path == relPath {
			matches = append(matches, r)
		}
	}
	sortRecordsNewestFirst(matches)

	out := make([]Version, 0, len(matches))
	for _, r := range matches {
		v := Version{Record: r}
		backupPath := filepath.Join(s.dir(), backupFileName(relPath, r.ID))
		if info, err := os.Stat(backupPath); err == nil {
			v.SizeBytes = info.Size()
			v.LineCount = countLines(backupPath)
		}
		out = append(out, v)
	}
	return out, nil
}

func sortRecordsNewestFirst(records []Record) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].Time.After(records[j-1].Time); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count
}

// Restore overwrites projectRoot/relPath with the contents of the
// backup identified by id, or the newest backup of relPath if id is
// uuid.Nil. Parent directories are created as needed.
func (s *Store) Restore(relPath string, id uuid.UUID) (uuid.UUID, error) {
	if id == uuid.Nil {
		versions, err := s.ListVersions(relPath)
		if err != nil {
			return uuid.Nil, err
		}
		if len(versions) == 0 {
			return uuid.Nil, fmt.Errorf("%w: no backups for %s", ErrNoBackup, relPath)
		}
		id = versions[0].ID
	}

	backupPath := filepath.Join(s.dir(), backupFileName(relPath, id))
	content, err := os.ReadFile(backupPath)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read backup file: %w", err)
	}

	targetPath := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("create target directory: %w", err)
	}
	if err := os.WriteFile(targetPath, content, 0o644); err != nil {
		return uuid.Nil, fmt.Errorf("restore file: %w", err)
	}

	return id, nil
}

// DeleteOne permanently removes one backup file and its index row.
func (s *Store) DeleteOne(relPath string, id uuid.UUID) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire backup index lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	records, err := s.readIndex()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.Path == relPath && r.ID == id {
			continue
		}
		kept = append(kept, r)
	}

	if err := s.rewriteIndex(kept); err != nil {
		return err
	}

	backupPath := filepath.Join(s.dir(), backupFileName(relPath, id))
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove backup file: %w", err)
	}
	return nil
}

// ClearAll permanently removes every backup file and clears the index.
func (s *Store) ClearAll() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire backup index lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	records, err := s.readIndex()
	if err != nil {
		return err
	}

	for _, r := range records {
		backupPath := filepath.Join(s.dir(), backupFileName(r.Path, r.ID))
		_ = os.Remove(backupPath)
	}

	return s.rewriteIndex(nil)
}

func (s *Store) rewriteIndex(records []Record) error {
	tmp, err := os.CreateTemp(s.dir(), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()

	for _, r := range records {
		line := fmt.Sprintf("%s|%s|%s|%s|%s|%s\n",
			r.ID.String(), r.Path, r.Time.Format(indexTimeFormat), r.Command,
			strings.Join(r.Related, ","), r.Comment)
		if _, err := tmp.WriteString(line); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write temp index file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp index file: %w", err)
	}

	return os.Rename(tmpPath, s.indexPath())
}
