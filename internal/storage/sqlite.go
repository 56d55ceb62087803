package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/retry"
	"github.com/dshills/kaze/pkg/types"
)

// Options tunes connection behavior
type Options struct {
	// BusyTimeout is how long SQLite itself waits on a lock before reporting busy
	BusyTimeout time.Duration
	// Retry bounds the application-level retries on busy/locked errors
	Retry retry.Config
	// MaxOpenConns caps the pool for file databases; in-memory databases use one
	MaxOpenConns int
}

// DefaultOptions returns the options used by NewSQLiteStorage
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		Retry:        retry.DefaultConfig(),
		MaxOpenConns: 4,
	}
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db    *sql.DB
	path  string
	retry retry.Config

	// beforeCommit, when set, runs just before a file upsert commits
	beforeCommit func() error
}

var _ Storage = (*SQLiteStorage)(nil)

func isMemoryPath(dbPath string) bool {
	return dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
}

// joinParams appends connection parameters to a path that may already carry some
func joinParams(dbPath string, params url.Values) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + params.Encode()
	}
	return dbPath + "?" + params.Encode()
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, opts Options) (*sql.DB, error) {
	if !isMemoryPath(dbPath) {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, buildDSN(dbPath, opts.BusyTimeout))
	if err != nil {
		return nil, err
	}

	// In-memory databases are private to one connection
	if isMemoryPath(dbPath) || opts.MaxOpenConns <= 0 {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath with default options
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return Open(context.Background(), dbPath, DefaultOptions())
}

// Open opens the database at dbPath and applies pending migrations
func Open(ctx context.Context, dbPath string, opts Options) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: dbPath, retry: opts.Retry}

	err = s.withRetry(ctx, "migrate", func(ctx context.Context) error {
		return ApplyMigrations(ctx, db)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Debug().Str("path", dbPath).Str("driver", DriverName).Msg("store opened")
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database location
func (s *SQLiteStorage) Path() string {
	return s.path
}

// SizeBytes returns the size of the main database file in bytes
func (s *SQLiteStorage) SizeBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// classifyError maps driver errors onto the domain taxonomy by result code
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case isBusyError(err):
		return fmt.Errorf("%w: %w", types.ErrStoreBusy, err)
	case isConstraintError(err):
		return fmt.Errorf("%w: %w", types.ErrIntegrity, err)
	default:
		return err
	}
}

func isTransient(err error) bool {
	return errors.Is(err, types.ErrStoreBusy)
}

// withRetry runs fn, retrying with backoff while the database reports busy or
// locked. Exhausted retries surface as ErrStoreUnavailable.
func (s *SQLiteStorage) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, s.retry, isTransient, func(ctx context.Context, attempt int) (struct{}, error) {
		err := classifyError(fn(ctx))
		if err != nil && isTransient(err) {
			log.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("store busy")
		}
		return struct{}{}, err
	})
	if errors.Is(err, retry.ErrExhausted) {
		log.Warn().Str("op", op).Err(err).Msg("store unavailable")
		return fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
	}
	return err
}

// Collection operations

func (s *SQLiteStorage) getCollectionWithQuerier(ctx context.Context, q querier, name string) (*types.Collection, error) {
	query := `
		SELECT id, name, model, dimension, created_at
		FROM collections
		WHERE name = ?
	`
	var c types.Collection
	err := q.QueryRowContext(ctx, query, name).Scan(&c.ID, &c.Name, &c.Model, &c.Dimension, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: collection %q", types.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*types.Collection, error) {
	var coll *types.Collection
	err := s.withRetry(ctx, "get collection", func(ctx context.Context) error {
		var err error
		coll, err = s.getCollectionWithQuerier(ctx, s.db, name)
		return err
	})
	return coll, err
}

func (s *SQLiteStorage) createCollectionWithQuerier(ctx context.Context, q querier, name, model string, dimension int) (*types.Collection, error) {
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx,
		"INSERT INTO collections (name, model, dimension, created_at) VALUES (?, ?, ?, ?)",
		name, model, dimension, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &types.Collection{ID: id, Name: name, Model: model, Dimension: dimension, CreatedAt: now}, nil
}

// EnsureCollection returns the named collection, creating it when missing.
// An existing collection with a different model or dimension is an
// ErrSchemaMismatch unless recreate is set, in which case it is dropped with
// all of its chunks and created afresh.
func (s *SQLiteStorage) EnsureCollection(ctx context.Context, name, model string, dimension int, recreate bool) (*types.Collection, error) {
	if name == "" || model == "" || dimension <= 0 {
		return nil, fmt.Errorf("%w: collection needs a name, a model and a positive dimension", types.ErrInvalidRequest)
	}

	var coll *types.Collection
	err := s.withRetry(ctx, "ensure collection", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		existing, err := s.getCollectionWithQuerier(ctx, tx, name)
		switch {
		case errors.Is(err, types.ErrNotFound):
		case err != nil:
			return err
		case recreate:
			if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", existing.ID); err != nil {
				return err
			}
			log.Info().Str("collection", name).Msg("collection dropped for recreate")
		case existing.Model != model || existing.Dimension != dimension:
			return fmt.Errorf("%w: collection %q uses %s (%d dims), requested %s (%d dims)",
				types.ErrSchemaMismatch, name, existing.Model, existing.Dimension, model, dimension)
		default:
			coll = existing
			return tx.Commit()
		}

		coll, err = s.createCollectionWithQuerier(ctx, tx, name, model, dimension)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return coll, nil
}

func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*CollectionInfo, error) {
	query := `
		SELECT c.id, c.name, c.model, c.dimension, c.created_at,
		       (SELECT COUNT(*) FROM files f WHERE f.collection_id = c.id),
		       (SELECT COUNT(*) FROM chunks ch WHERE ch.collection_id = c.id)
		FROM collections c
		ORDER BY c.name
	`
	var infos []*CollectionInfo
	err := s.withRetry(ctx, "list collections", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		infos = infos[:0]
		for rows.Next() {
			var info CollectionInfo
			if err := rows.Scan(&info.ID, &info.Name, &info.Model, &info.Dimension, &info.CreatedAt,
				&info.Files, &info.Chunks); err != nil {
				return err
			}
			infos = append(infos, &info)
		}
		return rows.Err()
	})
	return infos, err
}

func (s *SQLiteStorage) DropCollection(ctx context.Context, name string) error {
	return s.withRetry(ctx, "drop collection", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: collection %q", types.ErrNotFound, name)
		}
		return nil
	})
}

// File operations

// prepareChunks validates a file's chunk set against its collection before any write
func prepareChunks(coll *types.Collection, fp *types.Fingerprint, chunks []*types.Chunk, now time.Time) error {
	for _, c := range chunks {
		if c.FilePath != fp.FilePath {
			return fmt.Errorf("%w: chunk %s belongs to %s, not %s", types.ErrIntegrity, c.Key, c.FilePath, fp.FilePath)
		}
		if err := validateVector(c.Key, c.Vector, coll.Dimension); err != nil {
			return err
		}
		if c.Model == "" {
			c.Model = coll.Model
		} else if c.Model != coll.Model {
			return fmt.Errorf("%w: chunk %s embedded with %s, collection %q uses %s",
				types.ErrSchemaMismatch, c.Key, c.Model, coll.Name, coll.Model)
		}
		if c.ContentHash == "" {
			c.ComputeContentHash()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
	}
	return types.ValidateHierarchy(chunks)
}

const insertChunkSQL = `
	INSERT INTO chunks (
		collection_id, chunk_key, file_path, chunk_type, name,
		start_line, end_line, start_byte, end_byte,
		content, content_hash, parent_key, vector, model, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertFileSQL = `
	INSERT INTO files (collection_id, file_path, content_hash, mod_time, size_bytes, chunk_count, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection_id, file_path) DO UPDATE SET
		content_hash = excluded.content_hash,
		mod_time = excluded.mod_time,
		size_bytes = excluded.size_bytes,
		chunk_count = excluded.chunk_count,
		indexed_at = excluded.indexed_at
`

// UpsertFileChunks atomically replaces every chunk of fp.FilePath with chunks
// and records the fingerprint. Either all of it is visible afterwards or none.
func (s *SQLiteStorage) UpsertFileChunks(ctx context.Context, collection string, fp *types.Fingerprint, chunks []*types.Chunk) error {
	if fp == nil || fp.FilePath == "" || fp.ContentHash == "" {
		return fmt.Errorf("%w: fingerprint needs a file path and content hash", types.ErrInvalidRequest)
	}

	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := prepareChunks(coll, fp, chunks, now); err != nil {
		return err
	}

	err = s.withRetry(ctx, "upsert "+fp.FilePath, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// The collection may have been recreated since validation
		current, err := s.getCollectionWithQuerier(ctx, tx, collection)
		if err != nil {
			return err
		}
		if current.ID != coll.ID || current.Dimension != coll.Dimension || current.Model != coll.Model {
			return fmt.Errorf("%w: collection %q changed during upsert", types.ErrSchemaMismatch, collection)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE collection_id = ? AND file_path = ?",
			coll.ID, fp.FilePath); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, insertChunkSQL)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range chunks {
			var parent sql.NullString
			if c.ParentKey != nil {
				parent = sql.NullString{String: *c.ParentKey, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				coll.ID, c.Key, c.FilePath, string(c.Type), c.Name,
				c.StartLine, c.EndLine, c.StartByte, c.EndByte,
				c.Content, c.ContentHash, parent, serializeVector(c.Vector), c.Model,
				c.CreatedAt, c.UpdatedAt); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.Key, err)
			}
		}

		var modTime sql.NullTime
		if !fp.ModTime.IsZero() {
			modTime = sql.NullTime{Time: fp.ModTime.UTC(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, upsertFileSQL,
			coll.ID, fp.FilePath, fp.ContentHash, modTime, fp.SizeBytes, len(chunks), now); err != nil {
			return fmt.Errorf("failed to record fingerprint: %w", err)
		}

		if s.beforeCommit != nil {
			if err := s.beforeCommit(); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}

	fp.ChunkCount = len(chunks)
	fp.IndexedAt = now
	return nil
}

// DeleteFile removes a file's chunks and fingerprint. Missing files are not an error.
func (s *SQLiteStorage) DeleteFile(ctx context.Context, collection, filePath string) error {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return err
	}

	return s.withRetry(ctx, "delete "+filePath, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection_id = ? AND file_path = ?", coll.ID, filePath); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE collection_id = ? AND file_path = ?", coll.ID, filePath); err != nil {
			return err
		}
		return tx.Commit()
	})
}

const fingerprintColumns = `file_path, content_hash, mod_time, size_bytes, chunk_count, indexed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFingerprint(row rowScanner) (*types.Fingerprint, error) {
	var fp types.Fingerprint
	var modTime sql.NullTime
	if err := row.Scan(&fp.FilePath, &fp.ContentHash, &modTime, &fp.SizeBytes, &fp.ChunkCount, &fp.IndexedAt); err != nil {
		return nil, err
	}
	if modTime.Valid {
		fp.ModTime = modTime.Time
	}
	return &fp, nil
}

func (s *SQLiteStorage) GetFingerprint(ctx context.Context, collection, filePath string) (*types.Fingerprint, error) {
	query := `
		SELECT ` + fingerprintColumns + `
		FROM files
		WHERE collection_id = (SELECT id FROM collections WHERE name = ?) AND file_path = ?
	`
	var fp *types.Fingerprint
	err := s.withRetry(ctx, "get fingerprint", func(ctx context.Context) error {
		var err error
		fp, err = scanFingerprint(s.db.QueryRowContext(ctx, query, collection, filePath))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: fingerprint for %s", types.ErrNotFound, filePath)
		}
		return err
	})
	return fp, err
}

func (s *SQLiteStorage) ListFingerprints(ctx context.Context, collection string) ([]*types.Fingerprint, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + fingerprintColumns + ` FROM files WHERE collection_id = ? ORDER BY file_path`
	var fps []*types.Fingerprint
	err = s.withRetry(ctx, "list fingerprints", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, coll.ID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		fps = fps[:0]
		for rows.Next() {
			fp, err := scanFingerprint(rows)
			if err != nil {
				return err
			}
			fps = append(fps, fp)
		}
		return rows.Err()
	})
	return fps, err
}

// Chunk operations

func chunkSelect(withContent, withVectors bool) string {
	content := "''"
	if withContent {
		content = "content"
	}
	vector := "NULL"
	if withVectors {
		vector = "vector"
	}
	return `SELECT chunk_key, file_path, chunk_type, name, start_line, end_line, start_byte, end_byte,
		content_hash, parent_key, model, created_at, updated_at, ` + content + `, ` + vector + `
		FROM chunks`
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var c types.Chunk
	var chunkType string
	var parent sql.NullString
	var blob []byte
	if err := row.Scan(&c.Key, &c.FilePath, &chunkType, &c.Name, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.ContentHash, &parent, &c.Model, &c.CreatedAt, &c.UpdatedAt,
		&c.Content, &blob); err != nil {
		return nil, err
	}
	c.Type = types.ChunkType(chunkType)
	if parent.Valid {
		key := parent.String
		c.ParentKey = &key
	}
	if blob != nil {
		vector, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.Key, err)
		}
		c.Vector = vector
	}
	return &c, nil
}

// IterChunks streams the chunks of a collection matching filter. Every call
// of the returned sequence runs a fresh query, so it may be ranged over again.
// Chunks are ordered by file, then position, with enclosing chunks first.
func (s *SQLiteStorage) IterChunks(ctx context.Context, collection string, filter ChunkFilter) iter.Seq2[*types.Chunk, error] {
	return func(yield func(*types.Chunk, error) bool) {
		coll, err := s.GetCollection(ctx, collection)
		if err != nil {
			yield(nil, err)
			return
		}

		query := chunkSelect(filter.WithContent, filter.WithVectors) + " WHERE collection_id = ?"
		args := []interface{}{coll.ID}
		if len(filter.Types) > 0 {
			placeholders := make([]string, len(filter.Types))
			for i, t := range filter.Types {
				placeholders[i] = "?"
				args = append(args, string(t))
			}
			query += " AND chunk_type IN (" + strings.Join(placeholders, ", ") + ")"
		}
		if filter.FilePath != "" {
			query += " AND file_path = ?"
			args = append(args, filter.FilePath)
		}
		if filter.PathPrefix != "" {
			query += " AND substr(file_path, 1, ?) = ?"
			args = append(args, len(filter.PathPrefix), filter.PathPrefix)
		}
		query += " ORDER BY file_path, start_byte, end_byte DESC, chunk_key"

		var rows *sql.Rows
		err = s.withRetry(ctx, "iterate chunks", func(ctx context.Context) error {
			var err error
			rows, err = s.db.QueryContext(ctx, query, args...)
			return err
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, classifyError(err))
		}
	}
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, collectionID int64, key string) (*types.Chunk, error) {
	query := chunkSelect(true, true) + " WHERE collection_id = ? AND chunk_key = ?"
	c, err := scanChunk(q.QueryRowContext(ctx, query, collectionID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chunk %q", types.ErrNotFound, key)
	}
	return c, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, collection, key string) (*types.Chunk, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var c *types.Chunk
	err = s.withRetry(ctx, "get chunk", func(ctx context.Context) error {
		var err error
		c, err = s.getChunkWithQuerier(ctx, s.db, coll.ID, key)
		return err
	})
	return c, err
}

// GetChildren returns the direct children of key, ordered by position
func (s *SQLiteStorage) GetChildren(ctx context.Context, collection, key string) ([]*types.Chunk, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	query := chunkSelect(true, false) + " WHERE collection_id = ? AND parent_key = ? ORDER BY start_line, chunk_key"
	var children []*types.Chunk
	err = s.withRetry(ctx, "get children", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, coll.ID, key)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		children = children[:0]
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				return err
			}
			children = append(children, c)
		}
		return rows.Err()
	})
	return children, err
}

// GetAncestors returns the chain of parents of key, immediate parent first.
// A parent key that no longer resolves ends the chain.
func (s *SQLiteStorage) GetAncestors(ctx context.Context, collection, key string) ([]*types.Chunk, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var ancestors []*types.Chunk
	err = s.withRetry(ctx, "get ancestors", func(ctx context.Context) error {
		ancestors = ancestors[:0]
		current, err := s.getChunkWithQuerier(ctx, s.db, coll.ID, key)
		if err != nil {
			return err
		}

		visited := map[string]bool{key: true}
		for current.ParentKey != nil {
			parentKey := *current.ParentKey
			if visited[parentKey] {
				return fmt.Errorf("%w: parent cycle at %s", types.ErrIntegrity, parentKey)
			}
			visited[parentKey] = true

			parent, err := s.getChunkWithQuerier(ctx, s.db, coll.ID, parentKey)
			if errors.Is(err, types.ErrNotFound) {
				log.Warn().Str("chunk", current.Key).Str("parent", parentKey).Msg("dangling parent reference")
				return nil
			}
			if err != nil {
				return err
			}
			parent.Vector = nil
			ancestors = append(ancestors, parent)
			current = parent
		}
		return nil
	})
	return ancestors, err
}

// Stats computes aggregate statistics for a collection
func (s *SQLiteStorage) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{Collection: *coll}
	err = s.withRetry(ctx, "stats", func(ctx context.Context) error {
		stats.ByType = make(map[types.ChunkType]int)
		stats.DepthCounts = make(map[int]int)
		stats.TopFiles = nil

		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM files WHERE collection_id = ?", coll.ID).Scan(&stats.TotalFiles); err != nil {
			return err
		}

		typeRows, err := s.db.QueryContext(ctx,
			"SELECT chunk_type, COUNT(*) FROM chunks WHERE collection_id = ? GROUP BY chunk_type", coll.ID)
		if err != nil {
			return err
		}
		for typeRows.Next() {
			var t string
			var n int
			if err := typeRows.Scan(&t, &n); err != nil {
				_ = typeRows.Close()
				return err
			}
			stats.ByType[types.ChunkType(t)] = n
		}
		_ = typeRows.Close()

		fileRows, err := s.db.QueryContext(ctx, `
			SELECT file_path, COUNT(*) AS n FROM chunks WHERE collection_id = ?
			GROUP BY file_path ORDER BY n DESC, file_path LIMIT ?`, coll.ID, TopFilesLimit)
		if err != nil {
			return err
		}
		for fileRows.Next() {
			var fc FileCount
			if err := fileRows.Scan(&fc.FilePath, &fc.Chunks); err != nil {
				_ = fileRows.Close()
				return err
			}
			stats.TopFiles = append(stats.TopFiles, fc)
		}
		_ = fileRows.Close()

		parents, err := s.parentIndex(ctx, coll.ID)
		if err != nil {
			return err
		}
		stats.TotalChunks = len(parents)
		stats.TopLevel, stats.Nested = 0, 0
		depths := make(map[string]int, len(parents))
		for key := range parents {
			d := chunkDepth(key, parents, depths)
			stats.DepthCounts[d]++
			if d == 0 {
				stats.TopLevel++
			} else {
				stats.Nested++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	run, err := s.LastRun(ctx, collection)
	if err == nil {
		stats.LastRun = run
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	return stats, nil
}

// parentIndex maps every chunk key of a collection to its parent key ("" for none)
func (s *SQLiteStorage) parentIndex(ctx context.Context, collectionID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_key, parent_key FROM chunks WHERE collection_id = ?", collectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	parents := make(map[string]string)
	for rows.Next() {
		var key string
		var parent sql.NullString
		if err := rows.Scan(&key, &parent); err != nil {
			return nil, err
		}
		parents[key] = parent.String
	}
	return parents, rows.Err()
}

// chunkDepth walks parent links; a missing or cyclic parent ends the walk
func chunkDepth(key string, parents map[string]string, memo map[string]int) int {
	var chain []string
	seen := make(map[string]bool)
	depth := -1
	for cur := key; ; {
		if d, ok := memo[cur]; ok {
			depth = d
			break
		}
		if seen[cur] {
			break
		}
		seen[cur] = true
		chain = append(chain, cur)

		parent := parents[cur]
		if _, ok := parents[parent]; parent == "" || !ok {
			break
		}
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		depth++
		memo[chain[i]] = depth
	}
	return memo[key]
}

// Ingest runs

func (s *SQLiteStorage) BeginRun(ctx context.Context, collection string) (*types.IngestRun, error) {
	coll, err := s.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	run := &types.IngestRun{
		ID:         uuid.NewString(),
		Collection: collection,
		StartedAt:  time.Now().UTC(),
	}
	err = s.withRetry(ctx, "begin run", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO ingest_runs (id, collection_id, started_at) VALUES (?, ?, ?)",
			run.ID, coll.ID, run.StartedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStorage) RecordFailure(ctx context.Context, failure *types.IngestFailure) error {
	return s.withRetry(ctx, "record failure", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO ingest_failures (run_id, file_path, kind, message) VALUES (?, ?, ?, ?)",
			failure.RunID, failure.FilePath, failure.Kind, failure.Message)
		return err
	})
}

func (s *SQLiteStorage) FinishRun(ctx context.Context, run *types.IngestRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	return s.withRetry(ctx, "finish run", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE ingest_runs
			SET finished_at = ?, processed = ?, skipped = ?, failed = ?, pruned = ?, chunks = ?
			WHERE id = ?`,
			run.FinishedAt, run.Processed, run.Skipped, run.Failed, run.Pruned, run.Chunks, run.ID)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: run %s", types.ErrNotFound, run.ID)
		}
		return nil
	})
}

func (s *SQLiteStorage) LastRun(ctx context.Context, collection string) (*types.IngestRun, error) {
	query := `
		SELECT r.id, c.name, r.started_at, r.finished_at, r.processed, r.skipped, r.failed, r.pruned, r.chunks
		FROM ingest_runs r
		INNER JOIN collections c ON c.id = r.collection_id
		WHERE c.name = ?
		ORDER BY r.rowid DESC
		LIMIT 1
	`
	var run *types.IngestRun
	err := s.withRetry(ctx, "last run", func(ctx context.Context) error {
		var r types.IngestRun
		var finished sql.NullTime
		err := s.db.QueryRowContext(ctx, query, collection).Scan(&r.ID, &r.Collection, &r.StartedAt, &finished,
			&r.Processed, &r.Skipped, &r.Failed, &r.Pruned, &r.Chunks)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no runs for collection %q", types.ErrNotFound, collection)
		}
		if err != nil {
			return err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		run = &r
		return nil
	})
	return run, err
}

func (s *SQLiteStorage) ListFailures(ctx context.Context, runID string) ([]*types.IngestFailure, error) {
	var failures []*types.IngestFailure
	err := s.withRetry(ctx, "list failures", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT run_id, file_path, kind, message FROM ingest_failures WHERE run_id = ? ORDER BY id", runID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		failures = failures[:0]
		for rows.Next() {
			var f types.IngestFailure
			if err := rows.Scan(&f.RunID, &f.FilePath, &f.Kind, &f.Message); err != nil {
				return err
			}
			failures = append(failures, &f)
		}
		return rows.Err()
	})
	return failures, err
}
