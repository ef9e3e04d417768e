package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

// maxUpdateAttempts bounds the optimistic retry loop in Update.
const maxUpdateAttempts = 8

// Store is the SQLite database holding fabric records.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.fabric/data/fabrics.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fabric", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fabrics.db")

	// WAL lets status readers proceed while a build writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// FabricStore returns a FabricStore backed by this store.
func (s *Store) FabricStore() driven.FabricStore {
	return &fabricStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_fabrics.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Fabric Store ====================

// fabricStore implements driven.FabricStore.
type fabricStore struct {
	store *Store
}

var _ driven.FabricStore = (*fabricStore)(nil)

const fabricColumns = `id, name, description, status, source_kind, source_enabled, source_options,
	chunk_size, chunk_overlap, embedding_model, chat_model, collection_name,
	documents_count, chunks_count, degraded_chunks, graph_nodes, graph_edges,
	error_kind, error_message, error_hint, created_at, updated_at, built_at, revision`

// Create stores a new fabric.
func (s *fabricStore) Create(ctx context.Context, fabric *domain.Fabric) error {
	now := s.store.now()
	if fabric.CreatedAt.IsZero() {
		fabric.CreatedAt = now
	}
	fabric.UpdatedAt = now
	fabric.Revision = 1

	args, err := fabricArgs(fabric)
	if err != nil {
		return err
	}
	_, err = s.store.db.ExecContext(ctx, `INSERT INTO fabrics (`+fabricColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: fabric %s", domain.ErrAlreadyExists, fabric.ID)
		}
		return fmt.Errorf("inserting fabric: %w", err)
	}
	return nil
}

// Get retrieves a fabric by ID.
func (s *fabricStore) Get(ctx context.Context, id string) (*domain.Fabric, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+fabricColumns+` FROM fabrics WHERE id = ?`, id)
	fabric, err := scanFabric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: fabric %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying fabric: %w", err)
	}
	return fabric, nil
}

// List returns all fabrics ordered by creation time.
func (s *fabricStore) List(ctx context.Context) ([]*domain.Fabric, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+fabricColumns+` FROM fabrics ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying fabrics: %w", err)
	}
	defer rows.Close()

	var fabrics []*domain.Fabric
	for rows.Next() {
		fabric, err := scanFabric(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fabric: %w", err)
		}
		fabrics = append(fabrics, fabric)
	}
	return fabrics, rows.Err()
}

// Update reads the record, applies mutate and writes it back if nobody
// else wrote in between, retrying otherwise.
func (s *fabricStore) Update(
	ctx context.Context,
	id string,
	mutate func(*domain.Fabric) error,
) (*domain.Fabric, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(current); err != nil {
			return nil, err
		}
		current.ID = id

		updated, err := s.CompareAndSwap(ctx, current)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		return updated, err
	}
	return nil, fmt.Errorf("%w: fabric %s changed concurrently %d times", domain.ErrConflict, id, maxUpdateAttempts)
}

// CompareAndSwap writes fabric if its Revision matches the stored one.
func (s *fabricStore) CompareAndSwap(ctx context.Context, fabric *domain.Fabric) (*domain.Fabric, error) {
	next := fabric.Clone()
	expected := next.Revision
	next.Revision = expected + 1
	next.UpdatedAt = s.store.now()

	args, err := fabricArgs(next)
	if err != nil {
		return nil, err
	}
	// id and created_at never change.
	set := make([]any, 0, len(args))
	set = append(set, args[1:20]...)
	set = append(set, args[21:]...)
	set = append(set, next.ID, expected)

	res, err := s.store.db.ExecContext(ctx, `UPDATE fabrics SET
			name = ?, description = ?, status = ?, source_kind = ?, source_enabled = ?, source_options = ?,
			chunk_size = ?, chunk_overlap = ?, embedding_model = ?, chat_model = ?, collection_name = ?,
			documents_count = ?, chunks_count = ?, degraded_chunks = ?, graph_nodes = ?, graph_edges = ?,
			error_kind = ?, error_message = ?, error_hint = ?, updated_at = ?, built_at = ?, revision = ?
		WHERE id = ? AND revision = ?`, set...)
	if err != nil {
		return nil, fmt.Errorf("updating fabric: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating fabric: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, next.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fabric %s revision %d is stale", domain.ErrConflict, next.ID, expected)
	}
	return s.Get(ctx, next.ID)
}

// Delete removes a fabric.
func (s *fabricStore) Delete(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM fabrics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting fabric: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting fabric: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: fabric %s", domain.ErrNotFound, id)
	}
	return nil
}

// fabricArgs returns column values in fabricColumns order.
func fabricArgs(f *domain.Fabric) ([]any, error) {
	options := f.Source.Options
	if options == nil {
		options = map[string]string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("marshalling source options: %w", err)
	}

	var errKind, errMessage, errHint sql.NullString
	if f.Error != nil {
		errKind = sql.NullString{String: string(f.Error.Kind), Valid: true}
		errMessage = sql.NullString{String: f.Error.Message, Valid: true}
		errHint = sql.NullString{String: f.Error.Hint, Valid: true}
	}
	var builtAt sql.NullInt64
	if f.BuiltAt != nil {
		builtAt = sql.NullInt64{Int64: f.BuiltAt.UnixNano(), Valid: true}
	}

	return []any{
		f.ID, f.Name, f.Description, string(f.Status),
		string(f.Source.Kind), boolToInt(f.Source.Enabled), string(optionsJSON),
		f.ChunkSize, f.ChunkOverlap, f.EmbeddingModel, f.ChatModel, f.CollectionName,
		f.DocumentsCount, f.ChunksCount, f.DegradedChunks, f.GraphNodes, f.GraphEdges,
		errKind, errMessage, errHint,
		f.CreatedAt.UnixNano(), f.UpdatedAt.UnixNano(), builtAt, f.Revision,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFabric(row rowScanner) (*domain.Fabric, error) {
	var (
		f                            domain.Fabric
		status, kind, optionsJSON    string
		enabled                      int
		errKind, errMessage, errHint sql.NullString
		createdAt, updatedAt         int64
		builtAt                      sql.NullInt64
	)
	err := row.Scan(
		&f.ID, &f.Name, &f.Description, &status, &kind, &enabled, &optionsJSON,
		&f.ChunkSize, &f.ChunkOverlap, &f.EmbeddingModel, &f.ChatModel, &f.CollectionName,
		&f.DocumentsCount, &f.ChunksCount, &f.DegradedChunks, &f.GraphNodes, &f.GraphEdges,
		&errKind, &errMessage, &errHint, &createdAt, &updatedAt, &builtAt, &f.Revision,
	)
	if err != nil {
		return nil, err
	}

	f.Status = domain.FabricStatus(status)
	f.Source.Kind = domain.SourceKind(kind)
	f.Source.Enabled = enabled != 0
	if optionsJSON != "" && optionsJSON != "{}" {
		if err := json.Unmarshal([]byte(optionsJSON), &f.Source.Options); err != nil {
			return nil, fmt.Errorf("unmarshalling source options: %w", err)
		}
	}
	if errKind.Valid {
		f.Error = &domain.BuildError{
			Kind:    domain.ErrorKind(errKind.String),
			Message: errMessage.String,
			Hint:    errHint.String,
		}
	}
	f.CreatedAt = time.Unix(0, createdAt)
	f.UpdatedAt = time.Unix(0, updatedAt)
	if builtAt.Valid {
		t := time.Unix(0, builtAt.Int64)
		f.BuiltAt = &t
	}
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
