// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package persist saves documents and their extraction records to a SQLite
// database and exports combined heatmaps as YAML or JSON.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

const (
	indexDir  = "index"
	exportDir = "export"
	dbFile    = "ciu.db"
)

// Store manages the document database at dataDir/index/ciu.db.
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore opens or creates the document database. It creates the schema if
// it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = types.DefaultDataDir
	}
	dbDir := filepath.Join(dataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT,
			source_path TEXT,
			kind TEXT NOT NULL,
			parameters TEXT NOT NULL,
			chromatogram TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			mz_start REAL NOT NULL,
			mz_end REAL NOT NULL,
			state TEXT NOT NULL,
			raw TEXT,
			combined TEXT,
			error TEXT,
			PRIMARY KEY (document_id, mz_start, mz_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_state ON records(state)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save writes doc and replaces all of its stored records in one
// transaction.
func (s *Store) Save(ctx context.Context, doc types.Document, records []types.ExtractionRecord) error {
	if doc.ID == "" {
		return fmt.Errorf("saving document: empty id")
	}

	params, err := json.Marshal(doc.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	var chrom any
	if len(doc.Chromatogram) > 0 {
		if chrom, err = encode(doc.Chromatogram); err != nil {
			return fmt.Errorf("encoding chromatogram: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source_path, kind, parameters, chromatogram, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, source_path=excluded.source_path, kind=excluded.kind,
			parameters=excluded.parameters, chromatogram=excluded.chromatogram,
			created_at=excluded.created_at`,
		doc.ID, doc.Title, doc.SourcePath, string(doc.Kind), string(params), chrom,
		doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("deleting old records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (document_id, mz_start, mz_end, state, raw, combined, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Key.DocumentID != doc.ID {
			return fmt.Errorf("record %s does not belong to document %s", rec.Key, doc.ID)
		}
		raw, err := encodeNullable(rec.Raw, rec.Raw == nil)
		if err != nil {
			return fmt.Errorf("encoding raw heatmap of %s: %w", rec.Key, err)
		}
		combined, err := encodeNullable(rec.Combined, rec.Combined == nil)
		if err != nil {
			return fmt.Errorf("encoding combined heatmap of %s: %w", rec.Key, err)
		}
		info, err := encodeNullable(rec.Error, rec.Error == nil)
		if err != nil {
			return fmt.Errorf("encoding error of %s: %w", rec.Key, err)
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID, rec.Key.MZStart, rec.Key.MZEnd, string(rec.State), raw, combined, info,
		); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.Key, err)
		}
	}

	return tx.Commit()
}

// Load reads a document and its records. Records are ordered by m/z.
func (s *Store) Load(ctx context.Context, id string) (types.Document, []types.ExtractionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, source_path, kind, parameters, chromatogram, created_at
		 FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, nil, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	if err != nil {
		return types.Document{}, nil, fmt.Errorf("loading document %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT mz_start, mz_end, state, raw, combined, error
		 FROM records WHERE document_id = ? ORDER BY mz_start, mz_end`, id)
	if err != nil {
		return types.Document{}, nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []types.ExtractionRecord
	for rows.Next() {
		rec := types.ExtractionRecord{Key: types.IonKey{DocumentID: id}}
		var (
			state              string
			raw, combined, inf sql.NullString
		)
		if err := rows.Scan(&rec.Key.MZStart, &rec.Key.MZEnd, &state, &raw, &combined, &inf); err != nil {
			return types.Document{}, nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.State = types.ExtractionState(state)
		if raw.Valid {
			rec.Raw = &types.RawHeatmap{}
			if err := json.Unmarshal([]byte(raw.String), rec.Raw); err != nil {
				return types.Document{}, nil, fmt.Errorf("decoding raw heatmap of %s: %w", rec.Key, err)
			}
		}
		if combined.Valid {
			rec.Combined = &types.CombinedHeatmap{}
			if err := json.Unmarshal([]byte(combined.String), rec.Combined); err != nil {
				return types.Document{}, nil, fmt.Errorf("decoding combined heatmap of %s: %w", rec.Key, err)
			}
		}
		if inf.Valid {
			rec.Error = &types.ErrorInfo{}
			if err := json.Unmarshal([]byte(inf.String), rec.Error); err != nil {
				return types.Document{}, nil, fmt.Errorf("decoding error of %s: %w", rec.Key, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return types.Document{}, nil, fmt.Errorf("iterating records: %w", err)
	}

	return doc, records, nil
}

// List returns all stored documents ordered by creation time. Records are
// not loaded.
func (s *Store) List(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source_path, kind, parameters, chromatogram, created_at
		 FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document and its records.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (types.Document, error) {
	var (
		doc                   types.Document
		title, source         sql.NullString
		kind, params, created string
		chrom                 sql.NullString
	)
	if err := row.Scan(&doc.ID, &title, &source, &kind, &params, &chrom, &created); err != nil {
		return types.Document{}, err
	}
	doc.Title = title.String
	doc.SourcePath = source.String
	doc.Kind = types.DocumentKind(kind)

	if err := json.Unmarshal([]byte(params), &doc.Parameters); err != nil {
		return types.Document{}, fmt.Errorf("decoding parameters: %w", err)
	}
	if chrom.Valid {
		if err := json.Unmarshal([]byte(chrom.String), &doc.Chromatogram); err != nil {
			return types.Document{}, fmt.Errorf("decoding chromatogram: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return types.Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	doc.CreatedAt = t
	return doc, nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeNullable returns nil for SQL NULL when isNil is set. Typed nil
// pointers are checked by the caller because an interface holding one is
// not nil.
func encodeNullable(v any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	return encode(v)
}
