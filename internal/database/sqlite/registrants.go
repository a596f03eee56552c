package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// HasRegistrant reports whether name is registered.
func (s *Store) HasRegistrant(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM registrants WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check registrant: %w", err)
	}
	return true, nil
}

// ListRegistrants returns all registrants ordered by name.
func (s *Store) ListRegistrants(ctx context.Context) ([]database.Registrant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at FROM registrants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()

	var out []database.Registrant
	for rows.Next() {
		var (
			r       database.Registrant
			created database.NullTime
		)
		if err := rows.Scan(&r.Name, &created); err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		r.CreatedAt = created.Time.In(s.loc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrants: %w", err)
	}
	return out, nil
}

// AddRegistrant registers name unless an equivalent name already exists.
func (s *Store) AddRegistrant(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT name FROM registrants ORDER BY name`)
	if err != nil {
		return false, fmt.Errorf("list registrants: %w", err)
	}
	var existing []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan registrant: %w", err)
		}
		if n == name {
			rows.Close()
			return false, nil
		}
		existing = append(existing, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate registrants: %w", err)
	}

	if other, found := facematch.FindEquivalentName(existing, name); found {
		return false, fmt.Errorf("%w: %q matches %q", database.ErrRegistrantExists, name, other)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO registrants (name, created_at) VALUES (?, ?)`,
		name, timeArg(s.now())); err != nil {
		return false, fmt.Errorf("insert registrant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit registrant: %w", err)
	}
	return true, nil
}

// ListFaceEmbeddings returns all reference face embeddings.
func (s *Store) ListFaceEmbeddings(ctx context.Context) ([]database.FaceEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, embedding, created_at FROM registrant_faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.FaceEmbedding
	for rows.Next() {
		var (
			f       database.FaceEmbedding
			raw     string
			created database.NullTime
		)
		if err := rows.Scan(&f.ID, &f.Name, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &f.Embedding); err != nil {
			return nil, fmt.Errorf("decode face embedding %d: %w", f.ID, err)
		}
		f.CreatedAt = created.Time.In(s.loc)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face embeddings: %w", err)
	}
	return out, nil
}

// SaveFaceEmbedding stores a reference embedding for a registrant.
func (s *Store) SaveFaceEmbedding(ctx context.Context, name string, embedding []float32) (int64, error) {
	registered, err := s.HasRegistrant(ctx, name)
	if err != nil {
		return 0, err
	}
	if !registered {
		return 0, fmt.Errorf("save face of %q: %w", name, database.ErrRegistrantNotFound)
	}

	raw, err := json.Marshal(embedding)
	if err != nil {
		return 0, fmt.Errorf("encode face embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO registrant_faces (name, embedding, created_at) VALUES (?, ?, ?)`,
		name, string(raw), timeArg(s.now()))
	if err != nil {
		return 0, fmt.Errorf("insert face embedding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert face embedding: %w", err)
	}
	return id, nil
}
