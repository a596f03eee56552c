package mariadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// HasRegistrant reports whether name is registered.
func (s *Store) HasRegistrant(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM registrants WHERE name = ?)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registrant: %w", err)
	}
	return exists, nil
}

// ListRegistrants returns all registrants ordered by name.
func (s *Store) ListRegistrants(ctx context.Context) ([]database.Registrant, error) {
	rows, err := s.pool.db.QueryContext(ctx, `SELECT name, created_at FROM registrants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()

	var out []database.Registrant
	for rows.Next() {
		var r database.Registrant
		if err := rows.Scan(&r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		r.CreatedAt = r.CreatedAt.In(s.loc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrants: %w", err)
	}
	return out, nil
}

// AddRegistrant registers name unless an equivalent name already exists.
// Re-registering the exact name is a no-op, like ON DUPLICATE KEY UPDATE name = name.
func (s *Store) AddRegistrant(ctx context.Context, name string) (bool, error) {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT name FROM registrants ORDER BY name FOR UPDATE`)
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
		existing = append(existing, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate registrants: %w", err)
	}

	for _, n := range existing {
		if n == name {
			return false, nil
		}
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
	rows, err := s.pool.db.QueryContext(ctx, `SELECT id, name, embedding, created_at FROM registrant_faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.FaceEmbedding
	for rows.Next() {
		var (
			f   database.FaceEmbedding
			raw []byte
		)
		if err := rows.Scan(&f.ID, &f.Name, &raw, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		if err := json.Unmarshal(raw, &f.Embedding); err != nil {
			return nil, fmt.Errorf("decode face embedding %d: %w", f.ID, err)
		}
		f.CreatedAt = f.CreatedAt.In(s.loc)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face embeddings: %w", err)
	}
	return out, nil
}

// SaveFaceEmbedding stores a reference embedding for a registrant.
func (s *Store) SaveFaceEmbedding(ctx context.Context, name string, embedding []float32) (int64, error) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return 0, fmt.Errorf("marshal embedding: %w", err)
	}

	res, err := s.pool.db.ExecContext(ctx,
		`INSERT INTO registrant_faces (name, embedding, created_at) VALUES (?, ?, ?)`,
		name, data, timeArg(s.now()))
	if isForeignKeyViolation(err) {
		return 0, fmt.Errorf("save face of %q: %w", name, database.ErrRegistrantNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("insert face embedding: %w", err)
	}
	return res.LastInsertId()
}
