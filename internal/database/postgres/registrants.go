package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// RegistrantRepository provides PostgreSQL-backed registrant and face storage
type RegistrantRepository struct {
	pool *Pool
	loc  *time.Location
}

// NewRegistrantRepository creates a new registrant repository
func NewRegistrantRepository(pool *Pool, loc *time.Location) *RegistrantRepository {
	return &RegistrantRepository{pool: pool, loc: loc}
}

// HasRegistrant reports whether name is registered
func (r *RegistrantRepository) HasRegistrant(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM registrants WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registrant: %w", err)
	}
	return exists, nil
}

// ListRegistrants returns all registrants ordered by name
func (r *RegistrantRepository) ListRegistrants(ctx context.Context) ([]database.Registrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, created_at FROM registrants ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()

	var out []database.Registrant
	for rows.Next() {
		var reg database.Registrant
		if err := rows.Scan(&reg.Name, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		reg.CreatedAt = reg.CreatedAt.In(r.loc)
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrants: %w", err)
	}
	return out, nil
}

// AddRegistrant registers name. The table lock serializes the equivalence
// check against concurrent registrations.
func (r *RegistrantRepository) AddRegistrant(ctx context.Context, name string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `LOCK TABLE registrants IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return false, fmt.Errorf("lock registrants: %w", err)
	}

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

	if _, err := tx.ExecContext(ctx, `INSERT INTO registrants (name) VALUES ($1)`, name); err != nil {
		return false, fmt.Errorf("insert registrant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit registrant: %w", err)
	}
	return true, nil
}

// ListFaceEmbeddings returns all reference face embeddings
func (r *RegistrantRepository) ListFaceEmbeddings(ctx context.Context) ([]database.FaceEmbedding, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, embedding, created_at FROM registrant_faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.FaceEmbedding
	for rows.Next() {
		var (
			f   database.FaceEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&f.ID, &f.Name, &vec, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		f.Embedding = vec.Slice()
		f.CreatedAt = f.CreatedAt.In(r.loc)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face embeddings: %w", err)
	}
	return out, nil
}

// SaveFaceEmbedding stores a reference embedding for a registrant
func (r *RegistrantRepository) SaveFaceEmbedding(ctx context.Context, name string, embedding []float32) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO registrant_faces (name, embedding) VALUES ($1, $2) RETURNING id`,
		name, pgvector.NewVector(embedding),
	).Scan(&id)
	if isForeignKeyViolation(err) {
		return 0, fmt.Errorf("save face of %q: %w", name, database.ErrRegistrantNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("insert face embedding: %w", err)
	}
	return id, nil
}
