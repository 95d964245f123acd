package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

// Entities and drafts share the _schemas table so that they draw ids from
// one sequence. kind tells them apart.
const (
	kindEntity = "entity"
	kindDraft  = "draft"
)

type entityRepo struct {
	q Querier
	d Dialect
}

const entityColumns = "id, class_name, revision, body"

func (r *entityRepo) Contains(ctx context.Context, className string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		rebind(r.d, "SELECT COUNT(*) FROM _schemas WHERE kind = ? AND class_name = ?"),
		kindEntity, className,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count entities: %w", err)
	}
	return n > 0, nil
}

func (r *entityRepo) Create(ctx context.Context, e *metadata.Entity) error {
	e.Revision = metadata.NewRevision()
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.ClassName, err)
	}
	err = r.q.QueryRowContext(ctx,
		rebind(r.d, "INSERT INTO _schemas (kind, class_name, revision, body) VALUES (?, ?, ?, ?) RETURNING id"),
		kindEntity, e.ClassName, e.Revision, string(body),
	).Scan(&e.ID)
	if err != nil {
		if errors.Is(MapError(r.d, err), ErrUniqueViolation) {
			return fmt.Errorf("%w: %s", schema.ErrEntityAlreadyExists, e.ClassName)
		}
		return fmt.Errorf("insert entity %s: %w", e.ClassName, err)
	}
	return nil
}

func (r *entityRepo) RetrieveByID(ctx context.Context, id int64) (*metadata.Entity, error) {
	row := r.q.QueryRowContext(ctx,
		rebind(r.d, "SELECT "+entityColumns+" FROM _schemas WHERE kind = ? AND id = ?"),
		kindEntity, id,
	)
	return scanEntity(row)
}

func (r *entityRepo) RetrieveByClassName(ctx context.Context, className string) (*metadata.Entity, error) {
	row := r.q.QueryRowContext(ctx,
		rebind(r.d, "SELECT "+entityColumns+" FROM _schemas WHERE kind = ? AND class_name = ?"),
		kindEntity, className,
	)
	return scanEntity(row)
}

func (r *entityRepo) RetrieveAll(ctx context.Context) ([]*metadata.Entity, error) {
	rows, err := r.q.QueryContext(ctx,
		rebind(r.d, "SELECT "+entityColumns+" FROM _schemas WHERE kind = ? ORDER BY id"),
		kindEntity,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *entityRepo) Update(ctx context.Context, e *metadata.Entity) error {
	prev := e.Revision
	e.Revision = metadata.NewRevision()
	body, err := json.Marshal(e)
	if err != nil {
		e.Revision = prev
		return fmt.Errorf("encode entity %s: %w", e.ClassName, err)
	}
	n, err := Exec(ctx, r.q,
		rebind(r.d, "UPDATE _schemas SET class_name = ?, revision = ?, body = ?, updated_at = CURRENT_TIMESTAMP WHERE kind = ? AND id = ? AND revision = ?"),
		e.ClassName, e.Revision, string(body), kindEntity, e.ID, prev,
	)
	if err != nil {
		e.Revision = prev
		return fmt.Errorf("update entity %s: %w", e.ClassName, err)
	}
	if n == 0 {
		e.Revision = prev
		return r.missedUpdate(ctx, e)
	}
	return nil
}

// missedUpdate tells a concurrent modification from a deleted row after an
// update matched nothing.
func (r *entityRepo) missedUpdate(ctx context.Context, e *metadata.Entity) error {
	var one int
	err := r.q.QueryRowContext(ctx, rebind(r.d, "SELECT 1 FROM _schemas WHERE kind = ? AND id = ?"), kindEntity, e.ID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %d", schema.ErrEntityNotFound, e.ID)
	case err != nil:
		return fmt.Errorf("check entity %s: %w", e.ClassName, err)
	}
	return fmt.Errorf("%w: %s was modified concurrently", schema.ErrEntityChanged, e.ClassName)
}

func (r *entityRepo) Delete(ctx context.Context, e *metadata.Entity) error {
	if _, err := Exec(ctx, r.q, rebind(r.d, "DELETE FROM _schemas WHERE kind = ? AND id = ?"), kindEntity, e.ID); err != nil {
		return fmt.Errorf("delete entity %s: %w", e.ClassName, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*metadata.Entity, error) {
	var (
		id        int64
		className string
		revision  string
		body      []byte
	)
	if err := row.Scan(&id, &className, &revision, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	var e metadata.Entity
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode entity %d: %w", id, err)
	}
	e.ID, e.ClassName, e.Revision = id, className, revision
	return &e, nil
}

type draftRepo struct {
	q Querier
	d Dialect
}

// The revision column of a draft row holds the parent revision it was taken from.
const draftColumns = "id, parent_id, owner, revision, body"

func (r *draftRepo) RetrieveByID(ctx context.Context, id int64) (*metadata.Draft, error) {
	row := r.q.QueryRowContext(ctx,
		rebind(r.d, "SELECT "+draftColumns+" FROM _schemas WHERE kind = ? AND id = ?"),
		kindDraft, id,
	)
	return scanDraft(row)
}

func (r *draftRepo) Retrieve(ctx context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error) {
	row := r.q.QueryRowContext(ctx,
		rebind(r.d, "SELECT "+draftColumns+" FROM _schemas WHERE kind = ? AND parent_id = ? AND owner = ?"),
		kindDraft, e.ID, owner,
	)
	return scanDraft(row)
}

func (r *draftRepo) Create(ctx context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error) {
	d := metadata.NewDraft(e, owner)
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode draft of %s: %w", e.ClassName, err)
	}
	err = r.q.QueryRowContext(ctx,
		rebind(r.d, "INSERT INTO _schemas (kind, class_name, parent_id, owner, revision, body) VALUES (?, ?, ?, ?, ?, ?) RETURNING id"),
		kindDraft, e.ClassName, e.ID, owner, d.ParentRevision, string(body),
	).Scan(&d.ID)
	if err != nil {
		return nil, fmt.Errorf("insert draft of %s for %s: %w", e.ClassName, owner, MapError(r.d, err))
	}
	return d, nil
}

func (r *draftRepo) Update(ctx context.Context, d *metadata.Draft) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft %d: %w", d.ID, err)
	}
	n, err := Exec(ctx, r.q,
		rebind(r.d, "UPDATE _schemas SET revision = ?, body = ?, updated_at = CURRENT_TIMESTAMP WHERE kind = ? AND id = ?"),
		d.ParentRevision, string(body), kindDraft, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update draft %d: %w", d.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: draft %d", schema.ErrEntityNotFound, d.ID)
	}
	return nil
}

func (r *draftRepo) Delete(ctx context.Context, d *metadata.Draft) error {
	if _, err := Exec(ctx, r.q, rebind(r.d, "DELETE FROM _schemas WHERE kind = ? AND id = ?"), kindDraft, d.ID); err != nil {
		return fmt.Errorf("delete draft %d: %w", d.ID, err)
	}
	return nil
}

func (r *draftRepo) DeleteAll(ctx context.Context, e *metadata.Entity) error {
	if _, err := Exec(ctx, r.q, rebind(r.d, "DELETE FROM _schemas WHERE kind = ? AND parent_id = ?"), kindDraft, e.ID); err != nil {
		return fmt.Errorf("delete drafts of %s: %w", e.ClassName, err)
	}
	return nil
}

func (r *draftRepo) RetrieveAll(ctx context.Context, owner string) ([]*metadata.Draft, error) {
	rows, err := r.q.QueryContext(ctx,
		rebind(r.d, "SELECT "+draftColumns+" FROM _schemas WHERE kind = ? AND owner = ? ORDER BY id"),
		kindDraft, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *draftRepo) SetProperties(ctx context.Context, d *metadata.Draft, e *metadata.Entity) error {
	d.Refresh(e)
	return r.Update(ctx, d)
}

func scanDraft(row rowScanner) (*metadata.Draft, error) {
	var (
		id, parentID int64
		owner        string
		revision     string
		body         []byte
	)
	if err := row.Scan(&id, &parentID, &owner, &revision, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	var d metadata.Draft
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode draft %d: %w", id, err)
	}
	d.ID, d.ParentID, d.Owner, d.ParentRevision = id, parentID, owner, revision
	return &d, nil
}
