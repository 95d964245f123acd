package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mds-backend/internal/metadata"
)

type auditRepo struct {
	q Querier
	d Dialect
}

// CreateAudit records a snapshot of e's schema body at its current revision.
func (r *auditRepo) CreateAudit(ctx context.Context, e *metadata.Entity, owner string) error {
	body, err := json.Marshal(e.Schema)
	if err != nil {
		return fmt.Errorf("encode audit of %s: %w", e.ClassName, err)
	}
	_, err = r.q.ExecContext(ctx,
		rebind(r.d, "INSERT INTO _entity_audits (id, entity_id, class_name, owner, revision, body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		uuid.NewString(), e.ID, e.ClassName, owner, e.Revision, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit of %s: %w", e.ClassName, err)
	}
	return nil
}
