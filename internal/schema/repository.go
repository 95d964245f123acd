package schema

import (
	"context"

	"mds-backend/internal/metadata"
)

// EntityStore persists committed entities. Retrieve methods return (nil, nil)
// when nothing matches.
type EntityStore interface {
	Contains(ctx context.Context, className string) (bool, error)
	Create(ctx context.Context, e *metadata.Entity) error
	RetrieveByID(ctx context.Context, id int64) (*metadata.Entity, error)
	RetrieveByClassName(ctx context.Context, className string) (*metadata.Entity, error)
	RetrieveAll(ctx context.Context) ([]*metadata.Entity, error)
	// Update persists e and assigns it a fresh revision. It fails with
	// ErrEntityChanged when the stored revision is no longer e.Revision.
	Update(ctx context.Context, e *metadata.Entity) error
	Delete(ctx context.Context, e *metadata.Entity) error
}

// DraftStore persists drafts. Retrieve methods return (nil, nil) when nothing
// matches. Draft ids share the entity id space.
type DraftStore interface {
	RetrieveByID(ctx context.Context, id int64) (*metadata.Draft, error)
	Retrieve(ctx context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error)
	Create(ctx context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error)
	Update(ctx context.Context, d *metadata.Draft) error
	Delete(ctx context.Context, d *metadata.Draft) error
	DeleteAll(ctx context.Context, e *metadata.Entity) error
	RetrieveAll(ctx context.Context, owner string) ([]*metadata.Draft, error)
	// SetProperties resets the draft body from e and persists it.
	SetProperties(ctx context.Context, d *metadata.Draft, e *metadata.Entity) error
}

// AuditSink records entity snapshots.
type AuditSink interface {
	CreateAudit(ctx context.Context, e *metadata.Entity, owner string) error
}

// Compiler turns an entity definition into physical storage. It runs inside
// the caller's unit of work.
type Compiler interface {
	ConstructEntity(ctx context.Context, e *metadata.Entity) error
}

// Repos are the transaction-bound collaborators of one unit of work.
type Repos struct {
	Entities EntityStore
	Drafts   DraftStore
	Audits   AuditSink
	Compiler Compiler
}

// UnitOfWork runs fn in one transaction. Any error returned by fn rolls back
// every write made through repos, including compiler DDL.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}
