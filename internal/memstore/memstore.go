// Package memstore keeps schema state in process memory. It implements the
// same unit-of-work contract as the SQL store: each Do runs against a private
// copy of the state that replaces the shared state only when fn succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mds-backend/internal/auth"
	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

type state struct {
	nextID   int64
	entities map[int64]*metadata.Entity
	drafts   map[int64]*metadata.Draft
	audits   []metadata.Audit
	// tables records what the built-in compiler constructed, keyed by table name.
	tables map[string][]string
}

func newState() *state {
	return &state{
		entities: make(map[int64]*metadata.Entity),
		drafts:   make(map[int64]*metadata.Draft),
		tables:   make(map[string][]string),
	}
}

func (s *state) clone() *state {
	out := &state{
		nextID:   s.nextID,
		entities: make(map[int64]*metadata.Entity, len(s.entities)),
		drafts:   make(map[int64]*metadata.Draft, len(s.drafts)),
		audits:   append([]metadata.Audit(nil), s.audits...),
		tables:   make(map[string][]string, len(s.tables)),
	}
	for id, e := range s.entities {
		out.entities[id] = e.Clone()
	}
	for id, d := range s.drafts {
		out.drafts[id] = d.Clone()
	}
	for name, cols := range s.tables {
		out.tables[name] = append([]string(nil), cols...)
	}
	return out
}

type refreshToken struct {
	username  string
	expiresAt time.Time
}

// Store is an in-memory schema.UnitOfWork and auth.UserStore.
type Store struct {
	mu       sync.Mutex
	state    *state
	compiler schema.Compiler

	usersMu sync.RWMutex
	users   map[string]*auth.User
	tokens  map[string]refreshToken
}

type Option func(*Store)

// WithCompiler replaces the built-in recording compiler.
func WithCompiler(c schema.Compiler) Option {
	return func(s *Store) { s.compiler = c }
}

// WithUser seeds an account.
func WithUser(u auth.User) Option {
	return func(s *Store) {
		cp := u
		cp.Roles = append([]string(nil), u.Roles...)
		s.users[u.Username] = &cp
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		state:  newState(),
		users:  make(map[string]*auth.User),
		tokens: make(map[string]refreshToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do implements schema.UnitOfWork. Units of work are serialized.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos schema.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	var compiler schema.Compiler = &tableCompiler{st: work}
	if s.compiler != nil {
		compiler = s.compiler
	}
	repos := schema.Repos{
		Entities: &entityRepo{st: work},
		Drafts:   &draftRepo{st: work},
		Audits:   &auditRepo{st: work},
		Compiler: compiler,
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Audits returns a copy of every audit recorded so far.
func (s *Store) Audits() []metadata.Audit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metadata.Audit(nil), s.state.audits...)
}

// Table returns the columns the built-in compiler created for a table.
func (s *Store) Table(name string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, ok := s.state.tables[name]
	return append([]string(nil), cols...), ok
}

func (s *state) allocID() int64 {
	s.nextID++
	return s.nextID
}

type entityRepo struct{ st *state }

func (r *entityRepo) Contains(_ context.Context, className string) (bool, error) {
	for _, e := range r.st.entities {
		if e.ClassName == className {
			return true, nil
		}
	}
	return false, nil
}

func (r *entityRepo) Create(_ context.Context, e *metadata.Entity) error {
	for _, other := range r.st.entities {
		if other.ClassName == e.ClassName {
			return fmt.Errorf("%w: %s", schema.ErrEntityAlreadyExists, e.ClassName)
		}
	}
	e.ID = r.st.allocID()
	e.Revision = metadata.NewRevision()
	r.st.entities[e.ID] = e.Clone()
	return nil
}

func (r *entityRepo) RetrieveByID(_ context.Context, id int64) (*metadata.Entity, error) {
	if e, ok := r.st.entities[id]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

func (r *entityRepo) RetrieveByClassName(_ context.Context, className string) (*metadata.Entity, error) {
	for _, e := range r.st.entities {
		if e.ClassName == className {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (r *entityRepo) RetrieveAll(_ context.Context) ([]*metadata.Entity, error) {
	out := make([]*metadata.Entity, 0, len(r.st.entities))
	for _, e := range r.st.entities {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *entityRepo) Update(_ context.Context, e *metadata.Entity) error {
	cur, ok := r.st.entities[e.ID]
	if !ok {
		return fmt.Errorf("%w: %d", schema.ErrEntityNotFound, e.ID)
	}
	if cur.Revision != e.Revision {
		return fmt.Errorf("%w: %s was modified concurrently", schema.ErrEntityChanged, e.ClassName)
	}
	e.Revision = metadata.NewRevision()
	r.st.entities[e.ID] = e.Clone()
	return nil
}

func (r *entityRepo) Delete(_ context.Context, e *metadata.Entity) error {
	delete(r.st.entities, e.ID)
	return nil
}

type draftRepo struct{ st *state }

func (r *draftRepo) RetrieveByID(_ context.Context, id int64) (*metadata.Draft, error) {
	if d, ok := r.st.drafts[id]; ok {
		return d.Clone(), nil
	}
	return nil, nil
}

func (r *draftRepo) Retrieve(_ context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error) {
	for _, d := range r.st.drafts {
		if d.ParentID == e.ID && d.Owner == owner {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (r *draftRepo) Create(ctx context.Context, e *metadata.Entity, owner string) (*metadata.Draft, error) {
	if existing, _ := r.Retrieve(ctx, e, owner); existing != nil {
		return nil, fmt.Errorf("draft of %s for %s already exists", e.ClassName, owner)
	}
	d := metadata.NewDraft(e, owner)
	d.ID = r.st.allocID()
	r.st.drafts[d.ID] = d.Clone()
	return d, nil
}

func (r *draftRepo) Update(_ context.Context, d *metadata.Draft) error {
	if _, ok := r.st.drafts[d.ID]; !ok {
		return fmt.Errorf("%w: draft %d", schema.ErrEntityNotFound, d.ID)
	}
	r.st.drafts[d.ID] = d.Clone()
	return nil
}

func (r *draftRepo) Delete(_ context.Context, d *metadata.Draft) error {
	delete(r.st.drafts, d.ID)
	return nil
}

func (r *draftRepo) DeleteAll(_ context.Context, e *metadata.Entity) error {
	for id, d := range r.st.drafts {
		if d.ParentID == e.ID {
			delete(r.st.drafts, id)
		}
	}
	return nil
}

func (r *draftRepo) RetrieveAll(_ context.Context, owner string) ([]*metadata.Draft, error) {
	var out []*metadata.Draft
	for _, d := range r.st.drafts {
		if d.Owner == owner {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *draftRepo) SetProperties(ctx context.Context, d *metadata.Draft, e *metadata.Entity) error {
	d.Refresh(e)
	return r.Update(ctx, d)
}

type auditRepo struct{ st *state }

func (r *auditRepo) CreateAudit(_ context.Context, e *metadata.Entity, owner string) error {
	r.st.audits = append(r.st.audits, metadata.Audit{
		ID:        uuid.NewString(),
		EntityID:  e.ID,
		ClassName: e.ClassName,
		Owner:     owner,
		Revision:  e.Revision,
		CreatedAt: time.Now().UTC(),
		Schema:    e.Schema.Clone(),
	})
	return nil
}

// tableCompiler records one column per field. Entities without fields are skipped.
type tableCompiler struct{ st *state }

func (c *tableCompiler) ConstructEntity(_ context.Context, e *metadata.Entity) error {
	if len(e.Fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	c.st.tables[e.TableName()] = cols
	return nil
}
