package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mds-backend/internal/metadata"
)

// resolveDraft finds the draft addressed by id for actor. id may be a
// committed entity id or a draft id; a draft id is returned as-is. With
// create set, a missing draft is snapshotted from the parent. Without it the
// returned draft may be nil.
func resolveDraft(ctx context.Context, r Repos, id int64, actor string, create bool) (*metadata.Draft, *metadata.Entity, error) {
	e, err := r.Entities.RetrieveByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		d, err := r.Drafts.RetrieveByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if d == nil {
			return nil, nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
		}
		parent, err := requireEntity(ctx, r, d.ParentID)
		if err != nil {
			return nil, nil, err
		}
		return d, parent, nil
	}

	if actor == "" {
		return nil, nil, ErrAccessDenied
	}
	d, err := r.Drafts.Retrieve(ctx, e, actor)
	if err != nil {
		return nil, nil, err
	}
	if d == nil && create {
		if d, err = r.Drafts.Create(ctx, e, actor); err != nil {
			return nil, nil, err
		}
	}
	return d, e, nil
}

// GetOrCreateDraft returns the actor's draft of the entity, creating it on first use.
func (s *Service) GetOrCreateDraft(ctx context.Context, id int64, actor string) (metadata.EntityDTO, error) {
	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, parent, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		out = d.ToDTO(parent)
		return nil
	})
	return out, err
}

// GetEntityForEdit is GetOrCreateDraft under the name the editor uses.
func (s *Service) GetEntityForEdit(ctx context.Context, id int64, actor string) (metadata.EntityDTO, error) {
	return s.GetOrCreateDraft(ctx, id, actor)
}

// SaveDraftChange applies one edit to the actor's draft. Edits addressing a
// missing field are ignored and leave the draft untouched.
func (s *Service) SaveDraftChange(ctx context.Context, id int64, change metadata.DraftChange, actor string) (metadata.DraftResult, error) {
	var out metadata.DraftResult
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, parent, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if parent.DDE {
			return fmt.Errorf("%w: %s", ErrEntityReadOnly, parent.ClassName)
		}

		changed, err := s.applyChange(&d.Schema, change)
		if err != nil {
			return err
		}
		if changed {
			d.ChangesMade = true
			if err := r.Drafts.Update(ctx, d); err != nil {
				return err
			}
		}
		out = metadata.DraftResult{ChangesMade: d.ChangesMade, Outdated: d.Outdated(parent)}
		return nil
	})
	return out, err
}

func (s *Service) applyChange(sch *metadata.Schema, c metadata.DraftChange) (bool, error) {
	switch c.Action {
	case metadata.ActionCreateField:
		return true, s.createField(sch, c)

	case metadata.ActionEditField:
		id, ok := c.FieldID.Int()
		if !ok {
			return false, nil
		}
		f := sch.GetFieldByID(id)
		if f == nil {
			return false, nil
		}
		t, _ := s.types.Resolve(f.TypeClass)
		return true, ApplyFieldPatch(sch, f, t, c.Path, c.Value)

	case metadata.ActionEditAdvanced:
		return true, ApplyAdvancedPatch(sch, c.Path, c.Value)

	case metadata.ActionEditSecurity:
		return true, ApplySecurityPatch(sch, c.Value)

	case metadata.ActionRemoveField:
		id, ok := c.FieldID.Int()
		if !ok {
			return false, fmt.Errorf("%w: field id %q", ErrInvalidPatch, c.FieldID)
		}
		return sch.RemoveField(id), nil

	default:
		return false, fmt.Errorf("%w: unknown action %q", ErrInvalidPatch, c.Action)
	}
}

func (s *Service) createField(sch *metadata.Schema, c metadata.DraftChange) error {
	t, ok := s.types.Resolve(c.TypeClass)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchType, c.TypeClass)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: field name is required", ErrInvalidPatch)
	}
	if sch.GetField(name) != nil {
		return fmt.Errorf("%w: field %s already exists", ErrInvalidPatch, name)
	}
	sch.AddField(metadata.NewField(t, c.DisplayName, name))
	return nil
}

// Commit merges the actor's draft into its parent. The parent is persisted
// with a new revision and compiled before the draft is deleted, so a compile
// failure leaves the draft in place.
func (s *Service) Commit(ctx context.Context, id int64, actor string) (metadata.EntityDTO, error) {
	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, parent, err := resolveDraft(ctx, r, id, actor, false)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: no draft of %s for %s", ErrEntityNotFound, parent.ClassName, actor)
		}
		if parent.DDE {
			return fmt.Errorf("%w: %s", ErrEntityReadOnly, parent.ClassName)
		}
		if d.Outdated(parent) {
			return fmt.Errorf("%w: %s", ErrEntityChanged, parent.ClassName)
		}

		parent.ApplyDraft(d)
		if err := r.Entities.Update(ctx, parent); err != nil {
			return err
		}
		if err := r.Compiler.ConstructEntity(ctx, parent); err != nil {
			return fmt.Errorf("construct %s: %w", parent.ClassName, err)
		}
		if d.Owner != "" {
			if err := r.Audits.CreateAudit(ctx, parent, d.Owner); err != nil {
				return err
			}
		}
		if err := r.Drafts.Delete(ctx, d); err != nil {
			return err
		}
		slog.InfoContext(ctx, "draft committed", "class", parent.ClassName, "owner", d.Owner, "revision", parent.Revision)
		out = parent.ToDTO()
		return nil
	})
	return out, err
}

// Abandon discards the actor's draft. It is a no-op when there is none.
func (s *Service) Abandon(ctx context.Context, id int64, actor string) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, _, err := resolveDraft(ctx, r, id, actor, false)
		if err != nil || d == nil {
			return err
		}
		return r.Drafts.Delete(ctx, d)
	})
}

// ListInProgress returns the actor's drafts that carry changes.
func (s *Service) ListInProgress(ctx context.Context, actor string) ([]metadata.EntityDTO, error) {
	out := []metadata.EntityDTO{}
	if actor == "" {
		return out, nil
	}
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		drafts, err := r.Drafts.RetrieveAll(ctx, actor)
		if err != nil {
			return err
		}
		for _, d := range drafts {
			if !d.ChangesMade {
				continue
			}
			parent, err := r.Entities.RetrieveByID(ctx, d.ParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				continue
			}
			out = append(out, d.ToDTO(parent))
		}
		return nil
	})
	return out, err
}

// UpdateDraft resets the actor's draft to the parent's current state.
func (s *Service) UpdateDraft(ctx context.Context, id int64, actor string) (metadata.EntityDTO, error) {
	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, parent, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		if err := r.Drafts.SetProperties(ctx, d, parent); err != nil {
			return err
		}
		out = d.ToDTO(parent)
		return nil
	})
	return out, err
}

// GetFields returns the fields of the actor's draft.
func (s *Service) GetFields(ctx context.Context, id int64, actor string) ([]metadata.FieldDTO, error) {
	var out []metadata.FieldDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, _, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		out = s.fieldDTOs(d.ParentID, &d.Schema, d.Fields)
		return nil
	})
	return out, err
}

// FindFieldByName looks a field up in the actor's draft.
func (s *Service) FindFieldByName(ctx context.Context, id int64, name, actor string) (metadata.FieldDTO, error) {
	var out metadata.FieldDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		d, _, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		f := d.GetField(name)
		if f == nil {
			return fmt.Errorf("%w: %s", ErrFieldNotFound, name)
		}
		t, _ := s.types.Resolve(f.TypeClass)
		out = d.FieldToDTO(d.ParentID, f, t)
		return nil
	})
	return out, err
}
