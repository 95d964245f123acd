package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mds-backend/internal/metadata"
)

// Service is the schema editor core. Every operation runs in one unit of work.
type Service struct {
	uow       UnitOfWork
	types     *metadata.TypeRegistry
	namespace string
}

// NewService creates the core. namespace prefixes the class names of
// entities created without one.
func NewService(uow UnitOfWork, types *metadata.TypeRegistry, namespace string) *Service {
	return &Service{uow: uow, types: types, namespace: namespace}
}

// Types returns the type catalog the service builds fields from.
func (s *Service) Types() *metadata.TypeRegistry {
	return s.types
}

// Create registers a new entity. A class name without a namespace marks a
// UI-created entity: its class name is built from the entity name (or the
// bare class name) in the generated namespace, it receives an identity field
// and is compiled immediately.
func (s *Service) Create(ctx context.Context, dto metadata.EntityDTO, actor string) (metadata.EntityDTO, error) {
	name := strings.TrimSpace(dto.Name)
	className := strings.TrimSpace(dto.ClassName)
	fromUI := metadata.PackageOf(className) == ""
	if fromUI && name != "" {
		className = name
	}
	if className == "" {
		return metadata.EntityDTO{}, fmt.Errorf("%w: class name is required", ErrInvalidEntity)
	}
	if fromUI {
		className = s.namespace + "." + className
	}

	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		exists, err := r.Entities.Contains(ctx, className)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrEntityAlreadyExists, className)
		}

		e := metadata.NewEntity(className, name, dto.Module, dto.Namespace)
		if dto.SecurityMode.IsValid() {
			e.Security = metadata.Security{Mode: dto.SecurityMode, Members: dto.SecurityMembers}
		}
		if fromUI {
			t, ok := s.types.Resolve(metadata.IDFieldType)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNoSuchType, metadata.IDFieldType)
			}
			e.AddField(metadata.NewIDField(t))
		} else {
			e.DDE = dto.ReadOnly
		}

		if err := r.Entities.Create(ctx, e); err != nil {
			return err
		}
		if fromUI {
			slog.InfoContext(ctx, "constructing entity created from UI", "class", e.ClassName)
			if err := r.Compiler.ConstructEntity(ctx, e); err != nil {
				return fmt.Errorf("construct %s: %w", e.ClassName, err)
			}
		}
		if actor != "" {
			if err := r.Audits.CreateAudit(ctx, e, actor); err != nil {
				return err
			}
		}
		out = e.ToDTO()
		return nil
	})
	return out, err
}

// Delete removes an entity and all drafts of it. A draft id resolves to its parent.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := r.Entities.RetrieveByID(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			d, err := r.Drafts.RetrieveByID(ctx, id)
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
			}
			if e, err = r.Entities.RetrieveByID(ctx, d.ParentID); err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("%w: %d", ErrEntityNotFound, d.ParentID)
			}
		}
		if e.DDE {
			return fmt.Errorf("%w: %s", ErrEntityReadOnly, e.ClassName)
		}
		if err := r.Drafts.DeleteAll(ctx, e); err != nil {
			return err
		}
		return r.Entities.Delete(ctx, e)
	})
}

// ListEntities returns all committed entities.
func (s *Service) ListEntities(ctx context.Context) ([]metadata.EntityDTO, error) {
	var out []metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		all, err := r.Entities.RetrieveAll(ctx)
		if err != nil {
			return err
		}
		out = make([]metadata.EntityDTO, 0, len(all))
		for _, e := range all {
			out = append(out, e.ToDTO())
		}
		return nil
	})
	return out, err
}

// GetEntity returns the committed entity, or the draft with that id seen as an entity.
func (s *Service) GetEntity(ctx context.Context, id int64) (metadata.EntityDTO, error) {
	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := r.Entities.RetrieveByID(ctx, id)
		if err != nil {
			return err
		}
		if e != nil {
			out = e.ToDTO()
			return nil
		}
		d, err := r.Drafts.RetrieveByID(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
		}
		parent, err := requireEntity(ctx, r, d.ParentID)
		if err != nil {
			return err
		}
		out = d.ToDTO(parent)
		return nil
	})
	return out, err
}

func (s *Service) GetEntityByClassName(ctx context.Context, className string) (metadata.EntityDTO, error) {
	var out metadata.EntityDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := r.Entities.RetrieveByClassName(ctx, className)
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, className)
		}
		out = e.ToDTO()
		return nil
	})
	return out, err
}

// GetEntityFields returns the committed fields ordered by display position.
func (s *Service) GetEntityFields(ctx context.Context, id int64) ([]metadata.FieldDTO, error) {
	var out []metadata.FieldDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		fields := append([]*metadata.Field(nil), e.Fields...)
		SortByDisplayPosition(fields)
		out = s.fieldDTOs(e.ID, &e.Schema, fields)
		return nil
	})
	return out, err
}

// GetDisplayFields returns the committed fields flagged displayable.
func (s *Service) GetDisplayFields(ctx context.Context, id int64) ([]metadata.FieldDTO, error) {
	var out []metadata.FieldDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		out = s.fieldDTOs(e.ID, &e.Schema, DisplayableFields(e.Fields))
		return nil
	})
	return out, err
}

// AddFields reconciles the committed field list with fields.
func (s *Service) AddFields(ctx context.Context, id int64, fields []metadata.FieldDTO) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		next, err := ReconcileFields(e.Fields, fields, s.types, e.AllocFieldID)
		if err != nil {
			return err
		}
		e.SetFields(next)
		return r.Entities.Update(ctx, e)
	})
}

// AddLookups reconciles the committed lookup list with lookups.
func (s *Service) AddLookups(ctx context.Context, id int64, lookups []metadata.LookupDTO) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		next, err := ReconcileLookups(e.Lookups, lookups, e.Fields, e.AllocLookupID)
		if err != nil {
			return err
		}
		e.SetLookups(next)
		return r.Entities.Update(ctx, e)
	})
}

func (s *Service) GetLookups(ctx context.Context, id int64) ([]metadata.LookupDTO, error) {
	var out []metadata.LookupDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		out = make([]metadata.LookupDTO, 0, len(e.Lookups))
		for _, l := range e.Lookups {
			out = append(out, e.LookupToDTO(l))
		}
		return nil
	})
	return out, err
}

func (s *Service) GetLookupByName(ctx context.Context, id int64, name string) (metadata.LookupDTO, error) {
	var out metadata.LookupDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		l := e.GetLookupByName(name)
		if l == nil {
			return fmt.Errorf("%w: %s", ErrLookupNotFound, name)
		}
		out = e.LookupToDTO(l)
		return nil
	})
	return out, err
}

// AddFilterableFields marks exactly the named committed fields filterable.
func (s *Service) AddFilterableFields(ctx context.Context, id int64, names []string) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		ApplyFilterable(&e.Schema, names)
		return r.Entities.Update(ctx, e)
	})
}

// AddDisplayedFields sets display positions on the committed fields. An empty
// map makes every field displayable in declaration order.
func (s *Service) AddDisplayedFields(ctx context.Context, id int64, positions map[string]int64) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		ApplyDisplayPositions(&e.Schema, positions)
		return r.Entities.Update(ctx, e)
	})
}

// GetAdvancedSettings returns the committed settings, or the actor's draft
// settings when committed is false.
func (s *Service) GetAdvancedSettings(ctx context.Context, id int64, committed bool, actor string) (metadata.AdvancedSettingsDTO, error) {
	var out metadata.AdvancedSettingsDTO
	err := s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		if committed {
			e, err := requireEntity(ctx, r, id)
			if err != nil {
				return err
			}
			out = e.AdvancedToDTO(e.ID)
			return nil
		}
		d, _, err := resolveDraft(ctx, r, id, actor, true)
		if err != nil {
			return err
		}
		out = d.AdvancedToDTO(d.ParentID)
		return nil
	})
	return out, err
}

// GenerateDDE compiles a programmatically created entity.
func (s *Service) GenerateDDE(ctx context.Context, id int64) error {
	return s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		e, err := requireEntity(ctx, r, id)
		if err != nil {
			return err
		}
		return r.Compiler.ConstructEntity(ctx, e)
	})
}

func (s *Service) fieldDTOs(entityID int64, sch *metadata.Schema, fields []*metadata.Field) []metadata.FieldDTO {
	out := make([]metadata.FieldDTO, 0, len(fields))
	for _, f := range fields {
		t, _ := s.types.Resolve(f.TypeClass)
		out = append(out, sch.FieldToDTO(entityID, f, t))
	}
	return out
}

func requireEntity(ctx context.Context, r Repos, id int64) (*metadata.Entity, error) {
	e, err := r.Entities.RetrieveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	return e, nil
}
