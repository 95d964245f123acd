package admin

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"

	"mds-backend/internal/auth"
	"mds-backend/internal/httperr"
	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

type Handler struct {
	svc            *schema.Service
	requestSchemas map[string]*jsonschema.Schema
}

func NewHandler(svc *schema.Service) *Handler {
	return &Handler{svc: svc, requestSchemas: reflectRequestSchemas()}
}

// RegisterAdminRoutes mounts the schema editor under /api/_admin. The
// middlewares run before every route; in production they are the JWT check
// and the admin role check.
func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/types", h.ListTypes)
	admin.Get("/drafts", h.ListInProgress)
	admin.Get("/request-schemas", h.ListRequestSchemas)
	admin.Get("/request-schemas/:name", h.GetRequestSchema)

	admin.Get("/entities", h.ListEntities)
	admin.Post("/entities", h.CreateEntity)
	admin.Get("/entities/by-class/:className", h.GetEntityByClassName)
	admin.Get("/entities/:id", h.GetEntity)
	admin.Delete("/entities/:id", h.DeleteEntity)
	admin.Post("/entities/:id/compile", h.GenerateDDE)

	admin.Get("/entities/:id/fields", h.GetEntityFields)
	admin.Post("/entities/:id/fields", h.AddFields)
	admin.Get("/entities/:id/display-fields", h.GetDisplayFields)
	admin.Put("/entities/:id/filterable", h.AddFilterableFields)
	admin.Put("/entities/:id/displayed", h.AddDisplayedFields)

	admin.Get("/entities/:id/lookups", h.GetLookups)
	admin.Post("/entities/:id/lookups", h.AddLookups)
	admin.Get("/entities/:id/lookups/:name", h.GetLookup)

	admin.Get("/entities/:id/advanced", h.GetAdvancedSettings)

	admin.Get("/entities/:id/draft", h.GetDraft)
	admin.Post("/entities/:id/draft", h.SaveDraftChange)
	admin.Delete("/entities/:id/draft", h.AbandonDraft)
	admin.Post("/entities/:id/draft/commit", h.CommitDraft)
	admin.Post("/entities/:id/draft/refresh", h.UpdateDraft)
	admin.Get("/entities/:id/draft/fields", h.GetDraftFields)
	admin.Get("/entities/:id/draft/fields/:name", h.FindDraftField)
}

func entityID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperr.InvalidPayload("Invalid entity id: " + c.Params("id"))
	}
	return id, nil
}

func data(c *fiber.Ctx, v any) error {
	return c.JSON(fiber.Map{"data": v})
}

// --- Catalog ---

func (h *Handler) ListTypes(c *fiber.Ctx) error {
	all := h.svc.Types().All()
	out := make([]metadata.TypeDTO, 0, len(all))
	for _, t := range all {
		out = append(out, metadata.TypeDTO{TypeClass: t.ClassName, DisplayName: t.DisplayName, Description: t.Description})
	}
	return data(c, out)
}

// --- Entity Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	out, err := h.svc.ListEntities(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	var dto metadata.EntityDTO
	if err := c.BodyParser(&dto); err != nil {
		return httperr.InvalidPayload("Invalid JSON body")
	}
	out, err := h.svc.Create(c.UserContext(), dto, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": out})
}

func (h *Handler) GetEntityByClassName(c *fiber.Ctx) error {
	out, err := h.svc.GetEntityByClassName(c.UserContext(), c.Params("className"))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetEntity(c.UserContext(), id)
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) GenerateDDE(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	if err := h.svc.GenerateDDE(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Committed fields, lookups and settings ---

func (h *Handler) GetEntityFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetEntityFields(c.UserContext(), id)
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) AddFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var fields []metadata.FieldDTO
	if err := c.BodyParser(&fields); err != nil {
		return httperr.InvalidPayload("Invalid JSON body")
	}
	if err := h.svc.AddFields(c.UserContext(), id, fields); err != nil {
		return err
	}
	return h.GetEntityFields(c)
}

func (h *Handler) GetDisplayFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetDisplayFields(c.UserContext(), id)
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) AddFilterableFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var names []string
	if err := c.BodyParser(&names); err != nil {
		return httperr.InvalidPayload("Expected a list of field names")
	}
	if err := h.svc.AddFilterableFields(c.UserContext(), id, names); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) AddDisplayedFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var positions map[string]int64
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&positions); err != nil {
			return httperr.InvalidPayload("Expected a map of field name to position")
		}
	}
	if err := h.svc.AddDisplayedFields(c.UserContext(), id, positions); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) GetLookups(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetLookups(c.UserContext(), id)
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) AddLookups(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var lookups []metadata.LookupDTO
	if err := c.BodyParser(&lookups); err != nil {
		return httperr.InvalidPayload("Invalid JSON body")
	}
	if err := h.svc.AddLookups(c.UserContext(), id, lookups); err != nil {
		return err
	}
	return h.GetLookups(c)
}

func (h *Handler) GetLookup(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetLookupByName(c.UserContext(), id, c.Params("name"))
	if err != nil {
		return err
	}
	return data(c, out)
}

// GetAdvancedSettings serves the committed settings unless ?committed=false.
func (h *Handler) GetAdvancedSettings(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	committed := c.Query("committed", "true") != "false"
	out, err := h.svc.GetAdvancedSettings(c.UserContext(), id, committed, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

// --- Draft Endpoints ---

func (h *Handler) ListInProgress(c *fiber.Ctx) error {
	out, err := h.svc.ListInProgress(c.UserContext(), auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) GetDraft(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetEntityForEdit(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) SaveDraftChange(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	var change metadata.DraftChange
	if err := c.BodyParser(&change); err != nil {
		return httperr.InvalidPayload("Invalid JSON body")
	}
	out, err := h.svc.SaveDraftChange(c.UserContext(), id, change, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) AbandonDraft(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Abandon(c.UserContext(), id, auth.Actor(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) CommitDraft(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Commit(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) UpdateDraft(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.UpdateDraft(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) GetDraftFields(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GetFields(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}

func (h *Handler) FindDraftField(c *fiber.Ctx) error {
	id, err := entityID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.FindFieldByName(c.UserContext(), id, c.Params("name"), auth.Actor(c))
	if err != nil {
		return err
	}
	return data(c, out)
}
