package admin

import (
	"reflect"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"

	"mds-backend/internal/httperr"
	"mds-backend/internal/metadata"
)

// requestBodies are the payloads editors send, published as JSON Schema so
// form builders can validate before submitting.
var requestBodies = map[string]any{
	"draft-change": metadata.DraftChange{},
	"entity":       metadata.EntityDTO{},
	"field":        metadata.FieldDTO{},
	"lookup":       metadata.LookupDTO{},
	"advanced":     metadata.AdvancedSettingsDTO{},
}

var fieldRefType = reflect.TypeOf(metadata.FieldRef(""))

func reflectRequestSchemas() map[string]*jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == fieldRefType {
				return &jsonschema.Schema{
					Description: "Field id, as a number or a numeric string",
					OneOf:       []*jsonschema.Schema{{Type: "integer"}, {Type: "string"}},
				}
			}
			return nil
		},
	}
	out := make(map[string]*jsonschema.Schema, len(requestBodies))
	for name, v := range requestBodies {
		out[name] = r.Reflect(v)
	}
	return out
}

// ListRequestSchemas returns the names of the published request schemas.
func (h *Handler) ListRequestSchemas(c *fiber.Ctx) error {
	names := make([]string, 0, len(h.requestSchemas))
	for name := range h.requestSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return data(c, names)
}

// GetRequestSchema serves the JSON Schema of one request body.
func (h *Handler) GetRequestSchema(c *fiber.Ctx) error {
	s, ok := h.requestSchemas[c.Params("name")]
	if !ok {
		return httperr.NotFound("request schema", c.Params("name"))
	}
	return c.JSON(s)
}
