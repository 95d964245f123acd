package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"mds-backend/internal/auth"
	"mds-backend/internal/httperr"
	"mds-backend/internal/memstore"
	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

type testApp struct {
	t      *testing.T
	app    *fiber.App
	issuer *auth.Issuer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	svc := schema.NewService(memstore.New(), metadata.DefaultTypes(), "mds.entity")
	iss := auth.NewIssuer("test-secret", 0, 0)
	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler})
	RegisterAdminRoutes(app, NewHandler(svc), auth.Middleware(iss), auth.RequireAdmin())
	return &testApp{t: t, app: app, issuer: iss}
}

// do sends a request as user (an admin) and decodes the JSON response body.
func (a *testApp) do(method, path, user, body string) (int, map[string]any) {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		tok, err := a.issuer.AccessToken(user, []string{"admin"})
		if err != nil {
			a.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.app.Test(req, -1)
	if err != nil {
		a.t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			a.t.Fatalf("%s %s: invalid json %q", method, path, raw)
		}
	}
	return resp.StatusCode, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func dataMap(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	m, ok := out["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %v", out)
	}
	return m
}

func dataList(t *testing.T, out map[string]any) []any {
	t.Helper()
	l, ok := out["data"].([]any)
	if !ok {
		t.Fatalf("expected list data, got %v", out)
	}
	return l
}

func TestAdmin_RequiresAuth(t *testing.T) {
	a := newTestApp(t)
	status, out := a.do("GET", "/api/_admin/entities", "", "")
	if status != 401 || errorCode(out) != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %v", status, out)
	}
}

func TestAdmin_DraftWorkflow(t *testing.T) {
	a := newTestApp(t)

	status, out := a.do("POST", "/api/_admin/entities", "alice", `{"name":"Patient"}`)
	if status != 201 {
		t.Fatalf("create: expected 201, got %d %v", status, out)
	}
	entity := dataMap(t, out)
	if entity["className"] != "mds.entity.Patient" {
		t.Fatalf("unexpected class name %v", entity["className"])
	}

	status, out = a.do("POST", "/api/_admin/entities", "alice", `{"name":"Patient"}`)
	if status != 409 || errorCode(out) != "ENTITY_ALREADY_EXISTS" {
		t.Fatalf("duplicate: expected 409, got %d %v", status, out)
	}

	base := "/api/_admin/entities/1"
	status, out = a.do("POST", base+"/draft", "alice",
		`{"action":"create_field","typeClass":"string","displayName":"Name","name":"name"}`)
	if status != 200 || dataMap(t, out)["changesMade"] != true {
		t.Fatalf("save change: got %d %v", status, out)
	}

	// fieldId may be sent as a number.
	status, out = a.do("POST", base+"/draft", "alice",
		`{"action":"edit_field","fieldId":2,"path":"basic.displayName","value":["Full name"]}`)
	if status != 200 {
		t.Fatalf("edit field: got %d %v", status, out)
	}
	status, out = a.do("GET", base+"/draft/fields/name", "alice", "")
	if status != 200 || dataMap(t, out)["basic"].(map[string]any)["displayName"] != "Full name" {
		t.Fatalf("draft field: got %d %v", status, out)
	}

	status, out = a.do("GET", "/api/_admin/drafts", "alice", "")
	if status != 200 || len(dataList(t, out)) != 1 {
		t.Fatalf("in progress: got %d %v", status, out)
	}
	status, out = a.do("GET", "/api/_admin/drafts", "bob", "")
	if status != 200 || len(dataList(t, out)) != 0 {
		t.Fatalf("bob has no drafts: got %d %v", status, out)
	}

	status, out = a.do("POST", base+"/draft", "alice", `{"action":"edit_field","fieldId":2,"path":"basic.color","value":["red"]}`)
	if status != 422 || errorCode(out) != "INVALID_PATCH" {
		t.Fatalf("bad path: expected 422, got %d %v", status, out)
	}

	status, out = a.do("POST", base+"/draft/commit", "alice", "")
	if status != 200 {
		t.Fatalf("commit: got %d %v", status, out)
	}
	status, out = a.do("GET", base+"/fields", "alice", "")
	if status != 200 || len(dataList(t, out)) != 2 {
		t.Fatalf("committed fields: got %d %v", status, out)
	}

	status, out = a.do("POST", base+"/draft/commit", "alice", "")
	if status != 404 || errorCode(out) != "ENTITY_NOT_FOUND" {
		t.Fatalf("second commit: expected 404, got %d %v", status, out)
	}
}

func TestAdmin_StaleCommitConflicts(t *testing.T) {
	a := newTestApp(t)
	a.do("POST", "/api/_admin/entities", "alice", `{"name":"Visit"}`)
	base := "/api/_admin/entities/1"

	for _, user := range []string{"alice", "bob"} {
		status, out := a.do("POST", base+"/draft", user,
			`{"action":"create_field","typeClass":"boolean","displayName":"`+user+`","name":"`+user+`"}`)
		if status != 200 {
			t.Fatalf("%s: got %d %v", user, status, out)
		}
	}
	if status, out := a.do("POST", base+"/draft/commit", "alice", ""); status != 200 {
		t.Fatalf("alice commit: got %d %v", status, out)
	}

	status, out := a.do("GET", base+"/draft", "bob", "")
	if status != 200 || dataMap(t, out)["outdated"] != true {
		t.Fatalf("bob draft should be outdated: %d %v", status, out)
	}
	status, out = a.do("POST", base+"/draft/commit", "bob", "")
	if status != 409 || errorCode(out) != "ENTITY_CHANGED" {
		t.Fatalf("stale commit: expected 409, got %d %v", status, out)
	}

	if status, out := a.do("POST", base+"/draft/refresh", "bob", ""); status != 200 {
		t.Fatalf("refresh: %d %v", status, out)
	}
	if status, out := a.do("POST", base+"/draft/commit", "bob", ""); status != 200 {
		t.Fatalf("commit after refresh: %d %v", status, out)
	}
	if status, _ := a.do("DELETE", base+"/draft", "bob", ""); status != 204 {
		t.Fatalf("abandon without draft: expected 204, got %d", status)
	}
}

func TestAdmin_CommittedSettings(t *testing.T) {
	a := newTestApp(t)
	status, out := a.do("POST", "/api/_admin/entities", "", "")
	if status != 401 {
		t.Fatalf("expected 401, got %d %v", status, out)
	}

	a.do("POST", "/api/_admin/entities", "alice", `{"className":"org.example.Person"}`)
	base := "/api/_admin/entities/1"

	status, out = a.do("POST", base+"/fields", "alice",
		`[{"type":{"typeClass":"string"},"basic":{"displayName":"Name","name":"name"}},{"type":{"typeClass":"date"},"basic":{"displayName":"Born","name":"born"}}]`)
	if status != 200 || len(dataList(t, out)) != 2 {
		t.Fatalf("add fields: got %d %v", status, out)
	}

	if status, out := a.do("PUT", base+"/displayed", "alice", `{"born":0}`); status != 204 {
		t.Fatalf("displayed: got %d %v", status, out)
	}
	status, out = a.do("GET", base+"/display-fields", "alice", "")
	if status != 200 || len(dataList(t, out)) != 1 {
		t.Fatalf("display fields: got %d %v", status, out)
	}

	if status, out := a.do("PUT", base+"/filterable", "alice", `["name"]`); status != 204 {
		t.Fatalf("filterable: got %d %v", status, out)
	}
	status, out = a.do("POST", base+"/lookups", "alice", `[{"lookupName":"byName","fieldNames":["name"]}]`)
	if status != 200 || len(dataList(t, out)) != 1 {
		t.Fatalf("lookups: got %d %v", status, out)
	}
	if status, out := a.do("GET", base+"/lookups/BYNAME", "alice", ""); status != 200 {
		t.Fatalf("lookup by name: got %d %v", status, out)
	}
	if status, out := a.do("GET", base+"/lookups/missing", "alice", ""); status != 404 || errorCode(out) != "LOOKUP_NOT_FOUND" {
		t.Fatalf("missing lookup: got %d %v", status, out)
	}

	status, out = a.do("GET", base+"/advanced", "alice", "")
	if status != 200 {
		t.Fatalf("advanced: got %d %v", status, out)
	}
	browsing := dataMap(t, out)["browsing"].(map[string]any)
	if f := browsing["filterableFields"].([]any); len(f) != 1 || f[0] != "name" {
		t.Fatalf("unexpected filterable fields %v", f)
	}

	status, out = a.do("GET", "/api/_admin/entities/by-class/org.example.Person", "alice", "")
	if status != 200 || dataMap(t, out)["name"] != "Person" {
		t.Fatalf("by class: got %d %v", status, out)
	}
	if status, _ := a.do("POST", base+"/compile", "alice", ""); status != 204 {
		t.Fatalf("compile: expected 204, got %d", status)
	}
	if status, _ := a.do("DELETE", base, "alice", ""); status != 204 {
		t.Fatalf("delete: expected 204, got %d", status)
	}
	if status, out := a.do("GET", base, "alice", ""); status != 404 {
		t.Fatalf("deleted entity: expected 404, got %d %v", status, out)
	}
	if status, out := a.do("GET", "/api/_admin/entities/abc", "alice", ""); status != 400 || errorCode(out) != "INVALID_PAYLOAD" {
		t.Fatalf("bad id: expected 400, got %d %v", status, out)
	}
}

func TestAdmin_ListTypes(t *testing.T) {
	a := newTestApp(t)
	status, out := a.do("GET", "/api/_admin/types", "alice", "")
	if status != 200 {
		t.Fatalf("types: got %d %v", status, out)
	}
	found := false
	for _, it := range dataList(t, out) {
		if it.(map[string]any)["typeClass"] == "string" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected string type in %v", out)
	}
}

func TestAdmin_RequestSchemas(t *testing.T) {
	a := newTestApp(t)
	status, out := a.do("GET", "/api/_admin/request-schemas", "alice", "")
	if status != 200 || len(dataList(t, out)) != len(requestBodies) {
		t.Fatalf("list: got %d %v", status, out)
	}

	status, out = a.do("GET", "/api/_admin/request-schemas/draft-change", "alice", "")
	if status != 200 {
		t.Fatalf("draft-change: got %d %v", status, out)
	}
	props, ok := out["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected inline properties, got %v", out)
	}
	if _, ok := props["action"]; !ok {
		t.Fatalf("expected action property in %v", props)
	}
	fieldID, _ := props["fieldId"].(map[string]any)
	if oneOf, _ := fieldID["oneOf"].([]any); len(oneOf) != 2 {
		t.Fatalf("expected fieldId to accept number or string, got %v", fieldID)
	}

	status, out = a.do("GET", "/api/_admin/request-schemas/nope", "alice", "")
	if status != 404 || errorCode(out) != "NOT_FOUND" {
		t.Fatalf("unknown schema: got %d %v", status, out)
	}
}
