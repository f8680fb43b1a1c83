package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atlvs-cli/internal/engine"
	"atlvs-cli/internal/logging"
	"atlvs-cli/internal/model"
	"atlvs-cli/internal/store"
)

const tasksPath = "/api/w/W1/projects/tasks"

func newServer(t *testing.T, cfg Config) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(store.NewMemory(), logging.Discard())
	t.Cleanup(func() { _ = eng.Close() })
	cfg.Log = logging.Discard()
	return New(eng, cfg), eng
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func TestHealthz(t *testing.T) {
	s, _ := newServer(t, Config{})
	if rec := do(t, s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestModules(t *testing.T) {
	s, _ := newServer(t, Config{})
	rec := do(t, s, http.MethodGet, "/api/modules", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	mods := decode[[]map[string]any](t, rec)
	if len(mods) == 0 {
		t.Fatalf("no modules")
	}
}

func TestItemLifecycle(t *testing.T) {
	s, _ := newServer(t, Config{DevActor: "u1"})

	rec := do(t, s, http.MethodPost, tasksPath+"/items", `{"name":"Rig truss","status":"todo","description":"Use the **long** truss"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	created := decode[model.DataItem](t, rec)
	if created.ID == "" || created.Workspace != "W1" || created.CreatedBy != "u1" {
		t.Fatalf("created = %+v", created)
	}

	rec = do(t, s, http.MethodGet, tasksPath+"/items/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if html, _ := got["description_html"].(string); !strings.Contains(html, "<strong>long</strong>") {
		t.Fatalf("description_html = %q", html)
	}

	rec = do(t, s, http.MethodPatch, tasksPath+"/items/"+created.ID, `{"status":"done"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body)
	}
	if updated := decode[model.DataItem](t, rec); updated.Status != "done" {
		t.Fatalf("status = %q", updated.Status)
	}

	rec = do(t, s, http.MethodGet, tasksPath+"?q=truss", "", nil)
	tab := decode[struct {
		Data []model.DataItem `json:"data"`
	}](t, rec)
	if len(tab.Data) != 1 {
		t.Fatalf("tab data = %+v", tab.Data)
	}

	if rec := do(t, s, http.MethodDelete, tasksPath+"/items/"+created.ID, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodDelete, tasksPath+"/items/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Error.Kind != "not_found" {
		t.Fatalf("kind = %q", body.Error.Kind)
	}
}

func TestErrorMapping(t *testing.T) {
	s, eng := newServer(t, Config{})

	rec := do(t, s, http.MethodPost, tasksPath+"/items", `{"status":"todo"}`, map[string]string{actorHeader: "u1"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing name status = %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); body.Error.Field != "name" {
		t.Fatalf("field = %q", body.Error.Field)
	}

	rec = do(t, s, http.MethodPost, tasksPath+"/items", `{"name":"x","workspace_id":"W2"}`, map[string]string{actorHeader: "u1"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("foreign workspace status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/w/%20/projects/tasks", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank workspace status = %d", rec.Code)
	}

	if err := eng.Store.PutMember(context.Background(), model.Member{Workspace: "W1", ActorID: "owner", Role: model.RoleOwner}); err != nil {
		t.Fatal(err)
	}
	rec = do(t, s, http.MethodGet, tasksPath, "", map[string]string{actorHeader: "stranger"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, tasksPath, "", map[string]string{actorHeader: "owner"}); rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rec.Code)
	}
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("test-secret")
	s, _ := newServer(t, Config{Secret: secret})

	if rec := do(t, s, http.MethodGet, tasksPath, "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, tasksPath, "", map[string]string{"Authorization": "Bearer nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	expired, err := MintToken(secret, "u1", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, s, http.MethodGet, tasksPath, "", map[string]string{"Authorization": "Bearer " + expired}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d", rec.Code)
	}

	tok, err := MintToken(secret, "u1", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, s, http.MethodPost, tasksPath+"/items", `{"name":"Signed"}`, map[string]string{"Authorization": "Bearer " + tok})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signed create status = %d: %s", rec.Code, rec.Body)
	}
	if it := decode[model.DataItem](t, rec); it.CreatedBy != "u1" {
		t.Fatalf("created_by = %q", it.CreatedBy)
	}
}

func TestVerifyTokenRejectsOtherSecret(t *testing.T) {
	tok, err := MintToken([]byte("a"), "u1", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyToken([]byte("b"), tok); err == nil {
		t.Fatalf("token verified under the wrong secret")
	}
	if actor, err := VerifyToken([]byte("a"), tok); err != nil || actor != "u1" {
		t.Fatalf("VerifyToken = %q, %v", actor, err)
	}
}

func TestRender(t *testing.T) {
	s, _ := newServer(t, Config{DevActor: "u1"})
	if rec := do(t, s, http.MethodPost, tasksPath+"/items", `{"name":"Focus lights","status":"todo"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, tasksPath+"/render?view=list&width=60", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Atlvs-View") != "list" || !strings.Contains(rec.Body.String(), "Focus lights") {
		t.Fatalf("view %q body:\n%s", rec.Header().Get("X-Atlvs-View"), rec.Body)
	}

	rec = do(t, s, http.MethodGet, tasksPath+"/render?view=chat", "", nil)
	if rec.Header().Get("X-Atlvs-View") != "board" {
		t.Fatalf("disallowed view rendered as %q", rec.Header().Get("X-Atlvs-View"))
	}

	if rec := do(t, s, http.MethodGet, tasksPath+"/render?width=wide", "", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad width status = %d", rec.Code)
	}
}

func TestStreamPatchesSignals(t *testing.T) {
	s, eng := newServer(t, Config{DevActor: "u1"})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+tasksPath+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	h := model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = eng.Dispatcher("u1").Create(context.Background(), h, model.Patch{"workspace_id": "W1", "name": "Streamed task"})
	}()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if strings.Contains(sc.Text(), "Streamed task") {
			return
		}
	}
	t.Fatalf("stream ended without the created record: %v", sc.Err())
}

func TestSearch(t *testing.T) {
	s, eng := newServer(t, Config{})
	ctx := context.Background()
	h := model.ResourceHandle{Resource: "project_tasks", Workspace: "W1"}
	if _, err := eng.Dispatcher("u1").Create(ctx, h, model.Patch{"workspace_id": "W1", "name": "Rig truss"}); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, http.MethodGet, "/api/w/W1/search?q=truss", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	hits := decode[[]struct {
		Resource string         `json:"resource"`
		Item     model.DataItem `json:"item"`
	}](t, rec)
	if len(hits) != 1 || hits[0].Resource != "project_tasks" || hits[0].Item.Name != "Rig truss" {
		t.Fatalf("hits = %+v", hits)
	}

	if rec := do(t, s, http.MethodGet, "/api/w/W1/search?q=t", "", nil); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("short query = %s", rec.Body)
	}
	if rec := do(t, s, http.MethodGet, "/api/w/W1/search?q=truss&limit=0", "", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/w/W2/search?q=truss", "", nil); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("other workspace = %s", rec.Body)
	}
}
