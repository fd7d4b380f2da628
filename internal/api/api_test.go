package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/GregulasM/Task-Manager-SaaS-FullMaster/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testEnv struct {
	router *gin.Engine
	db     *sql.DB
}

// newTestEnv builds the full router over an in-memory database created from
// the real migration file. The rate limiter is left unset so no redis is
// needed.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// Each pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to apply migration statement: %v\n%s", err, stmt)
		}
	}

	cfg := &config.Config{
		Auth: config.AuthConfig{
			Secret:     "api-test-secret",
			TokenTTL:   time.Hour,
			CookieName: "fm_token",
		},
		Env: "test",
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	return &testEnv{
		router: SetupRouter(db, cfg, nil, log),
		db:     db,
	}
}

func (e *testEnv) do(t *testing.T, method, target, cookie string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "fm_token", Value: cookie})
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

// signUp registers a user and logs them in, returning the session token.
func (e *testEnv) signUp(t *testing.T, email, name, password string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/user", "", gin.H{
		"action": "register", "email": email, "name": name, "password": password,
	})
	wantStatus(t, w, http.StatusOK)

	return e.login(t, email, password)
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/user", "", gin.H{
		"action": "login", "email": email, "password": password,
	})
	wantStatus(t, w, http.StatusOK)

	for _, c := range w.Result().Cookies() {
		if c.Name == "fm_token" && c.Value != "" {
			return c.Value
		}
	}
	t.Fatal("login did not set the fm_token cookie")
	return ""
}

func (e *testEnv) createProject(t *testing.T, cookie, name string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/project", cookie, gin.H{
		"action": "create", "name": name,
	})
	wantStatus(t, w, http.StatusOK)
	return decodeJSON(t, w)["id"].(string)
}

func (e *testEnv) createTask(t *testing.T, cookie, projectID, title string, extra gin.H) map[string]any {
	t.Helper()

	body := gin.H{"action": "create", "projectId": projectID, "title": title}
	for k, v := range extra {
		body[k] = v
	}
	w := e.do(t, http.MethodPost, "/api/task", cookie, body)
	wantStatus(t, w, http.StatusOK)
	return decodeJSON(t, w)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Given a 7 character password When registering Then rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", "", gin.H{
			"action": "register", "email": "short@example.com", "name": "Short", "password": "1234567",
		})
		wantStatus(t, w, http.StatusBadRequest)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Password must be at least 8 characters" {
			t.Errorf("statusMessage = %v", msg)
		}
	})

	t.Run("Given an 8 character password When registering Then created without password in response", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", "", gin.H{
			"action": "register", "email": "Ok@Example.COM", "name": "Ok", "password": "12345678",
		})
		wantStatus(t, w, http.StatusOK)

		got := decodeJSON(t, w)
		if got["email"] != "ok@example.com" {
			t.Errorf("email not normalized: %v", got["email"])
		}
		if strings.Contains(w.Body.String(), "password") {
			t.Errorf("response leaks password material: %s", w.Body.String())
		}
	})

	t.Run("Given a taken email When registering again Then conflict", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", "", gin.H{
			"action": "register", "email": "ok@example.com", "name": "Dup", "password": "12345678",
		})
		wantStatus(t, w, http.StatusConflict)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Email already exists" {
			t.Errorf("statusMessage = %v", msg)
		}
	})

	t.Run("Given a malformed email When registering Then rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", "", gin.H{
			"action": "register", "email": "not-an-email", "name": "Bad", "password": "12345678",
		})
		wantStatus(t, w, http.StatusBadRequest)
	})
}

func TestLoginAndSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "alice@example.com", "Alice", "password123")

	t.Run("Given a valid session cookie When fetching me Then the profile comes back", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/user?me=1", cookie, nil)
		wantStatus(t, w, http.StatusOK)
		if got := decodeJSON(t, w)["email"]; got != "alice@example.com" {
			t.Errorf("email = %v", got)
		}
	})

	t.Run("Given a wrong password When logging in Then unauthorized", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", "", gin.H{
			"action": "login", "email": "alice@example.com", "password": "wrong-password",
		})
		wantStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("Given no cookie When calling a guarded route Then unauthorized", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/user?me=1", "", nil)
		wantStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("Given a garbage cookie When calling a guarded route Then unauthorized", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/user?me=1", "not.a.token", nil)
		wantStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("Given a deleted account When reusing its valid cookie Then unauthorized", func(t *testing.T) {
		gone := env.signUp(t, "gone@example.com", "Gone", "password123")

		w := env.do(t, http.MethodDelete, "/api/user", gone, nil)
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodGet, "/api/user?me=1", gone, nil)
		wantStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("Given a logout When inspecting the response Then the cookie is cleared", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/user", cookie, gin.H{"action": "logout"})
		wantStatus(t, w, http.StatusOK)

		cleared := false
		for _, c := range w.Result().Cookies() {
			if c.Name == "fm_token" && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("logout did not clear the fm_token cookie")
		}
	})
}

func TestProjectAccessControl(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signUp(t, "owner@example.com", "Owner", "password123")
	stranger := env.signUp(t, "stranger@example.com", "Stranger", "password123")

	projectID := env.createProject(t, owner, "Secret Project")

	t.Run("Given a non-participant When reading project detail Then forbidden", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/project?id="+projectID, stranger, nil)
		wantStatus(t, w, http.StatusForbidden)
	})

	t.Run("Given a missing project When reading detail Then not found, not forbidden", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/project?id=no-such-project", stranger, nil)
		wantStatus(t, w, http.StatusNotFound)
	})

	t.Run("Given the owner When reading detail Then role OWNER and a membership row exist", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/project?id="+projectID, owner, nil)
		wantStatus(t, w, http.StatusOK)

		got := decodeJSON(t, w)
		project := got["project"].(map[string]any)
		if project["role"] != "OWNER" {
			t.Errorf("role = %v", project["role"])
		}
		members := got["members"].([]any)
		if len(members) != 1 {
			t.Fatalf("members = %d, want 1", len(members))
		}
	})

	t.Run("Given a non-owner member When patching the project Then forbidden", func(t *testing.T) {
		// Promote the stranger to member through the request/approve flow.
		w := env.do(t, http.MethodPost, "/api/project", stranger, gin.H{
			"action": "request_access", "projectId": projectID,
		})
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodGet, "/api/project?scope=invites", owner, nil)
		wantStatus(t, w, http.StatusOK)
		var feed []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &feed); err != nil {
			t.Fatalf("failed to decode feed: %v", err)
		}
		if len(feed) != 1 {
			t.Fatalf("feed = %d items, want 1", len(feed))
		}

		w = env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "approve_request", "invitationId": feed[0]["id"],
		})
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodGet, "/api/project?id="+projectID, stranger, nil)
		wantStatus(t, w, http.StatusOK)
		project := decodeJSON(t, w)["project"].(map[string]any)
		if project["role"] != "MEMBER" {
			t.Errorf("role = %v, want MEMBER", project["role"])
		}

		w = env.do(t, http.MethodPatch, "/api/project", stranger, gin.H{
			"id": projectID, "name": "Hijacked",
		})
		wantStatus(t, w, http.StatusForbidden)
	})

	t.Run("Given the owner When leaving Then conflict", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/project?id="+projectID+"&leave=1", owner, nil)
		wantStatus(t, w, http.StatusConflict)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Owner cannot leave" {
			t.Errorf("statusMessage = %v", msg)
		}
	})

	t.Run("Given a member When leaving Then the project drops from their list", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/project?id="+projectID+"&leave=1", stranger, nil)
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodGet, "/api/project?id="+projectID, stranger, nil)
		wantStatus(t, w, http.StatusForbidden)
	})
}

func TestInviteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signUp(t, "owner@example.com", "Owner", "password123")
	invitee := env.signUp(t, "invitee@example.com", "Invitee", "password123")

	projectID := env.createProject(t, owner, "Shared Project")

	invite := func(t *testing.T) map[string]any {
		w := env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "invite", "projectId": projectID, "email": "invitee@example.com",
		})
		wantStatus(t, w, http.StatusOK)
		return decodeJSON(t, w)
	}

	t.Run("Given a re-invite When comparing Then the row survives but the token rotates", func(t *testing.T) {
		first := invite(t)
		second := invite(t)

		if first["id"] != second["id"] {
			t.Errorf("invitation id changed on re-invite: %v -> %v", first["id"], second["id"])
		}
		if first["token"] == second["token"] {
			t.Error("token did not rotate on re-invite")
		}

		// The superseded token is dead.
		w := env.do(t, http.MethodPost, "/api/project", invitee, gin.H{
			"action": "accept_invite", "token": first["token"],
		})
		wantStatus(t, w, http.StatusNotFound)
	})

	t.Run("Given someone else's invitation When accepting Then forbidden", func(t *testing.T) {
		inv := invite(t)
		outsider := env.signUp(t, "outsider@example.com", "Outsider", "password123")

		w := env.do(t, http.MethodPost, "/api/project", outsider, gin.H{
			"action": "accept_invite", "token": inv["token"],
		})
		wantStatus(t, w, http.StatusForbidden)
	})

	t.Run("Given a pending invite When accepting Then membership appears and a second accept conflicts", func(t *testing.T) {
		inv := invite(t)

		w := env.do(t, http.MethodPost, "/api/project", invitee, gin.H{
			"action": "accept_invite", "token": inv["token"],
		})
		wantStatus(t, w, http.StatusOK)
		got := decodeJSON(t, w)
		project := got["project"].(map[string]any)
		if project["id"] != projectID {
			t.Errorf("project id = %v", project["id"])
		}

		w = env.do(t, http.MethodGet, "/api/project?id="+projectID, invitee, nil)
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodPost, "/api/project", invitee, gin.H{
			"action": "accept_invite", "token": inv["token"],
		})
		wantStatus(t, w, http.StatusConflict)
	})

	t.Run("Given an already-member invitee When inviting again Then conflict", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "invite", "projectId": projectID, "email": "invitee@example.com",
		})
		wantStatus(t, w, http.StatusConflict)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Already a member" {
			t.Errorf("statusMessage = %v", msg)
		}
	})

	t.Run("Given a revoked invite When accepting Then conflict", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "invite", "projectId": projectID, "email": "late@example.com",
		})
		wantStatus(t, w, http.StatusOK)
		inv := decodeJSON(t, w)

		w = env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "revoke_invite", "projectId": projectID, "invitationId": inv["id"],
		})
		wantStatus(t, w, http.StatusOK)

		late := env.signUp(t, "late@example.com", "Late", "password123")
		w = env.do(t, http.MethodPost, "/api/project", late, gin.H{
			"action": "accept_invite", "token": inv["token"],
		})
		wantStatus(t, w, http.StatusConflict)
	})

	t.Run("Given a member with a pending invite elsewhere When requesting access Then told already invited", func(t *testing.T) {
		other := env.createProject(t, owner, "Other Project")
		w := env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "invite", "projectId": other, "email": "invitee@example.com",
		})
		wantStatus(t, w, http.StatusOK)

		w = env.do(t, http.MethodPost, "/api/project", invitee, gin.H{
			"action": "request_access", "projectId": other,
		})
		wantStatus(t, w, http.StatusOK)
		if got := decodeJSON(t, w)["status"]; got != "ALREADY_INVITED" {
			t.Errorf("status = %v, want ALREADY_INVITED", got)
		}
	})

	t.Run("Given an invite rather than a request When approving Then conflict", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "invite", "projectId": projectID, "email": "pending@example.com",
		})
		wantStatus(t, w, http.StatusOK)
		inv := decodeJSON(t, w)

		w = env.do(t, http.MethodPost, "/api/project", owner, gin.H{
			"action": "approve_request", "invitationId": inv["id"],
		})
		wantStatus(t, w, http.StatusConflict)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Not a request" {
			t.Errorf("statusMessage = %v", msg)
		}
	})
}

func TestTaskBoard(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signUp(t, "owner@example.com", "Owner", "password123")
	projectID := env.createProject(t, owner, "Board Project")

	a := env.createTask(t, owner, projectID, "Task A", nil)
	b := env.createTask(t, owner, projectID, "Task B", nil)
	cTask := env.createTask(t, owner, projectID, "Task C", nil)

	taskPositions := func(t *testing.T, status string) []string {
		t.Helper()
		w := env.do(t, http.MethodGet, "/api/task?projectId="+projectID+"&action=list&status="+status, owner, nil)
		wantStatus(t, w, http.StatusOK)

		var tasks []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
			t.Fatalf("failed to decode list: %v", err)
		}
		ids := make([]string, len(tasks))
		for i, task := range tasks {
			if int(task["position"].(float64)) != i {
				t.Errorf("position gap at %d: %v", i, task["position"])
			}
			ids[i] = task["id"].(string)
		}
		return ids
	}

	t.Run("Given three created tasks When listing Then positions are 0,1,2 in TODO", func(t *testing.T) {
		got := taskPositions(t, "TODO")
		want := []string{a["id"].(string), b["id"].(string), cTask["id"].(string)}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("TODO = %v, want %v", got, want)
		}
	})

	t.Run("Given C moves to IN_PROGRESS index 0 When listing Then both columns are dense", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/task", owner, gin.H{
			"action": "move", "projectId": projectID, "id": cTask["id"], "toStatus": "IN_PROGRESS", "toIndex": 0,
		})
		wantStatus(t, w, http.StatusOK)
		moved := decodeJSON(t, w)
		if moved["status"] != "IN_PROGRESS" || int(moved["position"].(float64)) != 0 {
			t.Errorf("moved = status %v position %v", moved["status"], moved["position"])
		}

		if got := taskPositions(t, "TODO"); fmt.Sprint(got) != fmt.Sprint([]string{a["id"].(string), b["id"].(string)}) {
			t.Errorf("TODO = %v", got)
		}
		if got := taskPositions(t, "IN_PROGRESS"); fmt.Sprint(got) != fmt.Sprint([]string{cTask["id"].(string)}) {
			t.Errorf("IN_PROGRESS = %v", got)
		}
	})

	t.Run("Given a status change via PATCH When listing Then the task appends to the new column", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/api/task", owner, gin.H{
			"id": a["id"], "status": "IN_PROGRESS",
		})
		wantStatus(t, w, http.StatusOK)
		patched := decodeJSON(t, w)
		if int(patched["position"].(float64)) != 1 {
			t.Errorf("position = %v, want 1 (append)", patched["position"])
		}

		if got := taskPositions(t, "TODO"); fmt.Sprint(got) != fmt.Sprint([]string{b["id"].(string)}) {
			t.Errorf("TODO = %v", got)
		}
	})

	t.Run("Given a bulk reorder with a foreign id When applying Then rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/task", owner, gin.H{
			"action": "bulk_reorder", "projectId": projectID, "status": "IN_PROGRESS",
			"orderedIds": []string{cTask["id"].(string), "not-a-task"},
		})
		wantStatus(t, w, http.StatusBadRequest)
	})

	t.Run("Given a valid bulk reorder When applying Then the column follows it", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/task", owner, gin.H{
			"action": "bulk_reorder", "projectId": projectID, "status": "IN_PROGRESS",
			"orderedIds": []string{a["id"].(string), cTask["id"].(string)},
		})
		wantStatus(t, w, http.StatusOK)

		if got := taskPositions(t, "IN_PROGRESS"); fmt.Sprint(got) != fmt.Sprint([]string{a["id"].(string), cTask["id"].(string)}) {
			t.Errorf("IN_PROGRESS = %v", got)
		}
	})

	t.Run("Given a deletion When listing Then the gap closes", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/task?projectId="+projectID+"&id="+a["id"].(string), owner, nil)
		wantStatus(t, w, http.StatusOK)

		if got := taskPositions(t, "IN_PROGRESS"); fmt.Sprint(got) != fmt.Sprint([]string{cTask["id"].(string)}) {
			t.Errorf("IN_PROGRESS = %v", got)
		}
	})

	t.Run("Given an overdue task When reading the board Then it is flagged and counted", func(t *testing.T) {
		past := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
		overdue := env.createTask(t, owner, projectID, "Overdue Task", gin.H{"dueDate": past})
		if overdue["isOverdue"] != true {
			t.Errorf("isOverdue = %v, want true", overdue["isOverdue"])
		}

		w := env.do(t, http.MethodGet, "/api/task?projectId="+projectID+"&action=stats", owner, nil)
		wantStatus(t, w, http.StatusOK)
		if got := decodeJSON(t, w)["overdue"]; int(got.(float64)) != 1 {
			t.Errorf("overdue = %v, want 1", got)
		}

		// DONE tasks are never overdue.
		w = env.do(t, http.MethodPatch, "/api/task", owner, gin.H{
			"id": overdue["id"], "status": "DONE",
		})
		wantStatus(t, w, http.StatusOK)
		if got := decodeJSON(t, w)["isOverdue"]; got != false {
			t.Errorf("isOverdue after DONE = %v, want false", got)
		}
	})

	t.Run("Given an assignee outside the project When creating Then rejected", func(t *testing.T) {
		outsider := env.signUp(t, "outsider@example.com", "Outsider", "password123")
		w := env.do(t, http.MethodGet, "/api/user?me=1", outsider, nil)
		wantStatus(t, w, http.StatusOK)
		outsiderID := decodeJSON(t, w)["id"].(string)

		w = env.do(t, http.MethodPost, "/api/task", owner, gin.H{
			"action": "create", "projectId": projectID, "title": "Bad Assignee", "assigneeId": outsiderID,
		})
		wantStatus(t, w, http.StatusBadRequest)
		if msg := decodeJSON(t, w)["statusMessage"]; msg != "Assignee is not in project" {
			t.Errorf("statusMessage = %v", msg)
		}
	})

	t.Run("Given an unsupported method When calling /api/task Then 405", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/task", owner, nil)
		wantStatus(t, w, http.StatusMethodNotAllowed)
	})
}
