package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "service-key", nil)
}

func TestClient_SignIn(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/signin" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "service-key" {
			t.Errorf("X-Api-Key = %q", got)
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["email"] != "user@example.com" {
			t.Errorf("email = %q", payload["email"])
		}

		_ = json.NewEncoder(w).Encode(Session{UserID: "user-1", AccessToken: "tok-123"})
	}))

	session, err := client.SignIn(context.Background(), "user@example.com", "hunter22aB!")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if session.UserID != "user-1" || session.AccessToken != "tok-123" {
		t.Errorf("session = %+v", session)
	}
}

func TestClient_SignIn_RejectionSurfacesMessage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid email or password"}}`))
	}))

	_, err := client.SignIn(context.Background(), "user@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if apiErr.Error() != "Invalid email or password" {
		t.Errorf("message = %q", apiErr.Error())
	}
}

func TestClient_SignOut_IgnoresDeadToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "session missing"}`))
	}))

	if err := client.SignOut(context.Background(), "stale-token"); err != nil {
		t.Errorf("SignOut() with dead token should succeed, got %v", err)
	}
}

func TestClient_CreateGroup(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}

		var group Group
		_ = json.NewDecoder(r.Body).Decode(&group)
		group.ID = "g-1"
		group.CreatedBy = "user-1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(group)
	}))

	created, err := client.CreateGroup(context.Background(), "tok-123", Group{Name: "Calculus crew", Course: "MATH101"})
	if err != nil {
		t.Fatalf("CreateGroup() error: %v", err)
	}
	if created.ID != "g-1" || created.Name != "Calculus crew" {
		t.Errorf("created = %+v", created)
	}
}

func TestClient_ListGroups_CourseFilter(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("course"); got != "CS 201" {
			t.Errorf("course = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]Group{{ID: "g-1"}, {ID: "g-2"}})
	}))

	groups, err := client.ListGroups(context.Background(), "tok-123", "CS 201")
	if err != nil {
		t.Fatalf("ListGroups() error: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("len(groups) = %d, want 2", len(groups))
	}
}

func TestClient_JoinGroup_EscapesID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/groups/g%2F1/join" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.JoinGroup(context.Background(), "tok-123", "g/1"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}
}

func TestClient_EmailAvailable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The facade normalizes before asking.
		if got := r.URL.Query().Get("email"); got != "someone@example.com" {
			t.Errorf("email = %q", got)
		}
		_, _ = w.Write([]byte(`{"available": false}`))
	}))

	available, err := client.EmailAvailable(context.Background(), "  Someone@Example.COM ")
	if err != nil {
		t.Fatalf("EmailAvailable() error: %v", err)
	}
	if available {
		t.Error("available = true, want false")
	}
}

func TestClient_EmailAvailable_DegradesOnFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := client.EmailAvailable(context.Background(), "someone@example.com"); err == nil {
		t.Error("want 'unable to verify' error on backend failure")
	}

	if _, err := client.EmailAvailable(context.Background(), "   "); err == nil {
		t.Error("want error for blank email")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	t.Parallel()

	client := NewClient("", "", nil)
	if _, err := client.SignIn(context.Background(), "a@b.com", "pw"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("got %v, want ErrNotConfigured", err)
	}
}
