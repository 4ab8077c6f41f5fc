package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ngonendi/edgestore"
)

func TestLoad(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, pass, _ := r.BasicAuth()
		gotAuth = pass
		json.NewEncoder(w).Encode(map[string]any{
			"email":       "Alice@Example.com",
			"developerId": "dev-1",
			"firstName":   "Alice",
			"status":      "active",
			"attributes":  []map[string]string{{"name": "plan", "value": "gold"}},
			"createdAt":   1700000000000,
		})
	}))
	defer server.Close()

	c := New(server.URL, "my-org", "admin", "secret")
	dev, err := c.Load(context.Background(), "ALICE@example.com")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if gotPath != "/organizations/my-org/developers/alice@example.com" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "secret" {
		t.Fatalf("basic auth not sent")
	}
	if dev.Email != "alice@example.com" || dev.DeveloperID != "dev-1" {
		t.Fatalf("unexpected record: %+v", dev)
	}
	if dev.Attributes["plan"] != "gold" {
		t.Fatalf("attributes not folded into a map: %v", dev.Attributes)
	}
	if dev.CreatedAt.IsZero() {
		t.Fatalf("created timestamp not decoded")
	}
}

func TestLoadMemoizesBothKeys(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"email":       "alice@example.com",
			"developerId": "dev-1",
		})
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	if _, err := c.Load(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := c.Load(context.Background(), "dev-1"); err != nil {
		t.Fatalf("load by id failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one HTTP call, got %d", calls)
	}
}

func TestLoadAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "developer.service.DeveloperIdDoesNotExist",
			"message": "DeveloperId nobody@example.com does not exist",
		})
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	_, err := c.Load(context.Background(), "nobody@example.com")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.NotFound() {
		t.Fatalf("expected not-found, got status %d", apiErr.Status)
	}
	if apiErr.Code != "developer.service.DeveloperIdDoesNotExist" {
		t.Fatalf("remote code lost: %q", apiErr.Code)
	}
}

func TestLoadMultipleSkipsMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/organizations/org/developers/alice@example.com" {
			json.NewEncoder(w).Encode(map[string]any{"email": "alice@example.com"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "does not exist"})
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	result, err := c.LoadMultiple(context.Background(), []string{"alice@example.com", "missing@example.com"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one record, got %d", len(result))
	}
	if _, found := result["alice@example.com"]; !found {
		t.Fatalf("result keyed wrong: %v", result)
	}
}

func TestLoadMultipleNilExpands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "expand=true" {
			t.Errorf("expected expand=true, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"developer": []map[string]any{
				{"email": "alice@example.com"},
				{"email": "bob@example.com"},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	result, err := c.LoadMultiple(context.Background(), nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected two records, got %d", len(result))
	}
}

func TestCreateFoldsResponseBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/organizations/org/developers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		payload["developerId"] = "assigned-id"
		payload["status"] = "active"
		payload["createdAt"] = 1700000000000
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	owner := int64(7)
	dev := &edgestore.Developer{Email: "carol@example.com", FirstName: "Carol", OwnerID: &owner}

	c := New(server.URL, "org", "", "")
	if err := c.Create(context.Background(), dev); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if dev.DeveloperID != "assigned-id" {
		t.Fatalf("assigned id not folded back: %q", dev.DeveloperID)
	}
	if dev.Status != edgestore.StatusActive {
		t.Fatalf("remote status not folded back: %q", dev.Status)
	}
	if dev.OwnerID == nil || *dev.OwnerID != 7 {
		t.Fatalf("local owner reference lost")
	}
}

func TestUpdateAddressesPreviousEmail(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	dev := &edgestore.Developer{Email: "old@example.com", DeveloperID: "dev-1"}
	dev.SetEmail("new@example.com")

	c := New(server.URL, "org", "", "")
	if err := c.Update(context.Background(), dev); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if gotPath != "/organizations/org/developers/old@example.com" {
		t.Fatalf("update addressed %q", gotPath)
	}
	if dev.Email != "new@example.com" {
		t.Fatalf("new email lost: %q", dev.Email)
	}
	if dev.OriginalEmail != "old@example.com" {
		t.Fatalf("shadow must survive until the caller clears it: %q", dev.OriginalEmail)
	}
}

func TestSetStatus(t *testing.T) {
	var gotPath, gotAction string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAction = r.URL.Query().Get("action")
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	if err := c.SetStatus(context.Background(), "alice@example.com", edgestore.StatusInactive); err != nil {
		t.Fatalf("status call failed: %v", err)
	}
	if gotPath != "/organizations/org/developers/alice@example.com" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAction != "inactive" {
		t.Fatalf("unexpected action %q", gotAction)
	}
}

func TestDelete(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "org", "", "")
	if err := c.Delete(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/organizations/org/developers/alice@example.com" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}
