package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veymont/hotbackup/internal/engine"
	"github.com/veymont/hotbackup/internal/history"
	"github.com/veymont/hotbackup/internal/hotbackup"
)

// idleEngine completes instantly without copying anything.
type idleEngine struct{}

func (idleEngine) CreateBackup(_, _ []string, cb engine.Callbacks) int {
	cb.OnProgress(0, "Preparing backup")
	return engine.StatusOK
}

func (idleEngine) ThrottleBackup(int64) {}

type mockAttemptStore struct {
	mu       sync.Mutex
	attempts []*hotbackup.Attempt
	listErr  error
}

func (m *mockAttemptStore) CreateAttempt(_ context.Context, a *hotbackup.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *mockAttemptStore) UpdateAttempt(_ context.Context, a *hotbackup.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, prev := range m.attempts {
		if prev.ID == a.ID {
			cp := *a
			m.attempts[i] = &cp
			return nil
		}
	}
	return history.ErrAttemptNotFound
}

func (m *mockAttemptStore) GetAttempt(_ context.Context, id uuid.UUID) (*hotbackup.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, history.ErrAttemptNotFound
}

func (m *mockAttemptStore) ListAttempts(_ context.Context, _ int) ([]*hotbackup.Attempt, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts, nil
}

func setupBackupTestRouter(t *testing.T, store hotbackup.AttemptStore, preflight hotbackup.Preflight) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := hotbackup.NewRegistry(zerolog.Nop())
	svc := hotbackup.NewService(idleEngine{}, registry, t.TempDir(), "", hotbackup.ServiceOptions{
		Store:     store,
		Preflight: preflight,
	}, zerolog.Nop())

	r := gin.New()
	handler := NewBackupHandler(svc, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStartBackup(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		store := &mockAttemptStore{}
		r := setupBackupTestRouter(t, store, nil)

		resp := doJSON(r, "POST", "/api/v1/backups", gin.H{"destination": t.TempDir()})
		if resp.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
		}

		var attempt hotbackup.Attempt
		if err := json.Unmarshal(resp.Body.Bytes(), &attempt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if attempt.ID == uuid.Nil {
			t.Error("attempt id not set")
		}
		if attempt.FinishedAt != nil {
			t.Error("attempt already finished in the accepted response")
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

		resp := doJSON(r, "POST", "/api/v1/backups", gin.H{})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})

	t.Run("preflight rejection", func(t *testing.T) {
		preflight := func(string, []string) error {
			return fmt.Errorf("destination on same filesystem as source")
		}
		r := setupBackupTestRouter(t, &mockAttemptStore{}, preflight)

		resp := doJSON(r, "POST", "/api/v1/backups", gin.H{"destination": t.TempDir()})
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", resp.Code)
		}
	})
}

func TestGetStatus_NoBackupRunning(t *testing.T) {
	r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

	resp := doJSON(r, "GET", "/api/v1/backups/status", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSetThrottle(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{"valid rate", gin.H{"bytes_per_second": 1 << 20}, http.StatusNoContent},
		{"unthrottle", gin.H{"bytes_per_second": 0}, http.StatusNoContent},
		{"negative rate", gin.H{"bytes_per_second": -1}, http.StatusBadRequest},
		{"missing field", gin.H{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

			resp := doJSON(r, "PUT", "/api/v1/backups/throttle", tt.body)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestListAttempts(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := &mockAttemptStore{}
		now := time.Now().UTC()
		_ = store.CreateAttempt(context.Background(), &hotbackup.Attempt{
			ID:          uuid.New(),
			Destination: "/backups/one",
			StartedAt:   now,
		})
		r := setupBackupTestRouter(t, store, nil)

		resp := doJSON(r, "GET", "/api/v1/backups", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}

		var body struct {
			Attempts []*hotbackup.Attempt `json:"attempts"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(body.Attempts) != 1 {
			t.Fatalf("expected 1 attempt, got %d", len(body.Attempts))
		}
	})

	t.Run("empty journal", func(t *testing.T) {
		r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

		resp := doJSON(r, "GET", "/api/v1/backups", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		var body struct {
			Attempts []*hotbackup.Attempt `json:"attempts"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Attempts == nil {
			t.Error("attempts should be an empty array, not null")
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

		resp := doJSON(r, "GET", "/api/v1/backups?limit=banana", nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})
}

func TestGetAttempt(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store := &mockAttemptStore{}
		id := uuid.New()
		_ = store.CreateAttempt(context.Background(), &hotbackup.Attempt{
			ID:          id,
			Destination: "/backups/one",
			StartedAt:   time.Now().UTC(),
		})
		r := setupBackupTestRouter(t, store, nil)

		resp := doJSON(r, "GET", "/api/v1/backups/"+id.String(), nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

		resp := doJSON(r, "GET", "/api/v1/backups/"+uuid.NewString(), nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		r := setupBackupTestRouter(t, &mockAttemptStore{}, nil)

		resp := doJSON(r, "GET", "/api/v1/backups/not-a-uuid", nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
	})
}
