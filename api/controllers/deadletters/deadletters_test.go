package deadletters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
)

type stubStore struct {
	rows       []models.OutboxDLQ
	limit      int
	requeued   uuid.UUID
	listErr    error
	requeueErr error
}

func (s *stubStore) ListRecent(_ context.Context, limit int) ([]models.OutboxDLQ, error) {
	s.limit = limit
	return s.rows, s.listErr
}

func (s *stubStore) Requeue(_ context.Context, eventID uuid.UUID) error {
	s.requeued = eventID
	return s.requeueErr
}

func serve(h http.HandlerFunc, method, pattern, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(method, target, nil))
	return resp
}

func TestListReturnsDeadLetters(t *testing.T) {
	store := &stubStore{rows: []models.OutboxDLQ{{
		ID:          uuid.New(),
		EventID:     uuid.New(),
		EventType:   enums.EventPackageCreated,
		ErrorReason: enums.OutboxDLQReasonMaxAttempts,
	}}}

	resp := serve(List(store, nil), http.MethodGet, "/dlq", "/dlq?limit=10")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if store.limit != 10 {
		t.Fatalf("expected limit 10, got %d", store.limit)
	}
	var body struct {
		Data []deadLetterResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].EventType != "package_created" || body.Data[0].ErrorReason != "max_attempts" {
		t.Fatalf("unexpected payload %+v", body.Data)
	}

	store.listErr = errors.New("db down")
	if resp := serve(List(store, nil), http.MethodGet, "/dlq", "/dlq"); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if resp := serve(List(store, nil), http.MethodGet, "/dlq", "/dlq?limit=0"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", resp.Code)
	}
}

func TestRequeueMapsErrors(t *testing.T) {
	eventID := uuid.New()
	pattern := "/dlq/{eventId}/requeue"
	target := "/dlq/" + eventID.String() + "/requeue"
	store := &stubStore{}

	resp := serve(Requeue(store, nil), http.MethodPost, pattern, target)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if store.requeued != eventID {
		t.Fatalf("requeued wrong event %s", store.requeued)
	}

	store.requeueErr = pkgerrors.New(pkgerrors.CodeStateConflict, "outbox event was published or purged")
	if resp := serve(Requeue(store, nil), http.MethodPost, pattern, target); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	if resp := serve(Requeue(store, nil), http.MethodPost, pattern, "/dlq/nope/requeue"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
