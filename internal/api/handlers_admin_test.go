package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agent-support/projectheritag/internal/app"
	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type adminRepoStub struct {
	store.Repository

	transfers map[uuid.UUID]*domain.Transfer
	logLimit  int
	audits    []domain.AdminLog
}

func (s *adminRepoStub) review(transferID uuid.UUID, adminID uuid.UUID, status string, audit *domain.AdminLog) (*domain.Transfer, error) {
	transfer, ok := s.transfers[transferID]
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	if transfer.Status != domain.TransferStatusPending {
		return nil, store.ErrTransferNotPending
	}
	transfer.Status = status
	transfer.ReviewedBy = &adminID
	s.audits = append(s.audits, *audit)
	return transfer, nil
}

func (s *adminRepoStub) ApproveTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error) {
	return s.review(transferID, adminID, domain.TransferStatusCompleted, audit)
}

func (s *adminRepoStub) RejectTransfer(ctx context.Context, transferID uuid.UUID, adminID uuid.UUID, audit *domain.AdminLog) (*domain.Transfer, error) {
	return s.review(transferID, adminID, domain.TransferStatusRejected, audit)
}

func (s *adminRepoStub) ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error) {
	s.logLimit = limit
	return s.audits, nil
}

func newAdminTestRouter(repo store.Repository, adminID uuid.UUID) http.Handler {
	h := NewHandlers(app.NewService(repo, nil, config.Config{}))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminID != uuid.Nil {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, adminID.String()))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/admin/transfers/{transferID}/approve", h.AdminApproveTransferHandler)
	r.Post("/admin/transfers/{transferID}/reject", h.AdminRejectTransferHandler)
	r.Get("/admin/logs", h.AdminListLogsHandler)
	return r
}

func TestAdminTransferReviewHandlers(t *testing.T) {
	adminID := uuid.New()
	pendingID := uuid.New()
	completedID := uuid.New()

	tests := []struct {
		name       string
		adminID    uuid.UUID
		path       string
		wantStatus int
		wantState  string
	}{
		{name: "approve", adminID: adminID, path: "/admin/transfers/" + pendingID.String() + "/approve", wantStatus: http.StatusOK, wantState: domain.TransferStatusCompleted},
		{name: "reject", adminID: adminID, path: "/admin/transfers/" + pendingID.String() + "/reject", wantStatus: http.StatusOK, wantState: domain.TransferStatusRejected},
		{name: "already reviewed", adminID: adminID, path: "/admin/transfers/" + completedID.String() + "/reject", wantStatus: http.StatusConflict},
		{name: "unknown transfer", adminID: adminID, path: "/admin/transfers/" + uuid.NewString() + "/approve", wantStatus: http.StatusNotFound},
		{name: "bad id", adminID: adminID, path: "/admin/transfers/not-a-uuid/approve", wantStatus: http.StatusBadRequest},
		{name: "no admin", adminID: uuid.Nil, path: "/admin/transfers/" + pendingID.String() + "/approve", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &adminRepoStub{transfers: map[uuid.UUID]*domain.Transfer{
				pendingID:   {ID: pendingID, Amount: 2500, ReferenceNumber: "HER1", Status: domain.TransferStatusPending},
				completedID: {ID: completedID, Amount: 100, ReferenceNumber: "HER2", Status: domain.TransferStatusCompleted},
			}}
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()
			newAdminTestRouter(repo, tt.adminID).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantState == "" {
				return
			}
			var transfer domain.Transfer
			if err := json.Unmarshal(rec.Body.Bytes(), &transfer); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if transfer.Status != tt.wantState || transfer.ReviewedBy == nil || *transfer.ReviewedBy != adminID {
				t.Fatalf("unexpected transfer %+v", transfer)
			}
			if len(repo.audits) != 1 || repo.audits[0].AdminID != adminID {
				t.Fatalf("expected one audit entry by the admin, got %+v", repo.audits)
			}
		})
	}
}

func TestAdminListLogsHandlerLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
	}{
		{query: "", wantLimit: 100},
		{query: "?limit=5", wantLimit: 5},
		{query: "?limit=abc", wantLimit: 100},
		{query: "?limit=5000", wantLimit: 200},
	}
	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			repo := &adminRepoStub{}
			req := httptest.NewRequest(http.MethodGet, "/admin/logs"+tt.query, nil)
			rec := httptest.NewRecorder()
			newAdminTestRouter(repo, uuid.New()).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if repo.logLimit != tt.wantLimit {
				t.Fatalf("expected limit %d, got %d", tt.wantLimit, repo.logLimit)
			}
		})
	}
}
