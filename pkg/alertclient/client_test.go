package alertclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agent-support/projectheritag/internal/domain"
)

func TestSendAlertRoutesByKind(t *testing.T) {
	var paths []string
	var lastBody domain.AlertEvent
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&lastBody); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	ctx := context.Background()
	if err := client.SendAlert(ctx, domain.AlertEvent{Kind: domain.AlertKindDebit, Email: "a@example.com", Amount: 500}); err != nil {
		t.Fatalf("debit alert failed: %v", err)
	}
	if err := client.SendAlert(ctx, domain.AlertEvent{Kind: domain.AlertKindCredit, Email: "b@example.com", Amount: 500}); err != nil {
		t.Fatalf("credit alert failed: %v", err)
	}

	if len(paths) != 2 || paths[0] != "/send-debit-alert" || paths[1] != "/send-credit-alert" {
		t.Fatalf("unexpected paths %v", paths)
	}
	if lastBody.Email != "b@example.com" {
		t.Fatalf("unexpected body %+v", lastBody)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
}

func TestSendAlertClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{status: http.StatusBadRequest, permanent: true},
		{status: http.StatusNotFound, permanent: true},
		{status: http.StatusTooManyRequests, permanent: false},
		{status: http.StatusBadGateway, permanent: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewClient(server.URL, "").SendAlert(context.Background(), domain.AlertEvent{Kind: domain.AlertKindDebit})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.permanent {
				t.Fatalf("expected permanent=%v for %d", tt.permanent, tt.status)
			}
		})
	}
}

func TestIsPermanentIgnoresTransportErrors(t *testing.T) {
	if IsPermanent(errors.New("connection refused")) {
		t.Fatal("expected transport error to be retryable")
	}
}
