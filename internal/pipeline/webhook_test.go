package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/davidahmann/proctor/internal/audit"
)

func TestWebhookNotifierPostsEscalation(t *testing.T) {
	var mu sync.Mutex
	var received []Escalation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		var esc Escalation
		if err := json.NewDecoder(r.Body).Decode(&esc); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, esc)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, 5*time.Second)
	err := notifier.Notify(context.Background(), Escalation{
		ID:     "esc-1",
		RunID:  "run-1",
		Module: "first_aid",
		Reason: "beyond scope",
		Query:  "q",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].ID != "esc-1" || received[0].RunID != "run-1" {
		t.Fatalf("received = %+v", received)
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, 5*time.Second)
	if err := notifier.Notify(context.Background(), Escalation{ID: "esc-1"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestWebhookNotifierUnreachableEndpoint(t *testing.T) {
	notifier := NewWebhookNotifier("http://127.0.0.1:1/hook", time.Second)
	if err := notifier.Notify(context.Background(), Escalation{ID: "esc-1"}); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestOutboxDeliversThroughWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []Escalation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var esc Escalation
		if err := json.NewDecoder(r.Body).Decode(&esc); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, esc)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	store := audit.NewInMemoryStore()
	chain, err := audit.NewChain(store, audit.RedactionNone, orchClock())
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	outbox := NewOutbox(NewWebhookNotifier(srv.URL, 5*time.Second), chain, orchClock())

	if _, err := outbox.Enqueue("run-1", RequestContext{Mode: "education", Module: "first_aid"}, "beyond scope", "q"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if _, err := outbox.ProcessDue(context.Background(), now, 10); err != nil {
		t.Fatalf("process: %v", err)
	}

	if outbox.Pending() != 0 {
		t.Fatalf("pending = %d after delivery", outbox.Pending())
	}
	mu.Lock()
	if len(received) != 1 || received[0].Module != "first_aid" {
		t.Fatalf("received = %+v", received)
	}
	mu.Unlock()
	if n := countByType(t, store, audit.EntryEscalationSent); n != 1 {
		t.Fatalf("sent entries = %d", n)
	}
}
