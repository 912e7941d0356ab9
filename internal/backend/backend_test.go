package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"apply direct pressure to the wound"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	text, err := c.Invoke(context.Background(), "you are a first aid assistant", "mode=emergency", "how do I stop bleeding")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if text != "apply direct pressure to the wound" {
		t.Fatalf("text = %q", text)
	}
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Invoke(context.Background(), "sys", "", "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("invoke = %v, want ErrUnavailable", err)
	}
}

func TestHTTPClientBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Invoke(context.Background(), "sys", "", "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("invoke = %v, want ErrUnavailable", err)
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	_, err := c.Invoke(context.Background(), "sys", "", "q")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("invoke = %v, want ErrTimeout", err)
	}
}

func TestHTTPClientContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.Invoke(ctx, "sys", "", "q")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("invoke = %v, want ErrTimeout", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	f := Func(func(ctx context.Context, system, userContext, query string) (string, error) {
		return system + "|" + query, nil
	})
	got, err := f.Invoke(context.Background(), "s", "", "q")
	if err != nil || got != "s|q" {
		t.Fatalf("invoke = %q, %v", got, err)
	}
}
