package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifierDelivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	e := Event{Kind: KindTradeClosed, Symbol: "AAPL", Message: "closed (target) at 111.00", At: time.Now().UTC()}
	if err := n.Notify(context.Background(), e); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if got.Kind != KindTradeClosed || got.Symbol != "AAPL" {
		t.Fatalf("delivered event = %+v", got)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	if err := n.Notify(context.Background(), Event{Kind: KindHalt}); err == nil {
		t.Fatal("non-2xx should be an error")
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, Event) error {
	s.calls++
	return s.err
}

func TestFanoutAttemptsAll(t *testing.T) {
	a := &stubNotifier{err: errors.New("down")}
	b := &stubNotifier{}
	f := Fanout{a, b}

	err := f.Notify(context.Background(), Event{Kind: KindTradeOpened})
	if err == nil {
		t.Fatal("first notifier error should surface")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("calls = %d/%d; want 1/1", a.calls, b.calls)
	}
}
