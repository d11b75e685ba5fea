package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poigraph/internal/events"
)

func noWait(int) time.Duration { return 0 }

func TestDeliverSignsAndPosts(t *testing.T) {
	var (
		mu      sync.Mutex
		gotSig  string
		gotType string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotSig, gotType, gotBody = r.Header.Get("X-Signature"), r.Header.Get("X-Event-Type"), body
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(Config{URLs: []string{srv.URL}, Secret: "secret", MaxAttempts: 3})
	evt := events.RebuildEvent{Category: "Museum", Generation: "g1", Clusters: 4}
	if err := n.Deliver(context.Background(), evt); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotType != events.TypeCategoryRebuilt {
		t.Fatalf("event type header %q", gotType)
	}
	if !strings.HasPrefix(gotSig, "sha256=") || len(gotSig) != len("sha256=")+64 {
		t.Fatalf("signature header %q", gotSig)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	var decoded events.RebuildEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil || decoded.Generation != "g1" {
		t.Fatalf("bad body %s: %v", gotBody, err)
	}
}

func TestDeliverRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(Config{URLs: []string{srv.URL}, MaxAttempts: 3})
	n.backoff = noWait
	if err := n.Deliver(context.Background(), events.RebuildEvent{Category: "Museum"}); err == nil {
		t.Fatal("expected failure")
	}
	if hits.Load() != 3 {
		t.Fatalf("got %d attempts, want 3", hits.Load())
	}
}

func TestDeliverRecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(Config{URLs: []string{srv.URL}, MaxAttempts: 3})
	n.backoff = noWait
	if err := n.Deliver(context.Background(), events.RebuildEvent{Category: "Museum"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("got %d attempts, want 2", hits.Load())
	}
}

func TestRunForwardsBrokerEvents(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt events.RebuildEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		select {
		case got <- evt.Category:
		default:
		}
	}))
	defer srv.Close()

	b := events.NewMemory()
	n := NewNotifier(Config{URLs: []string{srv.URL}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { n.Run(ctx, b); close(done) }()

	// Run subscribes asynchronously; publish until the endpoint sees one.
	deadline := time.After(2 * time.Second)
	for {
		_ = b.Publish(ctx, events.RebuildEvent{Category: "ThemePark"})
		select {
		case cat := <-got:
			if cat != "ThemePark" {
				t.Fatalf("got %q", cat)
			}
			cancel()
			<-done
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("timeout waiting for delivery")
		}
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff %v %v", nextBackoff(0), nextBackoff(3))
	}
	if nextBackoff(50) != time.Second*1024 {
		t.Fatalf("cap not applied: %v", nextBackoff(50))
	}
}

func TestVerifyHMACRejects(t *testing.T) {
	sig := SignHMAC("k", []byte("body"))
	if VerifyHMAC("other", []byte("body"), sig) || VerifyHMAC("k", []byte("body"), "zz") {
		t.Fatal("expected rejection")
	}
}
