package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShutdownManager_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), zerolog.Nop())

	var order []string
	failed := errors.New("second failed")
	sm.RegisterCloser(CloserFunc(func() error { order = append(order, "first"); return nil }))
	sm.RegisterCloser(CloserFunc(func() error { order = append(order, "second"); return failed }))
	sm.RegisterCloser(CloserFunc(func() error { order = append(order, "third"); return nil }))

	if err := sm.Shutdown(context.Background(), "test"); !errors.Is(err, failed) {
		t.Errorf("Shutdown error = %v, want %v", err, failed)
	}
	if want := []string{"third", "second", "first"}; !reflect.DeepEqual(order, want) {
		t.Errorf("close order = %v, want %v", order, want)
	}

	if err := sm.Shutdown(context.Background(), "again"); !errors.Is(err, failed) {
		t.Errorf("second Shutdown error = %v", err)
	}
	if len(order) != 3 {
		t.Errorf("closers ran again: %v", order)
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())
	release := make(chan struct{})
	defer close(release)
	sm.RegisterCloser(CloserFunc(func() error { <-release; return nil }))

	err := sm.Shutdown(context.Background(), "test")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want deadline exceeded", err)
	}
}

func TestSignalContext_CancelsWithParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}

func TestMetricsServer_ServesAndCloses(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "vectorlayer_imports_total 1\n")
	})
	gs := NewMetricsServer("127.0.0.1:0", h, zerolog.Nop())
	if err := gs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + gs.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "vectorlayer_imports_total") {
		t.Errorf("GET /metrics = %d %q", resp.StatusCode, body)
	}

	if err := gs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := http.Get("http://" + gs.Addr() + "/metrics"); err == nil {
		t.Error("server still answering after Close")
	}
}

func TestMetricsServer_CloseBeforeStart(t *testing.T) {
	gs := NewMetricsServer("127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())
	if err := gs.Close(); err != nil {
		t.Errorf("Close before Start: %v", err)
	}
}
