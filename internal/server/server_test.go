package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(http.NewServeMux(), Config{
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}, logger)
}

func TestShutdown_HooksRunLIFO(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	var order []string
	for _, name := range []string{"history worker", "scan worker", "scanner"} {
		name := name
		s.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := s.shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	want := []string{"scanner", "scan worker", "history worker"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdown_FailingHookDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	bad := errors.New("drain failed")
	var stopped []string
	s.OnShutdown("first", func(context.Context) error {
		stopped = append(stopped, "first")
		return nil
	})
	s.OnShutdown("second", func(context.Context) error {
		return bad
	})

	if err := s.shutdown(); !errors.Is(err, bad) {
		t.Errorf("shutdown err = %v, want the hook error", err)
	}
	if len(stopped) != 1 || stopped[0] != "first" {
		t.Errorf("remaining hooks should still stop: %v", stopped)
	}
}
