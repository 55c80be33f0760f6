package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"remindbot/internal/task"
)

func TestPrintTasks(t *testing.T) {
	t.Parallel()

	fired := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	three := 3
	var buf bytes.Buffer
	err := printTasks(&buf, []task.Record{
		{ID: "a1", TaskName: "물주기", Frequency: task.EveryNDays, Interval: &three, CheckTime: task.Evening, Active: true, LastFiredAt: &fired},
		{ID: "b2", TaskName: "병원", Frequency: task.Once, CheckTime: task.Morning},
	}, time.FixedZone("KST", 9*3600))
	if err != nil {
		t.Fatalf("printTasks: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[1], "3일마다") || !strings.Contains(lines[1], "2026-03-03T07:00:00+09:00") {
		t.Fatalf("row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "false") || !strings.HasSuffix(strings.TrimSpace(lines[2]), "-") {
		t.Fatalf("row = %q", lines[2])
	}
}

func TestFireRejectsUnknownSlot(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", "", "fire", "midnight"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "midnight") {
		t.Fatalf("err = %v", err)
	}
}

func TestTasksRequiresChat(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", "", "tasks"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--chat") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpsBaseURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		":8080":          "http://127.0.0.1:8080",
		"0.0.0.0:9000":   "http://127.0.0.1:9000",
		"[::]:9000":      "http://127.0.0.1:9000",
		"10.0.0.5:8080":  "http://10.0.0.5:8080",
		"localhost:6060": "http://localhost:6060",
	}
	for addr, want := range cases {
		got, err := opsBaseURL(addr)
		if err != nil || got != want {
			t.Errorf("opsBaseURL(%q) = %q, %v; want %q", addr, got, err, want)
		}
	}
	if _, err := opsBaseURL("8080"); err == nil {
		t.Error("expected error for address without port")
	}
}

func TestFireRemote(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if gotAuth != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	addr := srv.Listener.Addr().String()
	ctx := context.Background()

	reached, err := fireRemote(ctx, srv.Client(), addr, "tok", task.Evening)
	if !reached || err != nil {
		t.Fatalf("fireRemote = %v, %v", reached, err)
	}
	if gotPath != "/v1/slots/evening/fire" {
		t.Fatalf("path = %q", gotPath)
	}

	reached, err = fireRemote(ctx, srv.Client(), addr, "wrong", task.Evening)
	if !reached || err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("bad token = %v, %v", reached, err)
	}
}

func TestFireRemoteNobodyListening(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	reached, err := fireRemote(context.Background(), &http.Client{Timeout: 2 * time.Second}, addr, "", task.Morning)
	if reached || err != nil {
		t.Fatalf("fireRemote on closed port = %v, %v", reached, err)
	}
}
