package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		in     string
		limit  int
		chunks int
	}{
		{"short", "안녕", 10, 1},
		{"exact", strings.Repeat("가", 10), 10, 1},
		{"hard cut", strings.Repeat("가", 25), 10, 3},
		{"newline cut", strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6), 10, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tc.in, tc.limit)
			if len(got) != tc.chunks {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tc.chunks)
			}
			for _, c := range got {
				if utf8.RuneCountInString(c) > tc.limit {
					t.Fatalf("chunk %q exceeds limit", c)
				}
			}
		})
	}

	got := splitText(strings.Repeat("a", 6)+"\n"+strings.Repeat("b", 6), 10)
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("newline split = %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestUpdatesDropWhenConsumerIsFull(t *testing.T) {
	t.Parallel()

	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Not started: nothing to deliver to.
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{Text: "x"}})
	if a.droppedUpdates.Load() != 0 {
		t.Fatal("updates without a consumer are not counted as drops")
	}

	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{Text: "1"}})
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{Text: "2"}})
	if got := (<-out).Message.Text; got != "1" {
		t.Fatalf("first update = %q", got)
	}
	if a.droppedUpdates.Load() != 1 {
		t.Fatalf("dropped = %d", a.droppedUpdates.Load())
	}
}

func TestSendIsBoundedBySendTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a, err := New(Config{Token: "123:abc", Offline: true, APIURL: srv.URL, SendTimeout: 150 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	err = a.SendNotification(context.Background(), 42, "⏰ 리마인더: 스트레칭")
	if err == nil {
		t.Fatal("expected a timeout error from a hung Bot API")
	}
	if took := time.Since(start); took > 3*time.Second {
		t.Fatalf("send took %v, want about the send timeout", took)
	}
	if hits.Load() != 1 {
		t.Fatalf("api hits = %d", hits.Load())
	}
}
