package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

type recordSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_Filter(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"dispute_raised"}, discard())

	ctx := context.Background()
	_ = n.Notify(ctx, domain.Event{Type: domain.EventOptionResolved, MarketID: "m"})
	_ = n.Notify(ctx, domain.Event{Type: domain.EventDisputeRaised, MarketID: "m"})

	if len(s.titles) != 1 || !strings.HasPrefix(s.titles[0], "Dispute raised") {
		t.Fatalf("titles = %v", s.titles)
	}
}

func TestNotifier_JoinsFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), domain.Event{Type: domain.EventMarketResolved})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("a failing sender must not block the others")
	}
}

func TestNotifier_NilIsDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled(domain.EventDisputeRaised) {
		t.Fatal("nil notifier should be disabled")
	}
}

func TestFormat(t *testing.T) {
	title, msg := Format(domain.Event{
		Type:     domain.EventDisputeRaised,
		MarketID: "mkt",
		OptionID: "opt",
		Data:     map[string]any{"reason": "wrong source", "raised_by": "0xabc"},
	})
	if !strings.Contains(title, "manual review") {
		t.Fatalf("title = %q", title)
	}
	want := "market: mkt\noption: opt\nraised_by: 0xabc\nreason: wrong source"
	if msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["text"] != "Title\nbody" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSender_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v", err)
	}
}
