package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFormatLine(t *testing.T) {
	ev := AuthEvent{
		ID:         "e1",
		Type:       EventLoginFailed,
		UserID:     7,
		Identifier: "coa***@example.com",
		Origin:     "203.0.*.*",
		Reason:     "wrong_password",
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	want := `[2026-03-01T09:00:00Z] login.failed | id=e1 | user_id=7 | identifier="coa***@example.com" | origin=203.0.*.* | reason=wrong_password` + "\n"
	if got := FormatLine(ev); got != want {
		t.Fatalf("FormatLine() =\n%q\nwant\n%q", got, want)
	}

	short := FormatLine(AuthEvent{ID: "e2", Type: EventLogout, OccurredAt: ev.OccurredAt})
	if short != "[2026-03-01T09:00:00Z] session.logout | id=e2\n" {
		t.Fatalf("FormatLine(short) = %q", short)
	}
}

func TestAuditConsumer_HandleAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := &AuditConsumer{Dir: dir}

	for _, typ := range []AuthEventType{EventLoginSucceeded, EventLogoutAll} {
		body, err := json.Marshal(NewAuthEvent(typ, time.Now()))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := c.Handle(body); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "auth.log"))
	if err != nil {
		t.Fatalf("read auth.log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "login.succeeded") || !strings.Contains(lines[1], "session.logout_all") {
		t.Fatalf("auth.log = %q", data)
	}
}

func TestAuditConsumer_HandleRejectsBadMessages(t *testing.T) {
	c := &AuditConsumer{Dir: t.TempDir()}
	if err := c.Handle([]byte("{not json")); err == nil {
		t.Fatal("Handle(bad json) should fail")
	}
	if err := c.Handle([]byte(`{"id":"x"}`)); err == nil {
		t.Fatal("Handle(no type) should fail")
	}
}
