package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bscott/mailsync/internal/message"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	msg := &message.Message{
		ID:        "42",
		Size:      1234,
		Read:      true,
		FromName:  "Alice",
		FromEmail: "alice@example.org",
		Date:      time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC),
		Subject:   "hello",
		Body:      "plain body",
		HTMLBody:  "<p>plain body</p>",
		Attachments: []message.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Size: 2048},
		},
	}
	if err := st.SaveMessage(ctx, "work", "INBOX", msg); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	got, err := st.LoadMessage(ctx, "work", "INBOX", "42")
	if err != nil {
		t.Fatalf("LoadMessage: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveMessage(ctx, "work", "INBOX", &message.Message{ID: "1", Subject: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveMessage(ctx, "work", "INBOX", &message.Message{ID: "1", Subject: "second", Body: "body"}); err != nil {
		t.Fatal(err)
	}

	got, err := st.LoadMessage(ctx, "work", "INBOX", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != "second" || got.Body != "body" {
		t.Errorf("upsert kept stale row: %+v", got)
	}

	ids, err := st.ExistingIDs(ctx, "work", "INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("got %d ids, want 1", len(ids))
	}
}

func TestSQLiteExistingIDsScopedToFolder(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	st.SaveMessage(ctx, "work", "INBOX", &message.Message{ID: "1"})
	st.SaveMessage(ctx, "work", "Archive", &message.Message{ID: "2"})
	st.SaveMessage(ctx, "personal", "INBOX", &message.Message{ID: "3"})

	ids, err := st.ExistingIDs(ctx, "work", "INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
	if _, ok := ids["1"]; !ok {
		t.Errorf("missing id 1: %v", ids)
	}
}

func TestSQLiteUpdateSeen(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveMessage(ctx, "work", "INBOX", &message.Message{ID: "1", Read: false}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateSeen(ctx, "work", "INBOX", "1", true); err != nil {
		t.Fatalf("UpdateSeen: %v", err)
	}

	got, err := st.LoadMessage(ctx, "work", "INBOX", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Read {
		t.Error("seen flag not updated")
	}

	if err := st.UpdateSeen(ctx, "work", "INBOX", "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSeen on missing row = %v, want ErrNotFound", err)
	}
}

func TestSQLiteLoadMissing(t *testing.T) {
	st := openTestStore(t)

	_, err := st.LoadMessage(context.Background(), "work", "INBOX", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteZeroDateSurvives(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SaveMessage(ctx, "work", "INBOX", &message.Message{ID: "1"}); err != nil {
		t.Fatal(err)
	}
	got, err := st.LoadMessage(ctx, "work", "INBOX", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Date.IsZero() {
		t.Errorf("absent date came back as %v", got.Date)
	}
}
