package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestFileJournalAppendsAndRestores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	journal, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	ctx := context.Background()
	first := Finalization{ID: "a", Request: "req-1", Response: "4", Signature: "sig-1", ModelAttempts: 1, SubmitAttempts: 1, CreatedAt: 10}
	second := Finalization{ID: "b", Request: "req-2", Response: "5", Signature: "sig-2", ModelAttempts: 2, SubmitAttempts: 3, CreatedAt: 20}
	if err := journal.Record(ctx, first); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := journal.Record(ctx, second); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := journal.Record(ctx, first); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	recent, err := journal.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "b" {
		t.Fatalf("unexpected recent records: %+v", recent)
	}

	// 追加一行损坏数据，重新打开后应被忽略。
	file, err := os.OpenFile(journal.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	_, _ = file.WriteString("not json\n")
	file.Close()

	reopened, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	all, err := reopened.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(all) != 2 || all[0].Request != "req-2" || all[1].SubmitAttempts != 1 {
		t.Fatalf("unexpected restored records: %+v", all)
	}
	if err := reopened.Record(ctx, second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("restored journal should remember signatures, got %v", err)
	}
}
