package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cpunion/moltbot/pkg/types"
)

func entry(i int) types.LogEntry {
	at := time.Date(2026, 1, 30, 12, 0, i, 0, time.UTC)
	return types.LogEntry{ID: fmt.Sprintf("e%d", i), Time: at, Message: fmt.Sprintf("Scanning hot sector... %d", i), Severity: types.SeverityAction}
}

func TestWriter_RotationAndResume(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 7; i++ {
		if err := w.Write(entry(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Total != 7 {
		t.Fatalf("Total=%d, want 7", idx.Total)
	}
	if len(idx.Shards) != 3 {
		t.Fatalf("Shards=%d, want 3", len(idx.Shards))
	}
	want := []Shard{
		{Seq: 1, File: "journal-000001.jsonl", Entries: 3},
		{Seq: 2, File: "journal-000002.jsonl", Entries: 3},
		{Seq: 3, File: "journal-000003.jsonl", Entries: 1},
	}
	for i, s := range want {
		if idx.Shards[i] != s {
			t.Fatalf("shard %d = %+v, want %+v", i, idx.Shards[i], s)
		}
	}

	// Resume fills the last shard before rotating.
	w2, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for i := 7; i < 10; i++ {
		if err := w2.Write(entry(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Total != 10 || len(idx.Shards) != 4 {
		t.Fatalf("after resume: total=%d shards=%d, want 10 and 4", idx.Total, len(idx.Shards))
	}
	if idx.Shards[2].Entries != 3 || idx.Shards[3].Entries != 1 {
		t.Fatalf("after resume: shards=%+v", idx.Shards)
	}
}

func TestOpen_RebuildsMissingIndex(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Write(entry(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "index.json")); err != nil {
		t.Fatalf("remove index: %v", err)
	}

	w, err = Open(dir, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()

	idx, err := LoadIndex(dir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx.Total != 5 || len(idx.Shards) != 3 {
		t.Fatalf("rebuilt index: total=%d shards=%d, want 5 and 3", idx.Total, len(idx.Shards))
	}
}

func TestRecent(t *testing.T) {
	dir := t.TempDir()

	got, err := Recent(dir, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty archive: got %v, %v", got, err)
	}

	w, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := w.Write(entry(i)); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err = Recent(dir, 4)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len=%d, want 4", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("e%d", i+4); e.ID != want {
			t.Fatalf("got[%d].ID=%s, want %s", i, e.ID, want)
		}
	}
}

func TestWrite_AfterClose(t *testing.T) {
	w, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(entry(0)); err == nil {
		t.Fatal("Write after Close succeeded")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestParseShardSeq(t *testing.T) {
	cases := map[string]int{
		"journal-000012.jsonl": 12,
		"journal-x.jsonl":      0,
		"events-000001.jsonl":  0,
		"index.json":           0,
	}
	for name, want := range cases {
		if got := parseShardSeq(name); got != want {
			t.Errorf("parseShardSeq(%q)=%d, want %d", name, got, want)
		}
	}
}
