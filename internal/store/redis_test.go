package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tequalsme/hadoop-examples/internal/logging"
	"github.com/tequalsme/hadoop-examples/wordcount"
)

func makeTestDB(t *testing.T) (*DB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	db := MakeRedisDB(mr.Addr(), "", logging.Discard())
	t.Cleanup(func() { db.Close() })
	return db, mr
}

var _ wordcount.CounterPublisher = (*DB)(nil)

func TestPublishCounters(t *testing.T) {
	db, mr := makeTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatal(err)
	}

	err := db.PublishCounters(context.Background(), "run-1", map[string]int64{wordcount.TotalWords: 9})
	if err != nil {
		t.Fatal(err)
	}
	if got := mr.HGet("wordcount:run-1:counters", wordcount.TotalWords); got != "9" {
		t.Errorf("TOTAL_WORDS = %q, want 9", got)
	}
	if runs := db.SMembers(db.RunsKey()); len(runs) != 1 || runs[0] != "run-1" {
		t.Errorf("runs = %v", runs)
	}
	counters, err := db.Counters("run-1")
	if err != nil || counters[wordcount.TotalWords] != "9" {
		t.Errorf("counters = %v, %v", counters, err)
	}
}

func TestPublishNothing(t *testing.T) {
	db, mr := makeTestDB(t)
	if err := db.PublishCounters(context.Background(), "run-2", nil); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(db.RunsKey()) {
		t.Error("empty snapshot registered a run")
	}
}

func TestRenameAndDel(t *testing.T) {
	db, mr := makeTestDB(t)
	if err := db.HSet("a", "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := db.Rename("a", "b"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("a") || mr.HGet("b", "x") != "1" {
		t.Error("rename did not move the hash")
	}
	if err := db.Del("b"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("b") {
		t.Error("b still exists")
	}
	if err := db.Rename("missing", "c"); err == nil {
		t.Error("renaming a missing key should fail")
	}
}

func TestPingUnreachable(t *testing.T) {
	db := MakeRedisDB("127.0.0.1:1", "", logging.Discard())
	defer db.Close()
	if err := db.Ping(); err == nil {
		t.Error("expected ping to fail")
	}
}
