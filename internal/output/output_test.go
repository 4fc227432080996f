package output

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tequalsme/hadoop-examples/internal/logging"
	"github.com/tequalsme/hadoop-examples/internal/store"
	"github.com/tequalsme/hadoop-examples/wordcount"
)

var sixWords = []wordcount.Aggregate{
	{Key: "five", Total: 1},
	{Key: "four", Total: 1},
	{Key: "one", Total: 3},
	{Key: "six", Total: 1},
	{Key: "three", Total: 1},
	{Key: "two", Total: 2},
}

const sixWordsText = "five\t1\nfour\t1\none\t3\nsix\t1\nthree\t1\ntwo\t2\n"

func writeAll(t *testing.T, s wordcount.Sink, aggs []wordcount.Aggregate) {
	t.Helper()
	for _, a := range aggs {
		if err := s.Write(a); err != nil {
			t.Fatal(err)
		}
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("left behind: %s", e.Name())
	}
}

func TestDirSink(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "output")
	s, err := MakeDirSink(dest)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("output visible before commit")
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dest, PartFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sixWordsText {
		t.Errorf("part file = %q, want %q", data, sixWordsText)
	}
	if _, err := os.Stat(filepath.Join(dest, SuccessMarker)); err != nil {
		t.Errorf("missing marker: %v", err)
	}
	entries, _ := os.ReadDir(parent)
	if len(entries) != 1 {
		t.Errorf("parent holds %d entries, want only the output", len(entries))
	}
	if err := s.Abort(); err != nil {
		t.Errorf("abort after commit: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Error("abort after commit removed the output")
	}
}

func TestSinksAcceptTrailingSlash(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "output") + string(filepath.Separator)
	s, err := MakeDirSink(dest)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(parent, "output", PartFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sixWordsText {
		t.Errorf("part file = %q", data)
	}
	entries, _ := os.ReadDir(parent)
	if len(entries) != 1 || entries[0].Name() != "output" {
		t.Errorf("parent holds %v", entries)
	}

	f, err := MakeFileSink(filepath.Join(parent, "counts.tsv") + string(filepath.Separator))
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, f, sixWords)
	if err := f.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(parent, "counts.tsv")); err != nil {
		t.Error(err)
	}
}

func TestDirSinkRefusesExisting(t *testing.T) {
	dest := t.TempDir()
	_, err := MakeDirSink(dest)
	if !wordcount.IsOutputError(err) || !errors.Is(err, ErrDestinationExists) {
		t.Errorf("err = %v", err)
	}
}

func TestDirSinkDestinationAppearsBeforeCommit(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "output")
	s, err := MakeDirSink(dest)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := os.Mkdir(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(); !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("err = %v", err)
	}
	s.Abort()
	if entries, _ := os.ReadDir(dest); len(entries) != 0 {
		t.Errorf("existing destination was modified: %v", entries)
	}
}

func TestDirSinkAbort(t *testing.T) {
	parent := t.TempDir()
	s, err := MakeDirSink(filepath.Join(parent, "output"))
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords[:2])
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	assertEmptyDir(t, parent)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("no space left on device")
	}
	w.after--
	return len(p), nil
}

// a write failure in the middle of a run leaves nothing behind
func TestDirSinkFailureThroughDriver(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "output")
	s, err := MakeDirSink(dest)
	if err != nil {
		t.Fatal(err)
	}
	s.w = bufio.NewWriterSize(&failingWriter{after: 1}, 16)

	cfg := wordcount.DefaultConfig()
	cfg.Source = wordcount.MakeLinesReader("one two three", "one four", "two five one six")
	cfg.Sink = s
	cfg.Logger = logging.Discard()
	d, err := wordcount.MakeDriver(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background()); !wordcount.IsOutputError(err) {
		t.Fatalf("err = %v, want an OutputError", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial output is visible")
	}
	assertEmptyDir(t, parent)
}

func TestFileSink(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "counts.tsv")
	s, err := MakeFileSink(dest)
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sixWordsText {
		t.Errorf("file = %q", data)
	}
	if _, err := MakeFileSink(dest); !errors.Is(err, ErrDestinationExists) {
		t.Errorf("second sink on %s: %v", dest, err)
	}
}

func TestFileSinkAbort(t *testing.T) {
	parent := t.TempDir()
	s, err := MakeFileSink(filepath.Join(parent, "counts.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	assertEmptyDir(t, parent)
}

func readTable(t *testing.T, path, table string) map[string]int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Query("select key, value from " + table)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	got := map[string]int{}
	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			t.Fatal(err)
		}
		got[key] = value
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.db")
	s, err := MakeSQLiteSink(path, "")
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	got := readTable(t, path, DefaultTable)
	if len(got) != 6 || got["one"] != 3 || got["two"] != 2 {
		t.Errorf("table = %v", got)
	}

	// a later run that aborts keeps the previous rows
	s, err = MakeSQLiteSink(path, "")
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, []wordcount.Aggregate{{Key: "zzz", Total: 9}})
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	if got := readTable(t, path, DefaultTable); len(got) != 6 || got["zzz"] != 0 {
		t.Errorf("table after abort = %v", got)
	}
}

func TestSQLiteSinkAbortRemovesNewFile(t *testing.T) {
	parent := t.TempDir()
	s, err := MakeSQLiteSink(filepath.Join(parent, "counts.db"), "words")
	if err != nil {
		t.Fatal(err)
	}
	writeAll(t, s, sixWords)
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	assertEmptyDir(t, parent)
}

func TestSQLiteSinkRejectsTableName(t *testing.T) {
	_, err := MakeSQLiteSink(filepath.Join(t.TempDir(), "x.db"), "counts; drop table x")
	if !wordcount.IsOutputError(err) {
		t.Errorf("err = %v", err)
	}
}

func makeTestDB(t *testing.T) (*store.DB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	db := store.MakeRedisDB(mr.Addr(), "wc", logging.Discard())
	t.Cleanup(func() { db.Close() })
	return db, mr
}

func TestRedisSink(t *testing.T) {
	db, mr := makeTestDB(t)
	s := MakeRedisSink(db, "output")
	writeAll(t, s, sixWords)
	if mr.Exists(s.Key()) {
		t.Fatal("output visible before commit")
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	got, err := db.HGetAll("wc:output")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 || got["one"] != "3" || got["two"] != "2" {
		t.Errorf("hash = %v", got)
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v, want only the output", keys)
	}
}

func TestRedisSinkBatches(t *testing.T) {
	db, mr := makeTestDB(t)
	s := MakeRedisSink(db, "big")
	for i := 0; i < redisBatch*2+3; i++ {
		if err := s.Write(wordcount.Aggregate{Key: "w" + strconv.Itoa(i), Total: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	fields, err := mr.HKeys(s.Key())
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != redisBatch*2+3 {
		t.Errorf("hash has %d fields", len(fields))
	}
}

func TestRedisSinkAbort(t *testing.T) {
	db, mr := makeTestDB(t)
	mr.HSet("wc:output", "old", "1")

	s := MakeRedisSink(db, "output")
	for i := 0; i < redisBatch+1; i++ {
		s.Write(wordcount.Aggregate{Key: string(rune(0x4e00 + i)), Total: 1})
	}
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "wc:output" {
		t.Errorf("keys = %v", keys)
	}
	if mr.HGet("wc:output", "old") != "1" {
		t.Error("previous output was touched")
	}
}

func TestRedisSinkEmptyCommit(t *testing.T) {
	db, mr := makeTestDB(t)
	mr.HSet("wc:output", "stale", "4")
	s := MakeRedisSink(db, "output")
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("wc:output") {
		t.Error("stale output survived an empty run")
	}
}
