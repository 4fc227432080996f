package output

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tequalsme/hadoop-examples/wordcount"
)

const DefaultTable = "counts"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func openDatabase(path string) (*sql.DB, error) {
	options :=
		"?" + "_busy_timeout=10000" +
			"&" + "_case_sensitive_like=OFF" +
			"&" + "_foreign_keys=ON" +
			"&" + "_journal_mode=DELETE" +
			"&" + "_locking_mode=NORMAL" +
			"&" + "_synchronous=NORMAL"
	return sql.Open("sqlite3", path+options)
}

// SQLiteSink replaces the rows of a (key text, value integer) table inside
// one transaction. Readers see either the previous rows or the new ones.
type SQLiteSink struct {
	path    string
	table   string
	created bool
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt
	done    bool
}

func MakeSQLiteSink(path, table string) (*SQLiteSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, &wordcount.OutputError{Sink: path, Err: fmt.Errorf("invalid table name %q", table)}
	}
	_, statErr := os.Stat(path)
	s := &SQLiteSink{path: path, table: table, created: os.IsNotExist(statErr)}

	fail := func(err error) (*SQLiteSink, error) {
		s.Abort()
		return nil, &wordcount.OutputError{Sink: s.String(), Err: err}
	}

	db, err := openDatabase(path)
	if err != nil {
		return fail(err)
	}
	s.db = db
	if s.tx, err = db.Begin(); err != nil {
		return fail(err)
	}
	if _, err = s.tx.Exec(fmt.Sprintf(`create table if not exists %s (key text primary key, value integer not null)`, table)); err != nil {
		return fail(err)
	}
	if _, err = s.tx.Exec(fmt.Sprintf(`delete from %s`, table)); err != nil {
		return fail(err)
	}
	if s.insert, err = s.tx.Prepare(fmt.Sprintf(`insert into %s (key, value) values (?, ?)`, table)); err != nil {
		return fail(err)
	}
	return s, nil
}

func (s *SQLiteSink) String() string {
	return fmt.Sprintf("sqlite:%s#%s", s.path, s.table)
}

func (s *SQLiteSink) Write(a wordcount.Aggregate) error {
	if s.done {
		return errors.New("write after commit")
	}
	_, err := s.insert.Exec(a.Key, a.Total)
	return err
}

func (s *SQLiteSink) Commit() error {
	if s.done {
		return errors.New("already committed")
	}
	s.insert.Close()
	if err := s.tx.Commit(); err != nil {
		return err
	}
	s.tx = nil
	s.done = true
	return s.db.Close()
}

func (s *SQLiteSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	var errs []error
	if s.insert != nil {
		s.insert.Close()
	}
	if s.tx != nil {
		errs = append(errs, s.tx.Rollback())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.created {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
