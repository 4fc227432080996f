package output

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tequalsme/hadoop-examples/internal/store"
	"github.com/tequalsme/hadoop-examples/wordcount"
)

// redisBatch is how many fields are sent per HSET.
const redisBatch = 512

// RedisSink fills a hash word -> total. Fields go to a staging key that is
// renamed onto the destination on Commit, so readers never see a partial hash.
type RedisSink struct {
	db      *store.DB
	dest    string
	staging string
	pending map[string]interface{}
	written int
	done    bool
}

func MakeRedisSink(db *store.DB, name string) *RedisSink {
	dest := db.OutputKey(name)
	return &RedisSink{
		db:      db,
		dest:    dest,
		staging: fmt.Sprintf("%s:staging:%s", dest, uuid.NewString()),
		pending: make(map[string]interface{}, redisBatch),
	}
}

func (s *RedisSink) String() string {
	return fmt.Sprintf("redis://%s/%s", s.db.Options().Addr, s.dest)
}

// Key is the hash holding the committed output.
func (s *RedisSink) Key() string { return s.dest }

func (s *RedisSink) Write(a wordcount.Aggregate) error {
	if s.done {
		return errors.New("write after commit")
	}
	s.pending[a.Key] = a.Total
	if len(s.pending) >= redisBatch {
		return s.flush()
	}
	return nil
}

func (s *RedisSink) flush() error {
	if err := s.db.HSetAll(s.staging, s.pending); err != nil {
		return err
	}
	s.written += len(s.pending)
	clear(s.pending)
	return nil
}

func (s *RedisSink) Commit() error {
	if s.done {
		return errors.New("already committed")
	}
	if err := s.flush(); err != nil {
		return err
	}
	if s.written == 0 {
		// an empty hash does not exist in redis, there is nothing to rename
		if err := s.db.Del(s.dest); err != nil {
			return err
		}
	} else if err := s.db.Rename(s.staging, s.dest); err != nil {
		return err
	}
	s.done = true
	return nil
}

func (s *RedisSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	clear(s.pending)
	return s.db.Del(s.staging)
}
