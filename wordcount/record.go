// Package wordcount is a small, single-process map/reduce engine that counts
// word frequencies: records are tokenized into (word, 1) pairs, the pairs are
// grouped by word and each group is summed into one aggregate.
package wordcount

import (
	"fmt"
	"io"
)

// Record is one unit of input: a line of text and its position in the source.
type Record struct {
	Offset int64  `json:"offset"`
	Text   string `json:"text"`
}

// Pair is an intermediate emission of the mapper.
type Pair struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// Group holds every value emitted for Key, in emission order.
type Group struct {
	Key    string `json:"key"`
	Values []int  `json:"values"`
}

// Aggregate is the final output record for a key.
type Aggregate struct {
	Key   string `json:"key"`
	Total int    `json:"total"`
}

// String renders the aggregate as a tab separated output line, without newline.
func (a Aggregate) String() string {
	return fmt.Sprintf("%s\t%d", a.Key, a.Total)
}

// RecordReader yields input records one at a time. Read returns io.EOF once the
// input is exhausted.
type RecordReader interface {
	Read() (*Record, error)
}

// Sink receives aggregates in ascending key order. Nothing written becomes
// visible until Commit succeeds; Abort discards everything staged so far.
type Sink interface {
	Write(a Aggregate) error
	Commit() error
	Abort() error
}

// SliceReader serves records from memory.
type SliceReader struct {
	records []Record
	pos     int
}

func MakeSliceReader(records ...Record) *SliceReader {
	return &SliceReader{records: records}
}

// MakeLinesReader numbers lines the way a line reader over "\n" joined text would.
func MakeLinesReader(lines ...string) *SliceReader {
	records := make([]Record, 0, len(lines))
	var offset int64
	for _, l := range lines {
		records = append(records, Record{Offset: offset, Text: l})
		offset += int64(len(l)) + 1
	}
	return &SliceReader{records: records}
}

func (s *SliceReader) Read() (*Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return &rec, nil
}
