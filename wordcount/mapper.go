package wordcount

import (
	"iter"
	"strings"
)

// Mapper turns one record into a lazy sequence of pairs. Ranging over the
// returned sequence again maps the record again.
type Mapper interface {
	Map(rec *Record) iter.Seq[Pair]
}

// delimiters of a classic whitespace string tokenizer
const delimiters = " \t\n\r\f"

func isDelimiter(r rune) bool {
	return strings.ContainsRune(delimiters, r)
}

// Tokenize splits text on runs of space, tab, newline, carriage return and form
// feed. Tokens keep their case and punctuation.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, isDelimiter)
}

// WordCountMapper emits (word, 1) for every token of a record and, when it was
// given a counter, increments it once per emitted pair.
type WordCountMapper struct {
	counter *Counter
}

// MakeWordCountMapper returns a mapper bound to counter. counter may be nil, in
// which case nothing is counted.
func MakeWordCountMapper(counter *Counter) *WordCountMapper {
	return &WordCountMapper{counter: counter}
}

func (m *WordCountMapper) Map(rec *Record) iter.Seq[Pair] {
	if rec == nil {
		violate("Map", "nil record")
	}
	text := rec.Text
	return func(yield func(Pair) bool) {
		for _, word := range Tokenize(text) {
			more := yield(Pair{Key: word, Value: 1})
			if m.counter != nil {
				m.counter.Increment(1)
			}
			if !more {
				return
			}
		}
	}
}

// MapAll drains Map into a slice.
func (m *WordCountMapper) MapAll(rec *Record) []Pair {
	var pairs []Pair
	for p := range m.Map(rec) {
		pairs = append(pairs, p)
	}
	return pairs
}
