package wordcount

import (
	"io"
	"runtime"

	"github.com/tequalsme/hadoop-examples/internal/logging"
)

// Config lists everything a Driver needs for one run.
type Config struct {
	// Source and Sink are required.
	Source RecordReader
	Sink   Sink

	// Counters are registered up front so they read as zero even when nothing
	// increments them. WordCounter is the counter the mapper increments; leave
	// it empty to map without counting.
	Counters    []string
	WordCounter string

	Reducer Reducer
	Workers int

	// Progress, when set, receives a progress bar ticking once per record.
	Progress io.Writer
	// DetectLanguage guesses the language of the input from its first few
	// kilobytes and reports it in the Result.
	DetectLanguage bool
	// Publisher receives the counter snapshot after the output is committed.
	Publisher CounterPublisher

	Logger *logging.MLogger
}

func DefaultConfig() Config {
	return Config{
		Counters:    []string{TotalWords},
		WordCounter: TotalWords,
		Reducer:     SumReducer{},
		Workers:     runtime.NumCPU(),
	}
}
