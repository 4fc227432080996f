package input

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/tequalsme/hadoop-examples/wordcount"
)

type Options struct {
	Format Format
	// JSONField is the gjson path holding the text of a jsonl record.
	JSONField string
}

// Source reads the records of a file, or of every visible file of a
// directory in name order. Files ending in .gz or .br are decompressed.
type Source struct {
	path  string
	files []string
	opts  Options

	next    int
	cur     wordcount.RecordReader
	closers []io.Closer
}

// Open resolves path into its input files. Missing or unreadable inputs are
// reported as *wordcount.InputError.
func Open(path string, opts Options) (*Source, error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &wordcount.InputError{Source: path, Err: err}
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = listInputs(path); err != nil {
			return nil, &wordcount.InputError{Source: path, Err: err}
		}
	}
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return nil, &wordcount.InputError{Source: f, Err: err}
		}
		fh.Close()
	}
	return &Source{path: path, files: files, opts: opts}, nil
}

// listInputs skips directories and names starting with "_" or ".", the way
// hidden files are skipped by Hadoop input formats.
func listInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}

func (s *Source) String() string { return s.path }

// Files lists the files the source reads, in order.
func (s *Source) Files() []string { return s.files }

func (s *Source) Read() (*wordcount.Record, error) {
	for {
		if s.cur == nil {
			if s.next >= len(s.files) {
				return nil, io.EOF
			}
			if err := s.openNext(); err != nil {
				return nil, err
			}
		}
		rec, err := s.cur.Read()
		if err == io.EOF {
			if err := s.closeCurrent(); err != nil {
				return nil, &wordcount.InputError{Source: s.files[s.next-1], Err: err}
			}
			continue
		}
		if err != nil {
			return nil, &wordcount.InputError{Source: s.files[s.next-1], Err: err}
		}
		return rec, nil
	}
}

func (s *Source) openNext() error {
	name := s.files[s.next]
	s.next++

	f, err := os.Open(name)
	if err != nil {
		return &wordcount.InputError{Source: name, Err: err}
	}
	s.closers = append(s.closers, f)

	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			s.closeCurrent()
			return &wordcount.InputError{Source: name, Err: err}
		}
		s.closers = append(s.closers, gz)
		r = gz
	case ".br":
		r = brotli.NewReader(f)
	}

	switch s.opts.Format {
	case FormatJSONLines:
		s.cur = MakeJSONLinesReader(r, s.opts.JSONField)
	case FormatHTML:
		s.cur = MakeHTMLReader(r)
	default:
		s.cur = MakeLineReader(r)
	}
	return nil
}

func (s *Source) closeCurrent() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	s.cur = nil
	return errors.Join(errs...)
}

// Close releases the file currently being read.
func (s *Source) Close() error {
	return s.closeCurrent()
}
