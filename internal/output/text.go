package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tequalsme/hadoop-examples/wordcount"
)

const (
	// PartFile holds the lines of a directory output, named after the single
	// reducer output of a Hadoop job.
	PartFile = "part-r-00000"
	// SuccessMarker is created next to PartFile once the output is complete.
	SuccessMarker = "_SUCCESS"
)

var ErrDestinationExists = errors.New("destination already exists")

// staged is an output path built under a hidden sibling name and renamed
// onto its destination on commit.
type staged struct {
	dest  string
	stage string
	file  *os.File
	w     *bufio.Writer
	done  bool
}

func checkAbsent(dest string) error {
	_, err := os.Lstat(dest)
	if err == nil {
		return ErrDestinationExists
	}
	if !os.IsNotExist(err) {
		return err
	}
	return nil
}

func stageName(dest string) string {
	return filepath.Join(filepath.Dir(dest), fmt.Sprintf(".%s._temporary-%s", filepath.Base(dest), uuid.NewString()))
}

func (s *staged) Write(a wordcount.Aggregate) error {
	if s.done {
		return errors.New("write after commit")
	}
	if _, err := s.w.WriteString(a.String()); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *staged) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.w.Flush()
	if err == nil {
		err = s.file.Sync()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *staged) publish() error {
	if err := checkAbsent(s.dest); err != nil {
		return err
	}
	if err := os.Rename(s.stage, s.dest); err != nil {
		return err
	}
	s.done = true
	return nil
}

func (s *staged) Abort() error {
	if s.done {
		return nil
	}
	s.closeFile()
	s.done = true
	return os.RemoveAll(s.stage)
}

func (s *staged) String() string { return s.dest }

// DirSink writes a Hadoop style output directory: dest/part-r-00000 with one
// "key\tvalue" line per aggregate and an empty dest/_SUCCESS marker. The
// directory appears only on Commit.
type DirSink struct {
	staged
}

func MakeDirSink(dest string) (*DirSink, error) {
	dest = filepath.Clean(dest)
	if err := checkAbsent(dest); err != nil {
		return nil, &wordcount.OutputError{Sink: dest, Err: err}
	}
	stage := stageName(dest)
	if err := os.Mkdir(stage, 0755); err != nil {
		return nil, &wordcount.OutputError{Sink: dest, Err: err}
	}
	f, err := os.Create(filepath.Join(stage, PartFile))
	if err != nil {
		os.RemoveAll(stage)
		return nil, &wordcount.OutputError{Sink: dest, Err: err}
	}
	return &DirSink{staged{dest: dest, stage: stage, file: f, w: bufio.NewWriter(f)}}, nil
}

func (s *DirSink) Commit() error {
	if err := s.closeFile(); err != nil {
		return err
	}
	marker, err := os.Create(filepath.Join(s.stage, SuccessMarker))
	if err != nil {
		return err
	}
	if err := marker.Close(); err != nil {
		return err
	}
	return s.publish()
}

// FileSink writes the "key\tvalue" lines to a single file, staged next to it.
type FileSink struct {
	staged
}

func MakeFileSink(dest string) (*FileSink, error) {
	dest = filepath.Clean(dest)
	if err := checkAbsent(dest); err != nil {
		return nil, &wordcount.OutputError{Sink: dest, Err: err}
	}
	stage := stageName(dest)
	f, err := os.OpenFile(stage, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &wordcount.OutputError{Sink: dest, Err: err}
	}
	return &FileSink{staged{dest: dest, stage: stage, file: f, w: bufio.NewWriter(f)}}, nil
}

func (s *FileSink) Commit() error {
	if err := s.closeFile(); err != nil {
		return err
	}
	return s.publish()
}
