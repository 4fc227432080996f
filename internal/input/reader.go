package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/tequalsme/hadoop-examples/wordcount"
)

type Format string

const (
	FormatText      Format = "text"
	FormatJSONLines Format = "jsonl"
	FormatHTML      Format = "html"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSONLines, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown input format %q (want text, jsonl or html)", s)
}

// LineReader yields one record per line. The offset of a record is the byte
// offset of its first character; "\n" and "\r\n" terminators are stripped.
type LineReader struct {
	r      *bufio.Reader
	offset int64
}

func MakeLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (l *LineReader) Read() (*wordcount.Record, error) {
	line, err := l.r.ReadString('\n')
	if len(line) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	rec := &wordcount.Record{Offset: l.offset, Text: trimEOL(line)}
	l.offset += int64(len(line))
	return rec, nil
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// JSONLinesReader reads one JSON document per line and takes the record text
// from a gjson path. Documents without the path map to an empty record;
// blank lines are skipped.
type JSONLinesReader struct {
	lines *LineReader
	path  string
}

func MakeJSONLinesReader(r io.Reader, path string) *JSONLinesReader {
	if path == "" {
		path = "text"
	}
	return &JSONLinesReader{lines: MakeLineReader(r), path: path}
}

func (j *JSONLinesReader) Read() (*wordcount.Record, error) {
	for {
		rec, err := j.lines.Read()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		if !gjson.Valid(rec.Text) {
			return nil, fmt.Errorf("invalid JSON at offset %d", rec.Offset)
		}
		rec.Text = textOf(gjson.Get(rec.Text, j.path))
		return rec, nil
	}
}

func textOf(res gjson.Result) string {
	if !res.IsArray() {
		return res.String()
	}
	var parts []string
	res.ForEach(func(_, value gjson.Result) bool {
		parts = append(parts, value.String())
		return true
	})
	return strings.Join(parts, " ")
}

// HTMLReader yields the text nodes of an HTML document, skipping script and
// style content. Offsets count the text nodes returned so far.
type HTMLReader struct {
	z    *html.Tokenizer
	skip string
	n    int64
}

func MakeHTMLReader(r io.Reader) *HTMLReader {
	return &HTMLReader{z: html.NewTokenizer(r)}
}

func (h *HTMLReader) Read() (*wordcount.Record, error) {
	for {
		switch h.z.Next() {
		case html.ErrorToken:
			return nil, h.z.Err()
		case html.StartTagToken:
			name, _ := h.z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				h.skip = tag
			}
		case html.EndTagToken:
			name, _ := h.z.TagName()
			if string(name) == h.skip {
				h.skip = ""
			}
		case html.TextToken:
			if h.skip != "" {
				continue
			}
			text := strings.TrimSpace(string(h.z.Text()))
			if text == "" {
				continue
			}
			rec := &wordcount.Record{Offset: h.n, Text: text}
			h.n++
			return rec, nil
		}
	}
}
