package ics

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rivo/uniseg"
)

// ContentLine is one logical NAME;PARAM=VALUE:VALUE line after unfolding.
type ContentLine struct {
	Name   string
	Params Params
	Value  string
}

// ParseContentLine splits a single unfolded line. Colons and semicolons
// inside a double-quoted parameter value do not count as separators.
func ParseContentLine(line string) (ContentLine, error) {
	colon := indexUnquoted(line, ':')
	if colon < 0 {
		return ContentLine{}, errors.New("missing ':'")
	}
	lhs, value := line[:colon], line[colon+1:]
	segments := splitUnquoted(lhs, ';')
	cl := ContentLine{Name: segments[0], Value: value}
	if cl.Name == "" {
		return ContentLine{}, errors.New("empty property name")
	}
	for _, seg := range segments[1:] {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			return ContentLine{}, errors.New("malformed parameter " + strings.TrimSpace(seg))
		}
		cl.Params.Set(k, v)
	}
	return cl, nil
}

func indexUnquoted(s string, sep byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func splitUnquoted(s string, sep byte) []string {
	var out []string
	for {
		i := indexUnquoted(s, sep)
		if i < 0 {
			return append(out, s)
		}
		out = append(out, s[:i])
		s = s[i+1:]
	}
}

// LineReader reads logical content lines from a stream, undoing line
// folding (a CRLF or LF followed by a single space or tab).
type LineReader struct {
	b    *bufio.Reader
	line int
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{b: bufio.NewReader(r)}
}

// ReadLine returns the next non-blank unfolded line, or io.EOF.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		s, err := lr.readUnfolded()
		if err != nil {
			return "", err
		}
		lr.line++
		if s != "" {
			return s, nil
		}
	}
}

func (lr *LineReader) readUnfolded() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := lr.b.ReadString('\n')
		terminated := strings.HasSuffix(chunk, "\n")
		chunk = strings.TrimSuffix(chunk, "\n")
		if terminated {
			chunk = strings.TrimSuffix(chunk, "\r")
		}
		sb.WriteString(chunk)
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		next, err := lr.b.Peek(1)
		if err != nil || (next[0] != ' ' && next[0] != '\t') {
			return sb.String(), nil
		}
		_, _ = lr.b.Discard(1)
	}
}

// Next returns the next parsed content line, or io.EOF.
func (lr *LineReader) Next() (ContentLine, error) {
	s, err := lr.ReadLine()
	if err != nil {
		return ContentLine{}, err
	}
	cl, err := ParseContentLine(s)
	if err != nil {
		return ContentLine{}, &LexError{Line: lr.line, Msg: err.Error()}
	}
	return cl, nil
}

// Line is the number of the last logical line read, counting from 1.
func (lr *LineReader) Line() int { return lr.line }

// Lex unfolds and splits a whole document.
func Lex(text string) ([]ContentLine, error) {
	lr := NewLineReader(strings.NewReader(text))
	var out []ContentLine
	for {
		cl, err := lr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
}

const (
	crlf = "\r\n"
	// Octet limits for a physical line, excluding the CRLF. Continuation
	// lines spend one octet on the leading space.
	firstLineOctets        = 75
	continuationLineOctets = 74
)

// encoder accumulates serialized content lines.
type encoder struct {
	b strings.Builder
}

func (e *encoder) property(name string, params Params, value string) {
	var sb strings.Builder
	sb.WriteString(name)
	for _, p := range params {
		sb.WriteByte(';')
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	sb.WriteByte(':')
	sb.WriteString(value)
	e.fold(sb.String())
}

func (e *encoder) begin(name string, params Params) { e.property("BEGIN", params, name) }

func (e *encoder) end(name string) { e.property("END", nil, name) }

// fold writes line split on grapheme cluster boundaries so that no physical
// line exceeds the octet limits. A single cluster longer than the limit is
// written whole rather than split.
func (e *encoder) fold(line string) {
	limit := firstLineOctets
	start, size := 0, 0
	g := uniseg.NewGraphemes(line)
	for g.Next() {
		from, to := g.Positions()
		if n := to - from; size+n > limit && size > 0 {
			e.b.WriteString(line[start:from])
			e.b.WriteString(crlf + " ")
			start, size, limit = from, 0, continuationLineOctets
		}
		size += to - from
	}
	e.b.WriteString(line[start:])
	e.b.WriteString(crlf)
}

func (e *encoder) String() string { return e.b.String() }

// FoldLine returns line as it would be written to a document, CRLF
// terminated and folded.
func FoldLine(line string) string {
	var e encoder
	e.fold(line)
	return e.String()
}
