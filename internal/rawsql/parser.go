// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package rawsql finds the positional "?" parameters of raw SQL fragments.
// String literals, quoted identifiers and comments are skipped.
package rawsql

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Parsed is a SQL fragment split around its parameter markers.
type Parsed struct {
	// chunks holds the text between markers. There is always one more chunk
	// than there are parameters.
	chunks []string
}

// Params returns the number of parameter markers.
func (pe *Parsed) Params() int {
	return len(pe.chunks) - 1
}

// Render rebuilds the fragment, replacing the i-th parameter marker with the
// result of marker(i).
func (pe *Parsed) Render(marker func(i int) string) string {
	var sb strings.Builder
	for i, c := range pe.chunks {
		if i > 0 {
			sb.WriteString(marker(i - 1))
		}
		sb.WriteString(c)
	}
	return sb.String()
}

func (pe *Parsed) String() string {
	return "Parsed[" + strings.Join(pe.chunks, "?") + "]"
}

// CountParameters returns the number of parameter markers in sql.
func CountParameters(sql string) (int, error) {
	pe, err := Parse(sql)
	if err != nil {
		return 0, err
	}
	return pe.Params(), nil
}

// Parse splits sql around its positional parameter markers.
func Parse(sql string) (pe *Parsed, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse sql: %s", err)
		}
	}()

	p := &parser{}
	p.init(sql)
	for p.pos < len(p.input) {
		if ok, err := p.skipStringLiteral(); err != nil {
			return nil, err
		} else if ok {
			continue
		}
		if p.skipComment() {
			continue
		}
		if p.char == '?' {
			p.chunks = append(p.chunks, p.input[p.chunkStart:p.pos])
			p.advanceChar()
			p.chunkStart = p.pos
			continue
		}
		p.advanceChar()
	}
	p.chunks = append(p.chunks, p.input[p.chunkStart:])
	return &Parsed{chunks: p.chunks}, nil
}

type parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// chunkStart is the position just after the last parameter marker.
	chunkStart int
	chunks     []string
	lineNum    int
	lineStart  int
}

func (p *parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.chunkStart = 0
	p.chunks = nil
	p.lineNum = 1
	p.lineStart = 0
	p.advanceChar()
}

func (p *parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input, keeping
// track of line breaks.
func (p *parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	}
	return fmt.Errorf("column %d: %w", column, err)
}

type checkpoint struct {
	parser    *parser
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

func (p *parser) save() *checkpoint {
	return &checkpoint{
		parser:    p,
		pos:       p.pos,
		nextPos:   p.nextPos,
		char:      p.char,
		lineNum:   p.lineNum,
		lineStart: p.lineStart,
	}
}

func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
	cp.parser.nextPos = cp.nextPos
	cp.parser.char = cp.char
	cp.parser.lineNum = cp.lineNum
	cp.parser.lineStart = cp.lineStart
}

// skipComment jumps over "--" and "/* */" comments. If no comment is found
// the parser state is left unchanged.
func (p *parser) skipComment() bool {
	cp := p.save()
	c := p.char
	if p.skipChar('-') || p.skipChar('/') {
		if (c == '-' && p.skipChar('-')) || (c == '/' && p.skipChar('*')) {
			end := '\n'
			if c == '/' {
				end = '*'
			}
			for p.pos < len(p.input) {
				if p.char == end {
					if end == '*' {
						p.advanceChar()
						if !p.skipChar('/') {
							continue
						}
					}
					return true
				}
				p.advanceChar()
			}
			// An unterminated comment runs to the end of input.
			return true
		}
		cp.restore()
		return false
	}
	return false
}

// skipStringLiteral jumps over single quoted string literals and double
// quoted or backquoted identifiers. Doubled up quotes are escaped.
func (p *parser) skipStringLiteral() (bool, error) {
	cp := p.save()

	c := p.char
	if p.skipChar('"') || p.skipChar('\'') || p.skipChar('`') {
		// Whether the next quote found may close the literal, rather than
		// escape the quote following it.
		maybeCloser := true
		for p.skipCharFind(c) {
			if maybeCloser && !p.peekChar(c) {
				return true, nil
			}
			maybeCloser = !maybeCloser
		}

		cp.restore()
		return false, errorAt(fmt.Errorf("missing closing quote in string literal"), p.lineNum, p.colNum(), p.input)
	}
	return false, nil
}

func (p *parser) peekChar(c rune) bool {
	return p.pos < len(p.input) && p.char == c
}

func (p *parser) skipChar(c rune) bool {
	if p.pos < len(p.input) && p.char == c {
		p.advanceChar()
		return true
	}
	return false
}

// skipCharFind advances the parser past the next occurrence of c. If c is not
// found the parser is left unchanged.
func (p *parser) skipCharFind(c rune) bool {
	cp := p.save()
	for p.pos < len(p.input) {
		if p.char == c {
			p.advanceChar()
			return true
		}
		p.advanceChar()
	}
	cp.restore()
	return false
}
