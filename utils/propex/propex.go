/*
 * Copyright 2024 The EdgeLink Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package propex implements property expressions, the small addressing language
// nodes use to read and write nested fields of a message.
//
// A property expression is a dot separated list of segments. A segment is an
// identifier followed by zero or more bracketed accessors, each either a decimal
// integer index or a single/double quoted string key:
//
//	payload.hostInfo.memoryUsage
//	a[0]['k']
//	test1[100].hello["aaa"][42]
//
// Whitespace around dots, brackets and identifiers is ignored. Quoted keys have no
// escape processing: the key ends at the next matching quote.
package propex

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// MaxSegments is the largest number of segments a single expression may contain.
const MaxSegments = 16

var (
	// ErrParse is returned for malformed expressions.
	ErrParse = errors.New("property expression parse error")
	// ErrLookup is returned when a key or index does not exist during evaluation.
	ErrLookup = errors.New("property lookup error")
)

// Segment is one step of a property path: either a field key or an element index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// KeySegment creates a field segment.
func KeySegment(key string) Segment {
	return Segment{Key: key}
}

// IndexSegment creates an element segment.
func IndexSegment(index int) Segment {
	return Segment{Index: index, IsIndex: true}
}

// Value returns the key as string or the index as int.
func (s Segment) Value() interface{} {
	if s.IsIndex {
		return s.Index
	}
	return s.Key
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed property expression.
type Path []Segment

func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if i > 0 && !seg.IsIndex {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.String())
	}
	return sb.String()
}

type parser struct {
	src  string
	pos  int
	segs Path
}

// Parse converts a property expression into its ordered segments.
func Parse(expr string) (Path, error) {
	p := &parser{src: expr}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.segs, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrParse, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) push(seg Segment) error {
	if len(p.segs) >= MaxSegments {
		return p.errorf("more than %d segments", MaxSegments)
	}
	p.segs = append(p.segs, seg)
	return nil
}

func (p *parser) parse() error {
	p.skipSpace()
	if p.eof() {
		return p.errorf("empty expression")
	}
	for {
		if err := p.parseSegment(); err != nil {
			return err
		}
		p.skipSpace()
		if p.eof() {
			return nil
		}
		if p.src[p.pos] != '.' {
			return p.errorf("unexpected character %q", p.src[p.pos])
		}
		p.pos++
		p.skipSpace()
		if p.eof() {
			return p.errorf("expression ends with '.'")
		}
	}
}

func (p *parser) parseSegment() error {
	if p.src[p.pos] == '[' {
		return p.errorf("segment must start with an identifier")
	}
	ident, err := p.parseIdent()
	if err != nil {
		return err
	}
	if err = p.push(KeySegment(ident)); err != nil {
		return err
	}
	for {
		p.skipSpace()
		if p.eof() || p.src[p.pos] != '[' {
			return nil
		}
		p.pos++
		p.skipSpace()
		seg, err := p.parseAccessor()
		if err != nil {
			return err
		}
		p.skipSpace()
		if p.eof() || p.src[p.pos] != ']' {
			return p.errorf("missing ']'")
		}
		p.pos++
		if err = p.push(seg); err != nil {
			return err
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (p *parser) parseIdent() (string, error) {
	start := p.pos
	if !isIdentStart(p.src[p.pos]) {
		return "", p.errorf("invalid identifier start %q", p.src[p.pos])
	}
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseAccessor() (Segment, error) {
	if p.eof() {
		return Segment{}, p.errorf("unterminated accessor")
	}
	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		p.pos++
		end := strings.IndexByte(p.src[p.pos:], c)
		if end < 0 {
			return Segment{}, p.errorf("unterminated string key")
		}
		key := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		return KeySegment(key), nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		index, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil {
			return Segment{}, p.errorf("bad index %q", p.src[start:p.pos])
		}
		return IndexSegment(index), nil
	default:
		return Segment{}, p.errorf("accessor must be an integer or a quoted key")
	}
}

// Get resolves path against root.
func Get(root interface{}, path Path) (interface{}, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrParse)
	}
	if path[0].IsIndex {
		return nil, fmt.Errorf("%w: path must start with an identifier", ErrParse)
	}
	current := root
	for i, seg := range path {
		next, err := lookup(current, seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at %q", err, path[:i+1].String(), seg.String())
		}
		current = next
	}
	return current, nil
}

// GetString parses expr and resolves it against root.
func GetString(root interface{}, expr string) (interface{}, error) {
	path, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return Get(root, path)
}

func lookup(container interface{}, seg Segment) (interface{}, error) {
	if seg.IsIndex {
		switch v := container.(type) {
		case []interface{}:
			if seg.Index >= len(v) {
				return nil, ErrLookup
			}
			return v[seg.Index], nil
		case nil:
			return nil, ErrLookup
		}
		rv := reflect.ValueOf(container)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, ErrLookup
		}
		if seg.Index >= rv.Len() {
			return nil, ErrLookup
		}
		return rv.Index(seg.Index).Interface(), nil
	}
	switch v := container.(type) {
	case map[string]interface{}:
		if out, ok := v[seg.Key]; ok {
			return out, nil
		}
	case map[string]string:
		if out, ok := v[seg.Key]; ok {
			return out, nil
		}
	}
	return nil, ErrLookup
}

// Set writes value at path inside root, creating missing intermediate containers.
// The final slot is created or overwritten.
func Set(root map[string]interface{}, path Path, value interface{}) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrLookup)
	}
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrParse)
	}
	if path[0].IsIndex {
		return fmt.Errorf("%w: path must start with an identifier", ErrParse)
	}
	if _, err := setIn(root, path, value); err != nil {
		return fmt.Errorf("%w: set %s", err, path.String())
	}
	return nil
}

// SetString parses expr and writes value at that location.
func SetString(root map[string]interface{}, expr string, value interface{}) error {
	path, err := Parse(expr)
	if err != nil {
		return err
	}
	return Set(root, path, value)
}

func setIn(container interface{}, path Path, value interface{}) (interface{}, error) {
	seg := path[0]
	last := len(path) == 1
	if !seg.IsIndex {
		var m map[string]interface{}
		switch v := container.(type) {
		case map[string]interface{}:
			m = v
		case nil:
			m = make(map[string]interface{})
		default:
			return nil, fmt.Errorf("%w: cannot set key %q on %T", ErrLookup, seg.Key, container)
		}
		if last {
			m[seg.Key] = value
			return m, nil
		}
		child, err := setIn(m[seg.Key], path[1:], value)
		if err != nil {
			return nil, err
		}
		m[seg.Key] = child
		return m, nil
	}

	var s []interface{}
	created := false
	switch v := container.(type) {
	case []interface{}:
		s = v
	case nil:
		created = true
	default:
		return nil, fmt.Errorf("%w: cannot index %T", ErrLookup, container)
	}
	if seg.Index > len(s) && !created {
		return nil, fmt.Errorf("%w: index %d out of range %d", ErrLookup, seg.Index, len(s))
	}
	for len(s) <= seg.Index {
		s = append(s, nil)
	}
	if last {
		s[seg.Index] = value
		return s, nil
	}
	child, err := setIn(s[seg.Index], path[1:], value)
	if err != nil {
		return nil, err
	}
	s[seg.Index] = child
	return s, nil
}

// Delete removes the slot addressed by path. Removing an array element shifts the
// following elements down.
func Delete(root map[string]interface{}, path Path) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrParse)
	}
	parentPath, seg := path[:len(path)-1], path[len(path)-1]
	var parent interface{} = root
	if len(parentPath) > 0 {
		var err error
		if parent, err = Get(root, parentPath); err != nil {
			return err
		}
	}
	if !seg.IsIndex {
		m, ok := parent.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: cannot delete key %q from %T", ErrLookup, seg.Key, parent)
		}
		if _, ok = m[seg.Key]; !ok {
			return fmt.Errorf("%w: %s", ErrLookup, path.String())
		}
		delete(m, seg.Key)
		return nil
	}
	s, ok := parent.([]interface{})
	if !ok || seg.Index >= len(s) {
		return fmt.Errorf("%w: %s", ErrLookup, path.String())
	}
	s = append(s[:seg.Index], s[seg.Index+1:]...)
	// the shortened slice has to be written back into its parent
	return Set(root, parentPath, s)
}
