// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"fmt"
	"unicode/utf16"
)

// Operation is an ordered list of components describing a text
// transformation, interpreted left to right from offset 0. An empty
// Operation is the identity on the empty document only; use
// [Operation.IsNoop] to test for "changes nothing".
type Operation []Component

// BaseLen returns the length in UTF-16 code units of the text the
// operation applies to (the sum of retained and deleted spans).
func (op Operation) BaseLen() int {
	length := 0
	for _, c := range op {
		length += c.Retain + c.Delete
	}
	return length
}

// TargetLen returns the length in UTF-16 code units of the text the
// operation produces.
func (op Operation) TargetLen() int {
	length := 0
	for _, c := range op {
		length += c.Retain + UTF16Len(c.Insert)
	}
	return length
}

// IsNoop reports whether the operation leaves any text unchanged:
// no insertions and no deletions.
func (op Operation) IsNoop() bool {
	for _, c := range op {
		if c.Insert != "" || c.Delete > 0 {
			return false
		}
	}
	return true
}

// Validate checks that every component is well-formed.
func (op Operation) Validate() error {
	for i, c := range op {
		if !c.valid() {
			return fmt.Errorf("component %d is invalid: %+v", i, c)
		}
	}
	return nil
}

// Apply applies the operation to text and returns the result. The
// operation's base length must exactly equal the text's length in
// UTF-16 code units; a mismatch means the operation was built against
// a different text state.
func Apply(text string, op Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	units := utf16.Encode([]rune(text))
	if op.BaseLen() != len(units) {
		return "", fmt.Errorf("operation base length %d does not match text length %d",
			op.BaseLen(), len(units))
	}

	result := make([]uint16, 0, op.TargetLen())
	position := 0
	for _, c := range op {
		switch {
		case c.Retain > 0:
			result = append(result, units[position:position+c.Retain]...)
			position += c.Retain
		case c.Insert != "":
			result = append(result, utf16.Encode([]rune(c.Insert))...)
		case c.Delete > 0:
			position += c.Delete
		}
	}
	return string(utf16.Decode(result)), nil
}

// builder accumulates components, merging adjacent components of the
// same kind and dropping empty ones so operations stay in normal form.
type builder struct {
	components Operation
}

func (b *builder) retain(n int) {
	if n <= 0 {
		return
	}
	if last := len(b.components) - 1; last >= 0 && b.components[last].Retain > 0 {
		b.components[last].Retain += n
		return
	}
	b.components = append(b.components, Component{Retain: n})
}

func (b *builder) insert(s string) {
	if s == "" {
		return
	}
	if last := len(b.components) - 1; last >= 0 && b.components[last].Insert != "" {
		b.components[last].Insert += s
		return
	}
	b.components = append(b.components, Component{Insert: s})
}

func (b *builder) delete(n int) {
	if n <= 0 {
		return
	}
	if last := len(b.components) - 1; last >= 0 && b.components[last].Delete > 0 {
		b.components[last].Delete += n
		return
	}
	b.components = append(b.components, Component{Delete: n})
}

// operation returns the accumulated components with any trailing
// pure-retain tail kept — callers rely on base length accounting, so
// the tail is not trimmed.
func (b *builder) operation() Operation {
	return b.components
}

// cursor walks an operation's components, allowing partial
// consumption of component spans.
type cursor struct {
	op    Operation
	index int
	// used is the number of code units already consumed from the
	// current component.
	used int
}

func (cur *cursor) done() bool { return cur.index >= len(cur.op) }

// next advances past the current component entirely.
func (cur *cursor) next() {
	cur.index++
	cur.used = 0
}
