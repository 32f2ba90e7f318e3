// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"fmt"
	"unicode/utf16"
)

// utf16Prefix returns the first n UTF-16 code units of s as a string.
func utf16Prefix(s string, n int) string {
	units := utf16.Encode([]rune(s))
	return string(utf16.Decode(units[:n]))
}

// utf16Suffix returns s with the first n UTF-16 code units removed.
func utf16Suffix(s string, n int) string {
	units := utf16.Encode([]rune(s))
	return string(utf16.Decode(units[n:]))
}

// span returns the component's length in UTF-16 code units.
func (c Component) span() int {
	if c.Insert != "" {
		return UTF16Len(c.Insert)
	}
	return c.Retain + c.Delete
}

// currentComponent returns the current component with consumed units
// removed, handling insert components.
func (cur *cursor) currentComponent() Component {
	c := cur.op[cur.index]
	if cur.used == 0 {
		return c
	}
	switch {
	case c.Retain > 0:
		c.Retain -= cur.used
	case c.Delete > 0:
		c.Delete -= cur.used
	case c.Insert != "":
		c.Insert = utf16Suffix(c.Insert, cur.used)
	}
	return c
}

// advance consumes n code units from the current component,
// whatever its kind.
func (cur *cursor) advance(n int) {
	cur.used += n
	if cur.used >= cur.op[cur.index].span() {
		cur.index++
		cur.used = 0
	}
}

// Compose merges two sequential operations into one with the same net
// effect: Apply(Apply(s, a), b) == Apply(s, Compose(a, b)). The
// target length of a must equal the base length of b.
func Compose(a, b Operation) (Operation, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("composing: first operation: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("composing: second operation: %w", err)
	}
	if a.TargetLen() != b.BaseLen() {
		return nil, fmt.Errorf("composing: target length %d does not match base length %d",
			a.TargetLen(), b.BaseLen())
	}

	ca := &cursor{op: a}
	cb := &cursor{op: b}
	var out builder

	for !ca.done() || !cb.done() {
		// a's deletions happen regardless of what b does afterwards.
		if !ca.done() {
			if c := ca.currentComponent(); c.Delete > 0 {
				out.delete(c.Delete)
				ca.next()
				continue
			}
		}
		// b's insertions happen regardless of what a produced.
		if !cb.done() {
			if c := cb.currentComponent(); c.Insert != "" {
				out.insert(c.Insert)
				cb.next()
				continue
			}
		}
		if ca.done() || cb.done() {
			return nil, fmt.Errorf("composing: component spans do not align")
		}

		componentA := ca.currentComponent()
		componentB := cb.currentComponent()
		n := min(componentA.span(), componentB.span())

		switch {
		case componentA.Retain > 0 && componentB.Retain > 0:
			out.retain(n)
		case componentA.Retain > 0 && componentB.Delete > 0:
			out.delete(n)
		case componentA.Insert != "" && componentB.Retain > 0:
			out.insert(utf16Prefix(componentA.Insert, n))
		case componentA.Insert != "" && componentB.Delete > 0:
			// a inserted text that b deletes again: it never existed.
		default:
			return nil, fmt.Errorf("composing: unexpected component pairing")
		}

		ca.advance(n)
		cb.advance(n)
	}

	return out.operation(), nil
}

// Transform derives the bottom two sides of the OT diamond for two
// operations based on the same text state. It returns (incomingT,
// committedT) such that both application orders converge:
//
//	Apply(Apply(s, committed), incomingT) == Apply(Apply(s, incoming), committedT)
//
// The committed side has priority: its insertions are never deleted
// by the transformed incoming operation, and when both sides insert
// at the same position the committed insertion lands first. An
// incoming deletion that fully overlaps a committed replacement is
// truncated to nothing, degrading the incoming edit to an insertion
// immediately after the committed change.
func Transform(incoming, committed Operation) (incomingT, committedT Operation, err error) {
	if err := incoming.Validate(); err != nil {
		return nil, nil, fmt.Errorf("transforming: incoming operation: %w", err)
	}
	if err := committed.Validate(); err != nil {
		return nil, nil, fmt.Errorf("transforming: committed operation: %w", err)
	}
	if incoming.BaseLen() != committed.BaseLen() {
		return nil, nil, fmt.Errorf("transforming: base lengths differ (%d vs %d)",
			incoming.BaseLen(), committed.BaseLen())
	}

	ci := &cursor{op: incoming}
	cc := &cursor{op: committed}
	var outIncoming, outCommitted builder

	for !ci.done() || !cc.done() {
		// Committed insertions are processed first so they win
		// position ties and survive overlapping incoming deletes.
		if !cc.done() {
			if c := cc.currentComponent(); c.Insert != "" {
				outIncoming.retain(UTF16Len(c.Insert))
				outCommitted.insert(c.Insert)
				cc.next()
				continue
			}
		}
		if !ci.done() {
			if c := ci.currentComponent(); c.Insert != "" {
				outIncoming.insert(c.Insert)
				outCommitted.retain(UTF16Len(c.Insert))
				ci.next()
				continue
			}
		}
		if ci.done() || cc.done() {
			return nil, nil, fmt.Errorf("transforming: component spans do not align")
		}

		componentI := ci.currentComponent()
		componentC := cc.currentComponent()
		n := min(componentI.span(), componentC.span())

		switch {
		case componentI.Retain > 0 && componentC.Retain > 0:
			outIncoming.retain(n)
			outCommitted.retain(n)
		case componentI.Delete > 0 && componentC.Retain > 0:
			outIncoming.delete(n)
		case componentI.Retain > 0 && componentC.Delete > 0:
			outCommitted.delete(n)
		case componentI.Delete > 0 && componentC.Delete > 0:
			// Both deleted the same span: it is already gone on
			// either path.
		default:
			return nil, nil, fmt.Errorf("transforming: unexpected component pairing")
		}

		ci.advance(n)
		cc.advance(n)
	}

	return outIncoming.operation(), outCommitted.operation(), nil
}
