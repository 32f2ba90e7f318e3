// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FromTexts derives a minimal operation transforming old into new by
// diffing the two states. Used for change events that only report the
// full resulting text, and for host-side writes that replace whole
// documents.
func FromTexts(oldText, newText string) Operation {
	if oldText == newText {
		length := UTF16Len(oldText)
		if length == 0 {
			return Operation{}
		}
		return Operation{RetainComponent(length)}
	}

	matcher := diffmatchpatch.New()
	diffs := matcher.DiffMain(oldText, newText, false)
	diffs = matcher.DiffCleanupEfficiency(diffs)

	var out builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			out.retain(UTF16Len(d.Text))
		case diffmatchpatch.DiffInsert:
			out.insert(d.Text)
		case diffmatchpatch.DiffDelete:
			out.delete(UTF16Len(d.Text))
		}
	}
	return out.operation()
}

// FromReplace builds the operation for an editor replacement event:
// within a document currently baseLen code units long, the span
// [start, start+length) is replaced by replacement. This is the
// translation of the onLocalChange(path, editRange, replacementText)
// callback into the operation model.
func FromReplace(baseLen, start, length int, replacement string) (Operation, error) {
	if start < 0 || length < 0 || start+length > baseLen {
		return nil, fmt.Errorf("replacement span [%d, %d) exceeds document length %d",
			start, start+length, baseLen)
	}

	var out builder
	out.retain(start)
	out.delete(length)
	out.insert(replacement)
	out.retain(baseLen - start - length)
	return out.operation(), nil
}
