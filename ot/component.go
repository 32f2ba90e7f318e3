// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"encoding/json"
	"fmt"
)

// Component is one step of an operation: exactly one of Retain,
// Insert, or Delete is set. Retain and Delete count UTF-16 code
// units; Insert carries the inserted text.
//
// The zero Component is invalid and rejected by validation.
type Component struct {
	Retain int
	Insert string
	Delete int
}

// RetainComponent returns a retain(n) component.
func RetainComponent(n int) Component { return Component{Retain: n} }

// InsertComponent returns an insert(s) component.
func InsertComponent(s string) Component { return Component{Insert: s} }

// DeleteComponent returns a delete(n) component.
func DeleteComponent(n int) Component { return Component{Delete: n} }

// IsInsert reports whether the component is an insertion.
func (c Component) IsInsert() bool { return c.Insert != "" }

// valid reports whether exactly one field is set with a positive span.
func (c Component) valid() bool {
	switch {
	case c.Retain > 0:
		return c.Insert == "" && c.Delete == 0
	case c.Insert != "":
		return c.Retain == 0 && c.Delete == 0
	case c.Delete > 0:
		return c.Retain == 0 && c.Insert == ""
	default:
		return false
	}
}

// deletePayload is the wire shape of a delete component.
type deletePayload struct {
	Delete int `json:"delete"`
}

// MarshalJSON encodes the component in the wire format: a JSON number
// for retain, a JSON string for insert, {"delete": n} for delete.
func (c Component) MarshalJSON() ([]byte, error) {
	switch {
	case c.Retain > 0:
		return json.Marshal(c.Retain)
	case c.Insert != "":
		return json.Marshal(c.Insert)
	case c.Delete > 0:
		return json.Marshal(deletePayload{Delete: c.Delete})
	default:
		return nil, fmt.Errorf("encoding invalid component %+v", c)
	}
}

// UnmarshalJSON decodes the wire format. Non-positive spans and
// empty insertions are rejected — a malformed component must not
// silently become a no-op.
func (c *Component) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("decoding empty component")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding insert component: %w", err)
		}
		if s == "" {
			return fmt.Errorf("decoding insert component: empty insertion")
		}
		*c = Component{Insert: s}
		return nil
	case '{':
		var d deletePayload
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decoding delete component: %w", err)
		}
		if d.Delete <= 0 {
			return fmt.Errorf("decoding delete component: non-positive span %d", d.Delete)
		}
		*c = Component{Delete: d.Delete}
		return nil
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decoding retain component: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("decoding retain component: non-positive span %d", n)
		}
		*c = Component{Retain: n}
		return nil
	}
}

// UTF16Len returns the length of s in UTF-16 code units. Characters
// outside the basic multilingual plane count as two units, matching
// how editor APIs report offsets.
func UTF16Len(s string) int {
	length := 0
	for _, r := range s {
		if r > 0xFFFF {
			length += 2
		} else {
			length++
		}
	}
	return length
}
