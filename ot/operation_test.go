// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"encoding/json"
	"testing"
)

func TestComponentJSONRoundTrip(t *testing.T) {
	t.Parallel()

	op := Operation{
		RetainComponent(3),
		InsertComponent("x"),
		DeleteComponent(2),
	}

	data, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `[3,"x",{"delete":2}]`
	if string(data) != want {
		t.Fatalf("encoded = %s, want %s", data, want)
	}

	var decoded Operation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 3 || decoded[0].Retain != 3 || decoded[1].Insert != "x" || decoded[2].Delete != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestComponentJSONRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		`[0]`,              // zero retain
		`[-4]`,             // negative retain
		`[""]`,             // empty insert
		`[{"delete":0}]`,   // zero delete
		`[{"delete":-1}]`,  // negative delete
		`[true]`,           // wrong type
		`[{"retain": 38}]`, // unknown object shape decodes to zero delete
	}
	for _, input := range cases {
		var op Operation
		if err := json.Unmarshal([]byte(input), &op); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", input)
		}
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		op   Operation
		want string
	}{
		{
			name: "insert at offset",
			text: "abc",
			op:   Operation{RetainComponent(1), InsertComponent("XY"), RetainComponent(2)},
			want: "aXYbc",
		},
		{
			name: "delete span",
			text: "abcdef",
			op:   Operation{RetainComponent(2), DeleteComponent(3), RetainComponent(1)},
			want: "abf",
		},
		{
			name: "replace",
			text: "ABCD",
			op:   Operation{RetainComponent(1), DeleteComponent(1), InsertComponent("X"), RetainComponent(2)},
			want: "AXCD",
		},
		{
			name: "empty document insert",
			text: "",
			op:   Operation{InsertComponent("hello")},
			want: "hello",
		},
		{
			name: "astral characters count two units",
			text: "a\U0001F600b",
			op:   Operation{RetainComponent(3), InsertComponent("!"), RetainComponent(1)},
			want: "a\U0001F600!b",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Apply(tc.text, tc.op)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Apply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApplyRejectsLengthMismatch(t *testing.T) {
	t.Parallel()

	op := Operation{RetainComponent(10)}
	if _, err := Apply("short", op); err == nil {
		t.Fatal("Apply with wrong base length succeeded")
	}
}

func TestUTF16Len(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"héllo", 5},
		{"\U0001F600", 2},
		{"a\U0001F600b", 4},
	}
	for _, tc := range cases {
		if got := UTF16Len(tc.text); got != tc.want {
			t.Errorf("UTF16Len(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestFromReplace(t *testing.T) {
	t.Parallel()

	op, err := FromReplace(5, 2, 1, "XYZ")
	if err != nil {
		t.Fatalf("FromReplace: %v", err)
	}
	got, err := Apply("abcde", op)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "abXYZde" {
		t.Fatalf("result = %q", got)
	}

	if _, err := FromReplace(5, 4, 3, ""); err == nil {
		t.Fatal("out-of-bounds replacement succeeded")
	}
}

func TestFromTexts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"identical", "same", "same"},
		{"append", "hello", "hello world"},
		{"prepend", "world", "hello world"},
		{"delete middle", "hello cruel world", "hello world"},
		{"replace", "ABCD", "AXCD"},
		{"from empty", "", "content"},
		{"to empty", "content", ""},
		{"multibyte", "caffé", "caffè latte"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			op := FromTexts(tc.old, tc.new)
			got, err := Apply(tc.old, op)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tc.new {
				t.Fatalf("Apply(FromTexts) = %q, want %q", got, tc.new)
			}
		})
	}
}
