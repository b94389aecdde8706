// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irtext

import (
	"errors"
	"strings"
	"testing"

	"github.com/aclements/ssalift/lift"
	"github.com/aclements/ssalift/regfile"
	"github.com/aclements/ssalift/ssagraph"
)

func x86Regs() *regfile.File {
	return regfile.New([]regfile.Descriptor{
		{Name: "rax", ShiftBits: 0, WidthBits: 64, TypeClass: "gpr"},
		{Name: "eax", ShiftBits: 0, WidthBits: 32, TypeClass: "gpr"},
		{Name: "rbx", ShiftBits: 64, WidthBits: 64, TypeClass: "gpr"},
		{Name: "rip", ShiftBits: 128, WidthBits: 64, TypeClass: "gpr", Alias: "PC"},
	})
}

// buildConditionalMerge lifts the same §8 scenario 1 program the lift
// package's own tests use: a conditional write to rax joined by a phi at
// the merge point, plus a memory round trip so Write exercises load/store
// formatting too.
func buildConditionalMerge(t *testing.T) (*ssagraph.Graph, *regfile.File) {
	t.Helper()
	g := ssagraph.New()
	rf := x86Regs()
	l, err := lift.New(g, rf)
	if err != nil {
		t.Fatal(err)
	}
	ops := []lift.OperationRecord{
		{Address: 0, Expression: "4,rax,="},
		{Address: 1, Expression: "0,?{ 8,rax,= }"},
		{Address: 2, Expression: "rax,1,+,rbx,="},
		{Address: 3, Expression: "42,0x1000,=[8]"},
		{Address: 4, Expression: "0x1000,[8]"},
	}
	if _, err := l.Run(ops); err != nil {
		t.Fatal(err)
	}
	return g, rf
}

// TestWriteThenReadRoundTrips checks §8's IR round-trip property: printing
// a lifted function and lowering it back produces a graph whose own
// printed form is byte-identical to the original text. assignRefs is a
// deterministic function of block address and (address, id) order, and
// Lower recreates nodes in exactly the order their statements were
// printed, so the two texts must match exactly, not just "up to
// isomorphism".
func TestWriteThenReadRoundTrips(t *testing.T) {
	g, rf := buildConditionalMerge(t)

	text1, err := Write(g, rf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	g2, rf2, err := Read(text1)
	if err != nil {
		t.Fatalf("Read: %v\ntext:\n%s", err, text1)
	}

	text2, err := Write(g2, rf2)
	if err != nil {
		t.Fatalf("Write (round 2): %v", err)
	}

	if text1 != text2 {
		t.Fatalf("round trip mismatch:\n--- original ---\n%s\n--- round-tripped ---\n%s", text1, text2)
	}
}

// TestReadRejectsUndeclaredRef checks the InvalidASTError path: a
// statement that references a %ref no prior statement declared.
func TestReadRejectsUndeclaredRef(t *testing.T) {
	text := "function registers=rax\n" +
		"\nbb 0x0.0\n" +
		"%0 = scalar64 infix add %5 %5\n" +
		"jmp exit\n" +
		"\nexit\n"
	_, _, err := Read(text)
	if err == nil {
		t.Fatal("expected an error for an undeclared value ref")
	}
	var iae *InvalidASTError
	if !errors.As(err, &iae) {
		t.Fatalf("error = %v, want an *InvalidASTError", err)
	}
}

// TestParseRejectsMalformedHeader checks the parser's own error path,
// independent of lowering.
func TestParseRejectsMalformedHeader(t *testing.T) {
	_, err := Parse("not a function header\n")
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

// TestExitBindingsSurviveRoundTrip checks that every exit register/mem
// binding in the original graph names the same whole register (by name)
// after a round trip, independent of the byte-identical text check above.
func TestExitBindingsSurviveRoundTrip(t *testing.T) {
	g, rf := buildConditionalMerge(t)
	text, err := Write(g, rf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(text, "rax <-") || !strings.Contains(text, "mem <-") {
		t.Fatalf("expected rax and mem exit bindings in:\n%s", text)
	}

	_, rf2, err := Read(text)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rf2.NumWhole() != rf.NumWhole() {
		t.Fatalf("round-tripped register file has %d whole registers, want %d", rf2.NumWhole(), rf.NumWhole())
	}
	for i := 0; i < rf.NumWhole(); i++ {
		want, _ := rf.GetName(i)
		got, _ := rf2.GetName(i)
		if want != got {
			t.Fatalf("register %d = %q, want %q", i, got, want)
		}
	}
}
