// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regfile

import "testing"

func x86Like() []Descriptor {
	return []Descriptor{
		{Name: "rax", ShiftBits: 0, WidthBits: 64, TypeClass: "gpr"},
		{Name: "eax", ShiftBits: 0, WidthBits: 32, TypeClass: "gpr"},
		{Name: "ax", ShiftBits: 0, WidthBits: 16, TypeClass: "gpr"},
		{Name: "al", ShiftBits: 0, WidthBits: 8, TypeClass: "gpr"},
		{Name: "rbx", ShiftBits: 64, WidthBits: 64, TypeClass: "gpr"},
		{Name: "rip", ShiftBits: 128, WidthBits: 64, TypeClass: "gpr", Alias: "PC"},
		{Name: "st7", ShiftBits: 0, WidthBits: 80, TypeClass: "fpu"},
		{Name: "eflags", ShiftBits: 192, WidthBits: 32, TypeClass: "gpr"},
	}
}

func TestClustersSubregisters(t *testing.T) {
	f := New(x86Like(), ExcludeFPU, ExcludeX86Flags)

	if got, want := f.NumWhole(), 3; got != want {
		t.Fatalf("NumWhole() = %d, want %d", got, want)
	}
	name, _ := f.GetName(0)
	if name != "rax" {
		t.Fatalf("whole register 0 = %q, want rax", name)
	}

	sub, ok := f.GetSubregister("al")
	if !ok {
		t.Fatal("al not found")
	}
	if sub.Whole != 0 || sub.Shift != 0 || sub.Width != 8 {
		t.Fatalf("al = %+v, want {0 0 8}", sub)
	}

	sub, ok = f.GetSubregister("eax")
	if !ok || sub.Whole != 0 || sub.Shift != 0 || sub.Width != 32 {
		t.Fatalf("eax = %+v, ok=%v, want {0 0 32} true", sub, ok)
	}
}

func TestFiltersFPUAndFlags(t *testing.T) {
	f := New(x86Like(), ExcludeFPU, ExcludeX86Flags)
	if _, ok := f.GetSubregister("st7"); ok {
		t.Fatal("st7 (fpu) should have been filtered")
	}
	if _, ok := f.GetSubregister("eflags"); ok {
		t.Fatal("eflags should have been filtered")
	}
}

func TestAliasLookup(t *testing.T) {
	f := New(x86Like(), ExcludeFPU, ExcludeX86Flags)
	name, ok := f.GetNameByAlias("PC")
	if !ok || name != "rip" {
		t.Fatalf("GetNameByAlias(PC) = %q, %v, want rip, true", name, ok)
	}
}

func TestOverrunPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overrunning sub-register")
		}
	}()
	New([]Descriptor{
		{Name: "rax", ShiftBits: 0, WidthBits: 64, TypeClass: "gpr"},
		{Name: "bad", ShiftBits: 32, WidthBits: 64, TypeClass: "gpr"},
	})
}
