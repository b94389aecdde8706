// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"testing"
)

func TestReadInputParsesRegistersAndFunctions(t *testing.T) {
	raw := `{
		"registers": [{"name": "rax", "shift": 0, "width": 64, "class": "gpr"}],
		"excludeX86Flags": true,
		"functions": [
			{"name": "f1", "operations": [{"address": 16, "expression": "4,rax,="}]}
		]
	}`
	var in inputFile
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(in.Registers) != 1 || in.Registers[0].Name != "rax" {
		t.Fatalf("registers = %+v", in.Registers)
	}
	if !in.ExcludeFlags {
		t.Fatal("expected excludeX86Flags to parse true")
	}
	if len(in.Functions) != 1 || in.Functions[0].entryAddr() != 16 {
		t.Fatalf("functions = %+v", in.Functions)
	}
	rf := in.Registers[0].toRegfile()
	if rf.Name != "rax" || rf.WidthBits != 64 {
		t.Fatalf("toRegfile() = %+v", rf)
	}
}
