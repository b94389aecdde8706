// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/aclements/ssalift/lift"
	"github.com/aclements/ssalift/memssa"
	"github.com/aclements/ssalift/regfile"
)

// inputFile is the on-disk JSON shape the CLI reads: one platform register
// profile, the memory ranges the frontend resolved for memssa's alias
// classes, and a list of functions to lift independently.
type inputFile struct {
	Registers    []regDescriptor `json:"registers"`
	ExcludeFPU   bool            `json:"excludeFPU"`
	ExcludeFlags bool            `json:"excludeX86Flags"`
	MemoryRanges memRanges       `json:"memoryRanges"`
	Functions    []function      `json:"functions"`
}

// regDescriptor mirrors regfile.Descriptor with JSON field names a little
// friendlier than the Go-exported ones.
type regDescriptor struct {
	Name      string `json:"name"`
	ShiftBits int    `json:"shift"`
	WidthBits int    `json:"width"`
	TypeClass string `json:"class"`
	Alias     string `json:"alias"`
}

func (d regDescriptor) toRegfile() regfile.Descriptor {
	return regfile.Descriptor{Name: d.Name, ShiftBits: d.ShiftBits, WidthBits: d.WidthBits, TypeClass: d.TypeClass, Alias: d.Alias}
}

type addrRange struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

func (r addrRange) toMemssa() memssa.AddrRange { return memssa.AddrRange{Low: r.Low, High: r.High} }

type memRanges struct {
	DataRefs []addrRange `json:"datarefs"`
	Locals   []addrRange `json:"locals"`
	CallCtx  []addrRange `json:"callCtx"`
}

func (r memRanges) toMemssa() memssa.Ranges {
	conv := func(rs []addrRange) []memssa.AddrRange {
		out := make([]memssa.AddrRange, len(rs))
		for i, a := range rs {
			out[i] = a.toMemssa()
		}
		return out
	}
	return memssa.Ranges{DataRefs: conv(r.DataRefs), Locals: conv(r.Locals), CallCtx: conv(r.CallCtx)}
}

// function is one disassembled function's instruction stream.
type function struct {
	Name string     `json:"name"`
	Ops  []opRecord `json:"operations"`
}

type opRecord struct {
	Address    uint64 `json:"address"`
	Expression string `json:"expression"`
	Class      string `json:"class"`
}

func (o opRecord) toLift() lift.OperationRecord {
	return lift.OperationRecord{Address: o.Address, Expression: o.Expression, Class: o.Class}
}

func (f function) entryAddr() uint64 {
	if len(f.Ops) == 0 {
		return 0
	}
	return f.Ops[0].Address
}
