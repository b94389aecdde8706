// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regfile maps a platform's named registers to the whole-register
// SSA variable slot they belong to, plus a bit shift and width (§4.2 of the
// design). The partial-register read/write contracts built on these slots
// live in the lifter (lift/regaccess.go).
package regfile

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Descriptor is one entry from a platform's register profile.
type Descriptor struct {
	Name      string
	ShiftBits int
	WidthBits int
	TypeClass string
	// Alias is an optional architectural role, e.g. "PC" or "SP".
	Alias string
}

// FilterFunc decides whether a Descriptor should be excluded from the
// register file entirely. x86's "*flags" aggregates are one concrete
// instance of this (see SPEC_FULL.md §6.2) — the policy is threaded
// through by the caller rather than hardcoded, unlike the original source.
type FilterFunc func(Descriptor) bool

// ExcludeFPU drops any descriptor whose TypeClass is "fpu": FPU registers
// on x86 overlap with GPR registers at the byte-offset level and can't
// share a whole-register cluster with them.
func ExcludeFPU(d Descriptor) bool { return d.TypeClass == "fpu" }

// ExcludeX86Flags drops any descriptor whose name ends in "flags" — the
// x86 EFLAGS/RFLAGS aggregates alias incorrectly against the individual
// flag bits also present in many register profiles.
func ExcludeX86Flags(d Descriptor) bool {
	return len(d.Name) >= 5 && d.Name[len(d.Name)-5:] == "flags"
}

// SubRegister locates a named register within its whole-register slot.
type SubRegister struct {
	Whole int // index into File.WholeNames/WholeWidths
	Shift int
	Width int
}

// RegInfo is the user-facing summary of a whole register.
type RegInfo struct {
	Name  string
	Width int
	Alias string
	Type  string
}

// File is a constructed register file: the whole registers a platform
// exposes to the phi placer as SSA variables, plus the sub-register slices
// within each.
type File struct {
	WholeNames  []string
	WholeWidths []int

	subregs map[string]SubRegister
	alias   map[string]string
	typ     map[string]string
}

// New builds a File from a platform's register descriptors, per §4.2's
// three-step construction: sort by (shift, -(shift+width)), filter, then
// cluster into whole registers and sub-registers.
func New(descriptors []Descriptor, filters ...FilterFunc) *File {
	alias := make(map[string]string)
	typ := make(map[string]string)
	var kept []Descriptor
	for _, d := range descriptors {
		typ[d.Name] = d.TypeClass
		if d.Alias != "" {
			alias[d.Name] = d.Alias
		}
		excluded := false
		for _, f := range filters {
			if f(d) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, d)
		}
	}

	slices.SortFunc(kept, func(a, b Descriptor) bool {
		if a.ShiftBits != b.ShiftBits {
			return a.ShiftBits < b.ShiftBits
		}
		// Secondary key is -(shift+width): the widest register covering
		// a given shift sorts first within a tie.
		return (a.ShiftBits + a.WidthBits) > (b.ShiftBits + b.WidthBits)
	})

	f := &File{subregs: make(map[string]SubRegister), alias: alias, typ: typ}

	clusterShift, clusterEnd := 0, 0
	wholeIdx := -1
	for _, d := range kept {
		if wholeIdx < 0 || d.ShiftBits >= clusterEnd {
			wholeIdx = len(f.WholeNames)
			f.WholeNames = append(f.WholeNames, d.Name)
			f.WholeWidths = append(f.WholeWidths, d.WidthBits)
			clusterShift = d.ShiftBits
			clusterEnd = d.ShiftBits + d.WidthBits
		} else if d.ShiftBits+d.WidthBits > clusterEnd {
			panic(fmt.Sprintf("regfile: descriptor %q at shift %d width %d overruns its cluster [%d,%d)",
				d.Name, d.ShiftBits, d.WidthBits, clusterShift, clusterEnd))
		}
		f.subregs[d.Name] = SubRegister{
			Whole: wholeIdx,
			Shift: d.ShiftBits - clusterShift,
			Width: d.WidthBits,
		}
	}
	return f
}

// GetSubregister returns the (whole, shift, width) location of a named
// register.
func (f *File) GetSubregister(name string) (SubRegister, bool) {
	sr, ok := f.subregs[name]
	return sr, ok
}

// GetName returns the whole register's canonical name.
func (f *File) GetName(idx int) (string, bool) {
	if idx < 0 || idx >= len(f.WholeNames) {
		return "", false
	}
	return f.WholeNames[idx], true
}

// GetWidth returns the whole register's width in bits.
func (f *File) GetWidth(idx int) (int, bool) {
	if idx < 0 || idx >= len(f.WholeWidths) {
		return 0, false
	}
	return f.WholeWidths[idx], true
}

// GetRegInfo returns a whole register's name, width, alias and type class.
func (f *File) GetRegInfo(idx int) (RegInfo, bool) {
	name, ok := f.GetName(idx)
	if !ok {
		return RegInfo{}, false
	}
	width, _ := f.GetWidth(idx)
	return RegInfo{Name: name, Width: width, Alias: f.alias[name], Type: f.typ[name]}, true
}

// GetNameByAlias finds the whole register playing role alias (e.g. "PC").
func (f *File) GetNameByAlias(alias string) (string, bool) {
	for _, name := range f.WholeNames {
		if f.alias[name] == alias {
			return name, true
		}
	}
	return "", false
}

// NumWhole returns the number of whole registers in the file.
func (f *File) NumWhole() int { return len(f.WholeNames) }
