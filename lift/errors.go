// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lift

import "fmt"

// UnimplementedError reports one of the tokens §4.4 lists as explicitly
// unimplemented (Rol, Ror, Goto, Break): the decoder must fail loudly
// rather than silently skip them (§7, category 3).
type UnimplementedError struct {
	Token string
	Addr  string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("lift: unimplemented token %q at %s", e.Token, e.Addr)
}

// InvalidInputError reports a malformed operation record: an unknown
// register, a stack underflow, or too many registers (§7, category 2).
type InvalidInputError struct {
	Reason string
	Addr   string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("lift: invalid input at %s: %s", e.Addr, e.Reason)
}

// errStackUnderflowMsg is the InvalidInputError reason used when the
// operand stack runs dry.
const errStackUnderflowMsg = "operand stack underflow"

// maxRegisters is the ceiling from §7: at most 254 whole registers, since
// register variable ids share the phi placer's id space with the single
// memory variable, which takes the id right after the last register.
const maxRegisters = 254
