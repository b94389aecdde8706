// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lift

import (
	"strconv"
	"strings"
	"unicode"
)

// tokKind classifies one item of a parsed operation expression: either a
// value to push onto the operand stack, or an operator to apply to the
// operands already on it. Grounded on the postfix token stream described by
// original_source/src/frontend/ssaconstructor.rs's Token enum, adapted to a
// plain comma-separated text grammar (§4.4).
type tokKind uint8

const (
	tokPush tokKind = iota
	tokOp
)

// pushKind is the operand-token subclass: Register/Identifier both resolve
// through the register file, Constant and Address resolve to a Const node,
// and Entry refers back to an earlier result already on the graph.
type pushKind uint8

const (
	pushRegister pushKind = iota
	pushIdentifier
	pushConstant
	pushAddress
)

// value is either an operand pushed on the stack (Register/Identifier/
// Constant/Address/Entry) or the numeric value produced by an operator and
// pushed back for a later operator to consume.
type value struct {
	kind  pushKind
	name  string
	imm   uint64
	entry int // index into Lifter.intermediates, used only for op results
	isEntry bool
}

// operator is one decoded operator token: its mnemonic plus, for Peek/Poke,
// the memory access width argument.
type operator struct {
	name  string
	width int
}

// item is one decoded element of an expression: exactly one of push/op is
// set according to kind.
type item struct {
	kind tokKind
	push value
	op   operator
}

// tokenize splits a comma-separated operation expression into a sequence of
// operand pushes and operators, left to right. It does not evaluate
// anything; Lifter.processOp drives evaluation against the operand stack.
//
// Fields also split on whitespace, not just commas: some ESIL-style
// expressions set off a conditional block with spaces instead of commas
// (e.g. "0,?{ 8,rax,= }"), and treating those as a single comma-part would
// feed "?{ 8" to tokenizeOne and silently misparse it as a register push.
func tokenize(expr string) ([]item, error) {
	var items []item
	for _, part := range strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	}) {
		it, err := tokenizeOne(part)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func tokenizeOne(part string) (item, error) {
	switch part {
	case "=":
		return item{kind: tokOp, op: operator{name: "assign"}}, nil
	case "==":
		return item{kind: tokOp, op: operator{name: "cmp"}}, nil
	case "<":
		return item{kind: tokOp, op: operator{name: "lt"}}, nil
	case ">":
		return item{kind: tokOp, op: operator{name: "gt"}}, nil
	case "+":
		return item{kind: tokOp, op: operator{name: "add"}}, nil
	case "-":
		return item{kind: tokOp, op: operator{name: "sub"}}, nil
	case "*":
		return item{kind: tokOp, op: operator{name: "mul"}}, nil
	case "/":
		return item{kind: tokOp, op: operator{name: "div"}}, nil
	case "%":
		return item{kind: tokOp, op: operator{name: "mod"}}, nil
	case "&":
		return item{kind: tokOp, op: operator{name: "and"}}, nil
	case "|":
		return item{kind: tokOp, op: operator{name: "or"}}, nil
	case "^":
		return item{kind: tokOp, op: operator{name: "xor"}}, nil
	case "<<":
		return item{kind: tokOp, op: operator{name: "lsl"}}, nil
	case ">>":
		return item{kind: tokOp, op: operator{name: "lsr"}}, nil
	case "!":
		return item{kind: tokOp, op: operator{name: "neg"}}, nil
	case "?{":
		return item{kind: tokOp, op: operator{name: "if"}}, nil
	case "}":
		return item{kind: tokOp, op: operator{name: "endif"}}, nil
	case "NOP":
		return item{kind: tokOp, op: operator{name: "nop"}}, nil
	case "ROL":
		return item{kind: tokOp, op: operator{name: "rol"}}, nil
	case "ROR":
		return item{kind: tokOp, op: operator{name: "ror"}}, nil
	case "GOTO":
		return item{kind: tokOp, op: operator{name: "goto"}}, nil
	case "BREAK":
		return item{kind: tokOp, op: operator{name: "break"}}, nil
	case "$$":
		return item{kind: tokPush, push: value{kind: pushAddress}}, nil
	}

	if strings.HasPrefix(part, "=[") && strings.HasSuffix(part, "]") {
		n, err := strconv.Atoi(part[2 : len(part)-1])
		if err != nil {
			return item{}, &InvalidInputError{Reason: "bad poke width: " + part}
		}
		return item{kind: tokOp, op: operator{name: "poke", width: n}}, nil
	}
	if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
		n, err := strconv.Atoi(part[1 : len(part)-1])
		if err != nil {
			return item{}, &InvalidInputError{Reason: "bad peek width: " + part}
		}
		return item{kind: tokOp, op: operator{name: "peek", width: n}}, nil
	}

	if imm, ok := parseImmediate(part); ok {
		return item{kind: tokPush, push: value{kind: pushConstant, imm: imm}}, nil
	}

	return item{kind: tokPush, push: value{kind: pushRegister, name: part}}, nil
}

func parseImmediate(s string) (uint64, bool) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
