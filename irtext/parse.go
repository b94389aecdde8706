// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aclements/ssalift/ir"
)

// noRef marks a missing operand in a fixed-arity Expr (the printed "-"
// token), e.g. an ITE node whose false-comment hasn't been filled in yet.
const noRef ValueRef = -1

// Parse reads the textual IR §6 describes (and Write emits) into a
// Function AST, without touching a graph — mirrors lowering.rs's split
// between the simple_ast parser (not among the retrieved files, but
// implied by lower_simpleast's signature) and LowerSsa itself.
func Parse(text string) (*Function, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	return p.parseFunction()
}

type parser struct {
	lines []string
	pos   int // 0-based index into lines
}

func (p *parser) lineNo() int { return p.pos + 1 }

// next returns the next non-blank line, trimmed, advancing past it. ok is
// false at end of input.
func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if line != "" {
			return line, true
		}
	}
	return "", false
}

// peek looks at the next non-blank line without consuming it.
func (p *parser) peek() (string, bool) {
	save := p.pos
	line, ok := p.next()
	p.pos = save
	return line, ok
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &InvalidASTError{Reason: fmt.Sprintf(format, args...), Line: p.lineNo()}
}

func (p *parser) parseFunction() (*Function, error) {
	header, ok := p.next()
	if !ok {
		return nil, p.errf("empty input, expected a function header")
	}
	const prefix = "function registers="
	if !strings.HasPrefix(header, prefix) {
		return nil, p.errf("expected %q, got %q", prefix, header)
	}
	fn := &Function{}
	regList := strings.TrimPrefix(header, prefix)
	if regList != "" {
		fn.Registers = strings.Split(regList, ",")
	}

	for {
		line, ok := p.peek()
		if !ok {
			return nil, p.errf("unexpected end of input, expected a bb/exit section")
		}
		if line == "exit" {
			p.next()
			break
		}
		bb, err := p.parseBasicBlock()
		if err != nil {
			return nil, err
		}
		fn.Blocks = append(fn.Blocks, *bb)
	}

	for {
		line, ok := p.next()
		if !ok {
			break
		}
		rb, err := p.parseRegBinding(line)
		if err != nil {
			return nil, err
		}
		fn.ExitState = append(fn.ExitState, rb)
	}

	return fn, nil
}

func (p *parser) parseBasicBlock() (*BasicBlock, error) {
	header, ok := p.next()
	if !ok {
		return nil, p.errf("expected a bb header")
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || fields[0] != "bb" {
		return nil, p.errf("expected %q, got %q", "bb <addr>", header)
	}
	addr, err := parseMAddress(fields[1])
	if err != nil {
		return nil, p.errf("bad block address %q: %v", fields[1], err)
	}
	bb := &BasicBlock{Addr: addr}

	for {
		line, ok := p.peek()
		if !ok {
			return nil, p.errf("unterminated basic block at %s", addr)
		}
		if strings.HasPrefix(line, "jmp ") || strings.HasPrefix(line, "if ") {
			p.next()
			jump, err := p.parseJump(line)
			if err != nil {
				return nil, err
			}
			bb.Jump = jump
			return bb, nil
		}
		p.next()
		stmt, err := p.parseStatement(line)
		if err != nil {
			return nil, err
		}
		bb.Stmts = append(bb.Stmts, stmt)
	}
}

func (p *parser) parseJump(line string) (Jump, error) {
	fields := strings.Fields(line)
	if fields[0] == "jmp" {
		if len(fields) != 2 {
			return Jump{}, p.errf("malformed jmp: %q", line)
		}
		target, err := parseLabel(fields[1])
		if err != nil {
			return Jump{}, p.errf("%v", err)
		}
		return Jump{Kind: JumpUncond, Target: target}, nil
	}
	// if %N then ADDR else ADDR
	if len(fields) != 6 || fields[2] != "then" || fields[4] != "else" {
		return Jump{}, p.errf("malformed if: %q", line)
	}
	sel, err := parseRef(fields[1])
	if err != nil {
		return Jump{}, p.errf("%v", err)
	}
	ifTarget, err := parseLabel(fields[3])
	if err != nil {
		return Jump{}, p.errf("%v", err)
	}
	elseTarget, err := parseLabel(fields[5])
	if err != nil {
		return Jump{}, p.errf("%v", err)
	}
	return Jump{Kind: JumpCond, Sel: sel, IfTarget: ifTarget, ElseTarget: elseTarget}, nil
}

func (p *parser) parseRegBinding(line string) (RegBinding, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[1] != "<-" {
		return RegBinding{}, p.errf("malformed exit binding: %q", line)
	}
	ref, err := parseRef(fields[2])
	if err != nil {
		return RegBinding{}, p.errf("%v", err)
	}
	return RegBinding{Reg: fields[0], Ref: ref}, nil
}

// parseStatement parses "%N = type <expr...>".
func (p *parser) parseStatement(line string) (Statement, error) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return Statement{}, p.errf("malformed statement (no '='): %q", line)
	}
	lhs := strings.TrimSpace(line[:eq])
	rhs := strings.TrimSpace(line[eq+1:])

	ref, err := parseRef(lhs)
	if err != nil {
		return Statement{}, p.errf("%v", err)
	}

	fields := strings.Fields(rhs)
	if len(fields) < 2 {
		return Statement{}, p.errf("malformed statement rhs: %q", rhs)
	}
	vt, err := parseType(fields[0])
	if err != nil {
		return Statement{}, p.errf("bad type %q: %v", fields[0], err)
	}
	expr, err := p.parseExpr(rhs, fields[1:])
	if err != nil {
		return Statement{}, err
	}
	return Statement{Ref: ref, Type: vt, Expr: expr}, nil
}

func (p *parser) parseExpr(full string, fields []string) (Expr, error) {
	if len(fields) == 0 {
		return Expr{}, p.errf("empty expression: %q", full)
	}
	kind, rest := fields[0], fields[1:]
	switch kind {
	case "const":
		if len(rest) != 1 {
			return Expr{}, p.errf("malformed const: %q", full)
		}
		imm, err := strconv.ParseUint(strings.TrimPrefix(rest[0], "0x"), 16, 64)
		if err != nil {
			return Expr{}, p.errf("bad const immediate %q: %v", rest[0], err)
		}
		return Expr{Kind: ExprConst, Imm: imm}, nil
	case "infix":
		if len(rest) != 3 {
			return Expr{}, p.errf("malformed infix: %q", full)
		}
		a, err := parseRef(rest[1])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		b, err := parseRef(rest[2])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		return Expr{Kind: ExprInfix, Op: rest[0], Args: []ValueRef{a, b}}, nil
	case "prefix":
		if len(rest) != 2 {
			return Expr{}, p.errf("malformed prefix: %q", full)
		}
		a, err := parseRef(rest[1])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		return Expr{Kind: ExprPrefix, Op: rest[0], Args: []ValueRef{a}}, nil
	case "resize":
		if len(rest) != 3 {
			return Expr{}, p.errf("malformed resize: %q", full)
		}
		w, err := strconv.Atoi(rest[1])
		if err != nil {
			return Expr{}, p.errf("bad resize width %q: %v", rest[1], err)
		}
		a, err := parseRef(rest[2])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		return Expr{Kind: ExprResize, Op: rest[0], Width: ir.WidthSpec(w), Args: []ValueRef{a}}, nil
	case "load":
		if len(rest) != 2 {
			return Expr{}, p.errf("malformed load: %q", full)
		}
		mem, err := parseRef(rest[0])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		addr, err := parseRef(rest[1])
		if err != nil {
			return Expr{}, p.errf("%v", err)
		}
		return Expr{Kind: ExprLoad, Args: []ValueRef{mem, addr}}, nil
	case "store":
		if len(rest) != 3 {
			return Expr{}, p.errf("malformed store: %q", full)
		}
		args := make([]ValueRef, 3)
		for i, f := range rest {
			v, err := parseRef(f)
			if err != nil {
				return Expr{}, p.errf("%v", err)
			}
			args[i] = v
		}
		return Expr{Kind: ExprStore, Args: args}, nil
	case "ite":
		if len(rest) != 3 {
			return Expr{}, p.errf("malformed ite: %q", full)
		}
		args := make([]ValueRef, 3)
		for i, f := range rest {
			v, err := parseRef(f)
			if err != nil {
				return Expr{}, p.errf("%v", err)
			}
			args[i] = v
		}
		return Expr{Kind: ExprITE, Args: args}, nil
	case "call":
		args := make([]ValueRef, len(rest))
		for i, f := range rest {
			v, err := parseRef(f)
			if err != nil {
				return Expr{}, p.errf("%v", err)
			}
			args[i] = v
		}
		return Expr{Kind: ExprCall, Args: args}, nil
	case "comment":
		idx := strings.Index(full, "comment")
		text := strings.TrimSpace(full[idx+len("comment"):])
		unq, err := strconv.Unquote(text)
		if err != nil {
			return Expr{}, p.errf("bad comment literal %q: %v", text, err)
		}
		return Expr{Kind: ExprComment, Text: unq}, nil
	case "undefined":
		return Expr{Kind: ExprUndefined}, nil
	case "phi":
		args := make([]ValueRef, len(rest))
		for i, f := range rest {
			v, err := parseRef(f)
			if err != nil {
				return Expr{}, p.errf("%v", err)
			}
			args[i] = v
		}
		return Expr{Kind: ExprPhi, Args: args}, nil
	}
	return Expr{}, p.errf("unknown expression kind %q", kind)
}

func parseRef(tok string) (ValueRef, error) {
	if tok == "-" {
		return noRef, nil
	}
	if !strings.HasPrefix(tok, "%") {
		return 0, fmt.Errorf("expected a %%ref, got %q", tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("bad value ref %q: %v", tok, err)
	}
	return ValueRef(n), nil
}

// parseLabel parses a jump/branch target: either an MAddress or the
// literal "exit", represented as the sentinel address {^uint64(0), 0}
// (no real instruction ever lifts to that offset).
const exitSentinelOffset = ^uint64(0)

func parseLabel(tok string) (ir.MAddress, error) {
	if tok == "exit" {
		return ir.MAddress{Offset: exitSentinelOffset}, nil
	}
	return parseMAddress(tok)
}

func parseMAddress(tok string) (ir.MAddress, error) {
	dot := strings.LastIndex(tok, ".")
	if dot < 0 {
		return ir.MAddress{}, fmt.Errorf("expected OFFSET.MICRO, got %q", tok)
	}
	offsetStr, microStr := tok[:dot], tok[dot+1:]
	if !strings.HasPrefix(offsetStr, "0x") {
		return ir.MAddress{}, fmt.Errorf("expected a 0x-prefixed offset, got %q", offsetStr)
	}
	offset, err := strconv.ParseUint(offsetStr[2:], 16, 64)
	if err != nil {
		return ir.MAddress{}, fmt.Errorf("bad offset %q: %v", offsetStr, err)
	}
	micro, err := strconv.ParseUint(microStr, 10, 64)
	if err != nil {
		return ir.MAddress{}, fmt.Errorf("bad micro-offset %q: %v", microStr, err)
	}
	return ir.MAddress{Offset: offset, Micro: micro}, nil
}

func parseType(tok string) (ir.ValueType, error) {
	var kindStr string
	for _, k := range []string{"scalar", "reference", "unresolved"} {
		if strings.HasPrefix(tok, k) {
			kindStr = k
			break
		}
	}
	if kindStr == "" {
		return ir.ValueType{}, fmt.Errorf("unknown type kind in %q", tok)
	}
	var kind ir.RefKind
	switch kindStr {
	case "scalar":
		kind = ir.Scalar
	case "reference":
		kind = ir.Reference
	case "unresolved":
		kind = ir.Unresolved
	}
	rest := tok[len(kindStr):]
	if rest == "?" {
		return ir.ValueType{Width: ir.UnknownWidth, Kind: kind}, nil
	}
	w, err := strconv.Atoi(rest)
	if err != nil {
		return ir.ValueType{}, fmt.Errorf("bad width %q: %v", rest, err)
	}
	return ir.ValueType{Width: ir.WidthSpec(w), Kind: kind}, nil
}
