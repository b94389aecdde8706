// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ssalift drives the lifter and classical passes over a JSON description of
// a platform's register file and a batch of disassembled functions,
// printing each function's textual IR.
//
// Usage: ssalift [flags] input.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aclements/ssalift/irtext"
	"github.com/aclements/ssalift/lift"
	"github.com/aclements/ssalift/memssa"
	"github.com/aclements/ssalift/passes/cse"
	"github.com/aclements/ssalift/passes/dce"
	"github.com/aclements/ssalift/passes/sccp"
	"github.com/aclements/ssalift/regfile"
	"github.com/aclements/ssalift/ssagraph"
)

var (
	passesFlag = flag.String("passes", "sccp,dce,cse", "comma-separated classical passes to run, in order")
	checkFlag  = flag.Bool("check", false, "verify structural invariants after lifting and after each pass")
	memssaFlag = flag.Bool("memssa", false, "build and report memory SSA alias classes for each function")
	outDir     = flag.String("out", "", "directory to write one <name>.ir file per function; default stdout")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] input.json\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	in, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatalf("ssalift: %v", err)
	}

	var filters []regfile.FilterFunc
	if in.ExcludeFPU {
		filters = append(filters, regfile.ExcludeFPU)
	}
	if in.ExcludeFlags {
		filters = append(filters, regfile.ExcludeX86Flags)
	}
	descs := make([]regfile.Descriptor, len(in.Registers))
	for i, d := range in.Registers {
		descs[i] = d.toRegfile()
	}
	rf := regfile.New(descs, filters...)

	passNames := strings.Split(*passesFlag, ",")
	ranges := in.MemoryRanges.toMemssa()

	ok, failed := 0, 0
	for _, fn := range in.Functions {
		if err := processFunction(rf, fn, passNames, ranges); err != nil {
			// Per-function isolation (§7): a malformed or unsupported
			// function is logged and skipped, not fatal to the batch.
			log.Printf("ssalift: function %q (entry %#x): %v", fn.Name, fn.entryAddr(), err)
			failed++
			continue
		}
		ok++
	}
	log.Printf("ssalift: lifted %d functions, %d failed", ok, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func readInput(path string) (*inputFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in inputFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &in, nil
}

func processFunction(rf *regfile.File, fn function, passNames []string, ranges memssa.Ranges) error {
	g := ssagraph.New()
	l, err := lift.New(g, rf)
	if err != nil {
		return fmt.Errorf("lift.New: %w", err)
	}

	ops := make([]lift.OperationRecord, len(fn.Ops))
	for i, o := range fn.Ops {
		ops[i] = o.toLift()
	}
	if _, err := l.Run(ops); err != nil {
		return fmt.Errorf("lifting: %w", err)
	}

	if *checkFlag {
		if violations := g.CheckInvariants(); len(violations) > 0 {
			return fmt.Errorf("invariants violated after lift: %v", violations[0])
		}
	}

	for _, name := range passNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		n, err := runPass(g, name)
		if err != nil {
			return err
		}
		log.Printf("ssalift: %s/%s: %d rewrites", fn.Name, name, n)
		if *checkFlag {
			if violations := g.CheckInvariants(); len(violations) > 0 {
				return fmt.Errorf("invariants violated after %s: %v", name, violations[0])
			}
		}
	}

	if *memssaFlag {
		reportMemSSA(g, l.Blocks(), ranges)
	}

	text, err := irtext.Write(g, rf)
	if err != nil {
		return fmt.Errorf("irtext.Write: %w", err)
	}
	return emit(fn.Name, text)
}

func runPass(g *ssagraph.Graph, name string) (int, error) {
	switch name {
	case "sccp":
		return sccp.Run(g), nil
	case "dce":
		return dce.Run(g), nil
	case "cse":
		return cse.Run(g), nil
	}
	return 0, fmt.Errorf("unknown pass %q", name)
}

func reportMemSSA(g *ssagraph.Graph, blocks []ssagraph.NodeID, ranges memssa.Ranges) {
	_, classOf := memssa.Build(g, blocks, ranges)
	for n, classes := range classOf {
		names := make([]string, len(classes))
		for i, c := range classes {
			names[i] = string(c)
		}
		log.Printf("ssalift: memssa: node %d -> %s", n, strings.Join(names, ","))
	}
}

func emit(name, text string) error {
	if *outDir == "" {
		fmt.Printf("=== %s ===\n%s\n", name, text)
		return nil
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	path := *outDir + "/" + name + ".ir"
	return os.WriteFile(path, []byte(text), 0o644)
}
