package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisassembleBinary(t *testing.T) {
	b := compileFiles(t, "countdown.c")

	name := filepath.Join(t.TempDir(), "countdown.s")

	if err := DisassembleBinary(b, name, false, LoadConfig()); err != nil {
		t.Fatalf("disassembling failed: %v", err)
	}

	assembly, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}

	text := string(assembly)

	for _, want := range []string{"nop", "addi", "lw", "sw", "beq", "jal", "jalr", "ecall", ".word"} {
		if !strings.Contains(text, want) {
			t.Errorf("assembly is missing %q", want)
		}
	}

	lines := strings.Count(text, "\n")
	if uint32(lines) < b.instructions() {
		t.Errorf("assembly has %d lines for %d instructions", lines, b.instructions())
	}
}

func TestDisassembleVerbose(t *testing.T) {
	b := compileFiles(t, "countdown.c")

	name := filepath.Join(t.TempDir(), "countdown.S")

	if err := DisassembleBinary(b, name, true, LoadConfig()); err != nil {
		t.Fatalf("disassembling failed: %v", err)
	}

	assembly, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}

	// verbose output carries source line numbers and raw instruction words
	if !strings.Contains(string(assembly), "(~") {
		t.Error("verbose assembly has no line numbers")
	}
	if !strings.Contains(string(assembly), ": 0x") {
		t.Error("verbose assembly has no raw words")
	}
}

// Every emitted instruction must disassemble; an unknown word aborts.
func TestDisassembleRejectsUnknownInstruction(t *testing.T) {
	name := filepath.Join(t.TempDir(), "zero.s")

	err := DisassembleBinary(zeroWordBinary(), name, false, LoadConfig())
	if err == nil {
		t.Fatal("unknown instruction disassembled")
	}

	if exit, ok := err.(*ExitError); !ok || exit.Code != EXITCODE_UNKNOWNINSTRUCTION {
		t.Errorf("got error %v, want unknown instruction exit", err)
	}
}
