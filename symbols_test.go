package main

import (
	"fmt"
	"testing"
)

func TestScopedLookup(t *testing.T) {
	st := NewSymbolTable(DefaultHashSize)

	global := st.createEntry(GLOBAL_TABLE, "x", 1, CLASS_VARIABLE, TYPE_UINT32, 0, 100)
	local := st.createEntry(LOCAL_TABLE, "x", 2, CLASS_VARIABLE, TYPE_UINT32, 0, 8)

	// locals override globals for variables
	if got := st.searchScoped("x", CLASS_VARIABLE); got != local {
		t.Errorf("scoped lookup of x = %d, want local %d", got, local)
	}

	st.dropLocals()

	if got := st.searchScoped("x", CLASS_VARIABLE); got != global {
		t.Errorf("after dropping locals, lookup of x = %d, want global %d", got, global)
	}

	if st.entry(global).scope != REG_GP {
		t.Error("global scope is not $gp")
	}
	if st.entry(local).scope != REG_FP {
		t.Error("local scope is not $fp")
	}
}

func TestLibraryOverridesUserProcedure(t *testing.T) {
	st := NewSymbolTable(DefaultHashSize)

	st.createEntry(GLOBAL_TABLE, "exit", 1, CLASS_PROCEDURE, TYPE_VOID, 0, 400)
	library := st.createEntry(LIBRARY_TABLE, "exit", 0, CLASS_PROCEDURE, TYPE_VOID, 0, 80)

	if got := st.searchScoped("exit", CLASS_PROCEDURE); got != library {
		t.Errorf("lookup of exit = %d, want library %d", got, library)
	}
}

func TestLookupByClass(t *testing.T) {
	st := NewSymbolTable(DefaultHashSize)

	variable := st.createEntry(GLOBAL_TABLE, "foo", 1, CLASS_VARIABLE, TYPE_UINT32, 7, 100)
	procedure := st.createEntry(GLOBAL_TABLE, "foo", 2, CLASS_PROCEDURE, TYPE_UINT32, 0, 200)

	if got := st.searchGlobal("foo", CLASS_VARIABLE); got != variable {
		t.Errorf("variable foo = %d, want %d", got, variable)
	}
	if got := st.searchGlobal("foo", CLASS_PROCEDURE); got != procedure {
		t.Errorf("procedure foo = %d, want %d", got, procedure)
	}
	if got := st.searchGlobal("bar", CLASS_VARIABLE); got != noEntry {
		t.Errorf("lookup of bar = %d, want none", got)
	}
}

func TestBucketCollisions(t *testing.T) {
	// a tiny table forces collisions; chains must still resolve by name
	st := NewSymbolTable(2)

	indices := make(map[string]int32)

	for i := 0; i < 64; i++ {
		name := fmt.Sprintf("sym%d", i)
		indices[name] = st.createEntry(GLOBAL_TABLE, name, uint32(i), CLASS_VARIABLE, TYPE_UINT32, uint32(i), 0)
	}

	for name, index := range indices {
		if got := st.searchGlobal(name, CLASS_VARIABLE); got != index {
			t.Errorf("lookup of %s = %d, want %d", name, got, index)
		}
	}
}

func TestUndefinedProcedureDetection(t *testing.T) {
	st := NewSymbolTable(DefaultHashSize)
	b := NewBinary()

	// a call site leaves a jal at the entry's address
	jal, err := encodeJFormat(0, REG_RA, OP_JAL)
	if err != nil {
		t.Fatal(err)
	}
	b.storeInstruction(8, jal)
	b.length = 12

	called := st.createEntry(GLOBAL_TABLE, "called", 1, CLASS_PROCEDURE, TYPE_UINT32, 0, 8)
	declared := st.createEntry(GLOBAL_TABLE, "declared", 2, CLASS_PROCEDURE, TYPE_UINT32, 0, 0)

	if !st.isUndefinedProcedure(called, b) {
		t.Error("called but undefined procedure not reported")
	}
	if !st.isUndefinedProcedure(declared, b) {
		t.Error("declared but undefined procedure not reported")
	}

	// a defined procedure starts with its prologue, not a jal
	addi, err := encodeIFormat(^uint32(REGISTERSIZE-1), REG_SP, F3_ADDI, REG_SP, OP_IMM)
	if err != nil {
		t.Fatal(err)
	}
	b.storeInstruction(4, addi)

	defined := st.createEntry(GLOBAL_TABLE, "defined", 3, CLASS_PROCEDURE, TYPE_UINT32, 0, 4)

	if st.isUndefinedProcedure(defined, b) {
		t.Error("defined procedure reported undefined")
	}

	// library procedures are never undefined
	st.createEntry(LIBRARY_TABLE, "declared", 0, CLASS_PROCEDURE, TYPE_UINT32, 0, 80)

	if st.isUndefinedProcedure(declared, b) {
		t.Error("library-backed procedure reported undefined")
	}
}
