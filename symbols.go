package main

import (
	"hash/fnv"
)

// Symbol classes
const (
	CLASS_VARIABLE = 1
	CLASS_BIGINT   = 2
	CLASS_STRING   = 3
	CLASS_PROCEDURE = 4
)

// Types
const (
	TYPE_UINT32     = 1
	TYPE_UINT32STAR = 2
	TYPE_VOID       = 3
)

func typeName(typ uint32) string {
	switch typ {
	case TYPE_UINT32:
		return "uint32_t"
	case TYPE_UINT32STAR:
		return "uint32_t*"
	case TYPE_VOID:
		return "void"
	}
	return "unknown"
}

// Symbol tables
const (
	GLOBAL_TABLE  = 1
	LOCAL_TABLE   = 2
	LIBRARY_TABLE = 3
)

// noEntry is the nil of the symbol arena.
const noEntry = int32(-1)

// symbolEntry lives in an arena; next is an arena index, not a pointer,
// so entries can be traversed and prepended without lifetime juggling.
type symbolEntry struct {
	next    int32
	name    string
	line    uint32
	class   uint32
	typ     uint32
	value   uint32 // VARIABLE, BIGINT: initial value
	address uint32 // VARIABLE, BIGINT, STRING: offset, PROCEDURE: address
	scope   uint32 // REG_GP for globals, REG_FP for locals
}

// SymbolTable holds the global hash table, the current procedure's local
// list, and the library list. Globals are bucketed; locals and library
// entries are plain lists headed by an arena index.
type SymbolTable struct {
	arena   []symbolEntry
	global  []int32
	local   int32
	library int32

	globalVariables uint32
	procedures      uint32
	strings         uint32

	searches   uint32
	searchTime uint32
}

func NewSymbolTable(buckets uint32) *SymbolTable {
	st := &SymbolTable{
		global:  make([]int32, buckets),
		local:   noEntry,
		library: noEntry,
	}
	for i := range st.global {
		st.global[i] = noEntry
	}
	return st
}

// hash buckets a name by its bytes. Any well-distributed small-name hash
// does; FNV-1a is used here.
func (st *SymbolTable) hash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32() % uint32(len(st.global))
}

func (st *SymbolTable) entry(index int32) *symbolEntry {
	return &st.arena[index]
}

// createEntry prepends a new entry to the chosen table and returns its
// arena index.
func (st *SymbolTable) createEntry(table uint32, name string, line, class, typ, value, address uint32) int32 {
	index := int32(len(st.arena))

	e := symbolEntry{
		name:    name,
		line:    line,
		class:   class,
		typ:     typ,
		value:   value,
		address: address,
	}

	switch table {
	case GLOBAL_TABLE:
		e.scope = REG_GP
		bucket := st.hash(name)
		e.next = st.global[bucket]
		st.global[bucket] = index

		switch class {
		case CLASS_VARIABLE:
			st.globalVariables++
		case CLASS_PROCEDURE:
			st.procedures++
		case CLASS_STRING:
			st.strings++
		}
	case LOCAL_TABLE:
		e.scope = REG_FP
		e.next = st.local
		st.local = index
	default:
		// library procedures
		e.scope = REG_GP
		e.next = st.library
		st.library = index
	}

	st.arena = append(st.arena, e)
	return index
}

// searchList walks a chain for a (name, class) match.
func (st *SymbolTable) searchList(head int32, name string, class uint32) int32 {
	st.searches++
	for index := head; index != noEntry; index = st.arena[index].next {
		st.searchTime++
		if st.arena[index].class == class && st.arena[index].name == name {
			return index
		}
	}
	return noEntry
}

func (st *SymbolTable) searchGlobal(name string, class uint32) int32 {
	return st.searchList(st.global[st.hash(name)], name, class)
}

// searchScoped applies the scoping policy: locals override globals for
// variables, library procedures override user procedures.
func (st *SymbolTable) searchScoped(name string, class uint32) int32 {
	index := noEntry

	if class == CLASS_VARIABLE {
		index = st.searchList(st.local, name, CLASS_VARIABLE)
	} else if class == CLASS_PROCEDURE {
		index = st.searchList(st.library, name, CLASS_PROCEDURE)
	}

	if index == noEntry {
		return st.searchGlobal(name, class)
	}
	return index
}

func (st *SymbolTable) dropLocals() {
	st.local = noEntry
}

// isUndefinedProcedure reports procedures that are declared or called but
// never defined. A call site is recognized by the jal left at the entry's
// address, the head of its fixup chain.
func (st *SymbolTable) isUndefinedProcedure(index int32, b *Binary) bool {
	e := st.entry(index)

	if e.class != CLASS_PROCEDURE {
		return false
	}
	if st.searchList(st.library, e.name, CLASS_PROCEDURE) != noEntry {
		// procedure is a library procedure
		return false
	}
	if e.address == 0 {
		// declared but never called nor defined
		return true
	}
	return getOpcode(b.loadInstruction(e.address)) == OP_JAL
}

// reportUndefinedProcedures prints every undefined procedure and reports
// whether any exists.
func (st *SymbolTable) reportUndefinedProcedures(sourceName string, b *Binary) bool {
	undefined := false

	for bucket := range st.global {
		for index := st.global[bucket]; index != noEntry; index = st.arena[index].next {
			if st.isUndefinedProcedure(index, b) {
				undefined = true
				errorf("syntax error in %s in line %d: procedure %s undefined",
					sourceName, st.arena[index].line, st.arena[index].name)
			}
		}
	}

	return undefined
}
