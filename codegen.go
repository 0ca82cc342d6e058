package main

import (
	"strconv"
)

// Fixed syscall numbers shared between the emitted wrappers and the kernel.
const (
	SYSCALL_EXIT   = 93
	SYSCALL_READ   = 63
	SYSCALL_WRITE  = 64
	SYSCALL_OPEN   = 1024
	SYSCALL_BRK    = 214
	SYSCALL_SWITCH = 401
)

// instructionCounters counts emitted (compiler) or executed (machine)
// instructions per opcode.
type instructionCounters struct {
	lui, addi                  uint32
	add, sub, mul, divu, remu  uint32
	sltu, lw, sw, beq          uint32
	jal, jalr, ecall           uint32
}

func (ic *instructionCounters) total() uint32 {
	return ic.lui + ic.addi + ic.add + ic.sub + ic.mul + ic.divu + ic.remu +
		ic.sltu + ic.lw + ic.sw + ic.beq + ic.jal + ic.jalr + ic.ecall
}

// Compiler is the single-pass MiniC compiler: it owns the scanner of the
// current source, the symbol tables, and the binary being generated, and
// emits RISC-U while parsing. The first error is sticky; everything
// downstream becomes a no-op so the recursive descent can unwind without
// threading errors through every production.
type Compiler struct {
	lex *Lexer
	st  *SymbolTable
	b   *Binary

	err error

	allocatedTemporaries uint32
	allocatedMemory      uint32 // bytes for global variables and strings
	returnBranches       uint32 // fixup chain for return statements
	returnType           uint32

	calls       uint32
	assignments uint32
	whiles      uint32
	ifs         uint32
	returns     uint32

	ic instructionCounters
}

func NewCompiler(cfg Config) *Compiler {
	return &Compiler{
		st: NewSymbolTable(cfg.HashTableSize),
		b:  NewBinary(),
	}
}

func (c *Compiler) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Compiler) line() uint32 {
	if c.lex == nil {
		return 1
	}
	return c.lex.line
}

func (c *Compiler) sourceName() string {
	if c.lex == nil {
		return "library"
	}
	return c.lex.sourceName
}

// ---------------------------------------------------------------------
// diagnostics

func (c *Compiler) syntaxErrorMessage(message string) {
	errorf("syntax error in %s in line %d: %s", c.sourceName(), c.line(), message)
}

func (c *Compiler) syntaxErrorToken(expected TokenType) {
	errorf("syntax error in %s in line %d: \"%s\" expected but \"%s\" found",
		c.sourceName(), c.line(), tokenName(expected), tokenName(c.lex.token))
}

func (c *Compiler) syntaxErrorUnexpected() {
	errorf("syntax error in %s in line %d: unexpected symbol \"%s\" found",
		c.sourceName(), c.line(), tokenName(c.lex.token))
}

func (c *Compiler) typeWarning(expected, found uint32) {
	warnf("%s in line %d: type mismatch, %s expected but %s found",
		c.sourceName(), c.line(), typeName(expected), typeName(found))
}

func (c *Compiler) compilerError(message string) {
	c.syntaxErrorMessage(message)
	c.fail(exitError(EXITCODE_COMPILERERROR, "%s", message))
}

// ---------------------------------------------------------------------
// temporary register allocation
//
// Temporaries map onto t0-t6: t0-t2 first, then t3-t6.

func (c *Compiler) talloc() {
	if c.allocatedTemporaries < NUMBEROFTEMPORARIES {
		c.allocatedTemporaries++
	} else {
		c.compilerError("out of registers")
	}
}

func (c *Compiler) currentTemporary() uint32 {
	if c.allocatedTemporaries > 0 {
		if c.allocatedTemporaries < 4 {
			return REG_TP + c.allocatedTemporaries
		}
		return REG_S11 + c.allocatedTemporaries - 3
	}
	c.compilerError("illegal register access")
	return REG_T0
}

func (c *Compiler) previousTemporary() uint32 {
	if c.allocatedTemporaries > 1 {
		if c.allocatedTemporaries == 4 {
			return REG_T2
		}
		return c.currentTemporary() - 1
	}
	c.compilerError("illegal register access")
	return REG_T0
}

func (c *Compiler) nextTemporary() uint32 {
	if c.allocatedTemporaries < NUMBEROFTEMPORARIES {
		if c.allocatedTemporaries == 3 {
			return REG_T3
		}
		return c.currentTemporary() + 1
	}
	c.compilerError("out of registers")
	return REG_T0
}

func (c *Compiler) tfree(n uint32) {
	if c.allocatedTemporaries >= n {
		c.allocatedTemporaries -= n
	} else {
		c.compilerError("illegal register deallocation")
	}
}

func (c *Compiler) saveTemporaries() {
	for c.allocatedTemporaries > 0 {
		// push temporary onto stack
		c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))
		c.emitSW(REG_SP, 0, c.currentTemporary())

		c.tfree(1)
	}
}

func (c *Compiler) restoreTemporaries(n uint32) {
	for c.allocatedTemporaries < n {
		c.talloc()

		// restore temporary from stack
		c.emitLW(c.currentTemporary(), REG_SP, 0)
		c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)
	}
}

// ---------------------------------------------------------------------
// instruction emission

func (c *Compiler) emitInstruction(instruction uint32, err error) {
	if err != nil {
		errorf("encoding error in %s in line %d: %s", c.sourceName(), c.line(), err)
		c.fail(exitError(EXITCODE_COMPILERERROR, "%s", err))
		return
	}
	if c.err != nil {
		return
	}
	if err := c.b.storeInstruction(c.b.length, instruction); err != nil {
		c.compilerError(err.Error())
		return
	}
	if c.b.codeLineNumber[c.b.length/INSTRUCTIONSIZE] == 0 {
		c.b.codeLineNumber[c.b.length/INSTRUCTIONSIZE] = c.line()
	}
	c.b.length += INSTRUCTIONSIZE
}

func (c *Compiler) emitNOP() {
	c.emitInstruction(encodeIFormat(0, REG_ZR, F3_NOP, REG_ZR, OP_IMM))
	c.ic.addi++
}

func (c *Compiler) emitLUI(rd, immediate uint32) {
	c.emitInstruction(encodeUFormat(immediate, rd, OP_LUI))
	c.ic.lui++
}

func (c *Compiler) emitADDI(rd, rs1, immediate uint32) {
	c.emitInstruction(encodeIFormat(immediate, rs1, F3_ADDI, rd, OP_IMM))
	c.ic.addi++
}

func (c *Compiler) emitADD(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_ADD, rs2, rs1, F3_ADD, rd, OP_OP), nil)
	c.ic.add++
}

func (c *Compiler) emitSUB(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_SUB, rs2, rs1, F3_ADD, rd, OP_OP), nil)
	c.ic.sub++
}

func (c *Compiler) emitMUL(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_MUL, rs2, rs1, F3_ADD, rd, OP_OP), nil)
	c.ic.mul++
}

func (c *Compiler) emitDIVU(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_DIVU, rs2, rs1, F3_DIVU, rd, OP_OP), nil)
	c.ic.divu++
}

func (c *Compiler) emitREMU(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_REMU, rs2, rs1, F3_REMU, rd, OP_OP), nil)
	c.ic.remu++
}

func (c *Compiler) emitSLTU(rd, rs1, rs2 uint32) {
	c.emitInstruction(encodeRFormat(F7_SLTU, rs2, rs1, F3_SLTU, rd, OP_OP), nil)
	c.ic.sltu++
}

func (c *Compiler) emitLW(rd, rs1, immediate uint32) {
	c.emitInstruction(encodeIFormat(immediate, rs1, F3_LW, rd, OP_LW))
	c.ic.lw++
}

func (c *Compiler) emitSW(rs1, immediate, rs2 uint32) {
	c.emitInstruction(encodeSFormat(immediate, rs2, rs1, F3_SW, OP_SW))
	c.ic.sw++
}

func (c *Compiler) emitBEQ(rs1, rs2, immediate uint32) {
	c.emitInstruction(encodeBFormat(immediate, rs2, rs1, F3_BEQ, OP_BRANCH))
	c.ic.beq++
}

func (c *Compiler) emitJAL(rd, immediate uint32) {
	c.emitInstruction(encodeJFormat(immediate, rd, OP_JAL))
	c.ic.jal++
}

func (c *Compiler) emitJALR(rd, rs1, immediate uint32) {
	c.emitInstruction(encodeIFormat(immediate, rs1, F3_JALR, rd, OP_JALR))
	c.ic.jalr++
}

func (c *Compiler) emitECALL() {
	c.emitInstruction(encodeIFormat(F12_ECALL, REG_ZR, F3_ECALL, REG_ZR, OP_SYSTEM))
	c.ic.ecall++
}

// ---------------------------------------------------------------------
// fixup chains
//
// Forward branches and calls to procedures that are not yet defined are
// threaded through the immediate fields of the emitted beq/jal words: the
// immediate of each unresolved instruction holds the address of the
// previous member of its chain. The immediate is only ever read back
// through the J-format decoder, never as a raw integer.

// fixupBFormat patches the conditional branch at fromAddress to target the
// current end of code.
func (c *Compiler) fixupBFormat(fromAddress uint32) {
	if c.err != nil {
		return
	}
	instruction := c.b.loadInstruction(fromAddress)

	patched, err := encodeBFormat(c.b.length-fromAddress,
		getRS2(instruction), getRS1(instruction), getFunct3(instruction), getOpcode(instruction))
	if err != nil {
		c.compilerError(err.Error())
		return
	}
	c.b.storeInstruction(fromAddress, patched)
}

// fixupJFormat patches the jump at fromAddress to target toAddress.
func (c *Compiler) fixupJFormat(fromAddress, toAddress uint32) {
	if c.err != nil {
		return
	}
	instruction := c.b.loadInstruction(fromAddress)

	patched, err := encodeJFormat(toAddress-fromAddress, getRD(instruction), getOpcode(instruction))
	if err != nil {
		c.compilerError(err.Error())
		return
	}
	c.b.storeInstruction(fromAddress, patched)
}

// resolveChain walks a fixup chain headed at fromAddress, patching every
// member to target toAddress. The chain link of each member is its own
// J-format immediate; address 0 terminates.
func (c *Compiler) resolveChain(fromAddress, toAddress uint32) {
	for fromAddress != 0 {
		if c.err != nil {
			return
		}
		previousAddress := getImmediateJFormat(c.b.loadInstruction(fromAddress))

		c.fixupJFormat(fromAddress, toAddress)

		fromAddress = previousAddress
	}
}

// ---------------------------------------------------------------------
// data segment

// emitDataWord stores one word of data at the given negative gp-relative
// offset from the end of the binary.
func (c *Compiler) emitDataWord(data, offset, sourceLine uint32) {
	// assert: offset is negative as a signed word
	if err := c.b.storeData(c.b.length+offset, data); err != nil {
		c.compilerError(err.Error())
		return
	}
	if c.b.dataLineNumber != nil {
		c.b.dataLineNumber[(c.allocatedMemory+offset)/WORDSIZE] = sourceLine
	}
}

// stringToWords packs a null-terminated string into little-endian words.
func stringToWords(s string) []uint32 {
	words := make([]uint32, roundUp(uint32(len(s))+1, WORDSIZE)/WORDSIZE)
	for i := 0; i < len(s); i++ {
		words[i/WORDSIZE] += uint32(s[i]) << ((i % WORDSIZE) * 8)
	}
	return words
}

func (c *Compiler) emitStringData(e *symbolEntry) {
	offset := e.address
	for _, word := range stringToWords(e.name) {
		c.emitDataWord(word, offset, e.line)
		offset += WORDSIZE
	}
}

// emitDataSegment appends initial values of global variables, big
// integers, and string literals to the binary.
func (c *Compiler) emitDataSegment() {
	c.b.length += c.allocatedMemory

	for bucket := range c.st.global {
		for index := c.st.global[bucket]; index != noEntry; index = c.st.arena[index].next {
			e := c.st.entry(index)

			switch e.class {
			case CLASS_VARIABLE, CLASS_BIGINT:
				c.emitDataWord(e.value, e.address, e.line)
			case CLASS_STRING:
				c.emitStringData(e)
			}
		}
	}

	c.allocatedMemory = 0
}

// ---------------------------------------------------------------------
// loading values

// loadUpperBaseAddress materializes the upper part of a gp- or fp-relative
// address whose offset does not fit into 12 bits.
func (c *Compiler) loadUpperBaseAddress(e *symbolEntry) {
	// assert: n = allocated temporaries
	lower := getBits(e.address, 0, 12)
	upper := getBits(e.address, 12, 20)

	if lower >= twoToThePowerOf(11) {
		// add 1 which is effectively 2^12 to cancel sign extension of lower
		upper++
	}

	c.talloc()

	c.emitLUI(c.currentTemporary(), signExtend(upper, 20))
	c.emitADD(c.currentTemporary(), e.scope, c.currentTemporary())

	// assert: allocated temporaries == n + 1
}

// loadVariableOrBigInt emits a load of a variable or big integer into a
// fresh temporary and returns its type.
func (c *Compiler) loadVariableOrBigInt(name string, class uint32) uint32 {
	index := c.getVariableOrBigInt(name, class)
	if index == noEntry {
		return TYPE_UINT32
	}
	e := c.st.entry(index)

	offset := e.address

	if isSignedInteger(offset, 12) {
		c.talloc()
		c.emitLW(c.currentTemporary(), e.scope, offset)
	} else {
		c.loadUpperBaseAddress(e)
		c.emitLW(c.currentTemporary(), c.currentTemporary(), signExtend(getBits(offset, 0, 12), 12))
	}

	return e.typ
}

func (c *Compiler) getVariableOrBigInt(name string, class uint32) int32 {
	if class == CLASS_BIGINT {
		return c.st.searchGlobal(name, class)
	}

	index := c.st.searchScoped(name, class)
	if index == noEntry {
		errorf("syntax error in %s in line %d: %s undeclared", c.sourceName(), c.line(), name)
		c.fail(exitError(EXITCODE_PARSERERROR, "%s undeclared", name))
	}
	return index
}

// loadInteger loads value into a fresh temporary: one addi when it fits
// into 12 bits, lui/addi (with a sub fixing overflowed sign extension)
// when it fits into 32, and a gp-relative load of a data segment word
// otherwise.
func (c *Compiler) loadInteger(value uint32) {
	// assert: n = allocated temporaries
	if isSignedInteger(value, 12) {
		c.talloc()

		c.emitADDI(c.currentTemporary(), REG_ZR, value)
	} else if isSignedInteger(value, 32) {
		lower := getBits(value, 0, 12)
		upper := getBits(value, 12, 20)

		c.talloc()

		if lower >= twoToThePowerOf(11) {
			// add 1 which is effectively 2^12 to cancel sign extension of lower
			upper++

			c.emitLUI(c.currentTemporary(), signExtend(upper, 20))

			if upper == twoToThePowerOf(19) {
				// upper overflowed, cancel sign extension
				c.emitSUB(c.currentTemporary(), REG_ZR, c.currentTemporary())
			}
		} else {
			c.emitLUI(c.currentTemporary(), signExtend(upper, 20))
		}

		c.emitADDI(c.currentTemporary(), c.currentTemporary(), signExtend(lower, 12))
	} else {
		// value is stored in data segment
		name := strconv.FormatUint(uint64(value), 10)

		if c.st.searchGlobal(name, CLASS_BIGINT) == noEntry {
			c.allocatedMemory += REGISTERSIZE

			c.st.createEntry(GLOBAL_TABLE, name, c.line(), CLASS_BIGINT, TYPE_UINT32, value, -c.allocatedMemory)
		}

		c.loadVariableOrBigInt(name, CLASS_BIGINT)
	}

	// assert: allocated temporaries == n + 1
}

// loadString places the literal into the data segment, 4-byte aligned and
// null-terminated, and loads its gp-relative address.
func (c *Compiler) loadString(s string) {
	// assert: n = allocated temporaries
	length := uint32(len(s)) + 1

	c.allocatedMemory += roundUp(length, REGISTERSIZE)

	c.st.createEntry(GLOBAL_TABLE, s, c.line(), CLASS_STRING, TYPE_UINT32STAR, 0, -c.allocatedMemory)

	c.loadInteger(-c.allocatedMemory)

	c.emitADD(c.currentTemporary(), REG_GP, c.currentTemporary())

	// assert: allocated temporaries == n + 1
}

// ---------------------------------------------------------------------
// calls, prologue, epilogue

// helpCallCodegen emits the jal for a call to the named procedure,
// extending the fixup chain when the definition has not been seen yet,
// and returns the procedure's type.
func (c *Compiler) helpCallCodegen(index int32, procedure string) uint32 {
	if index == noEntry {
		// procedure never called nor declared nor defined; default return
		// type is uint32_t
		c.st.createEntry(GLOBAL_TABLE, procedure, c.line(), CLASS_PROCEDURE, TYPE_UINT32, 0, c.b.length)

		c.emitJAL(REG_RA, 0)

		return TYPE_UINT32
	}

	e := c.st.entry(index)

	if e.address == 0 {
		// procedure declared but never called nor defined
		e.address = c.b.length

		c.emitJAL(REG_RA, 0)
	} else if getOpcode(c.b.loadInstruction(e.address)) == OP_JAL {
		// procedure called and possibly declared but not defined:
		// extend fixup chain using the absolute address
		c.emitJAL(REG_RA, e.address)
		e.address = c.b.length - INSTRUCTIONSIZE
	} else {
		// procedure defined, use relative address
		c.emitJAL(REG_RA, e.address-c.b.length)
	}

	return e.typ
}

func (c *Compiler) procedurePrologue(localVariableBytes uint32) {
	// allocate memory for return address
	c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))

	// save return address
	c.emitSW(REG_SP, 0, REG_RA)

	// allocate memory for caller's frame pointer
	c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))

	// save caller's frame pointer
	c.emitSW(REG_SP, 0, REG_FP)

	// set callee's frame pointer
	c.emitADDI(REG_FP, REG_SP, 0)

	// allocate memory for callee's local variables
	if localVariableBytes > 0 {
		if isSignedInteger(-localVariableBytes, 12) {
			c.emitADDI(REG_SP, REG_SP, -localVariableBytes)
		} else {
			c.loadInteger(-localVariableBytes)

			c.emitADD(REG_SP, REG_SP, c.currentTemporary())

			c.tfree(1)
		}
	}
}

func (c *Compiler) procedureEpilogue(parameterBytes uint32) {
	// deallocate memory for callee's frame pointer and local variables
	c.emitADDI(REG_SP, REG_FP, 0)

	// restore caller's frame pointer
	c.emitLW(REG_FP, REG_SP, 0)

	// deallocate memory for caller's frame pointer
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	// restore return address
	c.emitLW(REG_RA, REG_SP, 0)

	// deallocate memory for return address and parameters
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE+parameterBytes)

	// return
	c.emitJALR(REG_ZR, REG_RA, 0)
}

// ---------------------------------------------------------------------
// machine code library

// emitRoundUp rounds the value in reg up to the next multiple of m.
func (c *Compiler) emitRoundUp(reg, m uint32) {
	c.talloc()

	// computes value(reg) + m - 1 - (value(reg) + m - 1) % m
	c.emitADDI(reg, reg, m-1)
	c.emitADDI(c.currentTemporary(), REG_ZR, m)
	c.emitREMU(c.currentTemporary(), reg, c.currentTemporary())
	c.emitSUB(reg, reg, c.currentTemporary())

	c.tfree(1)
}

func (c *Compiler) emitLeftShiftBy(reg, b uint32) {
	// assert: 0 <= b < 11
	// load a multiplication factor less than 2^11 to avoid sign extension
	c.emitADDI(c.nextTemporary(), REG_ZR, twoToThePowerOf(b))
	c.emitMUL(reg, reg, c.nextTemporary())
}

// emitProgramEntry reserves space for the machine initialization code:
// exactly 20 NOPs, rewritten by emitBootstrapping once the layout of the
// binary is known.
func (c *Compiler) emitProgramEntry() {
	for i := 0; i < 20; i++ {
		c.emitNOP()
	}
}

// emitBootstrapping rewrites the program entry stub:
//
//  1. initialize the global pointer
//  2. initialize malloc's _bump pointer through brk
//  3. push the argv pointer onto the stack
//  4. call the main procedure
//  5. proceed to the exit wrapper
func (c *Compiler) emitBootstrapping() {
	// calculate the global pointer value
	gp := uint32(ELF_ENTRY_POINT) + c.b.length + c.allocatedMemory

	// make sure gp is word-aligned
	padding := gp % REGISTERSIZE
	gp += padding

	if padding != 0 {
		c.emitNOP()
	}

	// no more allocation in the code segment from now on
	c.b.codeLength = c.b.length

	// reset code emission to the program entry
	c.b.length = 0

	// assert: emitting no more than 20 instructions

	if c.st.reportUndefinedProcedures(c.sourceName(), c.b) {
		// if there are undefined procedures just exit by loading exit code 0
		// into the return register
		c.emitADDI(REG_A0, REG_ZR, 0)
	} else {
		// avoid sign extension that would result in an additional sub instruction
		if gp < twoToThePowerOf(31)-twoToThePowerOf(11) {
			// assert: generates no more than two instructions
			c.loadInteger(gp)
		} else {
			c.compilerError("maximum program break exceeded")
			return
		}

		// initialize global pointer
		c.emitADDI(REG_GP, c.currentTemporary(), 0)

		c.tfree(1)

		// retrieve current program break in return register
		c.emitADDI(REG_A0, REG_ZR, 0)
		c.emitADDI(REG_A7, REG_ZR, SYSCALL_BRK)
		c.emitECALL()

		// align current program break for word access
		c.emitRoundUp(REG_A0, SIZEOFUINT32)

		// set program break to aligned program break
		c.emitADDI(REG_A7, REG_ZR, SYSCALL_BRK)
		c.emitECALL()

		// store aligned program break in _bump
		bump := c.st.entry(c.st.searchGlobal("_bump", CLASS_VARIABLE))
		c.emitSW(bump.scope, bump.address, REG_A0)

		// reset return register to initial return value
		c.emitADDI(REG_A0, REG_ZR, 0)

		// assert: the stack is set up with the argv pointer still missing
		//
		//    $sp
		//     |
		//     V
		// | argc | argv[0] | argv[1] | ... | argv[n]

		c.talloc()

		// first obtain the pointer to argv
		c.emitADDI(c.currentTemporary(), REG_SP, REGISTERSIZE)

		// then push the argv pointer onto the stack
		c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))
		c.emitSW(REG_SP, 0, c.currentTemporary())

		c.tfree(1)

		// assert: global, _bump, and stack pointers are set up with all
		// other non-temporary registers zeroed

		c.helpCallCodegen(c.st.searchScoped("main", CLASS_PROCEDURE), "main")
	}

	// we exit with the exit code in the return register pushed onto the
	// stack; execution falls through the remaining NOPs into the exit
	// wrapper
	c.emitADDI(REG_SP, REG_SP, ^uint32(REGISTERSIZE-1))
	c.emitSW(REG_SP, 0, REG_A0)

	// discount the stub NOPs from the emission profile
	c.ic.addi -= c.b.length / INSTRUCTIONSIZE

	// restore original binary length
	c.b.length = c.b.codeLength
}

// ---------------------------------------------------------------------
// library procedure wrappers
//
// The wrappers are emitted right after the program entry stub, before any
// user code, and registered in the library symbol table so that they
// override user procedures of the same name. The exit wrapper must come
// first: the entry stub falls through into it.

func (c *Compiler) emitExit() {
	c.st.createEntry(LIBRARY_TABLE, "exit", 0, CLASS_PROCEDURE, TYPE_VOID, 0, c.b.length)

	// load signed 32-bit integer argument for exit
	c.emitLW(REG_A0, REG_SP, 0)

	// remove the argument from the stack
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	// load the correct syscall number and invoke syscall
	c.emitADDI(REG_A7, REG_ZR, SYSCALL_EXIT)

	c.emitECALL()

	// never returns here
}

func (c *Compiler) emitRead() {
	c.st.createEntry(LIBRARY_TABLE, "read", 0, CLASS_PROCEDURE, TYPE_UINT32, 0, c.b.length)

	c.emitLW(REG_A2, REG_SP, 0) // size
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A1, REG_SP, 0) // *buffer
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A0, REG_SP, 0) // fd
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitADDI(REG_A7, REG_ZR, SYSCALL_READ)

	c.emitECALL()

	// jump back to caller, return value is in REG_A0
	c.emitJALR(REG_ZR, REG_RA, 0)
}

func (c *Compiler) emitWrite() {
	c.st.createEntry(LIBRARY_TABLE, "write", 0, CLASS_PROCEDURE, TYPE_UINT32, 0, c.b.length)

	c.emitLW(REG_A2, REG_SP, 0) // size
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A1, REG_SP, 0) // *buffer
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A0, REG_SP, 0) // fd
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitADDI(REG_A7, REG_ZR, SYSCALL_WRITE)

	c.emitECALL()

	c.emitJALR(REG_ZR, REG_RA, 0)
}

func (c *Compiler) emitOpen() {
	c.st.createEntry(LIBRARY_TABLE, "open", 0, CLASS_PROCEDURE, TYPE_UINT32, 0, c.b.length)

	c.emitLW(REG_A2, REG_SP, 0) // mode
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A1, REG_SP, 0) // flags
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A0, REG_SP, 0) // filename
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitADDI(REG_A7, REG_ZR, SYSCALL_OPEN)

	c.emitECALL()

	c.emitJALR(REG_ZR, REG_RA, 0)
}

// emitMalloc emits the malloc wrapper, which is not a kernel call: it
// rounds the size up to word alignment, bumps _bump through brk, and
// returns the old _bump, or 0 when brk refused. zalloc is an alias since
// page frames are zeroed anyway.
func (c *Compiler) emitMalloc() {
	c.st.createEntry(LIBRARY_TABLE, "malloc", 0, CLASS_PROCEDURE, TYPE_UINT32STAR, 0, c.b.length)

	// on boot levels higher than zero, zalloc falls back to malloc
	// assuming that page frames are zeroed on boot level zero
	c.st.createEntry(LIBRARY_TABLE, "zalloc", 0, CLASS_PROCEDURE, TYPE_UINT32STAR, 0, c.b.length)

	// allocate memory in the data segment for recording the state of
	// malloc (the bump pointer) in a compiler-declared global variable
	c.allocatedMemory += REGISTERSIZE

	c.st.createEntry(GLOBAL_TABLE, "_bump", 1, CLASS_VARIABLE, TYPE_UINT32, 0, -c.allocatedMemory)

	// do not account for _bump as a global variable
	c.st.globalVariables--

	bump := c.st.entry(c.st.searchGlobal("_bump", CLASS_VARIABLE))

	// allocate register for size parameter
	c.talloc()

	c.emitLW(c.currentTemporary(), REG_SP, 0) // size
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	// round up size to word alignment
	c.emitRoundUp(c.currentTemporary(), SIZEOFUINT32)

	// allocate register to compute new bump pointer
	c.talloc()

	// get current _bump which will be returned upon success
	c.emitLW(c.currentTemporary(), bump.scope, bump.address)

	// call brk syscall to set new program break to _bump + size
	c.emitADD(REG_A0, c.currentTemporary(), c.previousTemporary())
	c.emitADDI(REG_A7, REG_ZR, SYSCALL_BRK)
	c.emitECALL()

	// return 0 if memory allocation failed, that is,
	// if the new program break is still _bump and size != 0
	c.emitBEQ(REG_A0, c.currentTemporary(), 2*INSTRUCTIONSIZE)
	c.emitBEQ(REG_ZR, REG_ZR, 4*INSTRUCTIONSIZE)
	c.emitBEQ(REG_ZR, c.previousTemporary(), 3*INSTRUCTIONSIZE)
	c.emitADDI(REG_A0, REG_ZR, 0)
	c.emitBEQ(REG_ZR, REG_ZR, 3*INSTRUCTIONSIZE)

	// if memory was successfully allocated set _bump to the new program
	// break and then return the original _bump
	c.emitSW(bump.scope, bump.address, REG_A0)
	c.emitADDI(REG_A0, c.currentTemporary(), 0)

	c.tfree(2)

	c.emitJALR(REG_ZR, REG_RA, 0)
}

func (c *Compiler) emitSwitch() {
	c.st.createEntry(LIBRARY_TABLE, "hypster_switch", 0, CLASS_PROCEDURE, TYPE_UINT32STAR, 0, c.b.length)

	c.emitLW(REG_A1, REG_SP, 0) // number of instructions to execute
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitLW(REG_A0, REG_SP, 0) // context to which we switch
	c.emitADDI(REG_SP, REG_SP, REGISTERSIZE)

	c.emitADDI(REG_A7, REG_ZR, SYSCALL_SWITCH)

	c.emitECALL()

	// save the context from which we are switching in the return register
	c.emitADDI(REG_A0, REG_A1, 0)

	c.emitJALR(REG_ZR, REG_RA, 0)
}
