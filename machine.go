package main

import (
	"fmt"
	"io"
	"os"
)

// Exceptions
const (
	EXCEPTION_NOEXCEPTION = iota
	EXCEPTION_PAGEFAULT
	EXCEPTION_SYSCALL
	EXCEPTION_TIMER
	EXCEPTION_INVALIDADDRESS
	EXCEPTION_DIVISIONBYZERO
	EXCEPTION_UNKNOWNINSTRUCTION
	EXCEPTION_MAXTRACE
)

var exceptionNames = [...]string{
	"no exception",
	"page fault",
	"syscall",
	"timer interrupt",
	"invalid address",
	"division by zero",
	"unknown instruction",
	"trace length exceeded",
}

// TIMEROFF disables the per-context timer.
const TIMEROFF = 0

// guestFD is one slot of the kernel's file descriptor table.
type guestFD struct {
	reader io.Reader
	writer io.Writer
	file   *os.File
}

// Machine models one RISC-U core plus the microkernel around it: the
// hardware thread state, the page frame pool, the context lists, and the
// optional replay and symbolic engines. It is single-threaded and
// cooperative; control leaves a context only on exception, timer expiry,
// or an explicit switch.
type Machine struct {
	cfg Config
	b   *Binary

	// hardware thread state
	pc uint32 // program counter
	ir uint32 // instruction register

	registers *[NUMBEROFREGISTERS]uint32
	pt        []uint32

	// core state
	timer uint32
	trap  bool

	// decoded instruction fields
	opcode uint32
	rs1    uint32
	rs2    uint32
	rd     uint32
	imm    uint32
	funct3 uint32
	funct7 uint32

	// execution personalities; debug enables recording, disassembling,
	// and symbolically executing code
	debug              bool
	execute            bool
	record             bool
	undo               bool
	redo               bool
	disassemble        bool
	disassembleVerbose bool
	symbolic           bool
	backtrack          bool

	// profile
	ic                   instructionCounters
	calls                uint32
	callsPerProcedure    []uint32
	iterations           uint32
	iterationsPerLoop    []uint32
	loadsPerInstruction  []uint32
	storesPerInstruction []uint32

	// memory and contexts
	pa             *pageAllocator
	usedContexts   *Context
	freeContexts   *Context
	currentContext *Context
	nextContextID  uint32

	// engines
	replay *ReplayEngine
	sym    *SymbolicEngine

	// kernel file descriptor table and standard streams
	files  []guestFD
	stdin  io.Reader
	stdout io.Writer

	out io.Writer // disassembly and debug output

	err error // first fatal host-side error, sticky
}

func NewMachine(b *Binary, cfg Config, megabytes uint32) *Machine {
	m := &Machine{
		cfg:    cfg,
		b:      b,
		pa:     newPageAllocator(megabytes),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		out:    os.Stdout,
	}
	m.files = []guestFD{
		{reader: m.stdin},
		{writer: m.stdout},
		{writer: os.Stderr},
	}
	return m
}

func (m *Machine) fail(err error) {
	if m.err == nil {
		m.err = err
	}
	m.trap = true
}

func (m *Machine) resetInterpreter() {
	m.pc = 0
	m.ir = 0

	m.registers = nil
	m.pt = nil

	m.trap = false

	m.timer = TIMEROFF

	if m.execute {
		m.ic = instructionCounters{}

		m.calls = 0
		m.callsPerProcedure = make([]uint32, MAX_CODE_LENGTH/INSTRUCTIONSIZE)

		m.iterations = 0
		m.iterationsPerLoop = make([]uint32, MAX_CODE_LENGTH/INSTRUCTIONSIZE)

		m.loadsPerInstruction = make([]uint32, MAX_CODE_LENGTH/INSTRUCTIONSIZE)
		m.storesPerInstruction = make([]uint32, MAX_CODE_LENGTH/INSTRUCTIONSIZE)
	}
}

// ---------------------------------------------------------------------
// printing helpers

func hexString(n uint32) string {
	return fmt.Sprintf("0x%X", n)
}

func octalString(n uint32) string {
	return fmt.Sprintf("00%o", n)
}

func isSystemRegister(reg uint32) bool {
	switch reg {
	case REG_GP, REG_FP, REG_RA, REG_SP:
		return true
	}
	return false
}

func (m *Machine) printRegisterHexadecimal(reg uint32) {
	fmt.Fprintf(m.out, "%s=%s", registerName(reg), hexString(m.registers[reg]))
}

func (m *Machine) printRegisterOctal(reg uint32) {
	fmt.Fprintf(m.out, "%s=%s", registerName(reg), octalString(m.registers[reg]))
}

func (m *Machine) printRegisterValue(reg uint32) {
	if isSystemRegister(reg) {
		m.printRegisterHexadecimal(reg)
	} else {
		fmt.Fprintf(m.out, "%s=%d(%s)", registerName(reg), asSigned(m.registers[reg]), hexString(m.registers[reg]))
	}
}

func (m *Machine) printCodeLineNumber(baddr uint32) {
	if m.b.codeLineNumber != nil {
		fmt.Fprintf(m.out, "(~%d)", m.b.lineForInstruction(baddr))
	}
}

func (m *Machine) printCodeContext() {
	if m.execute {
		fmt.Fprintf(m.out, "%s: $pc=%s", m.b.name, hexString(m.pc))
		m.printCodeLineNumber(m.pc - m.b.entryPoint)
	} else {
		fmt.Fprintf(m.out, "%s", hexString(m.pc))
		if m.disassembleVerbose {
			m.printCodeLineNumber(m.pc)
			fmt.Fprintf(m.out, ": 0x%08X", m.ir)
		}
	}
	fmt.Fprint(m.out, ": ")
}

// ---------------------------------------------------------------------
// exceptions

// throwException delivers an exception to the current context and stops
// the run loop. Throwing a second, different exception before the first
// is handled is fatal.
func (m *Machine) throwException(exception, faultingPage uint32) {
	if m.currentContext.exception != EXCEPTION_NOEXCEPTION {
		if m.currentContext.exception != uint32(exception) {
			errorf("context %s throws %s exception in presence of %s exception",
				m.currentContext.name, exceptionNames[exception], exceptionNames[m.currentContext.exception])
			m.fail(exitError(EXITCODE_MULTIPLEEXCEPTIONERROR, "multiple exceptions"))
			return
		}
	}

	m.currentContext.exception = uint32(exception)
	m.currentContext.faultingPage = faultingPage

	m.trap = true
}

// ---------------------------------------------------------------------
// instruction semantics

func (m *Machine) fetch() {
	// assert: isValidVirtualAddress(m.pc) and mapped
	m.ir = m.pa.loadVirtual(m.pt, m.pc)
}

func (m *Machine) decodeRFormat() {
	m.funct7 = getFunct7(m.ir)
	m.rs2 = getRS2(m.ir)
	m.rs1 = getRS1(m.ir)
	m.funct3 = getFunct3(m.ir)
	m.rd = getRD(m.ir)
	m.imm = 0
}

func (m *Machine) decodeIFormat() {
	m.funct7 = 0
	m.rs2 = 0
	m.rs1 = getRS1(m.ir)
	m.funct3 = getFunct3(m.ir)
	m.rd = getRD(m.ir)
	m.imm = getImmediateIFormat(m.ir)
}

func (m *Machine) decodeSFormat() {
	m.funct7 = 0
	m.rs2 = getRS2(m.ir)
	m.rs1 = getRS1(m.ir)
	m.funct3 = getFunct3(m.ir)
	m.rd = 0
	m.imm = getImmediateSFormat(m.ir)
}

func (m *Machine) decodeBFormat() {
	m.funct7 = 0
	m.rs2 = getRS2(m.ir)
	m.rs1 = getRS1(m.ir)
	m.funct3 = getFunct3(m.ir)
	m.rd = 0
	m.imm = getImmediateBFormat(m.ir)
}

func (m *Machine) decodeJFormat() {
	m.funct7 = 0
	m.rs2 = 0
	m.rs1 = 0
	m.funct3 = 0
	m.rd = getRD(m.ir)
	m.imm = getImmediateJFormat(m.ir)
}

func (m *Machine) decodeUFormat() {
	m.funct7 = 0
	m.rs2 = 0
	m.rs1 = 0
	m.funct3 = 0
	m.rd = getRD(m.ir)
	m.imm = getImmediateUFormat(m.ir)
}

func (m *Machine) doLUI() {
	// load upper immediate
	if m.rd != REG_ZR {
		m.registers[m.rd] = m.imm << 12
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.lui++
}

func (m *Machine) doADDI() {
	if m.rd != REG_ZR {
		m.registers[m.rd] = m.registers[m.rs1] + m.imm
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.addi++
}

func (m *Machine) doADD() {
	if m.rd != REG_ZR {
		m.registers[m.rd] = m.registers[m.rs1] + m.registers[m.rs2]
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.add++
}

func (m *Machine) doSUB() {
	if m.rd != REG_ZR {
		m.registers[m.rd] = m.registers[m.rs1] - m.registers[m.rs2]
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.sub++
}

func (m *Machine) doMUL() {
	if m.rd != REG_ZR {
		// lower 32 bits of the product
		m.registers[m.rd] = m.registers[m.rs1] * m.registers[m.rs2]
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.mul++
}

func (m *Machine) doDIVU() {
	// division unsigned
	if m.registers[m.rs2] != 0 {
		if m.rd != REG_ZR {
			m.registers[m.rd] = m.registers[m.rs1] / m.registers[m.rs2]
		}

		m.pc += INSTRUCTIONSIZE

		m.ic.divu++
	} else {
		m.throwException(EXCEPTION_DIVISIONBYZERO, 0)
	}
}

func (m *Machine) doREMU() {
	// remainder unsigned
	if m.registers[m.rs2] != 0 {
		if m.rd != REG_ZR {
			m.registers[m.rd] = m.registers[m.rs1] % m.registers[m.rs2]
		}

		m.pc += INSTRUCTIONSIZE

		m.ic.remu++
	} else {
		m.throwException(EXCEPTION_DIVISIONBYZERO, 0)
	}
}

func (m *Machine) doSLTU() {
	// set on less than unsigned
	if m.rd != REG_ZR {
		if m.registers[m.rs1] < m.registers[m.rs2] {
			m.registers[m.rd] = 1
		} else {
			m.registers[m.rd] = 0
		}
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.sltu++
}

func (m *Machine) doLW() uint32 {
	// load word
	vaddr := m.registers[m.rs1] + m.imm

	if isValidVirtualAddress(vaddr) {
		if isVirtualAddressMapped(m.pt, vaddr) {
			if m.rd != REG_ZR {
				m.registers[m.rd] = m.pa.loadVirtual(m.pt, vaddr)
			}

			a := (m.pc - m.b.entryPoint) / INSTRUCTIONSIZE

			m.pc += INSTRUCTIONSIZE

			m.ic.lw++

			if m.loadsPerInstruction != nil {
				m.loadsPerInstruction[a]++
			}
		} else {
			m.throwException(EXCEPTION_PAGEFAULT, getPageOfVirtualAddress(vaddr))
		}
	} else {
		m.throwException(EXCEPTION_INVALIDADDRESS, vaddr)
	}

	return vaddr
}

func (m *Machine) doSW() uint32 {
	// store word
	vaddr := m.registers[m.rs1] + m.imm

	if isValidVirtualAddress(vaddr) {
		if isVirtualAddressMapped(m.pt, vaddr) {
			m.pa.storeVirtual(m.pt, vaddr, m.registers[m.rs2])

			a := (m.pc - m.b.entryPoint) / INSTRUCTIONSIZE

			m.pc += INSTRUCTIONSIZE

			m.ic.sw++

			if m.storesPerInstruction != nil {
				m.storesPerInstruction[a]++
			}
		} else {
			m.throwException(EXCEPTION_PAGEFAULT, getPageOfVirtualAddress(vaddr))
		}
	} else {
		m.throwException(EXCEPTION_INVALIDADDRESS, vaddr)
	}

	return vaddr
}

func (m *Machine) doBEQ() {
	// branch on equal
	if m.registers[m.rs1] == m.registers[m.rs2] {
		m.pc += m.imm
	} else {
		m.pc += INSTRUCTIONSIZE
	}

	m.ic.beq++
}

func (m *Machine) doJAL() {
	// jump and link
	if m.rd != REG_ZR {
		// first link
		m.registers[m.rd] = m.pc + INSTRUCTIONSIZE

		// then jump for procedure calls
		m.pc += m.imm

		// prologue address for profiling procedure calls
		a := (m.pc - m.b.entryPoint) / INSTRUCTIONSIZE

		m.calls++

		if m.callsPerProcedure != nil {
			m.callsPerProcedure[a]++
		}
	} else if signedLessThan(m.imm, 0) {
		// jump backwards to check for another loop iteration
		m.pc += m.imm

		a := (m.pc - m.b.entryPoint) / INSTRUCTIONSIZE

		m.iterations++

		if m.iterationsPerLoop != nil {
			m.iterationsPerLoop[a]++
		}
	} else {
		// just jump forward
		m.pc += m.imm
	}

	m.ic.jal++
}

func (m *Machine) doJALR() {
	// jump and link register
	if m.rd == REG_ZR {
		// fast path: just return by jumping rs1-relative with LSB reset
		m.pc = (m.registers[m.rs1] + m.imm) &^ 1
	} else {
		// slow path: first prepare jump, then link, just in case rd == rs1
		nextPC := (m.registers[m.rs1] + m.imm) &^ 1

		m.registers[m.rd] = m.pc + INSTRUCTIONSIZE

		m.pc = nextPC
	}

	m.ic.jalr++
}

func (m *Machine) doECALL() {
	m.ic.ecall++

	if m.redo {
		// redo the recorded side effect
		m.registers[REG_A0] = m.replay.values[m.replay.tc%m.replay.length()]

		m.pc += INSTRUCTIONSIZE
	} else if m.registers[REG_A7] == SYSCALL_SWITCH {
		if m.record {
			errorf("context switching during recording is unsupported")
			m.fail(exitError(EXITCODE_BADARGUMENTS, "context switching during recording"))
		} else if m.symbolic {
			errorf("context switching during symbolic execution is unsupported")
			m.fail(exitError(EXITCODE_BADARGUMENTS, "context switching during symbolic execution"))
		} else {
			m.pc += INSTRUCTIONSIZE

			m.implementSwitch()
		}
	} else {
		// all system calls other than switch are handled by exception
		m.throwException(EXCEPTION_SYSCALL, 0)
	}
}

// ---------------------------------------------------------------------
// disassembly

func (m *Machine) printLUI() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "lui %s,%s", registerName(m.rd), hexString(signShrink(m.imm, 20)))
}

func (m *Machine) printADDI() {
	m.printCodeContext()

	if m.rd == REG_ZR && m.rs1 == REG_ZR && m.imm == 0 {
		fmt.Fprint(m.out, "nop")
		return
	}

	fmt.Fprintf(m.out, "addi %s,%s,%d", registerName(m.rd), registerName(m.rs1), asSigned(m.imm))
}

func (m *Machine) printRFormat(mnemonic string) {
	m.printCodeContext()
	fmt.Fprintf(m.out, "%s %s,%s,%s", mnemonic, registerName(m.rd), registerName(m.rs1), registerName(m.rs2))
}

func (m *Machine) printLW() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "lw %s,%d(%s)", registerName(m.rd), asSigned(m.imm), registerName(m.rs1))
}

func (m *Machine) printSW() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "sw %s,%d(%s)", registerName(m.rs2), asSigned(m.imm), registerName(m.rs1))
}

func (m *Machine) printBEQ() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "beq %s,%s,%d[%s]",
		registerName(m.rs1), registerName(m.rs2), asSigned(m.imm)/INSTRUCTIONSIZE, hexString(m.pc+m.imm))
}

func (m *Machine) printJAL() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "jal %s,%d[%s]", registerName(m.rd), asSigned(m.imm)/INSTRUCTIONSIZE, hexString(m.pc+m.imm))
}

func (m *Machine) printJALR() {
	m.printCodeContext()
	fmt.Fprintf(m.out, "jalr %s,%d(%s)", registerName(m.rd), asSigned(m.imm)/INSTRUCTIONSIZE, registerName(m.rs1))
}

func (m *Machine) printECALL() {
	m.printCodeContext()
	fmt.Fprint(m.out, "ecall")
}

func (m *Machine) printLWBefore() {
	vaddr := m.registers[m.rs1] + m.imm

	fmt.Fprint(m.out, ": ")
	m.printRegisterHexadecimal(m.rs1)

	if isValidVirtualAddress(vaddr) && isVirtualAddressMapped(m.pt, vaddr) {
		if isSystemRegister(m.rd) {
			fmt.Fprintf(m.out, ",mem[%s]=%s |- ", hexString(vaddr), hexString(m.pa.loadVirtual(m.pt, vaddr)))
		} else {
			fmt.Fprintf(m.out, ",mem[%s]=%d |- ", hexString(vaddr), asSigned(m.pa.loadVirtual(m.pt, vaddr)))
		}
		m.printRegisterValue(m.rd)
		return
	}

	fmt.Fprint(m.out, " |-")
}

func (m *Machine) printLWAfter(vaddr uint32) {
	if isValidVirtualAddress(vaddr) && isVirtualAddressMapped(m.pt, vaddr) {
		fmt.Fprint(m.out, " -> ")
		m.printRegisterValue(m.rd)
		fmt.Fprintf(m.out, "=mem[%s]", hexString(vaddr))
	}
}

func (m *Machine) printSWBefore() {
	vaddr := m.registers[m.rs1] + m.imm

	fmt.Fprint(m.out, ": ")
	m.printRegisterHexadecimal(m.rs1)

	if isValidVirtualAddress(vaddr) && isVirtualAddressMapped(m.pt, vaddr) {
		fmt.Fprint(m.out, ",")
		m.printRegisterValue(m.rs2)
		fmt.Fprintf(m.out, " |- mem[%s]=%d", hexString(vaddr), asSigned(m.pa.loadVirtual(m.pt, vaddr)))
		return
	}

	fmt.Fprint(m.out, " |-")
}

func (m *Machine) printSWAfter(vaddr uint32) {
	if isValidVirtualAddress(vaddr) && isVirtualAddressMapped(m.pt, vaddr) {
		fmt.Fprintf(m.out, " -> mem[%s]=", hexString(vaddr))
		m.printRegisterValue(m.rs2)
	}
}

// ---------------------------------------------------------------------
// decode and execute

// decodeExecute decodes the instruction register and executes through the
// active personality: plain execution, recording, undo/redo replay,
// disassembly, symbolic constraint propagation, or backtracking.
func (m *Machine) decodeExecute() {
	m.opcode = getOpcode(m.ir)

	switch m.opcode {
	case OP_IMM:
		m.decodeIFormat()

		if m.funct3 == F3_ADDI {
			if m.debug {
				if m.record {
					m.recordState(m.registers[m.rd])
					m.doADDI()
				} else if m.undo {
					m.undoRegister()
				} else if m.disassemble {
					m.printADDI()
					if m.execute {
						fmt.Fprint(m.out, ": ")
						m.printRegisterValue(m.rs1)
						fmt.Fprint(m.out, " |- ")
						m.printRegisterValue(m.rd)
						m.doADDI()
						fmt.Fprint(m.out, " -> ")
						m.printRegisterValue(m.rd)
					}
					fmt.Fprintln(m.out)
				} else if m.symbolic {
					m.doADDI()
					m.constrainADDI()
				}
			} else {
				m.doADDI()
			}
			return
		}

	case OP_LW:
		m.decodeIFormat()

		if m.funct3 == F3_LW {
			if m.debug {
				if m.record {
					m.recordLW()
					m.doLW()
				} else if m.undo {
					m.undoRegister()
				} else if m.disassemble {
					m.printLW()
					if m.execute {
						m.printLWBefore()
						m.printLWAfter(m.doLW())
					}
					fmt.Fprintln(m.out)
				} else if m.symbolic {
					m.constrainLW()
				}
			} else {
				m.doLW()
			}
			return
		}

	case OP_SW:
		m.decodeSFormat()

		if m.funct3 == F3_SW {
			if m.debug {
				if m.record {
					m.recordSW()
					m.doSW()
				} else if m.undo {
					m.undoSW()
				} else if m.disassemble {
					m.printSW()
					if m.execute {
						m.printSWBefore()
						m.printSWAfter(m.doSW())
					}
					fmt.Fprintln(m.out)
				} else if m.symbolic {
					m.constrainSW()
				} else if m.backtrack {
					m.backtrackSW()
				}
			} else {
				m.doSW()
			}
			return
		}

	case OP_OP:
		m.decodeRFormat()

		if m.funct3 == F3_ADD { // = F3_SUB = F3_MUL
			switch m.funct7 {
			case F7_ADD:
				m.executeRFormat("add", m.doADD, m.constrainADD)
				return
			case F7_SUB:
				m.executeRFormat("sub", m.doSUB, m.constrainSUB)
				return
			case F7_MUL:
				m.executeRFormat("mul", m.doMUL, m.constrainMUL)
				return
			}
		} else if m.funct3 == F3_DIVU {
			if m.funct7 == F7_DIVU {
				m.executeRFormat("divu", m.doDIVU, m.constrainDIVU)
				return
			}
		} else if m.funct3 == F3_REMU {
			if m.funct7 == F7_REMU {
				m.executeRFormat("remu", m.doREMU, m.constrainREMU)
				return
			}
		} else if m.funct3 == F3_SLTU {
			if m.funct7 == F7_SLTU {
				if m.debug {
					if m.record {
						m.recordState(m.registers[m.rd])
						m.doSLTU()
					} else if m.undo {
						m.undoRegister()
					} else if m.disassemble {
						m.printRFormat("sltu")
						if m.execute {
							m.printRFormatBefore()
							m.doSLTU()
							fmt.Fprint(m.out, " -> ")
							m.printRegisterValue(m.rd)
						}
						fmt.Fprintln(m.out)
					} else if m.symbolic {
						m.constrainSLTU()
					} else if m.backtrack {
						m.backtrackSLTU()
					}
				} else {
					m.doSLTU()
				}
				return
			}
		}

	case OP_BRANCH:
		m.decodeBFormat()

		if m.funct3 == F3_BEQ {
			if m.debug {
				if m.record {
					m.recordState(0)
					m.doBEQ()
				} else if m.disassemble {
					m.printBEQ()
					if m.execute {
						fmt.Fprint(m.out, ": ")
						m.printRegisterValue(m.rs1)
						fmt.Fprint(m.out, ",")
						m.printRegisterValue(m.rs2)
						fmt.Fprintf(m.out, " |- $pc=%s", hexString(m.pc))
						m.doBEQ()
						fmt.Fprintf(m.out, " -> $pc=%s", hexString(m.pc))
					}
					fmt.Fprintln(m.out)
				} else if m.symbolic {
					m.doBEQ()
				}
				// nothing to undo: beq has no side effects
			} else {
				m.doBEQ()
			}
			return
		}

	case OP_JAL:
		m.decodeJFormat()

		if m.debug {
			if m.record {
				m.recordState(m.registers[m.rd])
				m.doJAL()
			} else if m.undo {
				m.undoRegister()
			} else if m.disassemble {
				m.printJAL()
				if m.execute {
					fmt.Fprint(m.out, ": |- ")
					if m.rd != REG_ZR {
						m.printRegisterHexadecimal(m.rd)
						fmt.Fprint(m.out, ",")
					}
					fmt.Fprintf(m.out, "$pc=%s", hexString(m.pc))
					m.doJAL()
					fmt.Fprintf(m.out, " -> $pc=%s", hexString(m.pc))
					if m.rd != REG_ZR {
						fmt.Fprint(m.out, ",")
						m.printRegisterHexadecimal(m.rd)
					}
				}
				fmt.Fprintln(m.out)
			} else if m.symbolic {
				m.doJAL()
				m.constrainJALOrJALR()
			}
		} else {
			m.doJAL()
		}
		return

	case OP_JALR:
		m.decodeIFormat()

		if m.funct3 == F3_JALR {
			if m.debug {
				if m.record {
					m.recordState(m.registers[m.rd])
					m.doJALR()
				} else if m.undo {
					m.undoRegister()
				} else if m.disassemble {
					m.printJALR()
					if m.execute {
						fmt.Fprint(m.out, ": ")
						m.printRegisterHexadecimal(m.rs1)
						fmt.Fprint(m.out, " |- ")
						if m.rd != REG_ZR {
							m.printRegisterHexadecimal(m.rd)
							fmt.Fprint(m.out, ",")
						}
						fmt.Fprintf(m.out, "$pc=%s", hexString(m.pc))
						m.doJALR()
						fmt.Fprintf(m.out, " -> $pc=%s", hexString(m.pc))
						if m.rd != REG_ZR {
							fmt.Fprint(m.out, ",")
							m.printRegisterHexadecimal(m.rd)
						}
					}
					fmt.Fprintln(m.out)
				} else if m.symbolic {
					m.doJALR()
					m.constrainJALOrJALR()
				}
			} else {
				m.doJALR()
			}
			return
		}

	case OP_LUI:
		m.decodeUFormat()

		if m.debug {
			if m.record {
				m.recordState(m.registers[m.rd])
				m.doLUI()
			} else if m.undo {
				m.undoRegister()
			} else if m.disassemble {
				m.printLUI()
				if m.execute {
					fmt.Fprint(m.out, ": |- ")
					m.printRegisterHexadecimal(m.rd)
					m.doLUI()
					fmt.Fprint(m.out, " -> ")
					m.printRegisterHexadecimal(m.rd)
				}
				fmt.Fprintln(m.out)
			} else if m.symbolic {
				m.doLUI()
				m.constrainLUI()
			}
		} else {
			m.doLUI()
		}
		return

	case OP_SYSTEM:
		m.decodeIFormat()

		if m.funct3 == F3_ECALL {
			if m.debug {
				if m.record {
					m.recordState(m.registers[REG_A0])
					m.doECALL()
				} else if m.undo {
					m.undoECALL()
				} else if m.disassemble {
					m.printECALL()
					if m.execute {
						fmt.Fprintln(m.out)
						m.doECALL()
					} else {
						fmt.Fprintln(m.out)
					}
				} else if m.symbolic {
					m.doECALL()
				} else if m.backtrack {
					m.backtrackECALL()
				}
			} else {
				m.doECALL()
			}
			return
		}
	}

	if m.execute {
		m.throwException(EXCEPTION_UNKNOWNINSTRUCTION, 0)
	} else {
		errorf("unknown instruction with %s opcode detected", hexString(m.opcode))
		m.fail(exitError(EXITCODE_UNKNOWNINSTRUCTION, "unknown instruction"))
	}
}

func (m *Machine) printRFormatBefore() {
	fmt.Fprint(m.out, ": ")
	m.printRegisterValue(m.rs1)
	fmt.Fprint(m.out, ",")
	m.printRegisterValue(m.rs2)
	fmt.Fprint(m.out, " |- ")
	m.printRegisterValue(m.rd)
}

// executeRFormat runs the shared personality dispatch of the R-format
// arithmetic instructions.
func (m *Machine) executeRFormat(mnemonic string, do func(), constrain func()) {
	if m.debug {
		if m.record {
			m.recordState(m.registers[m.rd])
			do()
		} else if m.undo {
			m.undoRegister()
		} else if m.disassemble {
			m.printRFormat(mnemonic)
			if m.execute {
				m.printRFormatBefore()
				do()
				fmt.Fprint(m.out, " -> ")
				m.printRegisterValue(m.rd)
			}
			fmt.Fprintln(m.out)
		} else if m.symbolic {
			do()
			constrain()
		}
	} else {
		do()
	}
}

// ---------------------------------------------------------------------
// timer and run loop

// interrupt decrements the per-context timer. On expiry, if no exception
// is pending, a timer interrupt is raised; otherwise the counter is held
// at 1 so the timer event cannot be dropped.
func (m *Machine) interrupt() {
	if m.timer != TIMEROFF {
		m.timer--

		if m.timer == 0 {
			if m.currentContext.exception == EXCEPTION_NOEXCEPTION {
				// only throw the timer exception if no other is pending
				m.throwException(EXCEPTION_TIMER, 0)
			} else {
				// trigger the timer in the next interrupt cycle
				m.timer = 1
			}
		}
	}
}

func (m *Machine) runUntilException() *Context {
	m.trap = false

	for !m.trap {
		m.fetch()
		m.decodeExecute()
		m.interrupt()
	}

	m.trap = false

	return m.currentContext
}

// ---------------------------------------------------------------------
// profile

func (m *Machine) printInstructionCounter(total, counter uint32, mnemonic string) {
	whole, fraction := percent(total, counter)
	fmt.Fprintf(m.out, "%s: %d(%d.%02d%%)", mnemonic, counter, whole, fraction)
}

func (m *Machine) printInstructionCounters() {
	total := m.ic.total()

	fmt.Fprintf(m.out, "%s: init:    ", toolName)
	m.printInstructionCounter(total, m.ic.lui, "lui")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.addi, "addi")
	fmt.Fprintln(m.out)

	fmt.Fprintf(m.out, "%s: memory:  ", toolName)
	m.printInstructionCounter(total, m.ic.lw, "lw")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.sw, "sw")
	fmt.Fprintln(m.out)

	fmt.Fprintf(m.out, "%s: compute: ", toolName)
	m.printInstructionCounter(total, m.ic.add, "add")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.sub, "sub")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.mul, "mul")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.divu, "divu")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.remu, "remu")
	fmt.Fprintln(m.out)

	fmt.Fprintf(m.out, "%s: control: ", toolName)
	m.printInstructionCounter(total, m.ic.sltu, "sltu")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.beq, "beq")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.jal, "jal")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.jalr, "jalr")
	fmt.Fprint(m.out, ", ")
	m.printInstructionCounter(total, m.ic.ecall, "ecall")
	fmt.Fprintln(m.out)
}

// instructionWithMaxCounter returns the code address with the largest
// counter below max, or noAddress.
const noAddress = ^uint32(0)

func (m *Machine) instructionWithMaxCounter(counters []uint32, max uint32) uint32 {
	a := noAddress
	n := uint32(0)

	for i := uint32(0); i < m.b.codeLength/INSTRUCTIONSIZE; i++ {
		c := counters[i]

		if n < c {
			if c < max {
				n = c
				a = i
			} else {
				return i * INSTRUCTIONSIZE
			}
		}
	}

	if a != noAddress {
		return a * INSTRUCTIONSIZE
	}
	return noAddress
}

func (m *Machine) printPerInstructionCounter(total uint32, counters []uint32, max uint32) uint32 {
	a := m.instructionWithMaxCounter(counters, max)

	if a != noAddress {
		c := counters[a/INSTRUCTIONSIZE]

		// reset the counter to avoid reporting it again
		counters[a/INSTRUCTIONSIZE] = 0

		whole, fraction := percent(total, c)
		fmt.Fprintf(m.out, ",%d(%d.%02d%%)@%s", c, whole, fraction, hexString(a))
		m.printCodeLineNumber(a)

		return c
	}

	fmt.Fprint(m.out, ",0(0.00%)")
	return 0
}

func (m *Machine) printPerInstructionProfile(message string, total uint32, counters []uint32) {
	fmt.Fprintf(m.out, "%s%s%d", toolName, message, total)
	m.printPerInstructionCounter(total, counters,
		m.printPerInstructionCounter(total, counters,
			m.printPerInstructionCounter(total, counters, ^uint32(0))))
	fmt.Fprintln(m.out)
}

func (m *Machine) printProfile() {
	usedWhole, usedFraction := m.pa.used()/MEGABYTE, m.pa.used()%MEGABYTE*100/MEGABYTE
	percentWhole, percentFraction := percent(m.pa.budget, m.pa.used())

	fmt.Fprintf(m.out, "%s: summary: %d executed instructions and %d.%02dMB(%d.%02d%%) mapped memory\n",
		toolName, m.ic.total(), usedWhole, usedFraction, percentWhole, percentFraction)

	if m.ic.total() > 0 {
		m.printInstructionCounters()

		if m.b.codeLineNumber != nil {
			fmt.Fprintf(m.out, "%s: profile: total,max(ratio%%)@addr(line#),2max,3max\n", toolName)
		} else {
			fmt.Fprintf(m.out, "%s: profile: total,max(ratio%%)@addr,2max,3max\n", toolName)
		}

		m.printPerInstructionProfile(": calls:   ", m.calls, m.callsPerProcedure)
		m.printPerInstructionProfile(": loops:   ", m.iterations, m.iterationsPerLoop)
		m.printPerInstructionProfile(": loads:   ", m.ic.lw, m.loadsPerInstruction)
		m.printPerInstructionProfile(": stores:  ", m.ic.sw, m.storesPerInstruction)
	}
}
