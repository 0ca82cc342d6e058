package main

import (
	"fmt"
)

// Symbolic execution overlay: registers carry intervals [lo, up] (possibly
// wrapped modulo 2^32) or memory-range tags from brk, and may carry one
// linear constraint tying them to the memory word they were loaded from.
// Speculative writes go to an append-only trace; the page table slot of a
// constrained word holds the trace index of its most recent value (mrvc).
// Backtracking walks the trace backwards, undoing stores and restarting
// forward execution at the next case of an sltu split.

// register constraint types
const (
	symINTERVAL    = 0
	symMEMORYRANGE = 1
)

type SymbolicEngine struct {
	// trace of speculative writes, indexed by tc
	tc     uint32
	pcs    []uint32
	tcs    []uint32 // trace counters of previous values
	values []uint32
	types  []uint32 // memory range or integer interval
	los    []uint32 // lower bounds on values
	ups    []uint32 // upper bounds on values
	vaddrs []uint32

	// read history for replaying inputs on the next path
	rc         uint32
	readValues []uint32
	readLos    []uint32
	readUps    []uint32

	// per-register intervals
	regTyp [NUMBEROFREGISTERS]uint32
	regLos [NUMBEROFREGISTERS]uint32
	regUps [NUMBEROFREGISTERS]uint32

	// per-register constraints on memory
	regHasco [NUMBEROFREGISTERS]uint32 // count of tracked constraints
	regVaddr [NUMBEROFREGISTERS]uint32 // vaddr of constrained memory
	regHasmn [NUMBEROFREGISTERS]uint32 // 1 if the source appears as a minuend
	regColos [NUMBEROFREGISTERS]uint32 // offset on lower bound
	regCoups [NUMBEROFREGISTERS]uint32 // offset on upper bound

	// trace counter of the most recent constraint
	mrcc uint32

	// power-of-two fuzzing factor widening read values
	fuzz uint32
}

func NewSymbolicEngine(traceLength uint32) *SymbolicEngine {
	return &SymbolicEngine{
		pcs:        make([]uint32, traceLength),
		tcs:        make([]uint32, traceLength),
		values:     make([]uint32, traceLength),
		types:      make([]uint32, traceLength),
		los:        make([]uint32, traceLength),
		ups:        make([]uint32, traceLength),
		vaddrs:     make([]uint32, traceLength),
		readValues: make([]uint32, traceLength),
		readLos:    make([]uint32, traceLength),
		readUps:    make([]uint32, traceLength),
	}
}

func (s *SymbolicEngine) traceLength() uint32 {
	return uint32(len(s.pcs))
}

// codeLocation renders "pc(~line)" for symbolic diagnostics.
func (m *Machine) codeLocation() string {
	if m.b.codeLineNumber != nil && m.pc >= m.b.entryPoint {
		return fmt.Sprintf("%s(~%d)", hexString(m.pc), m.b.lineForInstruction(m.pc-m.b.entryPoint))
	}
	return hexString(m.pc)
}

func (m *Machine) symbolicError(format string, args ...interface{}) {
	errorf(format, args...)
	m.fail(exitError(EXITCODE_SYMBOLICEXECUTIONERROR, format, args...))
}

func (m *Machine) printSymbolicMemory(svc uint32) {
	s := m.sym

	fmt.Fprintf(m.out, "@%d{@%d@%s", svc, s.tcs[svc], hexString(s.pcs[svc]))
	if s.pcs[svc] >= m.b.entryPoint && m.b.codeLineNumber != nil {
		fmt.Fprintf(m.out, "(~%d)", m.b.lineForInstruction(s.pcs[svc]-m.b.entryPoint))
	}
	if s.vaddrs[svc] == 0 {
		fmt.Fprintf(m.out, ";%s=%s=malloc(%d)}\n", hexString(s.values[svc]), hexString(s.los[svc]), s.ups[svc])
		return
	} else if s.vaddrs[svc] < NUMBEROFREGISTERS {
		fmt.Fprintf(m.out, ";%s=%d", registerName(s.vaddrs[svc]), s.values[svc])
	} else {
		fmt.Fprintf(m.out, ";%s=%d", hexString(s.vaddrs[svc]), s.values[svc])
	}
	if s.types[svc] != symINTERVAL {
		if s.los[svc] == s.ups[svc] {
			fmt.Fprintf(m.out, "(%d)}\n", s.los[svc])
		} else {
			fmt.Fprintf(m.out, "(%d,%d)}\n", s.los[svc], s.ups[svc])
		}
	} else if s.los[svc] == s.ups[svc] {
		fmt.Fprintf(m.out, "[%d]}\n", s.los[svc])
	} else {
		fmt.Fprintf(m.out, "[%d,%d]}\n", s.los[svc], s.ups[svc])
	}
}

// cardinality counts the values in [lo, up]; 0 means all 2^32.
func cardinality(lo, up uint32) uint32 {
	return up - lo + 1
}

func combinedCardinality(lo1, up1, lo2, up2 uint32) uint32 {
	c1 := cardinality(lo1, up1)
	c2 := cardinality(lo2, up2)

	if c1+c2 <= c1 {
		// there are at least 2^32 values
		return 0
	}
	if c1+c2 <= c2 {
		return 0
	}
	return c1 + c2
}

func isSymbolicValue(typ, lo, up uint32) bool {
	if typ != symINTERVAL {
		// memory range
		return false
	}
	// non-singleton interval
	return lo != up
}

// isSafeAddress verifies that an access through a malloc-returned pointer
// stays within [lo, lo+up) of the allocated block.
func (m *Machine) isSafeAddress(vaddr, reg uint32) bool {
	s := m.sym

	if s.regTyp[reg] != symINTERVAL {
		if vaddr < s.regLos[reg] {
			// memory access below start address of mallocated block
			return false
		}
		if vaddr-s.regLos[reg] >= s.regUps[reg] {
			// memory access above end address of mallocated block
			return false
		}
		return true
	}
	if s.regLos[reg] == s.regUps[reg] {
		return true
	}

	m.symbolicError("detected unsupported symbolic access of memory interval at %s", m.codeLocation())
	return false
}

// loadSymbolicMemory returns the most recent value counter of a word.
func (m *Machine) loadSymbolicMemory(table []uint32, vaddr uint32) uint32 {
	mrvc := m.pa.loadVirtual(table, vaddr)

	if mrvc <= m.sym.tc {
		return mrvc
	}

	m.symbolicError("detected most recent value counter %d at vaddr %s greater than current trace counter %d",
		mrvc, hexString(vaddr), m.sym.tc)
	return 0
}

func (s *SymbolicEngine) isTraceSpaceAvailable() bool {
	return s.tc+1 < s.traceLength()
}

func (s *SymbolicEngine) ealloc() {
	s.tc++
}

func (s *SymbolicEngine) efree() {
	// assert: tc > 0
	s.tc--
}

// storeSymbolicMemory tracks one speculative write. Writes made after the
// most recent decision point (trb < mrvc) overwrite the latest trace
// entry in place; everything else appends a new entry that remembers the
// previous value counter of the word.
func (m *Machine) storeSymbolicMemory(table []uint32, vaddr, value, typ, lo, up, trb uint32) {
	s := m.sym

	var mrvc uint32

	if vaddr == 0 {
		// tracking the program break and size for malloc
		mrvc = 0
	} else if vaddr < NUMBEROFREGISTERS {
		// tracking a register value for sltu
		mrvc = s.mrcc
	} else {
		// assert: vaddr is valid and mapped
		mrvc = m.loadSymbolicMemory(table, vaddr)
		if m.err != nil {
			return
		}

		if value == s.values[mrvc] && typ == s.types[mrvc] && lo == s.los[mrvc] && up == s.ups[mrvc] {
			// prevent tracking identical updates
			return
		}
	}

	if trb < mrvc {
		// the current value at vaddr does not need to be tracked, just
		// overwrite it in the trace
		s.values[mrvc] = value
		s.types[mrvc] = typ
		s.los[mrvc] = lo
		s.ups[mrvc] = up

		// assert: vaddr == s.vaddrs[mrvc]
	} else if s.isTraceSpaceAvailable() {
		// the current value at vaddr is from before the most recent
		// branch; track it by creating a new trace event
		s.ealloc()

		s.pcs[s.tc] = m.pc
		s.tcs[s.tc] = mrvc

		s.values[s.tc] = value
		s.types[s.tc] = typ

		s.los[s.tc] = lo
		s.ups[s.tc] = up

		s.vaddrs[s.tc] = vaddr

		if vaddr < NUMBEROFREGISTERS {
			if vaddr > 0 {
				// register tracking marks the most recent constraint
				s.mrcc = s.tc
			}
		} else {
			// assert: vaddr is valid and mapped
			m.pa.storeVirtual(table, vaddr, s.tc)
		}
	} else {
		m.throwException(EXCEPTION_MAXTRACE, 0)
	}
}

func (m *Machine) storeConstrainedMemory(vaddr, lo, up, trb uint32) {
	s := m.sym

	if vaddr >= m.currentContext.programBreak {
		if vaddr < m.registers[REG_SP] {
			// do not constrain free memory
			return
		}
	}

	mrvc := m.pa.loadVirtual(m.pt, vaddr)

	if mrvc < trb {
		// potentially aliased constrained memory is not supported
		m.symbolicError("detected potentially aliased constrained memory")
		return
	}

	// always track constrained memory by using tc as most recent branch
	m.storeSymbolicMemory(m.pt, vaddr, lo, symINTERVAL, lo, up, s.tc)
}

func (m *Machine) storeRegisterMemory(reg, value uint32) {
	// always track register memory by using tc as most recent branch
	m.storeSymbolicMemory(m.pt, reg, value, symINTERVAL, value, value, m.sym.tc)
}

// constrainMemory narrows the memory word behind a constrained register
// to the interval implied by [lo, up] on the register.
func (m *Machine) constrainMemory(reg, lo, up, trb uint32) {
	s := m.sym

	if s.regHasco[reg] != 0 {
		if s.regHasmn[reg] != 0 {
			m.storeConstrainedMemory(s.regVaddr[reg], s.regColos[reg]-lo, s.regCoups[reg]-up, trb)
		} else {
			m.storeConstrainedMemory(s.regVaddr[reg], lo-s.regColos[reg], up-s.regCoups[reg], trb)
		}
	}
}

func (s *SymbolicEngine) setConstraint(reg, hasco, vaddr, hasmn, colos, coups uint32) {
	s.regHasco[reg] = hasco
	s.regVaddr[reg] = vaddr
	s.regHasmn[reg] = hasmn
	s.regColos[reg] = colos
	s.regCoups[reg] = coups
}

// takeBranch commits an sltu outcome. With more cases pending it records
// the outcome plus the frame and stack pointers in the trace so they are
// rolled back on backtrack; for the last case it just sets rd.
func (m *Machine) takeBranch(b, howManyMore uint32) {
	s := m.sym

	if howManyMore > 0 {
		// record that the outcome b of rd needs to be set on backtrack
		m.storeRegisterMemory(m.rd, b)

		// record frame and stack pointer
		m.storeRegisterMemory(REG_FP, m.registers[REG_FP])
		m.storeRegisterMemory(REG_SP, m.registers[REG_SP])
	} else {
		m.registers[m.rd] = b

		s.regTyp[m.rd] = symINTERVAL

		s.regLos[m.rd] = b
		s.regUps[m.rd] = b

		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

// createConstraints case-splits an sltu over the operand intervals.
// Wrapped intervals are decomposed into up to four rectangular
// subproblems; a non-singleton overlap with no singleton witness is a
// documented boundary of the engine.
func (m *Machine) createConstraints(lo1, up1, lo2, up2, trb, howManyMore uint32) {
	if m.err != nil {
		return
	}

	if lo1 <= up1 {
		// rs1 interval is not wrapped around
		if lo2 <= up2 {
			// both rs1 and rs2 intervals are not wrapped around
			if up1 < lo2 {
				// rs1 interval is strictly less than rs2 interval
				m.constrainMemory(m.rs1, lo1, up1, trb)
				m.constrainMemory(m.rs2, lo2, up2, trb)

				m.takeBranch(1, howManyMore)
			} else if up2 <= lo1 {
				// rs2 interval is less than or equal to rs1 interval
				m.constrainMemory(m.rs1, lo1, up1, trb)
				m.constrainMemory(m.rs2, lo2, up2, trb)

				m.takeBranch(0, howManyMore)
			} else if lo2 == up2 {
				// rs2 interval is a singleton

				// construct constraint for false case
				m.constrainMemory(m.rs1, lo2, up1, trb)
				m.constrainMemory(m.rs2, lo2, up2, trb)

				// record that rd needs to be set to false
				m.storeRegisterMemory(m.rd, 0)

				// record frame and stack pointer
				m.storeRegisterMemory(REG_FP, m.registers[REG_FP])
				m.storeRegisterMemory(REG_SP, m.registers[REG_SP])

				// construct constraint for true case
				m.constrainMemory(m.rs1, lo1, lo2-1, trb)
				m.constrainMemory(m.rs2, lo2, up2, trb)

				m.takeBranch(1, howManyMore)
			} else if lo1 == up1 {
				// rs1 interval is a singleton

				// construct constraint for false case
				m.constrainMemory(m.rs1, lo1, up1, trb)
				m.constrainMemory(m.rs2, lo2, lo1, trb)

				// record that rd needs to be set to false
				m.storeRegisterMemory(m.rd, 0)

				// record frame and stack pointer
				m.storeRegisterMemory(REG_FP, m.registers[REG_FP])
				m.storeRegisterMemory(REG_SP, m.registers[REG_SP])

				// construct constraint for true case
				m.constrainMemory(m.rs1, lo1, up1, trb)
				m.constrainMemory(m.rs2, lo1+1, up2, trb)

				m.takeBranch(1, howManyMore)
			} else {
				// non-singleton interval intersections in comparison are a
				// documented boundary of the engine
				m.symbolicError("detected non-singleton interval intersection")
			}
		} else {
			// rs1 interval is not wrapped around but rs2 is

			// unwrap rs2 interval and use the higher portion first
			m.createConstraints(lo1, up1, lo2, ^uint32(0), trb, 1)

			// then use the lower portion of rs2 interval
			m.createConstraints(lo1, up1, 0, up2, trb, 0)
		}
	} else if lo2 <= up2 {
		// rs2 interval is not wrapped around but rs1 is

		// unwrap rs1 interval and use the higher portion first
		m.createConstraints(lo1, ^uint32(0), lo2, up2, trb, 1)

		// then use the lower portion of rs1 interval
		m.createConstraints(0, up1, lo2, up2, trb, 0)
	} else {
		// both rs1 and rs2 intervals are wrapped around

		// unwrap rs1 and rs2 intervals and use the higher portions
		m.createConstraints(lo1, ^uint32(0), lo2, ^uint32(0), trb, 3)

		// use the higher portion of rs1 interval and lower portion of rs2 interval
		m.createConstraints(lo1, ^uint32(0), 0, up2, trb, 2)

		// use the lower portions of rs1 and rs2 intervals
		m.createConstraints(0, up1, 0, up2, trb, 1)

		// use the lower portion of rs1 interval and higher portion of rs2 interval
		m.createConstraints(0, up1, lo2, ^uint32(0), trb, 0)
	}
}

// fuzzLo and fuzzUp widen a read value into an interval controlled by the
// fuzz factor, clipped to the word range.
func (s *SymbolicEngine) fuzzLo(value uint32) uint32 {
	if s.fuzz >= CPUBITWIDTH {
		return 0
	}
	if value > (twoToThePowerOf(s.fuzz)-1)/2 {
		return value - (twoToThePowerOf(s.fuzz)-1)/2
	}
	return 0
}

func (s *SymbolicEngine) fuzzUp(value uint32) uint32 {
	if s.fuzz >= CPUBITWIDTH {
		return ^uint32(0)
	}
	if ^uint32(0)-value < twoToThePowerOf(s.fuzz)/2 {
		return ^uint32(0)
	}
	if value > (twoToThePowerOf(s.fuzz)-1)/2 {
		return value + twoToThePowerOf(s.fuzz)/2
	}
	return twoToThePowerOf(s.fuzz) - 1
}

// ---------------------------------------------------------------------
// constraint propagation per instruction

func (m *Machine) constrainLUI() {
	s := m.sym

	if m.rd != REG_ZR {
		s.regTyp[m.rd] = symINTERVAL

		// interval semantics of lui
		s.regLos[m.rd] = m.imm << 12
		s.regUps[m.rd] = m.imm << 12

		// rd has no constraint
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainADDI() {
	s := m.sym

	if m.rd == REG_ZR {
		return
	}

	if s.regTyp[m.rs1] != symINTERVAL {
		s.regTyp[m.rd] = s.regTyp[m.rs1]

		s.regLos[m.rd] = s.regLos[m.rs1]
		s.regUps[m.rd] = s.regUps[m.rs1]

		// rd has no constraint if rs1 is a memory range
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of addi
	s.regLos[m.rd] = s.regLos[m.rs1] + m.imm
	s.regUps[m.rd] = s.regUps[m.rs1] + m.imm

	if s.regHasco[m.rs1] != 0 {
		if s.regHasmn[m.rs1] != 0 {
			// rs1 constraint already has a minuend and cannot have another addend
			m.symbolicError("detected invalid minuend expression in operand of addi at %s", m.codeLocation())
			return
		}
		// rd inherits the rs1 constraint, offsets shifted by imm
		s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
			s.regColos[m.rs1]+m.imm, s.regCoups[m.rs1]+m.imm)
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainADD() {
	s := m.sym

	if m.rd == REG_ZR {
		return
	}

	if s.regTyp[m.rs1] != symINTERVAL {
		if s.regTyp[m.rs2] != symINTERVAL {
			// adding two pointers is undefined
			m.symbolicError("undefined addition of two pointers at %s", m.codeLocation())
			return
		}

		s.regTyp[m.rd] = s.regTyp[m.rs1]

		s.regLos[m.rd] = s.regLos[m.rs1]
		s.regUps[m.rd] = s.regUps[m.rs1]

		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
		return
	} else if s.regTyp[m.rs2] != symINTERVAL {
		s.regTyp[m.rd] = s.regTyp[m.rs2]

		s.regLos[m.rd] = s.regLos[m.rs2]
		s.regUps[m.rd] = s.regUps[m.rs2]

		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of add; overflow widens to the full range
	if combinedCardinality(s.regLos[m.rs1], s.regUps[m.rs1], s.regLos[m.rs2], s.regUps[m.rs2]) == 0 {
		s.regLos[m.rd] = 0
		s.regUps[m.rd] = ^uint32(0)
	} else {
		s.regLos[m.rd] = s.regLos[m.rs1] + s.regLos[m.rs2]
		s.regUps[m.rd] = s.regUps[m.rs1] + s.regUps[m.rs2]
	}

	if s.regHasco[m.rs1] != 0 {
		if s.regHasco[m.rs2] != 0 {
			// more than one constraint cannot be tracked for add, but their
			// earlier presence must be flagged if used in comparisons
			s.setConstraint(m.rd, s.regHasco[m.rs1]+s.regHasco[m.rs2], 0, 0, 0, 0)
		} else if s.regHasmn[m.rs1] != 0 {
			m.symbolicError("detected invalid minuend expression in left operand of add at %s", m.codeLocation())
		} else {
			// rd inherits the rs1 constraint since rs2 has none
			s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
				s.regColos[m.rs1]+s.regLos[m.rs2], s.regCoups[m.rs1]+s.regUps[m.rs2])
		}
	} else if s.regHasco[m.rs2] != 0 {
		if s.regHasmn[m.rs2] != 0 {
			m.symbolicError("detected invalid minuend expression in right operand of add at %s", m.codeLocation())
		} else {
			// rd inherits the rs2 constraint since rs1 has none
			s.setConstraint(m.rd, s.regHasco[m.rs2], s.regVaddr[m.rs2], 0,
				s.regLos[m.rs1]+s.regColos[m.rs2], s.regUps[m.rs1]+s.regCoups[m.rs2])
		}
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainSUB() {
	s := m.sym

	if m.rd == REG_ZR {
		return
	}

	if s.regTyp[m.rs1] != symINTERVAL {
		if s.regTyp[m.rs2] != symINTERVAL {
			if s.regLos[m.rs1] == s.regLos[m.rs2] && s.regUps[m.rs1] == s.regUps[m.rs2] {
				s.regTyp[m.rd] = symINTERVAL

				s.regLos[m.rd] = m.registers[m.rd]
				s.regUps[m.rd] = m.registers[m.rd]

				s.setConstraint(m.rd, 0, 0, 0, 0, 0)
				return
			}

			// subtracting incompatible pointers
			m.throwException(EXCEPTION_INVALIDADDRESS, 0)
			return
		}

		s.regTyp[m.rd] = s.regTyp[m.rs1]

		s.regLos[m.rd] = s.regLos[m.rs1]
		s.regUps[m.rd] = s.regUps[m.rs1]

		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
		return
	} else if s.regTyp[m.rs2] != symINTERVAL {
		s.regTyp[m.rd] = s.regTyp[m.rs2]

		s.regLos[m.rd] = s.regLos[m.rs2]
		s.regUps[m.rd] = s.regUps[m.rs2]

		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of sub; overflow widens to the full range
	if combinedCardinality(s.regLos[m.rs1], s.regUps[m.rs1], s.regLos[m.rs2], s.regUps[m.rs2]) == 0 {
		s.regLos[m.rd] = 0
		s.regUps[m.rd] = ^uint32(0)
	} else {
		// temporaries since rd may be rs1 or rs2
		subLos := s.regLos[m.rs1] - s.regUps[m.rs2]
		subUps := s.regUps[m.rs1] - s.regLos[m.rs2]

		s.regLos[m.rd] = subLos
		s.regUps[m.rd] = subUps
	}

	if s.regHasco[m.rs1] != 0 {
		if s.regHasco[m.rs2] != 0 {
			s.setConstraint(m.rd, s.regHasco[m.rs1]+s.regHasco[m.rs2], 0, 0, 0, 0)
		} else if s.regHasmn[m.rs1] != 0 {
			m.symbolicError("detected invalid minuend expression in left operand of sub at %s", m.codeLocation())
		} else {
			s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
				s.regColos[m.rs1]-s.regUps[m.rs2], s.regCoups[m.rs1]-s.regLos[m.rs2])
		}
	} else if s.regHasco[m.rs2] != 0 {
		if s.regHasmn[m.rs2] != 0 {
			m.symbolicError("detected invalid minuend expression in right operand of sub at %s", m.codeLocation())
		} else {
			// the minuend flag toggles: rd = (colo..coup) - source
			s.setConstraint(m.rd, s.regHasco[m.rs2], s.regVaddr[m.rs2], 1,
				s.regLos[m.rs1]-s.regCoups[m.rs2], s.regUps[m.rs1]-s.regColos[m.rs2])
		}
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainMUL() {
	s := m.sym

	if m.rd == REG_ZR {
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of mul
	s.regLos[m.rd] = s.regLos[m.rs1] * s.regLos[m.rs2]
	s.regUps[m.rd] = s.regUps[m.rs1] * s.regUps[m.rs2]

	if s.regHasco[m.rs1] != 0 {
		if s.regHasco[m.rs2] != 0 {
			// non-linear expressions are not supported
			m.symbolicError("detected non-linear expression in mul at %s", m.codeLocation())
		} else if s.regHasmn[m.rs1] != 0 {
			m.symbolicError("detected invalid minuend expression in left operand of mul at %s", m.codeLocation())
		} else {
			// assert: rs2 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
				s.regColos[m.rs1]+s.regLos[m.rs1]*(s.regLos[m.rs2]-1),
				s.regCoups[m.rs1]+s.regUps[m.rs1]*(s.regUps[m.rs2]-1))
		}
	} else if s.regHasco[m.rs2] != 0 {
		if s.regHasmn[m.rs2] != 0 {
			m.symbolicError("detected invalid minuend expression in right operand of mul at %s", m.codeLocation())
		} else {
			// assert: rs1 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs2], s.regVaddr[m.rs2], 0,
				(s.regLos[m.rs1]-1)*s.regLos[m.rs2]+s.regColos[m.rs2],
				(s.regUps[m.rs1]-1)*s.regUps[m.rs2]+s.regCoups[m.rs2])
		}
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainDIVU() {
	s := m.sym

	if s.regLos[m.rs2] == 0 {
		return
	}
	if s.regUps[m.rs2] < s.regLos[m.rs2] {
		// 0 is in the wrapped divisor interval
		m.throwException(EXCEPTION_DIVISIONBYZERO, 0)
		return
	}
	if m.rd == REG_ZR {
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of divu
	s.regLos[m.rd] = s.regLos[m.rs1] / s.regLos[m.rs2]
	s.regUps[m.rd] = s.regUps[m.rs1] / s.regUps[m.rs2]

	if s.regHasco[m.rs1] != 0 {
		if s.regHasco[m.rs2] != 0 {
			m.symbolicError("detected non-linear expression in divu at %s", m.codeLocation())
		} else if s.regHasmn[m.rs1] != 0 {
			m.symbolicError("detected invalid minuend expression in left operand of divu at %s", m.codeLocation())
		} else {
			// assert: rs2 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
				s.regColos[m.rs1]-(s.regLos[m.rs1]-s.regLos[m.rs1]/s.regLos[m.rs2]),
				s.regCoups[m.rs1]-(s.regUps[m.rs1]-s.regUps[m.rs1]/s.regUps[m.rs2]))
		}
	} else if s.regHasco[m.rs2] != 0 {
		if s.regHasmn[m.rs2] != 0 {
			m.symbolicError("detected invalid minuend expression in right operand of divu at %s", m.codeLocation())
		} else {
			// assert: rs1 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs2], s.regVaddr[m.rs2], 0,
				s.regColos[m.rs2]-(s.regLos[m.rs2]-s.regLos[m.rs1]/s.regLos[m.rs2]),
				s.regCoups[m.rs2]-(s.regUps[m.rs2]-s.regUps[m.rs1]/s.regUps[m.rs2]))
		}
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

func (m *Machine) constrainREMU() {
	s := m.sym

	if s.regLos[m.rs2] == 0 {
		return
	}
	if s.regUps[m.rs2] < s.regLos[m.rs2] {
		// 0 is in the wrapped divisor interval
		m.throwException(EXCEPTION_DIVISIONBYZERO, 0)
		return
	}
	if m.rd == REG_ZR {
		return
	}

	s.regTyp[m.rd] = symINTERVAL

	// interval semantics of remu
	s.regLos[m.rd] = s.regLos[m.rs1] % s.regLos[m.rs2]
	s.regUps[m.rd] = s.regUps[m.rs1] % s.regUps[m.rs2]

	if s.regHasco[m.rs1] != 0 {
		if s.regHasco[m.rs2] != 0 {
			m.symbolicError("detected non-linear expression in remu at %s", m.codeLocation())
		} else if s.regHasmn[m.rs1] != 0 {
			m.symbolicError("detected invalid minuend expression in left operand of remu at %s", m.codeLocation())
		} else {
			// assert: rs2 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs1], s.regVaddr[m.rs1], 0,
				s.regColos[m.rs1]-(s.regLos[m.rs1]-s.regLos[m.rs1]%s.regLos[m.rs2]),
				s.regCoups[m.rs1]-(s.regUps[m.rs1]-s.regUps[m.rs1]%s.regUps[m.rs2]))
		}
	} else if s.regHasco[m.rs2] != 0 {
		if s.regHasmn[m.rs2] != 0 {
			m.symbolicError("detected invalid minuend expression in right operand of remu at %s", m.codeLocation())
		} else {
			// assert: rs1 interval is singleton
			s.setConstraint(m.rd, s.regHasco[m.rs2], s.regVaddr[m.rs2], 0,
				s.regColos[m.rs2]-(s.regLos[m.rs2]-s.regLos[m.rs1]%s.regLos[m.rs2]),
				s.regCoups[m.rs2]-(s.regUps[m.rs2]-s.regUps[m.rs1]%s.regUps[m.rs2]))
		}
	} else {
		s.setConstraint(m.rd, 0, 0, 0, 0, 0)
	}
}

// constrainSLTU performs the case split on comparison. A register whose
// constraint has been combined with another memory variable (vaddr 0) may
// not participate in a branch decision.
func (m *Machine) constrainSLTU() {
	s := m.sym

	if m.rd != REG_ZR {
		if s.regHasco[m.rs1] != 0 && s.regVaddr[m.rs1] == 0 {
			m.symbolicError("%d constrained memory locations in left sltu operand at %s",
				s.regHasco[m.rs1], m.codeLocation())
			return
		}
		if s.regHasco[m.rs2] != 0 && s.regVaddr[m.rs2] == 0 {
			m.symbolicError("%d constrained memory locations in right sltu operand at %s",
				s.regHasco[m.rs2], m.codeLocation())
			return
		}

		// take a local copy of mrcc so the alias check considers the old one
		if s.regTyp[m.rs1] != symINTERVAL {
			if s.regTyp[m.rs2] != symINTERVAL {
				m.createConstraints(m.registers[m.rs1], m.registers[m.rs1], m.registers[m.rs2], m.registers[m.rs2], s.mrcc, 0)
			} else {
				m.createConstraints(m.registers[m.rs1], m.registers[m.rs1], s.regLos[m.rs2], s.regUps[m.rs2], s.mrcc, 0)
			}
		} else if s.regTyp[m.rs2] != symINTERVAL {
			m.createConstraints(s.regLos[m.rs1], s.regUps[m.rs1], m.registers[m.rs2], m.registers[m.rs2], s.mrcc, 0)
		} else {
			m.createConstraints(s.regLos[m.rs1], s.regUps[m.rs1], s.regLos[m.rs2], s.regUps[m.rs2], s.mrcc, 0)
		}
	}

	m.pc += INSTRUCTIONSIZE

	m.ic.sltu++
}

func (m *Machine) constrainLW() uint32 {
	s := m.sym

	vaddr := m.registers[m.rs1] + m.imm

	if m.isSafeAddress(vaddr, m.rs1) {
		if isVirtualAddressMapped(m.pt, vaddr) {
			if m.rd != REG_ZR {
				mrvc := m.loadSymbolicMemory(m.pt, vaddr)
				if m.err != nil {
					return vaddr
				}

				// interval semantics of lw
				m.registers[m.rd] = s.values[mrvc]

				s.regTyp[m.rd] = s.types[mrvc]

				s.regLos[m.rd] = s.los[mrvc]
				s.regUps[m.rd] = s.ups[mrvc]

				// assert: vaddr == s.vaddrs[mrvc]

				if isSymbolicValue(s.regTyp[m.rd], s.regLos[m.rd], s.regUps[m.rd]) {
					// vaddr is constrained by rd if the interval is not singleton
					s.setConstraint(m.rd, 1, vaddr, 0, 0, 0)
				} else {
					s.setConstraint(m.rd, 0, 0, 0, 0, 0)
				}
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
	} else if m.err == nil {
		m.throwException(EXCEPTION_INVALIDADDRESS, vaddr)
	}

	return vaddr
}

func (m *Machine) constrainSW() uint32 {
	s := m.sym

	vaddr := m.registers[m.rs1] + m.imm

	if m.isSafeAddress(vaddr, m.rs1) {
		if isVirtualAddressMapped(m.pt, vaddr) {
			if s.regHasco[m.rs2] != 0 && s.regVaddr[m.rs2] == 0 {
				// storing a value with more than one constrained memory
				// location would corrupt the trace
				m.symbolicError("%d constrained memory locations in sw operand at %s",
					s.regHasco[m.rs2], m.codeLocation())
				return vaddr
			}

			m.storeSymbolicMemory(m.pt, vaddr, m.registers[m.rs2], s.regTyp[m.rs2], s.regLos[m.rs2], s.regUps[m.rs2], s.mrcc)

			a := (m.pc - m.b.entryPoint) / INSTRUCTIONSIZE

			m.pc += INSTRUCTIONSIZE

			m.ic.sw++

			if m.storesPerInstruction != nil {
				m.storesPerInstruction[a]++
			}
		} else {
			m.throwException(EXCEPTION_PAGEFAULT, getPageOfVirtualAddress(vaddr))
		}
	} else if m.err == nil {
		m.throwException(EXCEPTION_INVALIDADDRESS, vaddr)
	}

	return vaddr
}

func (m *Machine) constrainJALOrJALR() {
	s := m.sym

	if m.rd != REG_ZR {
		s.regLos[m.rd] = m.registers[m.rd]
		s.regUps[m.rd] = m.registers[m.rd]
	}
}

// ---------------------------------------------------------------------
// backtracking

// backtrackSLTU undoes a case split. Register entries restore the
// register and the most recent constraint counter; restarting forward
// execution at the next case is signalled by advancing the program
// counter, unless only the recorded frame and stack pointers remain to be
// rolled back.
func (m *Machine) backtrackSLTU() {
	s := m.sym

	vaddr := s.vaddrs[s.tc]

	if vaddr < NUMBEROFREGISTERS {
		if vaddr > 0 {
			// the register is identified by vaddr
			m.registers[vaddr] = s.values[s.tc]

			s.regTyp[vaddr] = s.types[s.tc]

			s.regLos[vaddr] = s.los[s.tc]
			s.regUps[vaddr] = s.ups[s.tc]

			s.setConstraint(vaddr, 0, 0, 0, 0, 0)

			// restoring mrcc
			s.mrcc = s.tcs[s.tc]

			if vaddr != REG_FP && vaddr != REG_SP {
				// stop backtracking and try the next case
				m.pc += INSTRUCTIONSIZE

				m.ic.sltu++
			}
		}
	} else {
		m.pa.storeVirtual(m.pt, vaddr, s.tcs[s.tc])
	}

	s.efree()
}

func (m *Machine) backtrackSW() {
	s := m.sym

	m.pa.storeVirtual(m.pt, s.vaddrs[s.tc], s.tcs[s.tc])

	s.efree()
}

// backtrackECALL undoes a brk (vaddr 0) or a read.
func (m *Machine) backtrackECALL() {
	s := m.sym

	if s.vaddrs[s.tc] == 0 {
		// backtracking malloc
		if m.currentContext.programBreak == s.los[s.tc]+s.ups[s.tc] {
			m.currentContext.programBreak = s.los[s.tc]
		} else {
			m.printSymbolicMemory(s.tc)
			m.symbolicError("malloc backtracking error with current program break %s unequal %s plus size %d",
				hexString(m.currentContext.programBreak), hexString(s.los[s.tc]), s.ups[s.tc])
			return
		}
	} else {
		// backtracking read: replay the input on the next path
		s.rc++

		s.readValues[s.rc] = s.values[s.tc]

		s.readLos[s.rc] = s.los[s.tc]
		s.readUps[s.rc] = s.ups[s.tc]

		m.pa.storeVirtual(m.pt, s.vaddrs[s.tc], s.tcs[s.tc])
	}

	s.efree()
}

// backtrackTrace walks the trace backwards from tc, re-executing each
// recorded instruction in backtrack mode, until either the next sltu case
// restarts forward execution or the whole trace has been undone back past
// the entry point (pc 0).
func (m *Machine) backtrackTrace(context *Context) {
	s := m.sym

	m.symbolic = false
	m.backtrack = true

	for m.backtrack {
		m.pc = s.pcs[s.tc]

		if m.pc == 0 {
			// all code has been backtracked to the data segment
			m.backtrack = false
		} else {
			savepc := m.pc

			m.fetch()
			m.decodeExecute()

			if m.err != nil {
				m.backtrack = false
			} else if m.pc != savepc {
				// backtracking stopped by sltu
				m.backtrack = false
			}
		}
	}

	m.symbolic = true

	context.pc = m.pc
}
