package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// File open flags as seen by guests. Write-mode opens are tried by guests
// with three platform triples in order; all of them map onto the same
// host behavior here.
const (
	// 0x8000 = _O_BINARY | _O_RDONLY; Linux and macOS do not mind _O_BINARY
	O_RDONLY = 32768

	// 0x0601 = O_CREAT | O_TRUNC | O_WRONLY on macOS
	MAC_O_CREAT_TRUNC_WRONLY = 1537
	// 0x0241 = O_CREAT | O_TRUNC | O_WRONLY on Linux
	LINUX_O_CREAT_TRUNC_WRONLY = 577
	// 0x8301 = _O_BINARY | _O_CREAT | _O_TRUNC | _O_WRONLY on Windows
	WINDOWS_O_BINARY_CREAT_TRUNC_WRONLY = 33537
)

// rw-r--r--
const S_IRUSR_IWUSR_IRGRP_IROTH = 420

// handleException outcomes
const (
	DONOTEXIT = 0
	EXIT      = 1
)

// Machine personalities sharing one code path.
const (
	MIPSTER = 1
	DIPSTER = 2
	RIPSTER = 3

	MONSTER = 4

	MINSTER = 5
	MOBSTER = 6

	HYPSTER = 7
)

// ---------------------------------------------------------------------
// system calls

func (m *Machine) implementExit(context *Context) {
	if m.disassemble {
		fmt.Fprint(m.out, "(exit): ")
		m.printRegisterHexadecimal(REG_A0)
		fmt.Fprint(m.out, " |- ->\n")
	}

	context.exitCode = context.regs[REG_A0]

	if m.symbolic {
		return
	}

	mallocated := fixedPointRatio(context.programBreak-context.originalBreak, MEGABYTE, 2)
	reportf("%s exiting with exit code %d and %d.%02dMB mallocated memory",
		context.name, asSigned(context.exitCode), mallocated/100, mallocated%100)
}

func (m *Machine) implementRead(context *Context) {
	s := m.sym

	if m.disassemble {
		fmt.Fprint(m.out, "(read): ")
		m.printRegisterValue(REG_A0)
		fmt.Fprint(m.out, ",")
		m.printRegisterHexadecimal(REG_A1)
		fmt.Fprint(m.out, ",")
		m.printRegisterValue(REG_A2)
		fmt.Fprint(m.out, " |- ")
		m.printRegisterValue(REG_A0)
	}

	fd := context.regs[REG_A0]
	vbuffer := context.regs[REG_A1]
	size := context.regs[REG_A2]

	readTotal := uint32(0)
	bytesToRead := uint32(SIZEOFUINT32)

	failed := false

	for size > 0 {
		if !isValidVirtualAddress(vbuffer) {
			failed = true
			break
		}
		if !isVirtualAddressMapped(context.pt, vbuffer) {
			failed = true
			break
		}

		paddr := tlb(context.pt, vbuffer)

		if size < bytesToRead {
			bytesToRead = size
		}

		var actuallyRead uint32

		if m.symbolic {
			if !s.isTraceSpaceAvailable() {
				m.throwException(EXCEPTION_MAXTRACE, 0)
				return
			}

			var value, lo, up uint32

			if s.rc > 0 {
				// do not read but reuse the recorded value and bounds
				value = s.readValues[s.rc]

				lo = s.readLos[s.rc]
				up = s.readUps[s.rc]

				actuallyRead = bytesToRead

				s.rc--
			} else {
				// the word holds an mrvc, not the value; restore the actual
				// value so partial reads keep the original semantics
				mrvcSlot := m.pa.loadPhysical(paddr)

				m.pa.storePhysical(paddr, s.values[m.loadSymbolicMemory(context.pt, vbuffer)])
				if m.err != nil {
					return
				}

				actuallyRead = m.hostRead(fd, paddr, bytesToRead)

				// retrieve the read value
				value = m.pa.loadPhysical(paddr)

				// fuzz the read value
				lo = s.fuzzLo(value)
				up = s.fuzzUp(value)

				// restore the mrvc in the word
				m.pa.storePhysical(paddr, mrvcSlot)
			}

			if s.mrcc == 0 {
				// no branching yet, symbolic memory may be overwritten
				m.storeSymbolicMemory(context.pt, vbuffer, value, symINTERVAL, lo, up, 0)
			} else {
				m.storeSymbolicMemory(context.pt, vbuffer, value, symINTERVAL, lo, up, s.tc)
			}
		} else {
			actuallyRead = m.hostRead(fd, paddr, bytesToRead)
		}

		if actuallyRead == bytesToRead {
			readTotal += actuallyRead

			size -= actuallyRead

			if size > 0 {
				vbuffer += SIZEOFUINT32
			}
		} else {
			if signedLessThan(0, actuallyRead) {
				readTotal += actuallyRead
			}
			size = 0
		}
	}

	if failed {
		context.regs[REG_A0] = ^uint32(0)
	} else {
		context.regs[REG_A0] = readTotal
	}

	if m.symbolic {
		s.regTyp[REG_A0] = symINTERVAL

		s.regLos[REG_A0] = context.regs[REG_A0]
		s.regUps[REG_A0] = context.regs[REG_A0]
	}

	context.pc += INSTRUCTIONSIZE

	if m.disassemble {
		fmt.Fprint(m.out, " -> ")
		m.printRegisterValue(REG_A0)
		fmt.Fprintln(m.out)
	}
}

// hostRead reads up to n bytes from a guest fd into the low bytes of the
// physical word at paddr, preserving its remaining bytes. Returns the
// number of bytes read, 0 at end of file, or -1 as a word on error.
func (m *Machine) hostRead(fd, paddr, n uint32) uint32 {
	if fd >= uint32(len(m.files)) || m.files[fd].reader == nil {
		return ^uint32(0)
	}

	var word [SIZEOFUINT32]byte
	binary.LittleEndian.PutUint32(word[:], m.pa.loadPhysical(paddr))

	got, err := io.ReadFull(m.files[fd].reader, word[:n])
	if got == 0 {
		if err == io.EOF {
			return 0
		}
		if err != nil {
			return ^uint32(0)
		}
	}

	m.pa.storePhysical(paddr, binary.LittleEndian.Uint32(word[:]))

	return uint32(got)
}

func (m *Machine) implementWrite(context *Context) {
	if m.disassemble {
		fmt.Fprint(m.out, "(write): ")
		m.printRegisterValue(REG_A0)
		fmt.Fprint(m.out, ",")
		m.printRegisterHexadecimal(REG_A1)
		fmt.Fprint(m.out, ",")
		m.printRegisterValue(REG_A2)
		fmt.Fprint(m.out, " |- ")
		m.printRegisterValue(REG_A0)
	}

	fd := context.regs[REG_A0]
	vbuffer := context.regs[REG_A1]
	size := context.regs[REG_A2]

	writtenTotal := uint32(0)
	bytesToWrite := uint32(SIZEOFUINT32)

	failed := false

	for size > 0 {
		if !isValidVirtualAddress(vbuffer) {
			failed = true
			break
		}
		if !isVirtualAddressMapped(context.pt, vbuffer) {
			failed = true
			break
		}

		if size < bytesToWrite {
			bytesToWrite = size
		}

		var actuallyWritten uint32

		if m.symbolic {
			// symbolically executed code does not write; the word holds a
			// trace counter, not the value
			actuallyWritten = bytesToWrite
		} else {
			actuallyWritten = m.hostWrite(fd, tlb(context.pt, vbuffer), bytesToWrite)
		}

		if actuallyWritten == bytesToWrite {
			writtenTotal += actuallyWritten

			size -= actuallyWritten

			if size > 0 {
				vbuffer += SIZEOFUINT32
			}
		} else {
			if signedLessThan(0, actuallyWritten) {
				writtenTotal += actuallyWritten
			}
			size = 0
		}
	}

	if failed {
		context.regs[REG_A0] = ^uint32(0)
	} else {
		context.regs[REG_A0] = writtenTotal
	}

	if m.symbolic {
		m.sym.regTyp[REG_A0] = symINTERVAL

		m.sym.regLos[REG_A0] = context.regs[REG_A0]
		m.sym.regUps[REG_A0] = context.regs[REG_A0]
	}

	context.pc += INSTRUCTIONSIZE

	if m.disassemble {
		fmt.Fprint(m.out, " -> ")
		m.printRegisterValue(REG_A0)
		fmt.Fprintln(m.out)
	}
}

func (m *Machine) hostWrite(fd, paddr, n uint32) uint32 {
	if fd >= uint32(len(m.files)) || m.files[fd].writer == nil {
		return ^uint32(0)
	}

	var word [SIZEOFUINT32]byte
	binary.LittleEndian.PutUint32(word[:], m.pa.loadPhysical(paddr))

	got, err := m.files[fd].writer.Write(word[:n])
	if err != nil && got == 0 {
		return ^uint32(0)
	}

	return uint32(got)
}

// downLoadString reads a null-terminated string word by word out of guest
// memory. Symbolic values in the string are an error.
func (m *Machine) downLoadString(table []uint32, vaddr uint32) (string, bool) {
	s := m.sym

	var buf []byte

	for i := 0; i < MAX_FILENAME_LENGTH/SIZEOFUINT32; i++ {
		if !isValidVirtualAddress(vaddr) {
			return "", false
		}
		if !isVirtualAddressMapped(table, vaddr) {
			return "", false
		}

		var word uint32

		if m.symbolic {
			mrvc := m.loadSymbolicMemory(table, vaddr)
			if m.err != nil {
				return "", false
			}

			word = s.values[mrvc]

			if isSymbolicValue(s.types[mrvc], s.los[mrvc], s.ups[mrvc]) {
				m.symbolicError("detected symbolic value in filename of open call")
				return "", false
			}
		} else {
			word = m.pa.loadVirtual(table, vaddr)
		}

		// check if the string ends in the current machine word
		for j := uint32(0); j < SIZEOFUINT32; j++ {
			c := byte(word >> (j * 8))
			if c == 0 {
				return string(buf), true
			}
			buf = append(buf, c)
		}

		// advance to the next machine word in virtual memory
		vaddr += SIZEOFUINT32
	}

	return "", false
}

// hostOpenFlags maps the guest's platform flag triples onto host flags.
func hostOpenFlags(flags uint32) (int, bool) {
	switch flags {
	case 0, O_RDONLY:
		return os.O_RDONLY, true
	case MAC_O_CREAT_TRUNC_WRONLY, LINUX_O_CREAT_TRUNC_WRONLY, WINDOWS_O_BINARY_CREAT_TRUNC_WRONLY:
		return os.O_CREATE | os.O_TRUNC | os.O_WRONLY, true
	}
	return 0, false
}

func (m *Machine) implementOpen(context *Context) {
	if m.disassemble {
		fmt.Fprint(m.out, "(open): ")
		m.printRegisterHexadecimal(REG_A0)
		fmt.Fprint(m.out, ",")
		m.printRegisterHexadecimal(REG_A1)
		fmt.Fprint(m.out, ",")
		m.printRegisterOctal(REG_A2)
		fmt.Fprint(m.out, " |- ")
		m.printRegisterValue(REG_A0)
	}

	vfilename := context.regs[REG_A0]
	flags := context.regs[REG_A1]
	mode := context.regs[REG_A2]

	filename, ok := m.downLoadString(context.pt, vfilename)
	if m.err != nil {
		return
	}

	fd := ^uint32(0)

	if ok {
		if hostFlags, known := hostOpenFlags(flags); known {
			file, err := os.OpenFile(filename, hostFlags, os.FileMode(mode&0777))
			if err == nil {
				fd = uint32(len(m.files))
				m.files = append(m.files, guestFD{reader: file, writer: file, file: file})
			}
		}
	}

	context.regs[REG_A0] = fd

	if m.symbolic {
		m.sym.regTyp[REG_A0] = symINTERVAL

		m.sym.regLos[REG_A0] = context.regs[REG_A0]
		m.sym.regUps[REG_A0] = context.regs[REG_A0]
	}

	context.pc += INSTRUCTIONSIZE

	if m.disassemble {
		fmt.Fprint(m.out, " -> ")
		m.printRegisterValue(REG_A0)
		fmt.Fprintln(m.out)
	}
}

// implementBrk moves the program break up if the requested break is at
// least the current one, below the stack pointer, and word-aligned;
// otherwise it reports the current break. In symbolic mode a successful
// brk tags a0 as a memory range and records the block in the trace.
func (m *Machine) implementBrk(context *Context) {
	s := m.sym

	if m.disassemble {
		fmt.Fprint(m.out, "(brk): ")
		m.printRegisterHexadecimal(REG_A0)
	}

	programBreak := context.regs[REG_A0]

	previousProgramBreak := context.programBreak

	valid := false

	if programBreak >= previousProgramBreak {
		if programBreak < context.regs[REG_SP] {
			if programBreak%SIZEOFUINT32 == 0 {
				valid = true
			}
		}
	}

	if valid {
		if m.disassemble {
			fmt.Fprint(m.out, " |- ->\n")
		}

		context.programBreak = programBreak

		if m.symbolic {
			size := programBreak - previousProgramBreak

			// the interval is a memory range, not a symbolic value
			s.regTyp[REG_A0] = symMEMORYRANGE

			// remember start and size of the block for memory safety checks
			s.regLos[REG_A0] = previousProgramBreak
			s.regUps[REG_A0] = size

			if s.mrcc > 0 {
				if s.isTraceSpaceAvailable() {
					// there has been branching, record the brk using vaddr 0
					m.storeSymbolicMemory(context.pt, 0, previousProgramBreak, symMEMORYRANGE, previousProgramBreak, size, s.tc)
				} else {
					m.throwException(EXCEPTION_MAXTRACE, 0)
					return
				}
			}
		}
	} else {
		// error returns the current program break
		programBreak = previousProgramBreak

		if m.disassemble {
			fmt.Fprint(m.out, " |- ")
			m.printRegisterHexadecimal(REG_A0)
		}

		context.regs[REG_A0] = programBreak

		if m.disassemble {
			fmt.Fprint(m.out, " -> ")
			m.printRegisterHexadecimal(REG_A0)
			fmt.Fprintln(m.out)
		}

		if m.symbolic {
			s.regTyp[REG_A0] = symINTERVAL

			s.regLos[REG_A0] = 0
			s.regUps[REG_A0] = 0
		}
	}

	context.pc += INSTRUCTIONSIZE
}

// ---------------------------------------------------------------------
// switching

// doSwitch transfers control to another context. The from context is
// reported in a1 rather than a0 to avoid racing with a timer interrupt
// that may fire right after resumption.
func (m *Machine) doSwitch(toContext *Context, timeout uint32) {
	fromContext := m.currentContext

	m.restoreContext(toContext)

	// restore machine state
	m.pc = toContext.pc
	m.registers = &toContext.regs
	m.pt = toContext.pt

	if fromContext.parent != nil {
		m.registers[REG_A1] = fromContext.vctxt
	} else {
		m.registers[REG_A1] = fromContext.id
	}

	m.currentContext = toContext

	m.timer = timeout
}

func (m *Machine) implementSwitch() {
	if m.disassemble {
		fmt.Fprint(m.out, "(switch): ")
		m.printRegisterHexadecimal(REG_A0)
		fmt.Fprint(m.out, ",")
		m.printRegisterValue(REG_A1)
		fmt.Fprint(m.out, " |- ")
		m.printRegisterValue(REG_A1)
	}

	m.saveContext(m.currentContext)

	// cache the context on this boot level before switching
	m.doSwitch(m.cacheContext(m.registers[REG_A0]), m.registers[REG_A1])

	if m.disassemble {
		fmt.Fprint(m.out, " -> ")
		m.printRegisterHexadecimal(REG_A1)
		fmt.Fprintln(m.out)
	}
}

func (m *Machine) mipsterSwitch(toContext *Context, timeout uint32) *Context {
	m.doSwitch(toContext, timeout)

	m.runUntilException()

	m.saveContext(m.currentContext)

	return m.currentContext
}

// hypsterSwitch would use the switch syscall on higher boot levels; at
// boot level zero it is mipsterSwitch.
func (m *Machine) hypsterSwitch(toContext *Context, timeout uint32) *Context {
	return m.mipsterSwitch(toContext, timeout)
}

// ---------------------------------------------------------------------
// loader

// mapAndStore maps the page behind vaddr if necessary and stores data.
func (m *Machine) mapAndStore(context *Context, vaddr, data uint32) error {
	// assert: isValidVirtualAddress(vaddr)
	if !isVirtualAddressMapped(context.pt, vaddr) {
		frame, err := m.pa.palloc()
		if err != nil {
			return err
		}
		m.mapPage(context, getPageOfVirtualAddress(vaddr), frame)
	}

	if m.symbolic {
		if m.sym.isTraceSpaceAvailable() {
			// always track initialized memory by using tc as most recent branch
			m.storeSymbolicMemory(context.pt, vaddr, data, symINTERVAL, data, data, m.sym.tc)
		} else {
			return exitError(EXITCODE_OUTOFTRACEMEMORY, "trace allocation out of memory")
		}
	} else {
		m.pa.storeVirtual(context.pt, vaddr, data)
	}

	return nil
}

// upLoadBinary installs code and data into a fresh context. Code is never
// constrained; data is, in symbolic mode.
func (m *Machine) upLoadBinary(context *Context) error {
	// assert: the entry point is a multiple of PAGESIZE and REGISTERSIZE
	context.pc = m.b.entryPoint
	context.loPage = getPageOfVirtualAddress(m.b.entryPoint)
	context.mePage = getPageOfVirtualAddress(m.b.entryPoint)
	context.originalBreak = m.b.entryPoint + m.b.length
	context.programBreak = context.originalBreak

	baddr := uint32(0)

	if m.symbolic {
		// code is never constrained...
		m.symbolic = false

		for baddr < m.b.codeLength {
			if err := m.mapAndStore(context, m.b.entryPoint+baddr, m.b.loadData(baddr)); err != nil {
				m.symbolic = true
				return err
			}
			baddr += REGISTERSIZE
		}

		// ...but data is
		m.symbolic = true
	}

	for baddr < m.b.length {
		if err := m.mapAndStore(context, m.b.entryPoint+baddr, m.b.loadData(baddr)); err != nil {
			return err
		}
		baddr += REGISTERSIZE
	}

	context.name = m.b.name

	return nil
}

func (m *Machine) upLoadString(context *Context, s string, sp uint32) (uint32, error) {
	words := stringToWords(s)

	// allocate memory for storing the string
	sp -= uint32(len(words)) * REGISTERSIZE

	for i, word := range words {
		if err := m.mapAndStore(context, sp+uint32(i)*REGISTERSIZE, word); err != nil {
			return 0, err
		}
	}

	return sp, nil
}

// upLoadArguments synthesizes the usual C stack layout:
//
//	SP
//	|
//	V
//	| argc | argv[0] | ... | argv[n] | 0 | env terminator 0 |
func (m *Machine) upLoadArguments(context *Context, argv []string) error {
	// the call stack grows top down
	sp := uint32(VIRTUALMEMORYSIZE)

	vargv := make([]uint32, len(argv))

	// push program parameters onto the stack
	for i, arg := range argv {
		var err error
		sp, err = m.upLoadString(context, arg, sp)
		if err != nil {
			return err
		}

		vargv[i] = sp
	}

	// push null value to terminate env table
	sp -= REGISTERSIZE
	if err := m.mapAndStore(context, sp, 0); err != nil {
		return err
	}

	// push null value to terminate argv table
	sp -= REGISTERSIZE
	if err := m.mapAndStore(context, sp, 0); err != nil {
		return err
	}

	// push argv table onto the stack
	for i := len(argv) - 1; i >= 0; i-- {
		sp -= REGISTERSIZE
		if err := m.mapAndStore(context, sp, vargv[i]); err != nil {
			return err
		}
	}

	// push argc
	sp -= REGISTERSIZE
	if err := m.mapAndStore(context, sp, uint32(len(argv))); err != nil {
		return err
	}

	// store the stack pointer value in the stack pointer register
	context.regs[REG_SP] = sp

	// set bounds on the register value for symbolic execution
	if m.symbolic {
		m.sym.regTyp[REG_SP] = symINTERVAL

		m.sym.regLos[REG_SP] = sp
		m.sym.regUps[REG_SP] = sp
	}

	return nil
}

// ---------------------------------------------------------------------
// exception handling

func (m *Machine) handleSystemCall(context *Context) uint32 {
	context.exception = EXCEPTION_NOEXCEPTION

	a7 := context.regs[REG_A7]

	switch a7 {
	case SYSCALL_BRK:
		m.implementBrk(context)
	case SYSCALL_READ:
		m.implementRead(context)
	case SYSCALL_WRITE:
		m.implementWrite(context)
	case SYSCALL_OPEN:
		m.implementOpen(context)
	case SYSCALL_EXIT:
		m.implementExit(context)

		return EXIT
	default:
		errorf("unknown system call %d", a7)

		context.exitCode = EXITCODE_UNKNOWNSYSCALL

		return EXIT
	}

	if context.exception == EXCEPTION_MAXTRACE {
		// exiting during symbolic execution, no exit code necessary
		context.exception = EXCEPTION_NOEXCEPTION

		return EXIT
	}

	return DONOTEXIT
}

func (m *Machine) handlePageFault(context *Context) uint32 {
	context.exception = EXCEPTION_NOEXCEPTION

	frame, err := m.pa.palloc()
	if err != nil {
		errorf("%s", err)
		m.fail(err)
		return EXIT
	}

	// TODO: use this table to unmap and reuse frames
	m.mapPage(context, context.faultingPage, frame)

	return DONOTEXIT
}

func (m *Machine) handleDivisionByZero(context *Context) uint32 {
	context.exception = EXCEPTION_NOEXCEPTION

	if m.record {
		reportf("division by zero, replaying...")

		m.replayTrace()

		context.exitCode = EXITCODE_NOERROR
	} else {
		reportf("division by zero")

		context.exitCode = EXITCODE_DIVISIONBYZERO
	}

	return EXIT
}

func (m *Machine) handleMaxTrace(context *Context) uint32 {
	context.exception = EXCEPTION_NOEXCEPTION

	context.exitCode = EXITCODE_OUTOFTRACEMEMORY

	return EXIT
}

// handleTimer clears the interrupt; the scheduler reselects the next
// context on its own.
func (m *Machine) handleTimer(context *Context) uint32 {
	context.exception = EXCEPTION_NOEXCEPTION

	return DONOTEXIT
}

func (m *Machine) handleException(context *Context) uint32 {
	switch context.exception {
	case EXCEPTION_SYSCALL:
		return m.handleSystemCall(context)
	case EXCEPTION_PAGEFAULT:
		return m.handlePageFault(context)
	case EXCEPTION_DIVISIONBYZERO:
		return m.handleDivisionByZero(context)
	case EXCEPTION_MAXTRACE:
		return m.handleMaxTrace(context)
	case EXCEPTION_TIMER:
		return m.handleTimer(context)
	case EXCEPTION_UNKNOWNINSTRUCTION:
		context.exception = EXCEPTION_NOEXCEPTION

		reportf("unknown instruction")

		context.exitCode = EXITCODE_UNKNOWNINSTRUCTION

		return EXIT
	}

	errorf("context %s throws uncaught %s", context.name, exceptionNames[context.exception])

	context.exitCode = EXITCODE_UNCAUGHTEXCEPTION

	return EXIT
}

// ---------------------------------------------------------------------
// schedulers

func (m *Machine) mipster(toContext *Context) uint32 {
	fmt.Fprintln(m.out, "mipster")

	timeout := m.cfg.Timeslice

	for {
		fromContext := m.mipsterSwitch(toContext, timeout)

		if m.err != nil {
			return fromContext.exitCode
		}

		if fromContext.parent != nil {
			// switch to the parent which is in charge of handling exceptions
			toContext = fromContext.parent

			timeout = TIMEROFF
		} else if m.handleException(fromContext) == EXIT {
			return fromContext.exitCode
		} else {
			toContext = fromContext

			timeout = m.cfg.Timeslice
		}
	}
}

func (m *Machine) hypster(toContext *Context) uint32 {
	fmt.Fprintln(m.out, "hypster")

	for {
		fromContext := m.hypsterSwitch(toContext, m.cfg.Timeslice)

		if m.err != nil {
			return fromContext.exitCode
		}

		if m.handleException(fromContext) == EXIT {
			return fromContext.exitCode
		}

		toContext = fromContext
	}
}

// mixter alternates mipster and hypster slices in the configured ratio.
func (m *Machine) mixter(toContext *Context, mix uint32) uint32 {
	fmt.Fprintf(m.out, "mixter (%d%% mipster/%d%% hypster)\n", mix, 100-mix)

	mslice := m.cfg.Timeslice

	if mslice <= (^uint32(0))/100 {
		mslice = mslice * mix / 100
	} else if mslice <= (^uint32(0))/10 {
		mslice = mslice / 10 * (mix / 10)
	} else {
		mslice = mslice / 100 * mix
	}

	var timeout uint32

	if mslice > 0 {
		mix = 1

		timeout = mslice
	} else {
		mix = 0

		timeout = m.cfg.Timeslice
	}

	for {
		var fromContext *Context

		if mix != 0 {
			fromContext = m.mipsterSwitch(toContext, timeout)
		} else {
			fromContext = m.hypsterSwitch(toContext, timeout)
		}

		if m.err != nil {
			return fromContext.exitCode
		}

		if fromContext.parent != nil {
			// switch to the parent which is in charge of handling exceptions
			toContext = fromContext.parent

			timeout = TIMEROFF
		} else if m.handleException(fromContext) == EXIT {
			return fromContext.exitCode
		} else {
			toContext = fromContext

			if mix != 0 {
				if mslice != m.cfg.Timeslice {
					mix = 0

					timeout = m.cfg.Timeslice - mslice
				}
			} else if mslice > 0 {
				mix = 1

				timeout = mslice
			}
		}
	}
}

// minmob is the shared loop of minster and mobster: page faults are not
// handled.
func (m *Machine) minmob(toContext *Context) uint32 {
	timeout := m.cfg.Timeslice

	for {
		fromContext := m.mipsterSwitch(toContext, timeout)

		if m.err != nil {
			return fromContext.exitCode
		}

		if fromContext.parent != nil {
			// switch to the parent which is in charge of handling exceptions
			toContext = fromContext.parent

			timeout = TIMEROFF
		} else {
			// minster and mobster do not handle page faults
			if fromContext.exception == EXCEPTION_PAGEFAULT {
				errorf("context %s throws uncaught %s", fromContext.name, exceptionNames[fromContext.exception])

				return EXITCODE_UNCAUGHTEXCEPTION
			} else if m.handleException(fromContext) == EXIT {
				return fromContext.exitCode
			}

			toContext = fromContext

			timeout = m.cfg.Timeslice
		}
	}
}

// mapUnmappedPages maps all remaining physically available pages into the
// context up front.
func (m *Machine) mapUnmappedPages(context *Context) {
	// assert: the page table is only mapped from beginning up and end down
	page := context.loPage

	for isPageMapped(context.pt, page) {
		page++
	}

	for m.pa.available() {
		frame, err := m.pa.palloc()
		if err != nil {
			return
		}
		m.mapPage(context, page, frame)

		page++
	}
}

func (m *Machine) minster(toContext *Context) uint32 {
	fmt.Fprintln(m.out, "minster")

	// virtual memory is like physical memory in the initial context up to
	// the memory size; consumes memory even when not accessed
	m.mapUnmappedPages(toContext)

	return m.minmob(toContext)
}

func (m *Machine) mobster(toContext *Context) uint32 {
	fmt.Fprintln(m.out, "mobster")

	// does not handle page faults, relies on fancy hypsters to do that
	return m.minmob(toContext)
}

// monster runs the symbolic engine: every exiting path is backtracked and
// execution resumes at the next open sltu case until the whole trace has
// been undone.
func (m *Machine) monster(toContext *Context) uint32 {
	fmt.Fprintln(m.out, "monster")

	paths := uint32(0)

	timeout := m.cfg.Timeslice

	for {
		fromContext := m.mipsterSwitch(toContext, timeout)

		if m.err != nil {
			return fromContext.exitCode
		}

		if fromContext.parent != nil {
			// switch to the parent which is in charge of handling exceptions
			toContext = fromContext.parent

			timeout = TIMEROFF
		} else {
			if m.handleException(fromContext) == EXIT {
				m.backtrackTrace(fromContext)

				if m.err != nil {
					return fromContext.exitCode
				}

				if paths == 0 {
					fmt.Fprintf(m.out, "%s: backtracking ", toolName)
				} else {
					eraseInteger(m.out, paths)
				}

				paths++

				fmt.Fprintf(m.out, "%d", paths)

				if m.pc == 0 {
					fmt.Fprintln(m.out)

					return EXITCODE_NOERROR
				}
			}

			toContext = fromContext

			timeout = m.cfg.Timeslice
		}
	}
}

// eraseInteger backspaces over the decimal rendering of n.
func eraseInteger(w io.Writer, n uint32) {
	for range fmt.Sprintf("%d", n) {
		fmt.Fprint(w, "\b")
	}
}
