package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// zeroWordBinary is a binary whose first instruction word is 0x00000000.
func zeroWordBinary() *Binary {
	b := NewBinary()
	b.length = INSTRUCTIONSIZE
	b.codeLength = INSTRUCTIONSIZE
	b.entryPoint = ELF_ENTRY_POINT
	b.name = "zero"
	return b
}

func TestUnknownInstruction(t *testing.T) {
	// opcode 0 decodes to nothing and must exit with UnknownInstruction
	name := filepath.Join(t.TempDir(), "zero.m")

	if err := zeroWordBinary().WriteFile(name); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFile(name)
	if err != nil {
		t.Fatal(err)
	}

	result := runUnder(t, loaded, MIPSTER, "")

	if result.exitCode != EXITCODE_UNKNOWNINSTRUCTION {
		t.Errorf("exit code = %d, want %d", result.exitCode, EXITCODE_UNKNOWNINSTRUCTION)
	}
}

const divideByZeroSource = `
uint32_t main() {
  uint32_t x;
  uint32_t y;
  x = 7;
  y = 0;
  return x / y;
}
`

func TestDivisionByZero(t *testing.T) {
	b := compileString(t, divideByZeroSource)

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != EXITCODE_DIVISIONBYZERO {
		t.Errorf("exit code = %d, want %d", result.exitCode, EXITCODE_DIVISIONBYZERO)
	}
}

func TestDivisionByZeroReplay(t *testing.T) {
	// under ripster the crash replays the last instructions with
	// disassembly on and exits 0
	b := compileString(t, divideByZeroSource)

	result := runUnder(t, b, RIPSTER, "")

	if result.exitCode != EXITCODE_NOERROR {
		t.Errorf("exit code = %d, want 0", result.exitCode)
	}
	if !strings.Contains(result.debug, "divu") {
		t.Error("replay trace does not show the divu instruction")
	}
}

func TestPageTableCoversTouchedMemory(t *testing.T) {
	b := compileFiles(t, "hello-world.c")

	result := runUnder(t, b, MIPSTER, "")

	m := result.machine
	context := m.currentContext

	mapped := 0

	for page := uint32(0); page < VIRTUALMEMORYSIZE/PAGESIZE; page++ {
		if isPageMapped(context.pt, page) {
			mapped++

			vaddr := page * PAGESIZE

			if !isVirtualAddressMapped(context.pt, vaddr) {
				t.Fatalf("page %d mapped but address %#x not", page, vaddr)
			}

			paddr := tlb(context.pt, vaddr)
			if paddr/WORDSIZE >= uint32(len(m.pa.memory)) {
				t.Fatalf("page %d frame %#x outside the frame pool", page, paddr)
			}
			if paddr%PAGESIZE != 0 {
				t.Fatalf("frame for page %d is not page-aligned", page)
			}
		}
	}

	if mapped == 0 {
		t.Fatal("no pages mapped after execution")
	}
}

// sltu semantics of the compiler's comparison encodings form a total
// linear order: exactly one of a < b, b < a, a == b holds.
func TestSLTUTotalOrder(t *testing.T) {
	sltu := func(a, b uint32) uint32 {
		if a < b {
			return 1
		}
		return 0
	}
	eq := func(a, b uint32) uint32 {
		// the compiler encodes a == b as (b - a) <u 1
		return sltu(b-a, 1)
	}

	values := []uint32{0, 1, 2, 41, 42, 4095, 65536, 1 << 20, 1<<31 - 1, 1 << 31, ^uint32(0) - 1, ^uint32(0)}

	seed := uint32(123456789)
	for i := 0; i < 256; i++ {
		seed = seed*1103515245 + 12345
		values = append(values, seed)
	}

	for _, a := range values {
		for _, b := range values {
			if sltu(a, b)+sltu(b, a)+eq(a, b) != 1 {
				t.Fatalf("order violated for a=%d b=%d", a, b)
			}
		}
	}
}

func TestTimerInterruptPreemptsLoop(t *testing.T) {
	// an endless loop must not hang the scheduler; shrink the timeslice
	// and count that the loop survives several slices before we stop it
	b := compileString(t, `
uint32_t main() {
  uint32_t i;
  i = 1;
  while (i < 1000000)
    i = i + 1;
  return 42;
}
`)

	cfg := LoadConfig()
	cfg.Timeslice = 1000

	m := NewMachine(b, cfg, 64)
	m.execute = true
	m.resetInterpreter()

	context := m.createContext(nil, 0)

	if err := m.upLoadBinary(context); err != nil {
		t.Fatal(err)
	}
	if err := m.upLoadArguments(context, []string{b.name}); err != nil {
		t.Fatal(err)
	}

	timerInterrupts := 0

	toContext := context
	timeout := cfg.Timeslice

	for {
		fromContext := m.mipsterSwitch(toContext, timeout)

		if m.err != nil {
			t.Fatalf("machine error: %v", m.err)
		}

		if fromContext.exception == EXCEPTION_TIMER {
			timerInterrupts++
		}

		if m.handleException(fromContext) == EXIT {
			break
		}

		toContext = fromContext
		timeout = cfg.Timeslice
	}

	if timerInterrupts < 2 {
		t.Errorf("loop was preempted %d times, want at least 2", timerInterrupts)
	}
	if context.exitCode != 42 {
		t.Errorf("exit code = %d, want 42", context.exitCode)
	}
}

func TestMallocGrowsBreak(t *testing.T) {
	b := compileString(t, `
uint32_t main() {
  uint32_t* p;
  uint32_t* q;
  p = malloc(64);
  q = malloc(64);
  if (q - p != 16)
    return 1;
  *p = 7;
  *q = 9;
  return *p + *q;
}
`)

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 16 {
		t.Errorf("exit code = %d, want 16", result.exitCode)
	}

	context := result.machine.currentContext
	if context.programBreak < context.originalBreak+128 {
		t.Errorf("program break %#x did not grow past %#x", context.programBreak, context.originalBreak)
	}
}

func TestBrkRejectsMisalignedAndShrinking(t *testing.T) {
	b := compileFiles(t, "countdown.c")

	cfg := LoadConfig()
	m := NewMachine(b, cfg, 64)
	m.execute = true
	m.resetInterpreter()

	context := m.createContext(nil, 0)
	if err := m.upLoadBinary(context); err != nil {
		t.Fatal(err)
	}
	if err := m.upLoadArguments(context, []string{b.name}); err != nil {
		t.Fatal(err)
	}

	previous := context.programBreak

	// misaligned break is refused and the current break is returned
	context.regs[REG_A0] = previous + 2
	m.implementBrk(context)
	if context.regs[REG_A0] != previous {
		t.Errorf("misaligned brk returned %#x, want %#x", context.regs[REG_A0], previous)
	}
	if context.programBreak != previous {
		t.Errorf("misaligned brk moved the break")
	}

	// shrinking the break is refused
	context.regs[REG_A0] = previous - REGISTERSIZE
	m.implementBrk(context)
	if context.programBreak != previous {
		t.Errorf("shrinking brk moved the break")
	}

	// a valid break is accepted
	context.regs[REG_A0] = previous + PAGESIZE
	m.implementBrk(context)
	if context.programBreak != previous+PAGESIZE {
		t.Errorf("valid brk did not move the break")
	}
}

func TestGuestFileIO(t *testing.T) {
	dir := t.TempDir()
	inName := filepath.Join(dir, "in.txt")
	outName := filepath.Join(dir, "out.txt")

	source := `
uint32_t main(uint32_t argc, uint32_t* argv) {
  uint32_t in;
  uint32_t out;
  uint32_t* buffer;
  uint32_t n;

  buffer = malloc(16);
  *buffer = 0;

  in = open((uint32_t*) *(argv + 1), 32768, 0);
  if (in == -1)
    return 1;

  n = read(in, buffer, 8);
  if (n != 8)
    return 2;

  out = open((uint32_t*) *(argv + 2), 1537, 420);
  if (out == -1)
    return 3;

  write(out, buffer, n);
  return 0;
}
`

	if err := os.WriteFile(inName, []byte("abcdefgh"), 0644); err != nil {
		t.Fatal(err)
	}

	b := compileString(t, source)

	result := runUnder(t, b, MIPSTER, "", inName, outName)

	if result.exitCode != 0 {
		t.Fatalf("guest file copy exited with %d", result.exitCode)
	}

	copied, err := os.ReadFile(outName)
	if err != nil {
		t.Fatal(err)
	}
	if string(copied) != "abcdefgh" {
		t.Errorf("copied %q", copied)
	}
}

func TestPageAllocatorBudget(t *testing.T) {
	pa := newPageAllocator(1)

	frames := make(map[uint32]bool)

	// a 1MB budget tolerates up to 2MB of demand paging
	for i := 0; i < 2*MEGABYTE/PAGESIZE; i++ {
		frame, err := pa.palloc()
		if err != nil {
			t.Fatalf("palloc failed after %d pages: %v", i, err)
		}
		if frame == 0 {
			t.Fatal("palloc returned the null frame")
		}
		if frame%PAGESIZE != 0 {
			t.Fatalf("frame %#x is not page-aligned", frame)
		}
		if frames[frame] {
			t.Fatalf("frame %#x handed out twice", frame)
		}
		frames[frame] = true
	}

	if _, err := pa.palloc(); err == nil {
		t.Error("palloc did not fail beyond twice the budget")
	}
}
