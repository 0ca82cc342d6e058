package main

import (
	"bytes"
	"strings"
	"testing"
)

// runMonster executes a binary under the symbolic engine with the given
// fuzz factor and guest stdin.
func runMonster(t *testing.T, b *Binary, fuzz uint32, stdin string) runResult {
	t.Helper()

	cfg := LoadConfig()

	megabytes := roundUp(cfg.TraceLength*SIZEOFUINT32, MEGABYTE)/MEGABYTE + 1

	m := NewMachine(b, cfg, megabytes)

	var guestOut, debugOut bytes.Buffer

	m.files[0].reader = strings.NewReader(stdin)
	m.files[1].writer = &guestOut
	m.out = &debugOut

	m.debug = true
	m.symbolic = true

	m.sym = NewSymbolicEngine(cfg.TraceLength)
	m.sym.fuzz = fuzz

	m.execute = true

	m.resetInterpreter()

	context := m.createContext(nil, 0)

	if err := m.upLoadBinary(context); err != nil {
		t.Fatalf("loading binary failed: %v", err)
	}
	if err := m.upLoadArguments(context, []string{b.name}); err != nil {
		t.Fatalf("loading arguments failed: %v", err)
	}

	exitCode := m.monster(context)

	if m.err != nil {
		t.Fatalf("machine error: %v", m.err)
	}

	return runResult{exitCode, guestOut.String(), debugOut.String(), m}
}

const branchOnInputSource = `
uint32_t main() {
  uint32_t* p;
  uint32_t x;

  p = malloc(4);

  *p = 0;

  read(0, p, 4);

  x = *p;

  if (x < 100)
    return 1;

  return 0;
}
`

// A fuzzed read straddling the branch bound splits execution into two
// paths; the engine must enumerate both and terminate cleanly.
func TestMonsterEnumeratesBothBranchOutcomes(t *testing.T) {
	b := compileString(t, branchOnInputSource)

	// input value 100 with fuzz 4 widens to [93, 108), straddling 100
	result := runMonster(t, b, 4, string([]byte{100, 0, 0, 0}))

	if result.exitCode != EXITCODE_NOERROR {
		t.Fatalf("monster exited with %d, want 0", result.exitCode)
	}

	if !strings.Contains(result.debug, "backtracking") {
		t.Error("monster did not report backtracking")
	}
	if !strings.Contains(result.debug, "2") {
		t.Errorf("monster did not explore two paths:\n%s", result.debug)
	}
}

// Without fuzzing the read value stays a singleton and only one path
// exists.
func TestMonsterSinglePathWithoutFuzz(t *testing.T) {
	b := compileString(t, branchOnInputSource)

	result := runMonster(t, b, 0, string([]byte{100, 0, 0, 0}))

	if result.exitCode != EXITCODE_NOERROR {
		t.Fatalf("monster exited with %d, want 0", result.exitCode)
	}

	if strings.Contains(result.debug, "\b") {
		t.Error("monster explored more than one path for a concrete input")
	}
}

// A concrete rerun with the witness from the lower bound of the split
// must reach the branch outcome the symbolic engine predicted.
func TestConcreteWitnessesMatchSymbolicOutcomes(t *testing.T) {
	b := compileString(t, branchOnInputSource)

	// true case witness: any value below 100
	low := runUnder(t, b, MIPSTER, string([]byte{93, 0, 0, 0}))
	if low.exitCode != 1 {
		t.Errorf("witness 93 exited with %d, want 1", low.exitCode)
	}

	// false case witness: the singleton bound itself
	high := runUnder(t, b, MIPSTER, string([]byte{100, 0, 0, 0}))
	if high.exitCode != 0 {
		t.Errorf("witness 100 exited with %d, want 0", high.exitCode)
	}
}

func TestFuzzBounds(t *testing.T) {
	s := NewSymbolicEngine(DefaultTraceLength)

	// fuzz 0 keeps values concrete
	s.fuzz = 0
	if s.fuzzLo(42) != 42 || s.fuzzUp(42) != 42 {
		t.Errorf("fuzz 0 widened 42 to [%d, %d]", s.fuzzLo(42), s.fuzzUp(42))
	}

	// fuzz 4 widens by 2^4 values in total
	s.fuzz = 4
	if s.fuzzLo(100) != 93 {
		t.Errorf("fuzzLo(100) = %d, want 93", s.fuzzLo(100))
	}
	if s.fuzzUp(100) != 108 {
		t.Errorf("fuzzUp(100) = %d, want 108", s.fuzzUp(100))
	}

	// bounds clip to the word range
	if s.fuzzLo(3) != 0 {
		t.Errorf("fuzzLo(3) = %d, want 0", s.fuzzLo(3))
	}
	if s.fuzzUp(^uint32(0)-2) != ^uint32(0) {
		t.Errorf("fuzzUp near the top did not clip")
	}

	// fuzz 32 covers everything
	s.fuzz = 32
	if s.fuzzLo(12345) != 0 || s.fuzzUp(12345) != ^uint32(0) {
		t.Error("fuzz 32 did not widen to the full range")
	}
}

func TestIntervalHelpers(t *testing.T) {
	if cardinality(5, 5) != 1 {
		t.Error("singleton cardinality is not 1")
	}
	if cardinality(0, ^uint32(0)) != 0 {
		t.Error("full range cardinality is not 0 (meaning 2^32)")
	}

	if combinedCardinality(0, 1<<31, 0, 1<<31) != 0 {
		t.Error("overflowing combination not detected")
	}
	if combinedCardinality(0, 3, 10, 13) != 8 {
		t.Errorf("combinedCardinality = %d, want 8", combinedCardinality(0, 3, 10, 13))
	}

	if isSymbolicValue(symMEMORYRANGE, 0, 100) {
		t.Error("memory range treated as symbolic")
	}
	if isSymbolicValue(symINTERVAL, 7, 7) {
		t.Error("singleton treated as symbolic")
	}
	if !isSymbolicValue(symINTERVAL, 7, 9) {
		t.Error("non-singleton interval not symbolic")
	}
}

// Loads and stores through malloc-returned pointers are checked against
// the block bounds.
func TestSymbolicSafeAddressViolation(t *testing.T) {
	b := compileString(t, `
uint32_t main() {
  uint32_t* p;

  p = malloc(4);

  *p = 1;

  *(p + 1) = 2;

  return 0;
}
`)

	cfg := LoadConfig()

	m := NewMachine(b, cfg, roundUp(cfg.TraceLength*SIZEOFUINT32, MEGABYTE)/MEGABYTE+1)

	var debugOut bytes.Buffer
	m.out = &debugOut

	m.debug = true
	m.symbolic = true
	m.sym = NewSymbolicEngine(cfg.TraceLength)

	m.execute = true
	m.resetInterpreter()

	context := m.createContext(nil, 0)

	if err := m.upLoadBinary(context); err != nil {
		t.Fatal(err)
	}
	if err := m.upLoadArguments(context, []string{b.name}); err != nil {
		t.Fatal(err)
	}

	toContext := context

	for i := 0; i < 1000000; i++ {
		fromContext := m.mipsterSwitch(toContext, cfg.Timeslice)

		if fromContext.exception == EXCEPTION_INVALIDADDRESS {
			// the out-of-bounds store was caught
			return
		}

		if m.err != nil {
			t.Fatalf("machine error instead of invalid address: %v", m.err)
		}

		if m.handleException(fromContext) == EXIT {
			t.Fatal("guest exited without an invalid address exception")
		}

		toContext = fromContext
	}

	t.Fatal("no invalid address exception")
}
