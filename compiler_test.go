package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// compileFiles compiles and links the given testdata sources.
func compileFiles(t *testing.T, names ...string) *Binary {
	t.Helper()

	var paths []string
	for _, name := range names {
		paths = append(paths, filepath.Join("testdata", name))
	}

	b, err := NewCompiler(LoadConfig()).Compile(paths, os.ReadFile)
	if err != nil {
		t.Fatalf("compiling %v failed: %v", names, err)
	}

	return b
}

// compileString compiles one in-memory source.
func compileString(t *testing.T, source string) *Binary {
	t.Helper()

	b, err := NewCompiler(LoadConfig()).Compile([]string{"test.c"}, func(string) ([]byte, error) {
		return []byte(source), nil
	})
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}

	return b
}

type runResult struct {
	exitCode uint32
	stdout   string // what the guest wrote to file descriptor 1
	debug    string // disassembly and scheduler output
	machine  *Machine
}

// runUnder executes a binary under the given machine personality with the
// given guest stdin.
func runUnder(t *testing.T, b *Binary, kind int, stdin string, args ...string) runResult {
	t.Helper()

	cfg := LoadConfig()

	megabytes := uint32(64)
	if kind == MONSTER {
		megabytes = roundUp(cfg.TraceLength*SIZEOFUINT32, MEGABYTE)/MEGABYTE + 1
	}

	m := NewMachine(b, cfg, megabytes)

	var guestOut, debugOut bytes.Buffer

	m.files[0].reader = strings.NewReader(stdin)
	m.files[1].writer = &guestOut
	m.out = &debugOut

	switch kind {
	case DIPSTER:
		m.debug = true
		m.disassemble = true
	case RIPSTER:
		m.debug = true
		m.record = true

		m.replay = NewReplayEngine(cfg.ReplayLength)
	case MONSTER:
		m.debug = true
		m.symbolic = true

		m.sym = NewSymbolicEngine(cfg.TraceLength)
	}

	m.execute = true

	m.resetInterpreter()

	context := m.createContext(nil, 0)

	if err := m.upLoadBinary(context); err != nil {
		t.Fatalf("loading binary failed: %v", err)
	}

	if err := m.upLoadArguments(context, append([]string{b.name}, args...)); err != nil {
		t.Fatalf("loading arguments failed: %v", err)
	}

	var exitCode uint32

	switch kind {
	case MONSTER:
		exitCode = m.monster(context)
	case MINSTER:
		exitCode = m.minster(context)
	case MOBSTER:
		exitCode = m.mobster(context)
	default:
		exitCode = m.mipster(context)
	}

	if m.err != nil {
		t.Fatalf("machine error: %v", m.err)
	}

	return runResult{exitCode, guestOut.String(), debugOut.String(), m}
}

func TestCountdown(t *testing.T) {
	b := compileFiles(t, "countdown.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("countdown exited with %d, want 0", result.exitCode)
	}
	if result.stdout != "" {
		t.Errorf("countdown produced output %q, want none", result.stdout)
	}
}

func TestHelloWorld(t *testing.T) {
	b := compileFiles(t, "hello-world.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("hello-world exited with %d, want 0", result.exitCode)
	}
	if result.stdout != "Hello World!    " {
		t.Errorf("hello-world printed %q", result.stdout)
	}
}

func TestInteger(t *testing.T) {
	b := compileFiles(t, "integer.c", "libcstar.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("integer exited with %d, want 0", result.exitCode)
	}

	for _, line := range []string{
		"85 in decimal:     85",
		"'U' in ASCII:      85",
		"\"85\" string:       85",
		"85 in hexadecimal: 0x55",
		"85 in octal:       00125",
		"85 in binary:      1010101",
	} {
		if !strings.Contains(result.stdout, line) {
			t.Errorf("integer output is missing %q:\n%s", line, result.stdout)
		}
	}
}

func TestNegative(t *testing.T) {
	b := compileFiles(t, "negative.c", "libcstar.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("negative exited with %d, want 0", result.exitCode)
	}

	for _, line := range []string{
		"-85 in decimal:     -85",
		"-85 in hexadecimal: 0xFFFFFFAB",
		"UINT32_MAX in decimal:     -1",
		" INT32_MAX in decimal:     2147483647",
		" INT32_MIN in decimal:     -2147483648",
		" INT32_MIN in hexadecimal: 0x80000000",
	} {
		if !strings.Contains(result.stdout, line) {
			t.Errorf("negative output is missing %q:\n%s", line, result.stdout)
		}
	}
}

func TestBitwise(t *testing.T) {
	b := compileFiles(t, "bitwise.c", "libcstar.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("bitwise exited with %d, want 0", result.exitCode)
	}

	for _, line := range []string{
		"00000000000000000000000000000011 in binary = 3 in decimal",
		"00000000000000000000000011000000 in binary = 192 in decimal",
		"00000000000011000000000000000000 in binary = 786432 in decimal",
		"11000000000000000000000000000000 in binary = -1073741824 in decimal",
		"11000011000011000011000011000011 in binary = -1022611261 in decimal",
	} {
		if !strings.Contains(result.stdout, line) {
			t.Errorf("bitwise output is missing %q:\n%s", line, result.stdout)
		}
	}
}

func TestQuine(t *testing.T) {
	source, err := os.ReadFile(filepath.Join("testdata", "quine.c"))
	if err != nil {
		t.Fatal(err)
	}

	b := compileFiles(t, "quine.c", "libcstar.c")

	result := runUnder(t, b, MIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("quine exited with %d, want 0", result.exitCode)
	}

	want := strings.TrimRight(string(source), "\n")
	got := strings.TrimRight(result.stdout, "\n")

	if got != want {
		t.Errorf("quine did not reproduce its source:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestDipsterDisassemblesWhileExecuting(t *testing.T) {
	b := compileFiles(t, "countdown.c")

	result := runUnder(t, b, DIPSTER, "")

	if result.exitCode != 0 {
		t.Errorf("dipster exited with %d, want 0", result.exitCode)
	}
	for _, mnemonic := range []string{"addi", "beq", "jal", "ecall", "(exit):"} {
		if !strings.Contains(result.debug, mnemonic) {
			t.Errorf("dipster trace is missing %q", mnemonic)
		}
	}
}

func TestComparisonsCompileToSLTU(t *testing.T) {
	b := compileString(t, `
uint32_t main() {
  uint32_t x;
  x = 1;
  if (x < 2)
    if (x <= 2)
      if (x > 0)
        if (x >= 1)
          if (x == 1)
            if (x != 2)
              return 0;
  return 1;
}
`)

	sltu := uint32(0)
	for baddr := uint32(0); baddr < b.codeLength; baddr += INSTRUCTIONSIZE {
		ir := b.loadInstruction(baddr)
		if getOpcode(ir) == OP_OP && getFunct3(ir) == F3_SLTU && getFunct7(ir) == F7_SLTU {
			sltu++
		}
	}

	if sltu < 6 {
		t.Errorf("expected at least 6 sltu instructions, found %d", sltu)
	}

	result := runUnder(t, b, MIPSTER, "")
	if result.exitCode != 0 {
		t.Errorf("comparison chain exited with %d, want 0", result.exitCode)
	}
}

func TestPointerArithmeticScalesByWordSize(t *testing.T) {
	b := compileString(t, `
uint32_t main() {
  uint32_t* p;
  uint32_t* q;
  p = malloc(16);
  *p = 7;
  *(p + 1) = 11;
  *(p + 2) = 13;
  q = p + 3;
  *q = 17;
  if (*(p + 1) != 11)
    return 1;
  if (*(p + 2) != 13)
    return 2;
  if (*(p + 3) != 17)
    return 3;
  if (q - p != 3)
    return 4;
  return 0;
}
`)

	result := runUnder(t, b, MIPSTER, "")
	if result.exitCode != 0 {
		t.Errorf("pointer arithmetic exited with %d, want 0", result.exitCode)
	}
}

func TestProcedureCallsAndRecursion(t *testing.T) {
	b := compileString(t, `
uint32_t fib(uint32_t n);

uint32_t fib(uint32_t n) {
  if (n < 2)
    return n;
  return fib(n - 1) + fib(n - 2);
}

uint32_t main() {
  return fib(10);
}
`)

	result := runUnder(t, b, MIPSTER, "")
	if result.exitCode != 55 {
		t.Errorf("fib(10) exited with %d, want 55", result.exitCode)
	}
}

func TestForwardCallFixupChain(t *testing.T) {
	// helper is called before it is defined: the call sites form a fixup
	// chain that must be resolved at the definition
	b := compileString(t, `
uint32_t main() {
  uint32_t a;
  uint32_t b;
  a = double(7);
  b = double(9);
  return a + b;
}

uint32_t double(uint32_t n) {
  return 2 * n;
}
`)

	result := runUnder(t, b, MIPSTER, "")
	if result.exitCode != 32 {
		t.Errorf("forward calls exited with %d, want 32", result.exitCode)
	}
}

func TestUndefinedProcedureExitsZero(t *testing.T) {
	// a binary with undefined procedures skips the main call and exits 0
	b := compileString(t, `
uint32_t missing(uint32_t n);

uint32_t main() {
  return missing(1);
}
`)

	result := runUnder(t, b, MIPSTER, "")
	if result.exitCode != 0 {
		t.Errorf("binary with undefined procedure exited with %d, want 0", result.exitCode)
	}
}

func TestGuestArguments(t *testing.T) {
	// argc is reachable through the argv pointer pushed by the entry stub
	b := compileString(t, `
uint32_t main(uint32_t argc, uint32_t* argv) {
  return argc;
}
`)

	result := runUnder(t, b, MIPSTER, "", "one", "two")
	if result.exitCode != 3 {
		t.Errorf("argc was %d, want 3", result.exitCode)
	}
}

func TestCompileDriverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	binaryFile := filepath.Join(dir, "countdown.m")

	code := Main([]string{"minic", "-c", filepath.Join("testdata", "countdown.c"), "-o", binaryFile})
	if code != EXITCODE_NOERROR {
		t.Fatalf("compile and emit returned %d", code)
	}

	code = Main([]string{"minic", "-l", binaryFile, "-m", "64"})
	if code != 0 {
		t.Errorf("loaded countdown exited with %d, want 0", code)
	}
}

func TestMainBadArguments(t *testing.T) {
	if code := Main([]string{"minic", "-x"}); code != EXITCODE_BADARGUMENTS {
		t.Errorf("unknown option returned %d, want %d", code, EXITCODE_BADARGUMENTS)
	}
	if code := Main([]string{"minic", "-o"}); code != EXITCODE_BADARGUMENTS {
		t.Errorf("missing option argument returned %d, want %d", code, EXITCODE_BADARGUMENTS)
	}
}

func TestScannerErrorExitCode(t *testing.T) {
	_, err := NewCompiler(LoadConfig()).Compile([]string{"bad.c"}, func(string) ([]byte, error) {
		return []byte("uint32_t x = 4294967296;"), nil
	})

	exit, ok := err.(*ExitError)
	if !ok {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exit.Code != EXITCODE_SCANNERERROR {
		t.Errorf("integer overflow returned %d, want %d", exit.Code, EXITCODE_SCANNERERROR)
	}
}
