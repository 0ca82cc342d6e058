package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// The driver reads a sequence of options; each one either operates on the
// state built so far (compile, emit, disassemble, load, SAT-solve) or
// starts execution under one of the machine personalities.

type Driver struct {
	cfg  Config
	args []string

	binary *Binary
}

func (d *Driver) remaining() int {
	return len(d.args)
}

func (d *Driver) peekArgument() string {
	if len(d.args) > 0 {
		return d.args[0]
	}
	return ""
}

func (d *Driver) getArgument() string {
	argument := d.peekArgument()
	if len(d.args) > 0 {
		d.args = d.args[1:]
	}
	return argument
}

func (d *Driver) setArgument(argument string) {
	d.args[0] = argument
}

func printUsage() {
	fmt.Printf("%s: usage: %s { %s } [ %s ]\n", toolName, toolName,
		"-c { source } | -o binary | [ -s | -S ] assembly | -l binary | -sat dimacs",
		"( -m | -d | -r | -n | -y | -min | -mob ) 0-32 ...")
}

// atoui parses a decimal argument the strict way: anything else is a
// usage error.
func atoui(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, exitError(EXITCODE_BADARGUMENTS, "cannot convert number %s", s)
	}
	return uint32(n), nil
}

func exitCodeOf(err error) int {
	if exit, ok := err.(*ExitError); ok {
		return exit.Code
	}
	return EXITCODE_IOERROR
}

// compile consumes source names up to the next option and compiles them
// into the in-memory binary.
func (d *Driver) compile() error {
	var sources []string

	for d.remaining() > 0 && !strings.HasPrefix(d.peekArgument(), "-") {
		sources = append(sources, d.getArgument())
	}

	binary, err := NewCompiler(d.cfg).Compile(sources, os.ReadFile)
	if err != nil {
		return err
	}

	d.binary = binary

	return nil
}

// run executes the current binary under the chosen machine personality
// and returns the process exit code.
func (d *Driver) run(kind int) int {
	if d.binary == nil || d.binary.length == 0 {
		reportf("nothing to run, debug, or host")
		return EXITCODE_BADARGUMENTS
	}

	var megabytes, fuzz uint32

	if kind == MONSTER {
		// the trace dominates memory use; size the page pool after it
		megabytes = roundUp(d.cfg.TraceLength*SIZEOFUINT32, MEGABYTE)/MEGABYTE + 1

		f, err := atoui(d.peekArgument())
		if err != nil {
			errorf("%s", err)
			return EXITCODE_BADARGUMENTS
		}
		fuzz = f
	} else {
		mb, err := atoui(d.peekArgument())
		if err != nil {
			errorf("%s", err)
			return EXITCODE_BADARGUMENTS
		}
		megabytes = mb
	}

	m := NewMachine(d.binary, d.cfg, megabytes)

	switch kind {
	case DIPSTER:
		m.debug = true
		m.disassemble = true
	case RIPSTER:
		m.debug = true
		m.record = true

		m.replay = NewReplayEngine(d.cfg.ReplayLength)
	case MONSTER:
		m.debug = true
		m.symbolic = true

		m.sym = NewSymbolicEngine(d.cfg.TraceLength)
		m.sym.fuzz = fuzz
	}

	m.execute = true

	m.resetInterpreter()

	context := m.createContext(nil, 0)

	if err := m.upLoadBinary(context); err != nil {
		errorf("%s", err)
		return exitCodeOf(err)
	}

	// pass the binary name as first guest argument by replacing the
	// memory size (or fuzz factor)
	d.setArgument(d.binary.name)

	if err := m.upLoadArguments(context, d.args); err != nil {
		errorf("%s", err)
		return exitCodeOf(err)
	}

	reportf("executing %s with %dMB physical memory on", d.binary.name, m.pa.budget/MEGABYTE)

	var exitCode uint32

	switch kind {
	case MIPSTER, DIPSTER, RIPSTER:
		exitCode = m.mipster(context)
	case MONSTER:
		exitCode = m.monster(context)
	case MINSTER:
		exitCode = m.minster(context)
	case MOBSTER:
		exitCode = m.mobster(context)
	case HYPSTER:
		// a host process is always boot level zero; real hypsters only
		// exist as guests using the switch syscall
		exitCode = m.mipster(context)
	default:
		exitCode = m.mixter(context, 50)
	}

	m.execute = false

	if m.err != nil {
		errorf("%s", m.err)

		return exitCodeOf(m.err)
	}

	reportf("terminating %s with exit code %d", context.name, asSigned(exitCode))

	m.printProfile()

	return int(exitCode & 0xFF)
}

func Main(arguments []string) int {
	toolName = arguments[0]

	d := &Driver{
		cfg:  LoadConfig(),
		args: arguments[1:],
	}

	if d.remaining() == 0 {
		printUsage()
		return EXITCODE_NOERROR
	}

	for d.remaining() > 0 {
		option := d.getArgument()

		if option == "-c" {
			if err := d.compile(); err != nil {
				return exitCodeOf(err)
			}
		} else if d.remaining() == 0 {
			// remaining options have at least one argument
			printUsage()

			return EXITCODE_BADARGUMENTS
		} else {
			switch option {
			case "-o":
				name := d.getArgument()
				if d.binary == nil {
					reportf("nothing to emit to output file %s", name)
				} else if err := d.binary.WriteFile(name); err != nil {
					errorf("%s", err)
					return exitCodeOf(err)
				}
			case "-s", "-S":
				name := d.getArgument()
				if d.binary == nil {
					reportf("nothing to disassemble to output file %s", name)
				} else if err := DisassembleBinary(d.binary, name, option == "-S", d.cfg); err != nil {
					errorf("%s", err)
					return exitCodeOf(err)
				}
			case "-l":
				binary, err := LoadFile(d.getArgument())
				if err != nil {
					errorf("%s", err)
					return exitCodeOf(err)
				}
				d.binary = binary
			case "-sat":
				if err := RunSAT(d.getArgument()); err != nil {
					return exitCodeOf(err)
				}
			case "-m":
				return d.run(MIPSTER)
			case "-d":
				return d.run(DIPSTER)
			case "-r":
				return d.run(RIPSTER)
			case "-n":
				return d.run(MONSTER)
			case "-y":
				return d.run(HYPSTER)
			case "-min":
				return d.run(MINSTER)
			case "-mob":
				return d.run(MOBSTER)
			default:
				printUsage()

				return EXITCODE_BADARGUMENTS
			}
		}
	}

	return EXITCODE_NOERROR
}

func main() {
	os.Exit(Main(os.Args))
}
