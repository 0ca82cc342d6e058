package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// The disassembler shares the decoder and the per-instruction printers
// with the emulator: a machine in disassemble mode without execute walks
// the code segment, then dumps the data segment as .word lines.

type countingWriter struct {
	w io.Writer
	n uint32
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint32(n)
	return n, err
}

func (m *Machine) printDataContext(data uint32) {
	fmt.Fprintf(m.out, "%s", hexString(m.pc))

	if m.disassembleVerbose {
		if m.b.dataLineNumber != nil {
			fmt.Fprintf(m.out, "(~%d)", m.b.dataLineNumber[(m.pc-m.b.codeLength)/REGISTERSIZE])
		}
		fmt.Fprintf(m.out, ": 0x%08X ", data)
	} else {
		fmt.Fprint(m.out, ": ")
	}
}

func (m *Machine) printData(data uint32) {
	m.printDataContext(data)
	fmt.Fprintf(m.out, ".word %s", hexString(data))
}

// DisassembleBinary writes the binary's assembly to the named file,
// verbosely with source line numbers and raw words when requested.
func DisassembleBinary(b *Binary, name string, verbose bool, cfg Config) error {
	if b.codeLength == 0 {
		reportf("nothing to disassemble to output file %s", name)
		return nil
	}

	file, err := os.Create(name)
	if err != nil {
		return exitError(EXITCODE_IOERROR, "could not create assembly output file %s", name)
	}
	defer file.Close()

	buffered := bufio.NewWriter(file)
	out := &countingWriter{w: buffered}

	m := NewMachine(b, cfg, 0)
	m.out = out

	m.debug = true
	m.disassemble = true
	m.disassembleVerbose = verbose

	for m.pc = 0; m.pc < b.codeLength; m.pc += INSTRUCTIONSIZE {
		m.ir = b.loadInstruction(m.pc)

		m.decodeExecute()

		if m.err != nil {
			return m.err
		}
	}

	for ; m.pc < b.length; m.pc += REGISTERSIZE {
		m.printData(b.loadData(m.pc))
		fmt.Fprintln(m.out)
	}

	if err := buffered.Flush(); err != nil {
		return exitError(EXITCODE_IOERROR, "could not write assembly output file %s", name)
	}

	reportf("%d characters of assembly with %d instructions and %d bytes of data written into %s",
		out.n, b.instructions(), b.dataLength(), name)

	return nil
}
