package main

import (
	"encoding/binary"
	"os"
)

// A minimal ELF32 little-endian ET_EXEC image: a 52-byte file header and
// one 32-byte PT_LOAD program header, emitted verbatim and byte-compared
// on load. The file continues with a 4-byte code length followed by the
// code and data segments.

const ELF_HEADER_LEN = 84 // = 52 + 32 bytes (file + program header)

const PAGESIZE = 4096

// createELFHeader builds the header as 21 little-endian words.
func createELFHeader(binaryLength uint32) [ELF_HEADER_LEN / SIZEOFUINT32]uint32 {
	var header [ELF_HEADER_LEN / SIZEOFUINT32]uint32

	// ELF32 file header:
	header[0] = 127 + // magic number part 0 is 0x7F
		uint32('E')<<8 +
		uint32('L')<<16 +
		uint32('F')<<24
	header[1] = 1 + // file class is ELFCLASS32
		1<<8 + // object file data structures endianness is ELFDATA2LSB
		1<<16 // version of the object file format
	header[2] = 0 // ABI version and start of padding bytes
	header[3] = 0 // more padding bytes
	header[4] = 2 + // object file type is ET_EXEC
		243<<16 // target architecture is RV32
	header[5] = 1                              // version of the object file format
	header[6] = ELF_ENTRY_POINT                // entry point address
	header[7] = 13 * SIZEOFUINT32              // program header offset
	header[8] = 0                              // section header offset
	header[9] = 0                              // flags
	header[10] = 13*SIZEOFUINT32 +             // elf header size
		8*SIZEOFUINT32<<16 // size of program header entry
	header[11] = 1 // number of program header entries
	header[12] = 0 // number of section header entries

	// program header table:
	header[13] = 1                             // type of segment is LOAD
	header[14] = ELF_HEADER_LEN + SIZEOFUINT32 // segment offset in file
	header[15] = ELF_ENTRY_POINT               // virtual address in memory
	header[16] = 0                             // physical address (reserved)
	header[17] = binaryLength                  // size of segment in file
	header[18] = binaryLength                  // size of segment in memory
	header[19] = 7                             // segment attributes is RWX
	header[20] = PAGESIZE                      // alignment of segment

	return header
}

// validateELFHeader byte-compares the header against a freshly built
// template for the claimed binary length and returns the entry point and
// length on success.
func validateELFHeader(header [ELF_HEADER_LEN / SIZEOFUINT32]uint32) (entryPoint, binaryLength uint32, ok bool) {
	newEntryPoint := header[15]
	newBinaryLength := header[17]

	if newBinaryLength != header[18] {
		// segment size in file is not the same as segment size in memory
		return 0, 0, false
	}

	if newEntryPoint > VIRTUALMEMORYSIZE-PAGESIZE-newBinaryLength {
		// binary does not fit into virtual address space
		return 0, 0, false
	}

	validHeader := createELFHeader(newBinaryLength)

	for position := range header {
		if header[position] != validHeader[position] {
			return 0, 0, false
		}
	}

	return newEntryPoint, newBinaryLength, true
}

func headerBytes(header [ELF_HEADER_LEN / SIZEOFUINT32]uint32) []byte {
	buf := make([]byte, ELF_HEADER_LEN)
	for i, word := range header {
		binary.LittleEndian.PutUint32(buf[i*SIZEOFUINT32:], word)
	}
	return buf
}

// WriteFile emits the binary: ELF header, 4-byte code length, code+data.
func (b *Binary) WriteFile(name string) error {
	if b.length == 0 {
		reportf("nothing to emit to output file %s", name)
		return nil
	}

	buf := make([]byte, 0, ELF_HEADER_LEN+SIZEOFUINT32+int(b.length))
	buf = append(buf, headerBytes(createELFHeader(b.length))...)

	var word [SIZEOFUINT32]byte
	binary.LittleEndian.PutUint32(word[:], b.codeLength)
	buf = append(buf, word[:]...)

	for baddr := uint32(0); baddr < b.length; baddr += WORDSIZE {
		binary.LittleEndian.PutUint32(word[:], b.words[baddr/WORDSIZE])
		buf = append(buf, word[:]...)
	}

	if err := os.WriteFile(name, buf, 0644); err != nil {
		return exitError(EXITCODE_IOERROR, "could not create binary output file %s", name)
	}

	reportf("%d bytes with %d instructions and %d bytes of data written into %s",
		ELF_HEADER_LEN+SIZEOFUINT32+b.length, b.instructions(), b.dataLength(), name)

	return nil
}

// LoadFile reads a binary back, rejecting anything whose header deviates
// from the emitted template or whose length disagrees with the file size.
func LoadFile(name string) (*Binary, error) {
	buf, err := os.ReadFile(name)
	if err != nil {
		return nil, exitError(EXITCODE_IOERROR, "could not open input file %s", name)
	}

	loadError := exitError(EXITCODE_IOERROR, "failed to load code from input file %s", name)

	if len(buf) < ELF_HEADER_LEN+SIZEOFUINT32 {
		return nil, loadError
	}

	var header [ELF_HEADER_LEN / SIZEOFUINT32]uint32
	for i := range header {
		header[i] = binary.LittleEndian.Uint32(buf[i*SIZEOFUINT32:])
	}

	entryPoint, binaryLength, ok := validateELFHeader(header)
	if !ok {
		return nil, loadError
	}

	codeLength := binary.LittleEndian.Uint32(buf[ELF_HEADER_LEN:])

	if binaryLength > MAX_BINARY_LENGTH {
		return nil, loadError
	}
	if uint32(len(buf)) != ELF_HEADER_LEN+SIZEOFUINT32+binaryLength {
		return nil, loadError
	}
	if codeLength > binaryLength {
		return nil, loadError
	}

	b := &Binary{
		words:      make([]uint32, MAX_BINARY_LENGTH/WORDSIZE),
		length:     binaryLength,
		codeLength: codeLength,
		entryPoint: entryPoint,
		name:       name,
		// no source line numbers in binaries
	}

	for baddr := uint32(0); baddr < binaryLength; baddr += WORDSIZE {
		b.words[baddr/WORDSIZE] = binary.LittleEndian.Uint32(buf[ELF_HEADER_LEN+SIZEOFUINT32+baddr:])
	}

	reportf("%d bytes with %d instructions and %d bytes of data loaded from %s",
		ELF_HEADER_LEN+SIZEOFUINT32+binaryLength, codeLength/INSTRUCTIONSIZE, binaryLength-codeLength, name)

	return b, nil
}
