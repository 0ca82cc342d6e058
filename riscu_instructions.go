package main

import (
	"fmt"
)

// RISC-U instruction encoding
//
// RISC-U is the 14-instruction unsigned subset of 32-bit RISC-V:
// lui, addi, add, sub, mul, divu, remu, sltu, lw, sw, beq, jal, jalr,
// ecall. Instructions are fixed 32-bit little-endian words in RISC-V's
// R/I/S/B/U/J formats.

const (
	NUMBEROFREGISTERS   = 32
	NUMBEROFTEMPORARIES = 7
)

// RISC-V ABI register numbers
const (
	REG_ZR  = 0
	REG_RA  = 1
	REG_SP  = 2
	REG_GP  = 3
	REG_TP  = 4
	REG_T0  = 5
	REG_T1  = 6
	REG_T2  = 7
	REG_FP  = 8
	REG_S1  = 9
	REG_A0  = 10
	REG_A1  = 11
	REG_A2  = 12
	REG_A3  = 13
	REG_A4  = 14
	REG_A5  = 15
	REG_A6  = 16
	REG_A7  = 17
	REG_S2  = 18
	REG_S3  = 19
	REG_S4  = 20
	REG_S5  = 21
	REG_S6  = 22
	REG_S7  = 23
	REG_S8  = 24
	REG_S9  = 25
	REG_S10 = 26
	REG_S11 = 27
	REG_T3  = 28
	REG_T4  = 29
	REG_T5  = 30
	REG_T6  = 31
)

var registerNames = [NUMBEROFREGISTERS]string{
	"$zero", "$ra", "$sp", "$gp", "$tp", "$t0", "$t1", "$t2",
	"$fp", "$s1", "$a0", "$a1", "$a2", "$a3", "$a4", "$a5",
	"$a6", "$a7", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	"$s8", "$s9", "$s10", "$s11", "$t3", "$t4", "$t5", "$t6",
}

func registerName(reg uint32) string {
	return registerNames[reg]
}

// opcodes
const (
	OP_LW     = 3   // 0000011, I format (LW)
	OP_IMM    = 19  // 0010011, I format (ADDI, NOP)
	OP_SW     = 35  // 0100011, S format (SW)
	OP_OP     = 51  // 0110011, R format (ADD, SUB, MUL, DIVU, REMU, SLTU)
	OP_LUI    = 55  // 0110111, U format (LUI)
	OP_BRANCH = 99  // 1100011, B format (BEQ)
	OP_JALR   = 103 // 1100111, I format (JALR)
	OP_JAL    = 111 // 1101111, J format (JAL)
	OP_SYSTEM = 115 // 1110011, I format (ECALL)
)

// funct3 codes
const (
	F3_NOP   = 0
	F3_ADDI  = 0
	F3_ADD   = 0 // = F3_SUB = F3_MUL
	F3_DIVU  = 5
	F3_REMU  = 7
	F3_SLTU  = 3
	F3_LW    = 2
	F3_SW    = 2
	F3_BEQ   = 0
	F3_JALR  = 0
	F3_ECALL = 0
)

// funct7 codes
const (
	F7_ADD  = 0
	F7_MUL  = 1
	F7_SUB  = 32
	F7_DIVU = 1
	F7_REMU = 1
	F7_SLTU = 0
)

// funct12 codes (immediates)
const F12_ECALL = 0

// checkImmediateRange rejects immediates outside their b-bit two's
// complement range; truncating silently would corrupt fixup chains.
func checkImmediateRange(immediate, bits uint32) error {
	if !isSignedInteger(immediate, bits) {
		return fmt.Errorf("immediate %d expected between %d and %d",
			asSigned(immediate),
			asSigned(-twoToThePowerOf(bits-1)),
			asSigned(twoToThePowerOf(bits-1)-1))
	}
	return nil
}

// R format: funct7[31:25] rs2[24:20] rs1[19:15] funct3[14:12] rd[11:7] opcode[6:0]
func encodeRFormat(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	// assert: all fields in range
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func getFunct7(instruction uint32) uint32 {
	return getBits(instruction, 25, 7)
}

func getRS2(instruction uint32) uint32 {
	return getBits(instruction, 20, 5)
}

func getRS1(instruction uint32) uint32 {
	return getBits(instruction, 15, 5)
}

func getFunct3(instruction uint32) uint32 {
	return getBits(instruction, 12, 3)
}

func getRD(instruction uint32) uint32 {
	return getBits(instruction, 7, 5)
}

func getOpcode(instruction uint32) uint32 {
	return getBits(instruction, 0, 7)
}

// I format: imm[31:20] rs1[19:15] funct3[14:12] rd[11:7] opcode[6:0]
func encodeIFormat(immediate, rs1, funct3, rd, opcode uint32) (uint32, error) {
	if err := checkImmediateRange(immediate, 12); err != nil {
		return 0, err
	}
	immediate = signShrink(immediate, 12)
	return immediate<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode, nil
}

func getImmediateIFormat(instruction uint32) uint32 {
	return signExtend(getBits(instruction, 20, 12), 12)
}

// S format: imm[31:25] rs2[24:20] rs1[19:15] funct3[14:12] imm[11:7] opcode[6:0]
func encodeSFormat(immediate, rs2, rs1, funct3, opcode uint32) (uint32, error) {
	if err := checkImmediateRange(immediate, 12); err != nil {
		return 0, err
	}
	immediate = signShrink(immediate, 12)

	imm1 := getBits(immediate, 5, 7)
	imm2 := getBits(immediate, 0, 5)

	return imm1<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm2<<7 | opcode, nil
}

func getImmediateSFormat(instruction uint32) uint32 {
	imm1 := getBits(instruction, 25, 7)
	imm2 := getBits(instruction, 7, 5)

	return signExtend(imm1<<5|imm2, 12)
}

// B format: imm[12|10:5] rs2 rs1 funct3 imm[4:1|11] opcode.
// The LSB of the immediate is dropped; branch targets are even.
func encodeBFormat(immediate, rs2, rs1, funct3, opcode uint32) (uint32, error) {
	if err := checkImmediateRange(immediate, 13); err != nil {
		return 0, err
	}
	immediate = signShrink(immediate, 13)

	imm1 := getBits(immediate, 12, 1)
	imm2 := getBits(immediate, 5, 6)
	imm3 := getBits(immediate, 1, 4)
	imm4 := getBits(immediate, 11, 1)

	return imm1<<31 | imm2<<25 | rs2<<20 | rs1<<15 | funct3<<12 | imm3<<8 | imm4<<7 | opcode, nil
}

func getImmediateBFormat(instruction uint32) uint32 {
	imm1 := getBits(instruction, 31, 1)
	imm2 := getBits(instruction, 25, 6)
	imm3 := getBits(instruction, 8, 4)
	imm4 := getBits(instruction, 7, 1)

	// reassemble immediate and add the trailing zero back
	return signExtend((imm1<<11|imm4<<10|imm2<<4|imm3)<<1, 13)
}

// J format: imm[20|10:1|11|19:12] rd opcode. LSB dropped as in B format.
func encodeJFormat(immediate, rd, opcode uint32) (uint32, error) {
	if err := checkImmediateRange(immediate, 21); err != nil {
		return 0, err
	}
	immediate = signShrink(immediate, 21)

	imm1 := getBits(immediate, 20, 1)
	imm2 := getBits(immediate, 1, 10)
	imm3 := getBits(immediate, 11, 1)
	imm4 := getBits(immediate, 12, 8)

	return imm1<<31 | imm2<<21 | imm3<<20 | imm4<<12 | rd<<7 | opcode, nil
}

func getImmediateJFormat(instruction uint32) uint32 {
	imm1 := getBits(instruction, 31, 1)
	imm2 := getBits(instruction, 21, 10)
	imm3 := getBits(instruction, 20, 1)
	imm4 := getBits(instruction, 12, 8)

	return signExtend((imm1<<19|imm4<<11|imm3<<10|imm2)<<1, 21)
}

// U format: imm[31:12] rd opcode
func encodeUFormat(immediate, rd, opcode uint32) (uint32, error) {
	if err := checkImmediateRange(immediate, 20); err != nil {
		return 0, err
	}
	immediate = signShrink(immediate, 20)

	return immediate<<12 | rd<<7 | opcode, nil
}

func getImmediateUFormat(instruction uint32) uint32 {
	return signExtend(getBits(instruction, 12, 20), 20)
}
