package main

import (
	"testing"
)

// Encoder round-trip: decoding an encoded instruction yields the original
// fields for every format.

func TestRFormatRoundTrip(t *testing.T) {
	ir := encodeRFormat(F7_SUB, REG_T1, REG_T0, F3_ADD, REG_T2, OP_OP)

	if getFunct7(ir) != F7_SUB {
		t.Errorf("funct7 = %d", getFunct7(ir))
	}
	if getRS2(ir) != REG_T1 {
		t.Errorf("rs2 = %d", getRS2(ir))
	}
	if getRS1(ir) != REG_T0 {
		t.Errorf("rs1 = %d", getRS1(ir))
	}
	if getFunct3(ir) != F3_ADD {
		t.Errorf("funct3 = %d", getFunct3(ir))
	}
	if getRD(ir) != REG_T2 {
		t.Errorf("rd = %d", getRD(ir))
	}
	if getOpcode(ir) != OP_OP {
		t.Errorf("opcode = %d", getOpcode(ir))
	}
}

func TestIFormatRoundTrip(t *testing.T) {
	for _, imm := range []int32{-2048, -1, 0, 1, 42, 2047} {
		ir, err := encodeIFormat(uint32(imm), REG_SP, F3_ADDI, REG_T0, OP_IMM)
		if err != nil {
			t.Fatalf("encoding immediate %d failed: %v", imm, err)
		}

		if got := asSigned(getImmediateIFormat(ir)); got != imm {
			t.Errorf("immediate %d decoded as %d", imm, got)
		}
		if getRS1(ir) != REG_SP || getRD(ir) != REG_T0 || getOpcode(ir) != OP_IMM {
			t.Errorf("fields lost for immediate %d", imm)
		}
	}
}

func TestSFormatRoundTrip(t *testing.T) {
	for _, imm := range []int32{-2048, -4, 0, 4, 2047} {
		ir, err := encodeSFormat(uint32(imm), REG_T1, REG_SP, F3_SW, OP_SW)
		if err != nil {
			t.Fatalf("encoding immediate %d failed: %v", imm, err)
		}

		if got := asSigned(getImmediateSFormat(ir)); got != imm {
			t.Errorf("immediate %d decoded as %d", imm, got)
		}
		if getRS2(ir) != REG_T1 || getRS1(ir) != REG_SP {
			t.Errorf("fields lost for immediate %d", imm)
		}
	}
}

func TestBFormatRoundTrip(t *testing.T) {
	for _, imm := range []int32{-4096, -8, -4, 0, 4, 8, 4094} {
		ir, err := encodeBFormat(uint32(imm), REG_T1, REG_T0, F3_BEQ, OP_BRANCH)
		if err != nil {
			t.Fatalf("encoding immediate %d failed: %v", imm, err)
		}

		if got := asSigned(getImmediateBFormat(ir)); got != imm {
			t.Errorf("immediate %d decoded as %d", imm, got)
		}
	}
}

func TestJFormatRoundTrip(t *testing.T) {
	for _, imm := range []int32{-1048576, -4096, -4, 0, 4, 4096, 1048574} {
		ir, err := encodeJFormat(uint32(imm), REG_RA, OP_JAL)
		if err != nil {
			t.Fatalf("encoding immediate %d failed: %v", imm, err)
		}

		if got := asSigned(getImmediateJFormat(ir)); got != imm {
			t.Errorf("immediate %d decoded as %d", imm, got)
		}
		if getRD(ir) != REG_RA {
			t.Errorf("rd lost for immediate %d", imm)
		}
	}
}

func TestUFormatRoundTrip(t *testing.T) {
	for _, imm := range []int32{-524288, -1, 0, 1, 524287} {
		ir, err := encodeUFormat(uint32(imm), REG_GP, OP_LUI)
		if err != nil {
			t.Fatalf("encoding immediate %d failed: %v", imm, err)
		}

		if got := asSigned(getImmediateUFormat(ir)); got != imm {
			t.Errorf("immediate %d decoded as %d", imm, got)
		}
	}
}

// Out-of-range immediates must fail encoding, not silently truncate.
func TestImmediateRangeChecks(t *testing.T) {
	if _, err := encodeIFormat(2048, REG_ZR, F3_ADDI, REG_T0, OP_IMM); err == nil {
		t.Error("I-format accepted immediate 2048")
	}
	if _, err := encodeIFormat(^uint32(2048), REG_ZR, F3_ADDI, REG_T0, OP_IMM); err == nil {
		t.Error("I-format accepted immediate -2049")
	}
	if _, err := encodeSFormat(2048, REG_T0, REG_SP, F3_SW, OP_SW); err == nil {
		t.Error("S-format accepted immediate 2048")
	}
	if _, err := encodeBFormat(4096, REG_T0, REG_T1, F3_BEQ, OP_BRANCH); err == nil {
		t.Error("B-format accepted immediate 4096")
	}
	if _, err := encodeJFormat(1048576, REG_RA, OP_JAL); err == nil {
		t.Error("J-format accepted immediate 1048576")
	}
	if _, err := encodeUFormat(524288, REG_GP, OP_LUI); err == nil {
		t.Error("U-format accepted immediate 524288")
	}
}

// Sign-shrink / sign-extend round-trip over every bit width.
func TestSignExtendShrinkRoundTrip(t *testing.T) {
	for b := uint32(1); b < CPUBITWIDTH; b++ {
		values := []uint32{
			-twoToThePowerOf(b - 1), // most negative
			^uint32(0),
			0,
			twoToThePowerOf(b-1) - 1, // most positive
		}
		if b == 1 {
			values = []uint32{^uint32(0), 0}
		}

		for _, n := range values {
			if got := signExtend(signShrink(n, b), b); got != n {
				t.Errorf("b=%d: signExtend(signShrink(%d)) = %d", b, asSigned(n), asSigned(got))
			}
		}
	}
}

func TestGetBits(t *testing.T) {
	n := uint32(0xDEADBEEF)

	if got := getBits(n, 0, 8); got != 0xEF {
		t.Errorf("low byte = %#x", got)
	}
	if got := getBits(n, 24, 8); got != 0xDE {
		t.Errorf("high byte = %#x", got)
	}
	if got := getBits(n, 0, 32); got != n {
		t.Errorf("full word = %#x", got)
	}
	if got := getBits(n, 12, 20); got != 0xDEADB {
		t.Errorf("upper 20 = %#x", got)
	}
}

func TestSignedLessThan(t *testing.T) {
	if !signedLessThan(^uint32(0), 0) {
		t.Error("-1 < 0 is false")
	}
	if signedLessThan(0, ^uint32(0)) {
		t.Error("0 < -1 is true")
	}
	if !signedLessThan(twoToThePowerOf(31), twoToThePowerOf(31)-1) {
		t.Error("INT32_MIN < INT32_MAX is false")
	}
}
