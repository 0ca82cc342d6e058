package main

// Word-level helpers shared by the compiler, the encoders, and the machine.
// Machine words are unsigned 32-bit; signedness is reintroduced locally
// where an instruction or a diagnostic needs it.

const CPUBITWIDTH = 32

const (
	SIZEOFUINT32    = 4
	REGISTERSIZE    = 4
	INSTRUCTIONSIZE = 4
	WORDSIZE        = 4
)

// powerOfTwoTable is immutable after initialization, the one legitimately
// process-global piece of state.
var powerOfTwoTable [CPUBITWIDTH]uint32

func init() {
	powerOfTwoTable[0] = 1
	for i := 1; i < CPUBITWIDTH; i++ {
		powerOfTwoTable[i] = powerOfTwoTable[i-1] * 2
	}
}

func twoToThePowerOf(p uint32) uint32 {
	// assert: 0 <= p < CPUBITWIDTH
	return powerOfTwoTable[p]
}

// getBits returns b bits of n starting at bit i.
func getBits(n, i, b uint32) uint32 {
	// assert: 0 < b <= i + b <= CPUBITWIDTH
	if i == 0 {
		if b == CPUBITWIDTH {
			return n
		}
		return n % twoToThePowerOf(b)
	}
	return (n << (CPUBITWIDTH - (i + b))) >> (CPUBITWIDTH - b)
}

// isSignedInteger reports whether n, read as a two's-complement word,
// fits into b bits.
func isSignedInteger(n, b uint32) bool {
	// assert: 0 < b <= CPUBITWIDTH
	if b == CPUBITWIDTH {
		return true
	}
	if n < twoToThePowerOf(b-1) {
		return true
	}
	return n >= -twoToThePowerOf(b-1)
}

// signExtend widens the b-bit value n to a full word.
func signExtend(n, b uint32) uint32 {
	// assert: 0 <= n < 2^b, 0 < b < CPUBITWIDTH
	if n < twoToThePowerOf(b-1) {
		return n
	}
	return n - twoToThePowerOf(b)
}

// signShrink narrows the word n to its b low bits.
func signShrink(n, b uint32) uint32 {
	// assert: -2^(b-1) <= n < 2^(b-1), 0 < b < CPUBITWIDTH
	return getBits(n, 0, b)
}

// signedLessThan compares two words as two's-complement integers by
// shifting both into the unsigned order.
func signedLessThan(a, b uint32) bool {
	return a+twoToThePowerOf(CPUBITWIDTH-1) < b+twoToThePowerOf(CPUBITWIDTH-1)
}

func asSigned(n uint32) int32 {
	return int32(n)
}

func roundUp(n, m uint32) uint32 {
	if n%m == 0 {
		return n
	}
	return n - n%m + m
}

// fixedPointRatio computes a/b scaled by 10^f without wrapping around.
func fixedPointRatio(a, b, f uint32) uint32 {
	p := f
	for p > 0 {
		if a <= (1<<32-1)/tenToThePowerOf(p) {
			if b/tenToThePowerOf(f-p) != 0 {
				return (a * tenToThePowerOf(p)) / (b / tenToThePowerOf(f-p))
			}
		}
		p = p - 1
	}
	return 0
}

func fixedPointPercentage(r, f uint32) uint32 {
	if r != 0 {
		// 10^4 (for 100.00%) times 10^f for the f fractional digits of r
		return tenToThePowerOf(4+f) / r
	}
	return 0
}

func tenToThePowerOf(p uint32) uint32 {
	n := uint32(1)
	for ; p > 0; p-- {
		n = n * 10
	}
	return n
}

// percent renders a fixed-point ratio with two fractional digits, the way
// the profile lines want it.
func percent(total, counter uint32) (uint32, uint32) {
	p := fixedPointPercentage(fixedPointRatio(total, counter, 4), 4)
	return p / 100, p % 100
}
