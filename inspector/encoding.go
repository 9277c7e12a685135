package inspector

import (
	"math/big"
	"slices"
)

type integerEncoding struct {
	name      string
	signed    bool
	bits      uint
	bigEndian bool
}

// integerEncodings is the order candidates are reported in.
var integerEncodings = []integerEncoding{
	{"u8_big", false, 8, true},
	{"u8_little", false, 8, false},
	{"u16_big", false, 16, true},
	{"u16_little", false, 16, false},
	{"i8_big", true, 8, true},
	{"i8_little", true, 8, false},
	{"i16_big", true, 16, true},
	{"i16_little", true, 16, false},
	{"i32_big", true, 32, true},
	{"i32_little", true, 32, false},
}

// DetectEncodings lists the encodings data could plausibly be in. The whole
// value is read as one integer, so a value longer than the encoding's width
// only qualifies when its high-order bytes are padding.
//
// Unsigned n-bit candidates accept 0 <= v < 2^n-1, signed ones |v| <= 2^n-2.
func DetectEncodings(data []byte) []string {
	encodings := []string{}
	if isASCII(data) {
		encodings = append(encodings, "ascii")
	}
	for _, enc := range integerEncodings {
		if enc.accepts(data) {
			encodings = append(encodings, enc.name)
		}
	}
	return encodings
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b > 0x7f {
			return false
		}
	}
	return true
}

func (e integerEncoding) accepts(data []byte) bool {
	v := decodeInteger(data, e.bigEndian, e.signed)
	limit := new(big.Int).Lsh(big.NewInt(1), e.bits)
	limit.Sub(limit, big.NewInt(1))

	if !e.signed {
		return v.Sign() >= 0 && v.Cmp(limit) < 0
	}
	limit.Sub(limit, big.NewInt(1))
	return new(big.Int).Abs(v).Cmp(limit) <= 0
}

// decodeInteger reads data as a single two's complement (when signed)
// integer of len(data) bytes.
func decodeInteger(data []byte, bigEndian, signed bool) *big.Int {
	buf := slices.Clone(data)
	if !bigEndian {
		slices.Reverse(buf)
	}
	v := new(big.Int).SetBytes(buf)
	if signed && len(buf) > 0 && buf[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(buf)*8)))
	}
	return v
}
