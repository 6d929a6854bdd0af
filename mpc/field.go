package mpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// Modulus is the Mersenne prime 2^61 - 1. Every element fits in the signed 64-bit wire value.
const Modulus uint64 = 1<<61 - 1

// Element is a field element in [0, Modulus).
type Element uint64

func NewElement(v uint64) Element {
	return Element(reduce(v))
}

// FromInt64 maps v to its residue, so negative values wrap around the modulus.
func FromInt64(v int64) Element {
	if v >= 0 {
		return NewElement(uint64(v))
	}
	return NewElement(uint64(-(v + 1))).Neg().Sub(1)
}

func reduce(v uint64) uint64 {
	v = (v & Modulus) + (v >> 61)
	if v >= Modulus {
		v -= Modulus
	}
	return v
}

func (a Element) Int64() int64 {
	return int64(a)
}

func (a Element) Add(b Element) Element {
	s := uint64(a) + uint64(b)
	if s >= Modulus {
		s -= Modulus
	}
	return Element(s)
}

func (a Element) Sub(b Element) Element {
	if a >= b {
		return a - b
	}
	return Element(uint64(a) + Modulus - uint64(b))
}

func (a Element) Neg() Element {
	if a == 0 {
		return 0
	}
	return Element(Modulus - uint64(a))
}

func (a Element) Mul(b Element) Element {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	// a*b < 2^122, fold the bits above 61 back in since 2^61 = 1
	folded := (lo & Modulus) + (lo>>61 | hi<<3)
	return Element(reduce(folded))
}

func (a Element) Pow(e uint64) Element {
	res := Element(1)
	base := a
	for e > 0 {
		if e&1 == 1 {
			res = res.Mul(base)
		}
		base = base.Mul(base)
		e >>= 1
	}
	return res
}

// Inv panics on zero.
func (a Element) Inv() Element {
	if a == 0 {
		panic("mpc: inverse of zero")
	}
	return a.Pow(Modulus - 2)
}

// Lsb is the parity of the canonical representative.
func (a Element) Lsb() Element {
	return a & 1
}

func (a Element) String() string {
	return fmt.Sprintf("%d", uint64(a))
}

// RandomElement draws a uniform element by rejection sampling 61-bit values from r.
func RandomElement(r io.Reader) (Element, error) {
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(buf[:]) & Modulus
		if v != Modulus {
			return Element(v), nil
		}
	}
}
