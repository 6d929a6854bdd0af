package mpc

import (
	"fmt"
	"io"
)

// Scheme is Shamir sharing among N participants at evaluation points 1..N.
// Sharings have degree (N-1)/2, so a product of two sharings can still be interpolated by all N points.
type Scheme struct {
	N      int
	Degree int
	// lambda[i] is the Lagrange coefficient of point i+1 at 0
	lambda []Element
}

func NewScheme(n int) (*Scheme, error) {
	if n < 3 {
		return nil, fmt.Errorf("secret sharing needs at least 3 participants, got %d", n)
	}
	s := &Scheme{
		N:      n,
		Degree: (n - 1) / 2,
		lambda: make([]Element, n),
	}
	for i := 1; i <= n; i++ {
		num, den := Element(1), Element(1)
		for j := 1; j <= n; j++ {
			if j == i {
				continue
			}
			num = num.Mul(FromInt64(int64(j)))
			den = den.Mul(FromInt64(int64(j - i)))
		}
		s.lambda[i-1] = num.Mul(den.Inv())
	}
	return s, nil
}

// Coefficients returns a copy of the recombination vector.
func (s *Scheme) Coefficients() []Element {
	return append([]Element(nil), s.lambda...)
}

// Share splits v into N shares, share i-1 belonging to participant i.
func (s *Scheme) Share(v Element, rnd io.Reader) ([]Element, error) {
	coeffs := make([]Element, s.Degree+1)
	coeffs[0] = v
	for i := 1; i <= s.Degree; i++ {
		c, err := RandomElement(rnd)
		if err != nil {
			return nil, fmt.Errorf("failed to sample polynomial: %w", err)
		}
		coeffs[i] = c
	}
	shares := make([]Element, s.N)
	for i := range shares {
		shares[i] = evalPoly(coeffs, FromInt64(int64(i+1)))
	}
	return shares, nil
}

func evalPoly(coeffs []Element, x Element) Element {
	acc := Element(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = acc.Mul(x).Add(coeffs[i])
	}
	return acc
}

// Reconstruct interpolates at 0. Exactly N shares ordered by participant are required.
func (s *Scheme) Reconstruct(shares []Element) (Element, error) {
	if len(shares) != s.N {
		return 0, fmt.Errorf("%w: got %d shares, want %d", ErrMalformedShareSet, len(shares), s.N)
	}
	acc := Element(0)
	for i, sh := range shares {
		acc = acc.Add(sh.Mul(s.lambda[i]))
	}
	return acc, nil
}
