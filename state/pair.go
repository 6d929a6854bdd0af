package state

import (
	"cmp"
	"slices"
)

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

// MakePair is shorthand for building a Pair without naming the type parameters.
func MakePair[Ty1, Ty2 any](a Ty1, b Ty2) Pair[Ty1, Ty2] {
	return Pair[Ty1, Ty2]{a, b}
}

// SortPairs orders pairs by V1, then by V2.
func SortPairs[Ty1, Ty2 cmp.Ordered](pairs []Pair[Ty1, Ty2]) {
	slices.SortFunc(pairs, func(a, b Pair[Ty1, Ty2]) int {
		if c := cmp.Compare(a.V1, b.V1); c != 0 {
			return c
		}
		return cmp.Compare(a.V2, b.V2)
	})
}
