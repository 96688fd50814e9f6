package boot

import "golang.org/x/exp/constraints"

// alignUp rounds v up to the next multiple of align (a power of two).
func alignUp[T constraints.Unsigned](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

// alignDown rounds v down to a multiple of align (a power of two).
func alignDown[T constraints.Unsigned](v, align T) T {
	return v &^ (align - 1)
}
