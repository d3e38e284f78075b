// Package allocation decides how many bytes a record slot reserves.
package allocation

import (
	"math"

	"github.com/huynhanx03/go-objectdb/pkg/common/apperr"
)

// MaxSlot is the largest slot a record header can describe.
const MaxSlot = math.MaxInt32

// Strategy returns the capacity to reserve for a record of requested bytes
// whose current slot holds current bytes (0 for a new record). The result is
// never below requested. Implementations must be deterministic.
type Strategy interface {
	Allocate(current, requested int) int
}

// DoubleSize reserves twice the requested size so that records can grow in
// place for a while before they have to move.
type DoubleSize struct{}

func (DoubleSize) Allocate(_, requested int) int {
	if requested > MaxSlot/2 {
		return clamp(requested)
	}
	return requested * 2
}

// Exact reserves exactly the requested size. Every growth relocates.
type Exact struct{}

func (Exact) Allocate(_, requested int) int {
	return clamp(requested)
}

// Block rounds the requested size up to a multiple of Size.
type Block struct {
	Size int
}

func (b Block) Allocate(_, requested int) int {
	if b.Size <= 1 {
		return clamp(requested)
	}
	rounded := ((requested + b.Size - 1) / b.Size) * b.Size
	if rounded < requested { // overflow
		return clamp(requested)
	}
	return clamp(rounded)
}

func clamp(n int) int {
	if n > MaxSlot {
		return MaxSlot
	}
	if n < 0 {
		return 0
	}
	return n
}

// ByName resolves a configured strategy name.
func ByName(name string, blockSize int) (Strategy, error) {
	switch name {
	case "", "double":
		return DoubleSize{}, nil
	case "exact":
		return Exact{}, nil
	case "block":
		if blockSize <= 0 {
			return nil, apperr.InvalidArgument("allocation.ByName", "block strategy needs a positive block size, got %d", blockSize)
		}
		return Block{Size: blockSize}, nil
	default:
		return nil, apperr.InvalidArgument("allocation.ByName", "unknown allocation strategy %q", name)
	}
}
