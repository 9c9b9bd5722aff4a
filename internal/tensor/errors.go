package tensor

import "github.com/pkg/errors"

// Sentinel errors shared by the kernel packages. Callers match them with errors.Is.
var (
	ErrNotImplemented       = errors.New("not implemented")
	ErrInvalidShape         = errors.New("invalid shape")
	ErrInvalidPermutation   = errors.New("invalid permutation")
	ErrUnsupportedDataType  = errors.New("unsupported data type")
	ErrIncompatibleOperands = errors.New("incompatible operands")
)
