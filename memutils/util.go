package memutils

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// RoundUp rounds value up to the next multiple of multiple. Unlike AlignUp, multiple does
// not need to be a power of two, which matters for driver-reported allocation granularities.
func RoundUp(value, multiple int) (int, error) {
	if multiple < 1 {
		return 0, errors.Wrapf(NonPositiveError, "multiple is %d", multiple)
	}

	return ((value + multiple - 1) / multiple) * multiple, nil
}
