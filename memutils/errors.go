package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// NonPositiveError is the error returned from RoundUp if the multiple it was asked to round to is not positive
var NonPositiveError error = errors.New("number must be greater than zero")
