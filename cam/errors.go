package cam

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam/internal/device"
)

var (
	// ErrNotInitialized is returned when data is moved through a block or buffer that holds no memory
	ErrNotInitialized = errors.New("memory block is not initialized")
	// ErrInvalidArgument is returned for negative sizes, missing host memory, and blocks that were not
	// allocated by the allocator they are handed to
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfMemory matches every failure caused by exhausted device memory: driver out-of-memory
	// results, memory limits from CreateOptions, and virtual allocations that could not be committed
	ErrOutOfMemory = device.ErrOutOfMemory
)

// DriverError is the error returned when a driver call fails. Use errors.As to recover the driver
// result.
type DriverError = device.DriverError
