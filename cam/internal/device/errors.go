package device

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
)

// ErrOutOfMemory is matched by every error that was caused by a device running out of memory, whether
// the driver reported it or the allocator ran out of options
var ErrOutOfMemory = errors.New("out of device memory")

// DriverError is returned when a driver call reports a result other than driver.Success
type DriverError struct {
	Code        driver.Result
	Name        string
	Description string
	Function    string
	Device      int
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s failed on device %d: %s (%s)", e.Function, e.Device, e.Name, e.Description)
}

// Is allows errors.Is(err, ErrOutOfMemory) to match driver out-of-memory results
func (e *DriverError) Is(target error) bool {
	return target == ErrOutOfMemory && e.Code == driver.OutOfMemory
}
