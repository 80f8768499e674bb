package driver

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Result is a driver status code. Values match the CUDA driver API's CUresult.
type Result int

const (
	Success        Result = 0
	InvalidValue   Result = 1
	OutOfMemory    Result = 2
	NotInitialized Result = 3
	Deinitialized  Result = 4
	InvalidDevice  Result = 101
	InvalidContext Result = 201
	InvalidHandle  Result = 400
	NotFound       Result = 500
	NotReady       Result = 600
	IllegalAddress Result = 700
	NotSupported   Result = 801
	Unknown        Result = 999
)

var resultNameMapping = make(map[Result]string)
var resultDescriptionMapping = make(map[Result]string)

func (r Result) Register(name, description string) {
	resultNameMapping[r] = name
	resultDescriptionMapping[r] = description
}

func init() {
	Success.Register("CUDA_SUCCESS", "no error")
	InvalidValue.Register("CUDA_ERROR_INVALID_VALUE", "invalid argument")
	OutOfMemory.Register("CUDA_ERROR_OUT_OF_MEMORY", "out of memory")
	NotInitialized.Register("CUDA_ERROR_NOT_INITIALIZED", "initialization error")
	Deinitialized.Register("CUDA_ERROR_DEINITIALIZED", "driver shutting down")
	InvalidDevice.Register("CUDA_ERROR_INVALID_DEVICE", "invalid device ordinal")
	InvalidContext.Register("CUDA_ERROR_INVALID_CONTEXT", "invalid device context")
	InvalidHandle.Register("CUDA_ERROR_INVALID_HANDLE", "invalid resource handle")
	NotFound.Register("CUDA_ERROR_NOT_FOUND", "named symbol not found")
	NotReady.Register("CUDA_ERROR_NOT_READY", "device not ready")
	IllegalAddress.Register("CUDA_ERROR_ILLEGAL_ADDRESS", "an illegal memory access was encountered")
	NotSupported.Register("CUDA_ERROR_NOT_SUPPORTED", "operation not supported")
	Unknown.Register("CUDA_ERROR_UNKNOWN", "unknown error")
}

// Name returns the symbolic name of a known result and false for codes that were never registered
func (r Result) Name() (string, bool) {
	name, ok := resultNameMapping[r]
	return name, ok
}

// Description returns the human-readable description of a known result
func (r Result) Description() (string, bool) {
	desc, ok := resultDescriptionMapping[r]
	return desc, ok
}

func (r Result) String() string {
	name, ok := resultNameMapping[r]
	if !ok {
		return fmt.Sprintf("CUresult(%d)", int(r))
	}
	return name
}

// ToError returns nil for Success and an error carrying the result otherwise
func (r Result) ToError() error {
	if r == Success {
		return nil
	}

	return errors.WithStack(ResultError{Result: r})
}

// ResultError is an error wrapping a non-success Result
type ResultError struct {
	Result Result
}

func (e ResultError) Error() string {
	desc, ok := e.Result.Description()
	if !ok {
		return e.Result.String()
	}
	return fmt.Sprintf("%s: %s", e.Result, desc)
}
