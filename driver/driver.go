// Package driver describes the device-level primitives the memory manager is built on. Implementations
// live in subpackages: sim is an in-process simulated GPU and cuda binds the CUDA driver API.
package driver

//go:generate mockgen -source driver.go -destination mocks/driver.go -package mocks

// DevicePtr is an address in device virtual memory. The zero value is the null device pointer.
type DevicePtr uintptr

// MemHandle identifies a physical memory allocation created with MemCreate. It is not addressable
// until it has been mapped into a reserved range.
type MemHandle uint64

// Stream is an opaque ordered work queue on a device. The zero value is the null stream and is
// used to request synchronous behavior.
type Stream uintptr

// StreamKind selects one of the default streams every device carries
type StreamKind int

const (
	StreamExecution StreamKind = iota
	StreamUpload
	StreamDownload
)

var streamKindMapping = map[StreamKind]string{
	StreamExecution: "Execution",
	StreamUpload:    "Upload",
	StreamDownload:  "Download",
}

func (k StreamKind) String() string {
	return streamKindMapping[k]
}

// StreamKinds lists every default stream kind in creation order
var StreamKinds = []StreamKind{StreamExecution, StreamUpload, StreamDownload}

// AllocationType is the physical allocation type requested from MemCreate
type AllocationType int

const (
	AllocationTypeInvalid AllocationType = iota
	AllocationTypePinned
)

// LocationType indicates where a physical allocation resides
type LocationType int

const (
	LocationInvalid LocationType = iota
	LocationDevice
)

// AllocationProp describes a physical allocation for MemCreate and AllocationGranularity
type AllocationProp struct {
	Type     AllocationType
	Location LocationType
	Device   int
}

// DevicePinnedProp is the property set used for every physical commitment: pinned, resident on the
// provided device
func DevicePinnedProp(device int) AllocationProp {
	return AllocationProp{
		Type:     AllocationTypePinned,
		Location: LocationDevice,
		Device:   device,
	}
}

// Driver is the set of device operations the memory manager requires. Every method reports its
// outcome as a Result; Success indicates the other return values are valid.
//
// Memory operations that do not take a device act on the current device, as selected by Use.
type Driver interface {
	DeviceCount() (int, Result)
	DeviceName(device int) (string, Result)
	TotalMemory(device int) (int, Result)
	FreeMemory(device int) (int, Result)
	Use(device int) Result
	CurrentDevice() (int, Result)
	DefaultStream(device int, kind StreamKind) (Stream, Result)
	StreamSynchronize(stream Stream) Result

	MemAlloc(size int) (DevicePtr, Result)
	MemFree(ptr DevicePtr) Result
	MemcpyHtoD(dst DevicePtr, src []byte) Result
	MemcpyHtoDAsync(dst DevicePtr, src []byte, stream Stream) Result
	MemcpyDtoH(dst []byte, src DevicePtr) Result
	MemcpyDtoHAsync(dst []byte, src DevicePtr, stream Stream) Result

	AllocationGranularity(prop AllocationProp) (int, Result)
	MemAddressReserve(size int) (DevicePtr, Result)
	MemAddressFree(ptr DevicePtr, size int) Result
	MemCreate(size int, prop AllocationProp) (MemHandle, Result)
	MemRelease(handle MemHandle) Result
	MemMap(ptr DevicePtr, size int, handle MemHandle) Result
	MemUnmap(ptr DevicePtr, size int) Result
	MemSetAccess(ptr DevicePtr, size int, device int) Result

	MemHostAlloc(size int) ([]byte, Result)
	MemFreeHost(host []byte) Result

	ErrorName(res Result) (string, bool)
	ErrorString(res Result) (string, bool)
}
