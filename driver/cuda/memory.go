//go:build cuda

package cuda

/*
#include <cuda.h>
*/
import "C"

import (
	"unsafe"

	"github.com/cudabase/arsenal/driver"
)

func bytePointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func (d *Driver) MemAlloc(size int) (driver.DevicePtr, driver.Result) {
	var ptr C.CUdeviceptr
	res := driver.Result(C.cuMemAlloc(&ptr, C.size_t(size)))
	return driver.DevicePtr(ptr), res
}

func (d *Driver) MemFree(ptr driver.DevicePtr) driver.Result {
	return driver.Result(C.cuMemFree(C.CUdeviceptr(ptr)))
}

func (d *Driver) MemcpyHtoD(dst driver.DevicePtr, src []byte) driver.Result {
	return driver.Result(C.cuMemcpyHtoD(C.CUdeviceptr(dst), bytePointer(src), C.size_t(len(src))))
}

// MemcpyHtoDAsync queues a copy from host memory. The driver reads src after this call returns, so src
// must be page-locked memory from MemHostAlloc rather than Go heap memory.
func (d *Driver) MemcpyHtoDAsync(dst driver.DevicePtr, src []byte, id driver.Stream) driver.Result {
	stream, res := d.stream(id)
	if res != driver.Success {
		return res
	}

	return driver.Result(C.cuMemcpyHtoDAsync(C.CUdeviceptr(dst), bytePointer(src), C.size_t(len(src)), stream))
}

func (d *Driver) MemcpyDtoH(dst []byte, src driver.DevicePtr) driver.Result {
	return driver.Result(C.cuMemcpyDtoH(bytePointer(dst), C.CUdeviceptr(src), C.size_t(len(dst))))
}

// MemcpyDtoHAsync queues a copy into host memory. As with MemcpyHtoDAsync, dst must come from
// MemHostAlloc.
func (d *Driver) MemcpyDtoHAsync(dst []byte, src driver.DevicePtr, id driver.Stream) driver.Result {
	stream, res := d.stream(id)
	if res != driver.Success {
		return res
	}

	return driver.Result(C.cuMemcpyDtoHAsync(bytePointer(dst), C.CUdeviceptr(src), C.size_t(len(dst)), stream))
}

func allocationProp(prop driver.AllocationProp) C.CUmemAllocationProp {
	var cProp C.CUmemAllocationProp
	if prop.Type == driver.AllocationTypePinned {
		cProp._type = C.CU_MEM_ALLOCATION_TYPE_PINNED
	}
	if prop.Location == driver.LocationDevice {
		cProp.location._type = C.CU_MEM_LOCATION_TYPE_DEVICE
	}
	cProp.location.id = C.int(prop.Device)

	return cProp
}

func (d *Driver) AllocationGranularity(prop driver.AllocationProp) (int, driver.Result) {
	cProp := allocationProp(prop)

	var granularity C.size_t
	res := driver.Result(C.cuMemGetAllocationGranularity(&granularity, &cProp, C.CU_MEM_ALLOC_GRANULARITY_MINIMUM))
	return int(granularity), res
}

func (d *Driver) MemAddressReserve(size int) (driver.DevicePtr, driver.Result) {
	var ptr C.CUdeviceptr
	res := driver.Result(C.cuMemAddressReserve(&ptr, C.size_t(size), 0, 0, 0))
	return driver.DevicePtr(ptr), res
}

func (d *Driver) MemAddressFree(ptr driver.DevicePtr, size int) driver.Result {
	return driver.Result(C.cuMemAddressFree(C.CUdeviceptr(ptr), C.size_t(size)))
}

func (d *Driver) MemCreate(size int, prop driver.AllocationProp) (driver.MemHandle, driver.Result) {
	cProp := allocationProp(prop)

	var handle C.CUmemGenericAllocationHandle
	res := driver.Result(C.cuMemCreate(&handle, C.size_t(size), &cProp, 0))
	return driver.MemHandle(handle), res
}

func (d *Driver) MemRelease(handle driver.MemHandle) driver.Result {
	return driver.Result(C.cuMemRelease(C.CUmemGenericAllocationHandle(handle)))
}

func (d *Driver) MemMap(ptr driver.DevicePtr, size int, handle driver.MemHandle) driver.Result {
	return driver.Result(C.cuMemMap(C.CUdeviceptr(ptr), C.size_t(size), 0, C.CUmemGenericAllocationHandle(handle), 0))
}

func (d *Driver) MemUnmap(ptr driver.DevicePtr, size int) driver.Result {
	return driver.Result(C.cuMemUnmap(C.CUdeviceptr(ptr), C.size_t(size)))
}

func (d *Driver) MemSetAccess(ptr driver.DevicePtr, size int, device int) driver.Result {
	var desc C.CUmemAccessDesc
	desc.location._type = C.CU_MEM_LOCATION_TYPE_DEVICE
	desc.location.id = C.int(device)
	desc.flags = C.CU_MEM_ACCESS_FLAGS_PROT_READWRITE

	return driver.Result(C.cuMemSetAccess(C.CUdeviceptr(ptr), C.size_t(size), &desc, 1))
}

func (d *Driver) MemHostAlloc(size int) ([]byte, driver.Result) {
	var ptr unsafe.Pointer
	res := driver.Result(C.cuMemHostAlloc(&ptr, C.size_t(size), C.CU_MEMHOSTALLOC_PORTABLE))
	if res != driver.Success {
		return nil, res
	}

	return unsafe.Slice((*byte)(ptr), size), driver.Success
}

func (d *Driver) MemFreeHost(host []byte) driver.Result {
	return driver.Result(C.cuMemFreeHost(unsafe.Pointer(unsafe.SliceData(host))))
}
