//go:build cuda

// Package cuda binds driver.Driver to the CUDA driver API. It is only compiled with the cuda build
// tag and requires the CUDA toolkit headers and libcuda at build time.
package cuda

/*
#cgo LDFLAGS: -lcuda
#include <cuda.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
)

const deviceNameLength = 256

type deviceContext struct {
	device  C.CUdevice
	context C.CUcontext
	streams []driver.Stream
}

// Driver talks to the CUDA driver through each device's primary context. Streams are exposed to
// callers as small integer ids so that no C pointer escapes this package.
type Driver struct {
	mutex   sync.Mutex
	devices []deviceContext
	streams []C.CUstream
	current int
}

var _ driver.Driver = &Driver{}

// Open initializes the CUDA driver, retains the primary context of every visible device and creates
// the default streams for each of them. The first device is made current.
func Open() (*Driver, error) {
	res := driver.Result(C.cuInit(0))
	if res != driver.Success {
		return nil, errors.Wrap(res.ToError(), "cuInit")
	}

	var count C.int
	res = driver.Result(C.cuDeviceGetCount(&count))
	if res != driver.Success {
		return nil, errors.Wrap(res.ToError(), "cuDeviceGetCount")
	}

	d := &Driver{}
	for ordinal := 0; ordinal < int(count); ordinal++ {
		err := d.openDevice(ordinal)
		if err != nil {
			d.Close()
			return nil, err
		}
	}

	if len(d.devices) > 0 {
		res = d.Use(0)
		if res != driver.Success {
			d.Close()
			return nil, errors.Wrap(res.ToError(), "cuCtxSetCurrent")
		}
	}

	return d, nil
}

func (d *Driver) openDevice(ordinal int) error {
	var dev C.CUdevice
	res := driver.Result(C.cuDeviceGet(&dev, C.int(ordinal)))
	if res != driver.Success {
		return errors.Wrapf(res.ToError(), "cuDeviceGet(%d)", ordinal)
	}

	res = driver.Result(C.cuDevicePrimaryCtxSetFlags(dev, C.CU_CTX_SCHED_BLOCKING_SYNC|C.CU_CTX_MAP_HOST))
	if res != driver.Success {
		return errors.Wrapf(res.ToError(), "cuDevicePrimaryCtxSetFlags(%d)", ordinal)
	}

	var ctx C.CUcontext
	res = driver.Result(C.cuDevicePrimaryCtxRetain(&ctx, dev))
	if res != driver.Success {
		return errors.Wrapf(res.ToError(), "cuDevicePrimaryCtxRetain(%d)", ordinal)
	}

	entry := deviceContext{device: dev, context: ctx}
	d.devices = append(d.devices, entry)

	res = driver.Result(C.cuCtxSetCurrent(ctx))
	if res != driver.Success {
		return errors.Wrapf(res.ToError(), "cuCtxSetCurrent(%d)", ordinal)
	}

	for range driver.StreamKinds {
		var stream C.CUstream
		res = driver.Result(C.cuStreamCreate(&stream, C.CU_STREAM_DEFAULT))
		if res != driver.Success {
			return errors.Wrapf(res.ToError(), "cuStreamCreate(%d)", ordinal)
		}

		d.streams = append(d.streams, stream)
		d.devices[len(d.devices)-1].streams = append(d.devices[len(d.devices)-1].streams, driver.Stream(len(d.streams)))
	}

	return nil
}

// Close destroys every stream and releases every primary context retained by Open
func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var err error
	for _, stream := range d.streams {
		res := driver.Result(C.cuStreamDestroy(stream))
		err = errors.CombineErrors(err, res.ToError())
	}
	d.streams = nil

	for _, dev := range d.devices {
		res := driver.Result(C.cuDevicePrimaryCtxRelease(dev.device))
		err = errors.CombineErrors(err, res.ToError())
	}
	d.devices = nil

	return err
}

func (d *Driver) device(index int) (deviceContext, driver.Result) {
	if index < 0 || index >= len(d.devices) {
		return deviceContext{}, driver.InvalidDevice
	}

	return d.devices[index], driver.Success
}

func (d *Driver) stream(id driver.Stream) (C.CUstream, driver.Result) {
	if id == 0 {
		return nil, driver.Success
	}

	if int(id) > len(d.streams) {
		return nil, driver.InvalidHandle
	}

	return d.streams[id-1], driver.Success
}

func (d *Driver) DeviceCount() (int, driver.Result) {
	return len(d.devices), driver.Success
}

func (d *Driver) DeviceName(index int) (string, driver.Result) {
	dev, res := d.device(index)
	if res != driver.Success {
		return "", res
	}

	name := (*C.char)(C.malloc(deviceNameLength))
	defer C.free(unsafe.Pointer(name))

	res = driver.Result(C.cuDeviceGetName(name, deviceNameLength, dev.device))
	if res != driver.Success {
		return "", res
	}

	return C.GoString(name), driver.Success
}

func (d *Driver) TotalMemory(index int) (int, driver.Result) {
	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	var total C.size_t
	res = driver.Result(C.cuDeviceTotalMem(&total, dev.device))
	return int(total), res
}

func (d *Driver) FreeMemory(index int) (int, driver.Result) {
	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	res = driver.Result(C.cuCtxPushCurrent(dev.context))
	if res != driver.Success {
		return 0, res
	}

	var free, total C.size_t
	res = driver.Result(C.cuMemGetInfo(&free, &total))

	var popped C.CUcontext
	popRes := driver.Result(C.cuCtxPopCurrent(&popped))
	if res == driver.Success {
		res = popRes
	}

	return int(free), res
}

func (d *Driver) Use(index int) driver.Result {
	dev, res := d.device(index)
	if res != driver.Success {
		return res
	}

	res = driver.Result(C.cuCtxSetCurrent(dev.context))
	if res != driver.Success {
		return res
	}

	d.mutex.Lock()
	d.current = index
	d.mutex.Unlock()
	return driver.Success
}

func (d *Driver) CurrentDevice() (int, driver.Result) {
	var dev C.CUdevice
	res := driver.Result(C.cuCtxGetDevice(&dev))
	if res != driver.Success {
		return 0, res
	}

	for index, entry := range d.devices {
		if entry.device == dev {
			return index, driver.Success
		}
	}

	return 0, driver.InvalidDevice
}

func (d *Driver) DefaultStream(index int, kind driver.StreamKind) (driver.Stream, driver.Result) {
	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	if kind < 0 || int(kind) >= len(dev.streams) {
		return 0, driver.InvalidValue
	}

	return dev.streams[kind], driver.Success
}

func (d *Driver) StreamSynchronize(id driver.Stream) driver.Result {
	stream, res := d.stream(id)
	if res != driver.Success {
		return res
	}

	return driver.Result(C.cuStreamSynchronize(stream))
}

func (d *Driver) ErrorName(res driver.Result) (string, bool) {
	var str *C.char
	if driver.Result(C.cuGetErrorName(C.CUresult(res), &str)) != driver.Success || str == nil {
		return "", false
	}

	return C.GoString(str), true
}

func (d *Driver) ErrorString(res driver.Result) (string, bool) {
	var str *C.char
	if driver.Result(C.cuGetErrorString(C.CUresult(res), &str)) != driver.Success || str == nil {
		return "", false
	}

	return C.GoString(str), true
}
