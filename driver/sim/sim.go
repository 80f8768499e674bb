// Package sim implements driver.Driver entirely in process memory. Devices are described up front
// with a fixed amount of memory, an allocation granularity and the largest physical allocation they
// can satisfy in one piece, which makes fragmentation reproducible. Asynchronous copies are queued
// on their stream and only execute when the stream is synchronized.
package sim

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/memutils"
	"github.com/dolthub/swiss"
)

const (
	defaultGranularity  int = 2 * 1024 * 1024
	defaultAddressSpace int = 1 << 38
	linearAlignment     int = 256
	// Linear allocations start at (index+1)<<40, virtual ranges live above every device's linear space
	virtualBase driver.DevicePtr = 1 << 48
)

// DeviceOptions describes one simulated device. Zero values are replaced with defaults:
// Granularity is 2MiB and MaxChunk is TotalMemory.
type DeviceOptions struct {
	Name string
	// TotalMemory is the physical memory of the device in bytes
	TotalMemory int
	// Granularity is the allocation granularity reported for pinned device memory. It does not
	// need to be a power of two.
	Granularity int
	// MaxChunk is the largest physical allocation the device will satisfy. MemAlloc and MemCreate
	// requests above it fail with driver.OutOfMemory even when enough memory is free.
	MaxChunk int
}

type Options struct {
	Devices []DeviceOptions
	// AddressSpace caps the bytes of virtual address space that may be reserved at once. Virtual
	// address space is shared by every device, as in a unified address space. Defaults to 256GiB.
	AddressSpace int
	// FailMemCreate is called before every MemCreate. Returning true fails the call with
	// driver.OutOfMemory.
	FailMemCreate func(device, size int) bool
}

type Driver struct {
	mutex sync.Mutex

	devices       []*device
	current       int
	failMemCreate func(device, size int) bool

	nextHandle driver.MemHandle
	handles    *swiss.Map[driver.MemHandle, *physicalAllocation]

	// Virtual address ranges are not tied to a device until memory is mapped into them
	ranges         map[driver.DevicePtr]*addressRange
	reserved       int
	addressSpace   int
	rangeAlignment int
	nextRange      driver.DevicePtr
	streams    map[driver.Stream]*stream
	host       map[*byte]int
}

var _ driver.Driver = &Driver{}

type device struct {
	index   int
	options DeviceOptions

	committed   int
	nextAddress driver.DevicePtr

	linear map[driver.DevicePtr][]byte

	defaultStreams []driver.Stream
}

func New(options Options) *Driver {
	d := &Driver{
		failMemCreate: options.FailMemCreate,
		handles:       swiss.NewMap[driver.MemHandle, *physicalAllocation](42),
		ranges:        make(map[driver.DevicePtr]*addressRange),
		addressSpace:  options.AddressSpace,
		nextRange:     virtualBase,
		streams:       make(map[driver.Stream]*stream),
		host:          make(map[*byte]int),
	}

	for index, deviceOptions := range options.Devices {
		if deviceOptions.Name == "" {
			deviceOptions.Name = fmt.Sprintf("Simulated GPU %d", index)
		}
		if deviceOptions.Granularity == 0 {
			deviceOptions.Granularity = defaultGranularity
		}
		if deviceOptions.MaxChunk == 0 {
			deviceOptions.MaxChunk = deviceOptions.TotalMemory
		}

		dev := &device{
			index:       index,
			options:     deviceOptions,
			nextAddress: driver.DevicePtr(index+1) << 40,
			linear:      make(map[driver.DevicePtr][]byte),
		}

		for _, kind := range driver.StreamKinds {
			id := driver.Stream(index*len(driver.StreamKinds) + int(kind) + 1)
			d.streams[id] = &stream{device: index}
			dev.defaultStreams = append(dev.defaultStreams, id)
		}

		d.devices = append(d.devices, dev)
		d.rangeAlignment = max(d.rangeAlignment, deviceOptions.Granularity)
	}

	if d.addressSpace == 0 {
		d.addressSpace = defaultAddressSpace
	}

	return d
}

func (d *Driver) device(index int) (*device, driver.Result) {
	if index < 0 || index >= len(d.devices) {
		return nil, driver.InvalidDevice
	}

	return d.devices[index], driver.Success
}

func (d *Driver) currentDevice() (*device, driver.Result) {
	return d.device(d.current)
}

// nextLinear hands out a fresh device address for a linear allocation. Addresses are never reused.
func (dev *device) nextLinear(size int) driver.DevicePtr {
	memutils.DebugCheckPow2(linearAlignment, "linearAlignment")

	address := memutils.AlignUp(int(dev.nextAddress), uint(linearAlignment))
	dev.nextAddress = driver.DevicePtr(address + size)
	return driver.DevicePtr(address)
}

// allocateRange hands out a fresh virtual address that is a multiple of every device's granularity
func (d *Driver) allocateRange(size int) driver.DevicePtr {
	address, err := memutils.RoundUp(int(d.nextRange), d.rangeAlignment)
	if err != nil {
		panic(err)
	}

	d.nextRange = driver.DevicePtr(address + size)
	return driver.DevicePtr(address)
}

func (d *Driver) DeviceCount() (int, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.devices), driver.Success
}

func (d *Driver) DeviceName(index int) (string, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	dev, res := d.device(index)
	if res != driver.Success {
		return "", res
	}

	return dev.options.Name, driver.Success
}

func (d *Driver) TotalMemory(index int) (int, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	return dev.options.TotalMemory, driver.Success
}

func (d *Driver) FreeMemory(index int) (int, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	return dev.options.TotalMemory - dev.committed, driver.Success
}

func (d *Driver) Use(index int) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, res := d.device(index); res != driver.Success {
		return res
	}

	d.current = index
	return driver.Success
}

func (d *Driver) CurrentDevice() (int, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.devices) == 0 {
		return 0, driver.InvalidContext
	}

	return d.current, driver.Success
}

func (d *Driver) ErrorName(res driver.Result) (string, bool) {
	return res.Name()
}

func (d *Driver) ErrorString(res driver.Result) (string, bool) {
	return res.Description()
}

func (d *Driver) MemHostAlloc(size int) ([]byte, driver.Result) {
	if size <= 0 {
		return nil, driver.InvalidValue
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	host := make([]byte, size)
	d.host[unsafe.SliceData(host)] = size

	return host, driver.Success
}

func (d *Driver) MemFreeHost(host []byte) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	key := unsafe.SliceData(host)
	if _, ok := d.host[key]; !ok || key == nil {
		return driver.InvalidValue
	}

	delete(d.host, key)
	return driver.Success
}

// CommittedBytes returns the physical memory currently held on a device, counting both linear
// allocations and physical allocations created with MemCreate
func (d *Driver) CommittedBytes(index int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.devices[index].committed
}

// ReservedBytes returns the virtual address space reserved for ranges owned by a device. A range is
// owned by the device of the first physical allocation mapped into it.
func (d *Driver) ReservedBytes(index int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	reserved := 0
	for _, r := range d.ranges {
		if r.device == index {
			reserved += r.size
		}
	}

	return reserved
}

// TotalReservedBytes returns all virtual address space currently reserved, owned or not
func (d *Driver) TotalReservedBytes() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.reserved
}

// LiveHandles returns the number of physical allocations on a device that have not been released
func (d *Driver) LiveHandles(index int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	count := 0
	d.handles.Iter(func(_ driver.MemHandle, alloc *physicalAllocation) bool {
		if alloc.device == index && !alloc.released {
			count++
		}
		return false
	})

	return count
}

// LinearAllocations returns the number of live MemAlloc allocations on a device
func (d *Driver) LinearAllocations(index int) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.devices[index].linear)
}

// HostAllocations returns the number of live MemHostAlloc allocations
func (d *Driver) HostAllocations() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.host)
}
