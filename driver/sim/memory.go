package sim

import (
	"github.com/cudabase/arsenal/driver"
	"golang.org/x/exp/slices"
)

type physicalAllocation struct {
	handle   driver.MemHandle
	device   int
	data     []byte
	mapped   bool
	released bool
}

type mapping struct {
	offset int
	alloc  *physicalAllocation
}

func (m mapping) end() int {
	return m.offset + len(m.alloc.data)
}

type addressRange struct {
	// device is -1 until memory is mapped into the range
	device   int
	base     driver.DevicePtr
	size     int
	mappings []mapping
	access   bool
}

func (r *addressRange) contains(ptr driver.DevicePtr) bool {
	return ptr >= r.base && ptr < r.base+driver.DevicePtr(r.size)
}

// covered reports whether [offset, offset+size) is backed by mappings with no gaps
func (r *addressRange) covered(offset, size int) bool {
	cursor := offset
	end := offset + size
	for _, m := range r.mappings {
		if m.end() <= cursor {
			continue
		}
		if m.offset > cursor {
			return false
		}
		cursor = m.end()
		if cursor >= end {
			return true
		}
	}

	return cursor >= end
}

func (d *Driver) MemAlloc(size int) (driver.DevicePtr, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if size <= 0 {
		return 0, driver.InvalidValue
	}

	dev, res := d.currentDevice()
	if res != driver.Success {
		return 0, res
	}

	if size > dev.options.MaxChunk || dev.committed+size > dev.options.TotalMemory {
		return 0, driver.OutOfMemory
	}

	ptr := dev.nextLinear(size)
	dev.linear[ptr] = make([]byte, size)
	dev.committed += size

	return ptr, driver.Success
}

func (d *Driver) MemFree(ptr driver.DevicePtr) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, dev := range d.devices {
		data, ok := dev.linear[ptr]
		if ok {
			delete(dev.linear, ptr)
			dev.committed -= len(data)
			return driver.Success
		}
	}

	return driver.InvalidValue
}

func (d *Driver) AllocationGranularity(prop driver.AllocationProp) (int, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if prop.Type != driver.AllocationTypePinned || prop.Location != driver.LocationDevice {
		return 0, driver.InvalidValue
	}

	dev, res := d.device(prop.Device)
	if res != driver.Success {
		return 0, res
	}

	return dev.options.Granularity, driver.Success
}

func (d *Driver) MemAddressReserve(size int) (driver.DevicePtr, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.devices) == 0 {
		return 0, driver.InvalidContext
	}

	if size <= 0 {
		return 0, driver.InvalidValue
	}

	if d.reserved+size > d.addressSpace {
		return 0, driver.OutOfMemory
	}

	ptr := d.allocateRange(size)
	d.ranges[ptr] = &addressRange{device: -1, base: ptr, size: size}
	d.reserved += size

	return ptr, driver.Success
}

func (d *Driver) MemAddressFree(ptr driver.DevicePtr, size int) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	r, ok := d.ranges[ptr]
	if !ok || r.size != size || len(r.mappings) > 0 {
		return driver.InvalidValue
	}

	delete(d.ranges, ptr)
	d.reserved -= size
	return driver.Success
}

func (d *Driver) MemCreate(size int, prop driver.AllocationProp) (driver.MemHandle, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if prop.Type != driver.AllocationTypePinned || prop.Location != driver.LocationDevice {
		return 0, driver.InvalidValue
	}

	dev, res := d.device(prop.Device)
	if res != driver.Success {
		return 0, res
	}

	if size <= 0 || size%dev.options.Granularity != 0 {
		return 0, driver.InvalidValue
	}

	if d.failMemCreate != nil && d.failMemCreate(prop.Device, size) {
		return 0, driver.OutOfMemory
	}

	if size > dev.options.MaxChunk || dev.committed+size > dev.options.TotalMemory {
		return 0, driver.OutOfMemory
	}

	d.nextHandle++
	handle := d.nextHandle
	d.handles.Put(handle, &physicalAllocation{
		handle: handle,
		device: prop.Device,
		data:   make([]byte, size),
	})
	dev.committed += size

	return handle, driver.Success
}

func (d *Driver) MemRelease(handle driver.MemHandle) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	alloc, ok := d.handles.Get(handle)
	if !ok || alloc.released {
		return driver.InvalidHandle
	}

	alloc.released = true
	if !alloc.mapped {
		d.destroyPhysical(alloc)
	}

	return driver.Success
}

// destroyPhysical returns a released allocation's memory to its device. Released allocations that are
// still mapped stay alive until their last unmap.
func (d *Driver) destroyPhysical(alloc *physicalAllocation) {
	d.handles.Delete(alloc.handle)
	d.devices[alloc.device].committed -= len(alloc.data)
}

func (d *Driver) findRange(ptr driver.DevicePtr) *addressRange {
	for _, r := range d.ranges {
		if r.contains(ptr) {
			return r
		}
	}

	return nil
}

func (d *Driver) MemMap(ptr driver.DevicePtr, size int, handle driver.MemHandle) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	alloc, ok := d.handles.Get(handle)
	if !ok || alloc.released {
		return driver.InvalidHandle
	}

	if alloc.mapped || size != len(alloc.data) {
		return driver.InvalidValue
	}

	r := d.findRange(ptr)
	if r == nil {
		return driver.InvalidValue
	}

	offset := int(ptr - r.base)
	if offset+size > r.size {
		return driver.InvalidValue
	}

	for _, m := range r.mappings {
		if offset < m.end() && m.offset < offset+size {
			return driver.InvalidValue
		}
	}

	if r.device < 0 {
		r.device = alloc.device
	}

	r.mappings = append(r.mappings, mapping{offset: offset, alloc: alloc})
	slices.SortFunc(r.mappings, func(left, right mapping) int {
		switch {
		case left.offset < right.offset:
			return -1
		case left.offset > right.offset:
			return 1
		}
		return 0
	})
	alloc.mapped = true

	return driver.Success
}

func (d *Driver) MemUnmap(ptr driver.DevicePtr, size int) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	r := d.findRange(ptr)
	if r == nil {
		return driver.InvalidValue
	}

	start := int(ptr - r.base)
	end := start + size

	var kept []mapping
	var removed []mapping
	for _, m := range r.mappings {
		switch {
		case m.offset >= start && m.end() <= end:
			removed = append(removed, m)
		case m.offset < end && m.end() > start:
			// Partial unmaps are not supported
			return driver.InvalidValue
		default:
			kept = append(kept, m)
		}
	}

	if len(removed) == 0 {
		return driver.InvalidValue
	}

	r.mappings = kept
	if len(kept) == 0 {
		r.access = false
	}

	for _, m := range removed {
		m.alloc.mapped = false
		if m.alloc.released {
			d.destroyPhysical(m.alloc)
		}
	}

	return driver.Success
}

func (d *Driver) MemSetAccess(ptr driver.DevicePtr, size int, index int) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, res := d.device(index); res != driver.Success {
		return res
	}

	r := d.findRange(ptr)
	if r == nil {
		return driver.InvalidValue
	}

	offset := int(ptr - r.base)
	if size <= 0 || offset+size > r.size || !r.covered(offset, size) {
		return driver.InvalidValue
	}

	r.access = true
	return driver.Success
}

// resolve finds the device memory backing [ptr, ptr+size) as a list of byte slices in address order
func (d *Driver) resolve(ptr driver.DevicePtr, size int) ([][]byte, driver.Result) {
	if size == 0 {
		return nil, driver.Success
	}

	for _, dev := range d.devices {
		for base, data := range dev.linear {
			if ptr < base || ptr >= base+driver.DevicePtr(len(data)) {
				continue
			}

			offset := int(ptr - base)
			if offset+size > len(data) {
				return nil, driver.InvalidValue
			}

			return [][]byte{data[offset : offset+size]}, driver.Success
		}
	}

	r := d.findRange(ptr)
	if r == nil {
		return nil, driver.InvalidValue
	}

	if !r.access {
		return nil, driver.IllegalAddress
	}

	var segments [][]byte
	cursor := int(ptr - r.base)
	end := cursor + size
	for _, m := range r.mappings {
		if m.end() <= cursor {
			continue
		}
		if m.offset > cursor {
			return nil, driver.IllegalAddress
		}

		take := m.end()
		if take > end {
			take = end
		}

		segments = append(segments, m.alloc.data[cursor-m.offset:take-m.offset])
		cursor = take
		if cursor == end {
			return segments, driver.Success
		}
	}

	return nil, driver.IllegalAddress
}
