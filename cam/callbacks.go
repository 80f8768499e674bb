package cam

import "github.com/cudabase/arsenal/driver"

// AllocateDeviceMemoryCallback is called after every physical commitment the manager makes. ptr is set
// for linear allocations made by the DirectAllocator, handle is set for physical allocations made by
// the VirtualAllocator.
type AllocateDeviceMemoryCallback func(
	manager *Manager,
	device int,
	ptr driver.DevicePtr,
	handle driver.MemHandle,
	size int,
	userData interface{},
)

// FreeDeviceMemoryCallback is called before every physical commitment is returned to the driver
type FreeDeviceMemoryCallback func(
	manager *Manager,
	device int,
	ptr driver.DevicePtr,
	handle driver.MemHandle,
	size int,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateDeviceMemoryCallback
	Free     FreeDeviceMemoryCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Manager   *Manager
}

func (c *memoryCallbacks) Allocate(
	device int,
	ptr driver.DevicePtr,
	handle driver.MemHandle,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Manager, device, ptr, handle, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(
	device int,
	ptr driver.DevicePtr,
	handle driver.MemHandle,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Manager, device, ptr, handle, size, c.Callbacks.UserData)
	}
}
