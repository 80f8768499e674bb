package cam

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam/internal/device"
	"github.com/cudabase/arsenal/driver"
)

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = make(map[CreateFlags]string)

func (f CreateFlags) Register(str string) {
	createFlagsMapping[f] = str
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit > 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = fmt.Sprintf("CreateFlags(%#x)", int32(bit))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// CreateSynchronized guards every allocator entry point with a mutex. Without it, the manager and
	// its allocators must only be used from one goroutine at a time or be synchronized by the consumer.
	CreateSynchronized CreateFlags = 1 << iota
)

func init() {
	CreateSynchronized.Register("CreateSynchronized")
}

const (
	megabyte int = 1000 * 1000
	// defaultVirtualHeadroom is the free memory a device must have beyond the requested size before the
	// VirtualAllocator will place a block on it
	defaultVirtualHeadroom int = 64 * megabyte
	gigabyte               int = 1024 * 1024 * 1024
)

// CreateOptions contains optional settings when creating a Manager. It is valid to leave all the
// fields blank.
type CreateOptions struct {
	// Flags indicates specific manager behaviors to activate or deactivate
	Flags CreateFlags

	// VirtualHeadroom is the free memory, beyond the requested size, a device must report before
	// the VirtualAllocator places a block on it. Zero selects the default of 64MB and a negative
	// value disables the headroom.
	VirtualHeadroom int

	// DeviceMemoryLimits can be left empty. If it is provided, it must have one entry per device.
	// Each entry is either the maximum number of bytes this manager may commit on the corresponding
	// device, or 0 or -1 indicating no limit. Exceeding a limit fails allocation with ErrOutOfMemory.
	DeviceMemoryLimits []int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed whenever device
	// memory is committed or released. The VirtualAllocator may commit several pieces for one block.
	MemoryCallbackOptions *MemoryCallbackOptions

	// Device is made current when the Manager is created. Linear allocations are always made on the
	// current device.
	Device int
}

// New creates a new Manager
//
// drv - The driver used for every device operation
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, drv driver.Driver, options CreateOptions) (*Manager, error) {
	useMutex := options.Flags&CreateSynchronized != 0

	manager := &Manager{
		logger:      logger,
		createFlags: options.Flags,
	}

	headroom := options.VirtualHeadroom
	if headroom == 0 {
		headroom = defaultVirtualHeadroom
	} else if headroom < 0 {
		headroom = 0
	}

	var err error
	manager.memory, err = device.NewDeviceMemory(
		logger,
		drv,
		&memoryCallbacks{
			Callbacks: options.MemoryCallbackOptions,
			Manager:   manager,
		},
		options.DeviceMemoryLimits,
	)
	if err != nil {
		return nil, err
	}

	deviceCount := manager.memory.DeviceCount()
	if deviceCount == 0 {
		return nil, errors.New("no devices are available")
	}

	for index := 0; index < deviceCount; index++ {
		name, err := manager.memory.DeviceName(index)
		if err != nil {
			return nil, err
		}

		total, err := manager.memory.TotalMemory(index)
		if err != nil {
			return nil, err
		}

		manager.devices = append(manager.devices, DeviceInfo{
			Index:       index,
			Name:        name,
			TotalMemory: total,
		})

		logger.Info(fmt.Sprintf("Device %s initialized! Total mem: %.2fGB", name, float64(total)/float64(gigabyte)),
			slog.Int("device", index))
	}

	err = manager.memory.Use(options.Device)
	if err != nil {
		return nil, err
	}

	manager.direct = newDirectAllocator(logger, useMutex, manager.memory)
	manager.virtual = newVirtualAllocator(logger, useMutex, manager.memory, headroom)

	return manager, nil
}
