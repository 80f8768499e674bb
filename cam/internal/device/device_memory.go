package device

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/memutils"
)

// MemoryCallbacks receives every physical commitment made through DeviceMemory. For linear allocations
// handle is zero, for physical allocations ptr is zero.
type MemoryCallbacks interface {
	Allocate(device int, ptr driver.DevicePtr, handle driver.MemHandle, size int)
	Free(device int, ptr driver.DevicePtr, handle driver.MemHandle, size int)
}

// DeviceMemory wraps a driver.Driver for the allocators. It converts results into errors, logs
// failures at the point they are detected, enforces per-device memory limits and keeps atomic
// per-device counters of committed memory.
type DeviceMemory struct {
	// Number of real commitments that have been made on each device
	blockCount []int32
	// Number of logical blocks handed out on each device
	allocationCount []int32
	// Size of real commitments that have been made on each device
	blockBytes []int64
	// Size of logical blocks handed out on each device
	allocationBytes []int64

	logger          *slog.Logger
	driver          driver.Driver
	memoryCallbacks MemoryCallbacks
	deviceLimits    []int
	deviceCount     int
}

func NewDeviceMemory(
	logger *slog.Logger,
	drv driver.Driver,
	memoryCallbacks MemoryCallbacks,
	deviceLimits []int,
) (*DeviceMemory, error) {
	memory := &DeviceMemory{
		logger:          logger,
		driver:          drv,
		memoryCallbacks: memoryCallbacks,
	}

	count, res := drv.DeviceCount()
	err := memory.check(res, "DeviceCount", -1)
	if err != nil {
		return nil, err
	}

	limitCount := len(deviceLimits)
	if limitCount > 0 && limitCount != count {
		return nil, errors.Newf("cam.CreateOptions.DeviceMemoryLimits was provided, but the length (%d) does not equal the number of devices (%d)", limitCount, count)
	}

	memory.deviceCount = count
	memory.deviceLimits = deviceLimits
	memory.blockCount = make([]int32, count)
	memory.allocationCount = make([]int32, count)
	memory.blockBytes = make([]int64, count)
	memory.allocationBytes = make([]int64, count)

	return memory, nil
}

func (m *DeviceMemory) DeviceCount() int {
	return m.deviceCount
}

// resultError converts a driver result into an error without reporting it
func (m *DeviceMemory) resultError(res driver.Result, function string, device int) error {
	if res == driver.Success {
		return nil
	}

	name, ok := m.driver.ErrorName(res)
	if !ok {
		name = fmt.Sprintf("unknown result %d", int(res))
	}
	description, ok := m.driver.ErrorString(res)
	if !ok {
		description = "no description available"
	}

	return errors.WithStack(&DriverError{
		Code:        res,
		Name:        name,
		Description: description,
		Function:    function,
		Device:      device,
	})
}

// check converts a driver result into an error. Failures are logged with the location of the
// allocator code that issued the call.
func (m *DeviceMemory) check(res driver.Result, function string, device int) error {
	err := m.resultError(res, function, device)
	if err != nil {
		m.report("driver call failed", err, 3)
	}

	return err
}

// Fail reports an allocation failure detected above the driver, such as a device that could not
// commit a virtual block in pieces of any size
func (m *DeviceMemory) Fail(msg string, err error) {
	m.report(msg, err, 2)
}

// report logs err once with the location skip frames up the stack, then aborts if built with
// cam_abort_on_error
func (m *DeviceMemory) report(msg string, err error, skip int) {
	file, line := "unknown", 0
	if _, callerFile, callerLine, ok := runtime.Caller(skip); ok {
		file, line = filepath.Base(callerFile), callerLine
	}

	attrs := []any{
		slog.String("file", file),
		slog.Int("line", line),
	}

	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		attrs = append(attrs,
			slog.String("function", driverErr.Function),
			slog.Int("device", driverErr.Device),
			slog.String("result", driverErr.Name),
			slog.String("description", driverErr.Description),
		)
	} else {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	m.logger.Error(msg, attrs...)
	abortOnError(err)
}

func (m *DeviceMemory) validDevice(device int) bool {
	return device >= 0 && device < m.deviceCount
}

func (m *DeviceMemory) DeviceName(device int) (string, error) {
	name, res := m.driver.DeviceName(device)
	return name, m.check(res, "DeviceName", device)
}

func (m *DeviceMemory) TotalMemory(device int) (int, error) {
	total, res := m.driver.TotalMemory(device)
	return total, m.check(res, "TotalMemory", device)
}

func (m *DeviceMemory) FreeMemory(device int) (int, error) {
	free, res := m.driver.FreeMemory(device)
	return free, m.check(res, "FreeMemory", device)
}

func (m *DeviceMemory) Use(device int) error {
	return m.check(m.driver.Use(device), "Use", device)
}

func (m *DeviceMemory) CurrentDevice() (int, error) {
	device, res := m.driver.CurrentDevice()
	return device, m.check(res, "CurrentDevice", -1)
}

func (m *DeviceMemory) DefaultStream(device int, kind driver.StreamKind) (driver.Stream, error) {
	stream, res := m.driver.DefaultStream(device, kind)
	return stream, m.check(res, "DefaultStream", device)
}

func (m *DeviceMemory) Granularity(device int) (int, error) {
	granularity, res := m.driver.AllocationGranularity(driver.DevicePinnedProp(device))
	err := m.check(res, "AllocationGranularity", device)
	if err != nil {
		return 0, err
	}

	if granularity < 1 {
		return 0, errors.Newf("device %d reported an allocation granularity of %d", device, granularity)
	}

	return granularity, nil
}

func (m *DeviceMemory) addBlockAllocation(device, size int) {
	atomic.AddInt64(&m.blockBytes[device], int64(size))
	atomic.AddInt32(&m.blockCount[device], 1)
}

func (m *DeviceMemory) addBlockAllocationWithBudget(device, size, maxAllocatable int) error {
	for {
		currentVal := atomic.LoadInt64(&m.blockBytes[device])
		targetVal := currentVal + int64(size)

		if targetVal > int64(maxAllocatable) {
			return errors.Wrapf(ErrOutOfMemory, "device %d memory limit of %d bytes reached", device, maxAllocatable)
		}

		if atomic.CompareAndSwapInt64(&m.blockBytes[device], currentVal, targetVal) {
			break
		}
	}

	atomic.AddInt32(&m.blockCount[device], 1)
	return nil
}

func (m *DeviceMemory) removeBlockAllocation(device, size int) {
	newVal := atomic.AddInt64(&m.blockBytes[device], int64(-size))
	if newVal < 0 {
		panic(fmt.Sprintf("block bytes for device %d went negative", device))
	}

	newCountVal := atomic.AddInt32(&m.blockCount[device], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("block count for device %d went negative", device))
	}
}

// reserveBlock records a commitment of size bytes against device's limit before the driver is asked
// for memory
func (m *DeviceMemory) reserveBlock(device, size int) error {
	if !m.validDevice(device) {
		return errors.Newf("device %d does not exist", device)
	}

	limit := 0
	if len(m.deviceLimits) > 0 {
		limit = m.deviceLimits[device]
	}

	if limit <= 0 {
		m.addBlockAllocation(device, size)
		return nil
	}

	return m.addBlockAllocationWithBudget(device, size, limit)
}

// Alloc makes a linear allocation of size bytes on device, which must be the current device
func (m *DeviceMemory) Alloc(device, size int) (ptr driver.DevicePtr, err error) {
	err = m.reserveBlock(device, size)
	if err != nil {
		return 0, err
	}
	defer func() {
		// If we failed out, roll back the block allocation
		if err != nil {
			m.removeBlockAllocation(device, size)
		}
	}()

	ptr, res := m.driver.MemAlloc(size)
	err = m.check(res, "MemAlloc", device)
	if err != nil {
		return 0, err
	}

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(device, ptr, 0, size)
	}

	return ptr, nil
}

func (m *DeviceMemory) Free(device int, ptr driver.DevicePtr, size int) error {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(device, ptr, 0, size)
	}

	// The allocation is forgotten even if the driver refuses to free it
	m.removeBlockAllocation(device, size)
	return m.check(m.driver.MemFree(ptr), "MemFree", device)
}

// TryCreate makes a physical allocation of size bytes resident on device. A refusal is returned to
// the caller without being logged or aborting: callers retry with smaller sizes and report the final
// failure themselves with Fail.
func (m *DeviceMemory) TryCreate(device, size int) (handle driver.MemHandle, err error) {
	err = m.reserveBlock(device, size)
	if err != nil {
		return 0, err
	}
	defer func() {
		// If we failed out, roll back the block allocation
		if err != nil {
			m.removeBlockAllocation(device, size)
		}
	}()

	handle, res := m.driver.MemCreate(size, driver.DevicePinnedProp(device))
	err = m.resultError(res, "MemCreate", device)
	if err != nil {
		return 0, err
	}

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(device, 0, handle, size)
	}

	return handle, nil
}

func (m *DeviceMemory) Release(device int, handle driver.MemHandle, size int) error {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(device, 0, handle, size)
	}

	m.removeBlockAllocation(device, size)
	return m.check(m.driver.MemRelease(handle), "MemRelease", device)
}

func (m *DeviceMemory) AddressReserve(device, size int) (driver.DevicePtr, error) {
	ptr, res := m.driver.MemAddressReserve(size)
	return ptr, m.check(res, "MemAddressReserve", device)
}

func (m *DeviceMemory) AddressFree(device int, ptr driver.DevicePtr, size int) error {
	return m.check(m.driver.MemAddressFree(ptr, size), "MemAddressFree", device)
}

func (m *DeviceMemory) Map(device int, ptr driver.DevicePtr, size int, handle driver.MemHandle) error {
	return m.check(m.driver.MemMap(ptr, size, handle), "MemMap", device)
}

func (m *DeviceMemory) Unmap(device int, ptr driver.DevicePtr, size int) error {
	return m.check(m.driver.MemUnmap(ptr, size), "MemUnmap", device)
}

func (m *DeviceMemory) SetAccess(device int, ptr driver.DevicePtr, size int) error {
	return m.check(m.driver.MemSetAccess(ptr, size, device), "MemSetAccess", device)
}

// Upload copies host into device memory at ptr. The null stream copies synchronously, any other stream
// only enqueues the copy.
func (m *DeviceMemory) Upload(device int, ptr driver.DevicePtr, host []byte, stream driver.Stream) error {
	if stream == 0 {
		return m.check(m.driver.MemcpyHtoD(ptr, host), "MemcpyHtoD", device)
	}

	return m.check(m.driver.MemcpyHtoDAsync(ptr, host, stream), "MemcpyHtoDAsync", device)
}

// Download copies device memory at ptr into host, with the same stream semantics as Upload
func (m *DeviceMemory) Download(device int, ptr driver.DevicePtr, host []byte, stream driver.Stream) error {
	if stream == 0 {
		return m.check(m.driver.MemcpyDtoH(host, ptr), "MemcpyDtoH", device)
	}

	return m.check(m.driver.MemcpyDtoHAsync(host, ptr, stream), "MemcpyDtoHAsync", device)
}

func (m *DeviceMemory) Synchronize(device int, stream driver.Stream) error {
	return m.check(m.driver.StreamSynchronize(stream), "StreamSynchronize", device)
}

func (m *DeviceMemory) HostAlloc(size int) ([]byte, error) {
	host, res := m.driver.MemHostAlloc(size)
	return host, m.check(res, "MemHostAlloc", -1)
}

func (m *DeviceMemory) FreeHost(host []byte) error {
	return m.check(m.driver.MemFreeHost(host), "MemFreeHost", -1)
}

func (m *DeviceMemory) AddAllocation(device, size int) {
	atomic.AddInt64(&m.allocationBytes[device], int64(size))
	atomic.AddInt32(&m.allocationCount[device], 1)
}

func (m *DeviceMemory) RemoveAllocation(device, size int) {
	newSizeVal := atomic.AddInt64(&m.allocationBytes[device], int64(-size))
	if newSizeVal < 0 {
		panic(fmt.Sprintf("allocation bytes for device %d went negative", device))
	}

	newCountVal := atomic.AddInt32(&m.allocationCount[device], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("allocation count for device %d went negative", device))
	}
}

// Statistics returns the counters for a single device
func (m *DeviceMemory) Statistics(device int) memutils.Statistics {
	return memutils.Statistics{
		BlockCount:      int(atomic.LoadInt32(&m.blockCount[device])),
		AllocationCount: int(atomic.LoadInt32(&m.allocationCount[device])),
		BlockBytes:      int(atomic.LoadInt64(&m.blockBytes[device])),
		AllocationBytes: int(atomic.LoadInt64(&m.allocationBytes[device])),
	}
}
