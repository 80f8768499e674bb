package sim

import (
	"testing"

	"github.com/cudabase/arsenal/driver"
	"github.com/stretchr/testify/require"
)

func testDriver() *Driver {
	return New(Options{
		Devices: []DeviceOptions{
			{
				Name:        "Test GPU",
				TotalMemory: 6000000,
				Granularity: 500000,
				MaxChunk:    1000000,
			},
			{
				TotalMemory: 2000000,
				Granularity: 1000,
			},
		},
	})
}

func TestDeviceQueries(t *testing.T) {
	d := testDriver()

	count, res := d.DeviceCount()
	require.Equal(t, driver.Success, res)
	require.Equal(t, 2, count)

	name, res := d.DeviceName(0)
	require.Equal(t, driver.Success, res)
	require.Equal(t, "Test GPU", name)

	name, res = d.DeviceName(1)
	require.Equal(t, driver.Success, res)
	require.Equal(t, "Simulated GPU 1", name)

	_, res = d.DeviceName(2)
	require.Equal(t, driver.InvalidDevice, res)

	require.Equal(t, driver.Success, d.Use(1))
	current, res := d.CurrentDevice()
	require.Equal(t, driver.Success, res)
	require.Equal(t, 1, current)

	require.Equal(t, driver.InvalidDevice, d.Use(-1))

	granularity, res := d.AllocationGranularity(driver.DevicePinnedProp(0))
	require.Equal(t, driver.Success, res)
	require.Equal(t, 500000, granularity)

	_, res = d.AllocationGranularity(driver.AllocationProp{Device: 0})
	require.Equal(t, driver.InvalidValue, res)
}

func TestLinearAllocation(t *testing.T) {
	d := testDriver()

	ptr, res := d.MemAlloc(1000)
	require.Equal(t, driver.Success, res)
	require.NotZero(t, ptr)
	require.Equal(t, 1000, d.CommittedBytes(0))

	free, res := d.FreeMemory(0)
	require.Equal(t, driver.Success, res)
	require.Equal(t, 5999000, free)

	src := make([]byte, 1000)
	for i := range src {
		src[i] = byte(i)
	}
	require.Equal(t, driver.Success, d.MemcpyHtoD(ptr, src))

	dst := make([]byte, 500)
	require.Equal(t, driver.Success, d.MemcpyDtoH(dst, ptr+500))
	require.Equal(t, src[500:], dst)

	require.Equal(t, driver.InvalidValue, d.MemcpyDtoH(make([]byte, 1001), ptr))

	require.Equal(t, driver.Success, d.MemFree(ptr))
	require.Equal(t, driver.InvalidValue, d.MemFree(ptr))
	require.Equal(t, 0, d.CommittedBytes(0))
	require.Equal(t, 0, d.LinearAllocations(0))
}

func TestLinearAllocationLimits(t *testing.T) {
	d := testDriver()

	_, res := d.MemAlloc(1000001)
	require.Equal(t, driver.OutOfMemory, res)

	_, res = d.MemAlloc(0)
	require.Equal(t, driver.InvalidValue, res)

	for i := 0; i < 6; i++ {
		_, res = d.MemAlloc(1000000)
		require.Equal(t, driver.Success, res)
	}

	_, res = d.MemAlloc(1)
	require.Equal(t, driver.OutOfMemory, res)
}

func TestVirtualMapping(t *testing.T) {
	d := testDriver()
	prop := driver.DevicePinnedProp(0)

	ptr, res := d.MemAddressReserve(1500000)
	require.Equal(t, driver.Success, res)
	require.Equal(t, 0, int(ptr)%500000)
	require.Equal(t, 1500000, d.TotalReservedBytes())
	require.Equal(t, 0, d.ReservedBytes(0))

	_, res = d.MemCreate(1500000, prop)
	require.Equal(t, driver.OutOfMemory, res)

	_, res = d.MemCreate(700000, prop)
	require.Equal(t, driver.InvalidValue, res)

	first, res := d.MemCreate(1000000, prop)
	require.Equal(t, driver.Success, res)
	second, res := d.MemCreate(500000, prop)
	require.Equal(t, driver.Success, res)
	require.Equal(t, 1500000, d.CommittedBytes(0))
	require.Equal(t, 2, d.LiveHandles(0))

	require.Equal(t, driver.Success, d.MemMap(ptr, 1000000, first))
	require.Equal(t, 1500000, d.ReservedBytes(0))
	require.Equal(t, 0, d.ReservedBytes(1))
	require.Equal(t, driver.InvalidValue, d.MemSetAccess(ptr, 1500000, 0))
	require.Equal(t, driver.Success, d.MemMap(ptr+1000000, 500000, second))

	// Memory is inaccessible until access is granted
	require.Equal(t, driver.IllegalAddress, d.MemcpyHtoD(ptr, []byte{1}))
	require.Equal(t, driver.Success, d.MemSetAccess(ptr, 1500000, 0))

	src := make([]byte, 1000)
	for i := range src {
		src[i] = byte(i % 251)
	}
	// Straddles both physical allocations
	require.Equal(t, driver.Success, d.MemcpyHtoD(ptr+999500, src))

	dst := make([]byte, 1000)
	require.Equal(t, driver.Success, d.MemcpyDtoH(dst, ptr+999500))
	require.Equal(t, src, dst)

	require.Equal(t, driver.InvalidValue, d.MemAddressFree(ptr, 1500000))

	require.Equal(t, driver.Success, d.MemUnmap(ptr, 1000000))
	require.Equal(t, driver.Success, d.MemRelease(first))
	require.Equal(t, driver.InvalidHandle, d.MemRelease(first))

	// Released while mapped: memory is returned at unmap
	require.Equal(t, driver.Success, d.MemRelease(second))
	require.Equal(t, 500000, d.CommittedBytes(0))
	require.Equal(t, driver.Success, d.MemUnmap(ptr+1000000, 500000))
	require.Equal(t, 0, d.CommittedBytes(0))
	require.Equal(t, 0, d.LiveHandles(0))

	require.Equal(t, driver.Success, d.MemAddressFree(ptr, 1500000))
	require.Equal(t, 0, d.ReservedBytes(0))
	require.Equal(t, 0, d.TotalReservedBytes())
}

func TestVirtualRangeOnNonCurrentDevice(t *testing.T) {
	d := testDriver()
	require.Equal(t, driver.Success, d.Use(0))

	// 3000 is not a multiple of device 0's granularity, but the range is not tied to a device yet
	ptr, res := d.MemAddressReserve(3000)
	require.Equal(t, driver.Success, res)

	prop := driver.DevicePinnedProp(1)
	handle, res := d.MemCreate(3000, prop)
	require.Equal(t, driver.Success, res)
	require.Equal(t, driver.Success, d.MemMap(ptr, 3000, handle))
	require.Equal(t, driver.Success, d.MemSetAccess(ptr, 3000, 1))

	require.Equal(t, 3000, d.ReservedBytes(1))
	require.Equal(t, 0, d.ReservedBytes(0))
	require.Equal(t, 3000, d.CommittedBytes(1))

	require.Equal(t, driver.Success, d.MemcpyHtoD(ptr, []byte{1, 2, 3}))

	require.Equal(t, driver.Success, d.MemUnmap(ptr, 3000))
	require.Equal(t, driver.Success, d.MemRelease(handle))
	require.Equal(t, driver.Success, d.MemAddressFree(ptr, 3000))
	require.Equal(t, 0, d.ReservedBytes(1))
	require.Equal(t, 0, d.TotalReservedBytes())
}

func TestAddressSpaceLimit(t *testing.T) {
	d := New(Options{
		Devices:      []DeviceOptions{{TotalMemory: 4096, Granularity: 1024}},
		AddressSpace: 4096,
	})

	ptr, res := d.MemAddressReserve(3072)
	require.Equal(t, driver.Success, res)

	_, res = d.MemAddressReserve(2048)
	require.Equal(t, driver.OutOfMemory, res)

	_, res = d.MemAddressReserve(0)
	require.Equal(t, driver.InvalidValue, res)

	require.Equal(t, driver.Success, d.MemAddressFree(ptr, 3072))
	_, res = d.MemAddressReserve(4096)
	require.Equal(t, driver.Success, res)
}

func TestFailMemCreate(t *testing.T) {
	failures := 0
	d := New(Options{
		Devices: []DeviceOptions{{TotalMemory: 4096, Granularity: 1024}},
		FailMemCreate: func(device, size int) bool {
			if size > 1024 {
				failures++
				return true
			}
			return false
		},
	})

	_, res := d.MemCreate(2048, driver.DevicePinnedProp(0))
	require.Equal(t, driver.OutOfMemory, res)

	_, res = d.MemCreate(1024, driver.DevicePinnedProp(0))
	require.Equal(t, driver.Success, res)
	require.Equal(t, 1, failures)
}

func TestStreams(t *testing.T) {
	d := testDriver()

	upload, res := d.DefaultStream(0, driver.StreamUpload)
	require.Equal(t, driver.Success, res)
	download, res := d.DefaultStream(0, driver.StreamDownload)
	require.Equal(t, driver.Success, res)
	require.NotEqual(t, upload, download)

	other, res := d.DefaultStream(1, driver.StreamUpload)
	require.Equal(t, driver.Success, res)
	require.NotEqual(t, upload, other)

	ptr, res := d.MemAlloc(4)
	require.Equal(t, driver.Success, res)

	require.Equal(t, driver.Success, d.MemcpyHtoDAsync(ptr, []byte{1, 2, 3, 4}, upload))
	require.Equal(t, 1, d.PendingOperations(upload))

	dst := make([]byte, 4)
	require.Equal(t, driver.Success, d.MemcpyDtoHAsync(dst, ptr, download))
	require.Equal(t, driver.Success, d.StreamSynchronize(download))
	// The download ran before the upload was synchronized
	require.Equal(t, []byte{0, 0, 0, 0}, dst)

	require.Equal(t, driver.Success, d.StreamSynchronize(upload))
	require.Equal(t, 0, d.PendingOperations(upload))

	require.Equal(t, driver.Success, d.MemcpyDtoHAsync(dst, ptr, download))
	require.Equal(t, driver.Success, d.StreamSynchronize(download))
	require.Equal(t, []byte{1, 2, 3, 4}, dst)

	require.Equal(t, driver.InvalidHandle, d.StreamSynchronize(1000))
}

func TestNullStreamWaitsForOtherStreams(t *testing.T) {
	d := testDriver()

	upload, res := d.DefaultStream(0, driver.StreamUpload)
	require.Equal(t, driver.Success, res)

	ptr, res := d.MemAlloc(2)
	require.Equal(t, driver.Success, res)

	require.Equal(t, driver.Success, d.MemcpyHtoDAsync(ptr, []byte{7, 9}, upload))

	dst := make([]byte, 2)
	require.Equal(t, driver.Success, d.MemcpyDtoH(dst, ptr))
	require.Equal(t, []byte{7, 9}, dst)
	require.Equal(t, 0, d.PendingOperations(upload))
}

func TestHostAllocations(t *testing.T) {
	d := testDriver()

	host, res := d.MemHostAlloc(128)
	require.Equal(t, driver.Success, res)
	require.Len(t, host, 128)
	require.Equal(t, 1, d.HostAllocations())

	// Reslicing does not change the allocation's identity
	require.Equal(t, driver.Success, d.MemFreeHost(host[:16]))
	require.Equal(t, 0, d.HostAllocations())
	require.Equal(t, driver.InvalidValue, d.MemFreeHost(host))

	_, res = d.MemHostAlloc(0)
	require.Equal(t, driver.InvalidValue, res)
}

func TestErrorNames(t *testing.T) {
	d := testDriver()

	name, ok := d.ErrorName(driver.OutOfMemory)
	require.True(t, ok)
	require.Equal(t, "CUDA_ERROR_OUT_OF_MEMORY", name)

	description, ok := d.ErrorString(driver.OutOfMemory)
	require.True(t, ok)
	require.Equal(t, "out of memory", description)

	_, ok = d.ErrorName(driver.Result(12345))
	require.False(t, ok)
}
