package cam

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/driver/mocks"
	"github.com/cudabase/arsenal/driver/sim"
	"github.com/cudabase/arsenal/memutils"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestVirtualFragmentedDevice(t *testing.T) {
	drv, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
		Options: CreateOptions{VirtualHeadroom: 1},
	})

	first, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer first.Close()

	require.NoError(t, first.Initialize(4000000))
	require.Equal(t, 4000000, first.Size())
	require.Equal(t, 4000000, first.Reserved())
	require.Equal(t, 4000000, drv.CommittedBytes(0))
	require.Equal(t, 4, drv.LiveHandles(0))

	data := pattern(4000000, 3)
	require.NoError(t, first.Upload(data))

	second, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	err = second.Initialize(4000000)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.False(t, second.IsInitialized())
	require.Equal(t, 0, second.Size())

	readBack := make([]byte, len(data))
	require.NoError(t, first.Download(readBack))
	require.Equal(t, data, readBack)

	require.NoError(t, manager.Validate())
}

func TestVirtualRoundTripSizes(t *testing.T) {
	for _, size := range []int{1, 500000, 1500001, 5999999} {
		drv, manager := readyManager(t, ManagerSetup{
			Devices: []sim.DeviceOptions{fragmentedDevice()},
			Options: CreateOptions{VirtualHeadroom: 1},
		})

		buffer, err := manager.NewBuffer(StrategyVirtual)
		require.NoError(t, err)
		require.NoError(t, buffer.Initialize(size))

		reserved, err := memutils.RoundUp(size, 500000)
		require.NoError(t, err)
		require.Equal(t, size, buffer.Size())
		require.Equal(t, reserved, buffer.Reserved())
		require.Equal(t, reserved, drv.CommittedBytes(0))

		data := pattern(size, byte(size))
		require.NoError(t, buffer.Upload(data))

		readBack := make([]byte, size)
		require.NoError(t, buffer.Download(readBack))
		require.Equal(t, data, readBack)

		require.NoError(t, buffer.Close())
		require.Equal(t, 0, drv.CommittedBytes(0))
		require.Equal(t, 0, drv.TotalReservedBytes())
		require.Equal(t, 0, drv.LiveHandles(0))
	}
}

func TestVirtualAsyncRoundTrip(t *testing.T) {
	drv, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
		Options: CreateOptions{VirtualHeadroom: -1},
	})

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer buffer.Close()
	require.NoError(t, buffer.Initialize(2200000))

	upload, err := manager.DefaultStream(0, driver.StreamUpload)
	require.NoError(t, err)
	download, err := manager.DefaultStream(0, driver.StreamDownload)
	require.NoError(t, err)

	data := pattern(2200000, 9)
	require.NoError(t, buffer.UploadAsync(data, upload))
	require.Equal(t, 3, drv.PendingOperations(upload))
	require.NoError(t, manager.Synchronize(upload))
	require.Equal(t, 0, drv.PendingOperations(upload))

	readBack := make([]byte, len(data))
	require.NoError(t, buffer.DownloadAsync(readBack, download))
	require.Equal(t, make([]byte, len(data)), readBack)
	require.NoError(t, manager.Synchronize(download))
	require.Equal(t, data, readBack)
}

func TestVirtualSelectsDeviceWithRoom(t *testing.T) {
	drv, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{
			{TotalMemory: 1000000, Granularity: 1000},
			{TotalMemory: 5000000, Granularity: 1000},
		},
		Options: CreateOptions{VirtualHeadroom: 100},
	})

	small, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer small.Close()
	require.NoError(t, small.Initialize(999900))
	require.Equal(t, 1000000, drv.CommittedBytes(0))

	large, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer large.Close()
	require.NoError(t, large.Initialize(2000000))
	require.Equal(t, 2000000, drv.CommittedBytes(1))

	// Neither device has room for this plus headroom
	huge, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	err = huge.Initialize(2999901)
	require.True(t, errors.Is(err, ErrOutOfMemory))
}

func TestVirtualDefaultHeadroom(t *testing.T) {
	_, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{{TotalMemory: 100 * megabyte, Granularity: megabyte}},
	})

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer buffer.Close()

	err = buffer.Initialize(40 * megabyte)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	require.NoError(t, buffer.Initialize(30*megabyte))
}

func TestVirtualRejectsZeroSize(t *testing.T) {
	_, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
	})

	block := &MemoryBlock{}
	err := manager.VirtualAllocator().Allocate(block)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	require.True(t, block.IsEmpty())
}

func TestVirtualRollbackOnCommitFailure(t *testing.T) {
	creates := 0
	failing := true
	var logOutput bytes.Buffer
	drv, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
		FailMemCreate: func(device, size int) bool {
			creates++
			return failing && creates > 4
		},
		Options:   CreateOptions{VirtualHeadroom: -1},
		LogOutput: &logOutput,
	})

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)

	err = buffer.Initialize(3000000)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.False(t, buffer.IsInitialized())
	// 3M and 1.5M exceed the largest chunk, two 1M pieces succeed, then 1M and 500k are refused
	require.Equal(t, 6, creates)

	require.Equal(t, 0, drv.CommittedBytes(0))
	require.Equal(t, 0, drv.TotalReservedBytes())
	require.Equal(t, 0, drv.LiveHandles(0))

	// Only the final refusal is reported
	require.Equal(t, 1, strings.Count(logOutput.String(), `"level":"ERROR"`))

	stats := manager.CalculateStatistics()
	require.Equal(t, 0, stats.Devices[0].BlockCount)
	require.Equal(t, 0, stats.Devices[0].BlockBytes)
	require.Equal(t, 0, stats.Total.AllocationCount)

	// Nothing was left behind: the whole device can be committed again
	failing = false
	full, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	require.NoError(t, full.Initialize(6000000-1))
	require.Equal(t, 6000000, drv.CommittedBytes(0))
	require.Equal(t, 6000000, drv.ReservedBytes(0))

	data := pattern(6000000-1, 11)
	require.NoError(t, full.Upload(data))
	readBack := make([]byte, len(data))
	require.NoError(t, full.Download(readBack))
	require.Equal(t, data, readBack)

	require.NoError(t, full.Close())
}

func TestVirtualHalvingLogsNoErrors(t *testing.T) {
	var logOutput bytes.Buffer
	_, manager := readyManager(t, ManagerSetup{
		Devices:   []sim.DeviceOptions{fragmentedDevice()},
		Options:   CreateOptions{VirtualHeadroom: 1},
		LogOutput: &logOutput,
	})

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer buffer.Close()

	// 4M and 2M are refused before four 1M pieces succeed
	require.NoError(t, buffer.Initialize(4000000))
	stats := manager.CalculateStatistics().Strategies[StrategyVirtual]
	require.Equal(t, 4, stats.BlockCount)
	require.Equal(t, 1000000, stats.BlockSizeMax)
	require.Zero(t, strings.Count(logOutput.String(), `"level":"ERROR"`))
}

func TestVirtualOnNonCurrentDevice(t *testing.T) {
	drv, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{
			{TotalMemory: 1000, Granularity: 7000},
			{TotalMemory: 5000000, Granularity: 1000},
		},
		Options: CreateOptions{VirtualHeadroom: -1},
	})

	current, res := drv.CurrentDevice()
	require.Equal(t, driver.Success, res)
	require.Equal(t, 0, current)

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	require.NoError(t, buffer.Initialize(12000))
	require.Equal(t, 12000, buffer.Reserved())

	require.Equal(t, 12000, drv.CommittedBytes(1))
	require.Equal(t, 12000, drv.ReservedBytes(1))
	require.Equal(t, 0, drv.CommittedBytes(0))
	require.Equal(t, 0, drv.ReservedBytes(0))

	data := pattern(12000, 12)
	require.NoError(t, buffer.Upload(data))
	readBack := make([]byte, len(data))
	require.NoError(t, buffer.Download(readBack))
	require.Equal(t, data, readBack)

	require.NoError(t, buffer.Close())
	require.Equal(t, 0, drv.TotalReservedBytes())
	require.Equal(t, 0, drv.CommittedBytes(1))
}

func TestVirtualStatsKeepAllocatedSize(t *testing.T) {
	_, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
		Options: CreateOptions{VirtualHeadroom: -1},
	})

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	defer buffer.Close()
	require.NoError(t, buffer.Initialize(1200000))

	// Resizing in place is the Buffer's business, the allocator reports what it handed out
	require.NoError(t, buffer.Initialize(100))
	require.Equal(t, 100, buffer.Size())

	stats := manager.CalculateStatistics()
	require.Equal(t, 1200000, stats.Strategies[StrategyVirtual].AllocationBytes)

	var parsed struct {
		DetailedMap struct {
			StrategyVirtual []struct {
				AllocatedSize int
				Reserved      int
			}
		}
	}
	require.NoError(t, json.Unmarshal([]byte(manager.BuildStatsString(true)), &parsed))
	require.Len(t, parsed.DetailedMap.StrategyVirtual, 1)
	require.Equal(t, 1200000, parsed.DetailedMap.StrategyVirtual[0].AllocatedSize)
	require.Equal(t, 1500000, parsed.DetailedMap.StrategyVirtual[0].Reserved)
}

func TestVirtualFreeForeignBlock(t *testing.T) {
	_, manager := readyManager(t, ManagerSetup{
		Devices: []sim.DeviceOptions{fragmentedDevice()},
		Options: CreateOptions{VirtualHeadroom: -1},
	})

	block := &MemoryBlock{Size: 100}
	require.NoError(t, manager.DirectAllocator().Allocate(block))

	err := manager.VirtualAllocator().Free(block)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	require.False(t, block.IsEmpty())

	require.NoError(t, manager.DirectAllocator().Free(block))
	require.True(t, block.IsEmpty())
}

const mockRange driver.DevicePtr = 0x10000

func readyVirtualMock(t *testing.T, ctrl *gomock.Controller, granularity int) (*mocks.MockDriver, *Manager) {
	drv, manager := readyMockManager(t, ctrl, MockManagerSetup{
		DeviceCount: 1,
		Options:     CreateOptions{VirtualHeadroom: -1},
	})

	drv.EXPECT().FreeMemory(0).Return(1<<30, driver.Success).AnyTimes()
	drv.EXPECT().AllocationGranularity(driver.DevicePinnedProp(0)).Return(granularity, driver.Success).AnyTimes()

	return drv, manager
}

func TestVirtualHalvingSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv, manager := readyVirtualMock(t, ctrl, 100)

	prop := driver.DevicePinnedProp(0)
	gomock.InOrder(
		drv.EXPECT().MemAddressReserve(400).Return(mockRange, driver.Success),
		drv.EXPECT().MemCreate(400, prop).Return(driver.MemHandle(0), driver.OutOfMemory),
		drv.EXPECT().MemCreate(200, prop).Return(driver.MemHandle(1), driver.Success),
		drv.EXPECT().MemMap(mockRange, 200, driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemCreate(200, prop).Return(driver.MemHandle(0), driver.OutOfMemory),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(2), driver.Success),
		drv.EXPECT().MemMap(mockRange+200, 100, driver.MemHandle(2)).Return(driver.Success),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(3), driver.Success),
		drv.EXPECT().MemMap(mockRange+300, 100, driver.MemHandle(3)).Return(driver.Success),
		drv.EXPECT().MemSetAccess(mockRange, 400, 0).Return(driver.Success),
	)

	buffer, err := manager.NewBuffer(StrategyVirtual)
	require.NoError(t, err)
	require.NoError(t, buffer.Initialize(350))
	require.Equal(t, mockRange, buffer.Handle())
	require.Equal(t, 350, buffer.Size())
	require.Equal(t, 400, buffer.Reserved())

	data := pattern(350, 1)
	gomock.InOrder(
		drv.EXPECT().MemcpyHtoD(mockRange, data[0:200]).Return(driver.Success),
		drv.EXPECT().MemcpyHtoD(mockRange+200, data[200:300]).Return(driver.Success),
		drv.EXPECT().MemcpyHtoD(mockRange+300, data[300:350]).Return(driver.Success),
	)
	require.NoError(t, buffer.Upload(data))

	gomock.InOrder(
		drv.EXPECT().MemUnmap(mockRange, 200).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemUnmap(mockRange+200, 100).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(2)).Return(driver.Success),
		drv.EXPECT().MemUnmap(mockRange+300, 100).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(3)).Return(driver.Success),
		drv.EXPECT().MemAddressFree(mockRange, 400).Return(driver.Success),
	)
	require.NoError(t, buffer.Close())
	require.False(t, buffer.IsInitialized())
}

func TestVirtualRollbackAtGranularity(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv, manager := readyVirtualMock(t, ctrl, 100)

	prop := driver.DevicePinnedProp(0)
	gomock.InOrder(
		drv.EXPECT().MemAddressReserve(300).Return(mockRange, driver.Success),
		drv.EXPECT().MemCreate(300, prop).Return(driver.MemHandle(0), driver.OutOfMemory),
		drv.EXPECT().MemCreate(200, prop).Return(driver.MemHandle(1), driver.Success),
		drv.EXPECT().MemMap(mockRange, 200, driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(0), driver.OutOfMemory),
		drv.EXPECT().MemUnmap(mockRange, 200).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemAddressFree(mockRange, 300).Return(driver.Success),
	)

	block := &MemoryBlock{Size: 300}
	err := manager.VirtualAllocator().Allocate(block)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.True(t, block.IsEmpty())
	require.Equal(t, 0, manager.CalculateStatistics().Devices[0].BlockBytes)
}

func TestVirtualRollbackOnMapFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv, manager := readyVirtualMock(t, ctrl, 100)

	prop := driver.DevicePinnedProp(0)
	gomock.InOrder(
		drv.EXPECT().MemAddressReserve(200).Return(mockRange, driver.Success),
		drv.EXPECT().MemCreate(200, prop).Return(driver.MemHandle(1), driver.Success),
		drv.EXPECT().MemMap(mockRange, 200, driver.MemHandle(1)).Return(driver.InvalidValue),
		drv.EXPECT().MemRelease(driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemAddressFree(mockRange, 200).Return(driver.Success),
	)

	block := &MemoryBlock{Size: 150}
	err := manager.VirtualAllocator().Allocate(block)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrOutOfMemory))

	var driverErr *DriverError
	require.True(t, errors.As(err, &driverErr))
	require.Equal(t, driver.InvalidValue, driverErr.Code)
	require.Equal(t, "MemMap", driverErr.Function)

	require.True(t, block.IsEmpty())
}

func TestVirtualRollbackOnSetAccessFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv, manager := readyVirtualMock(t, ctrl, 100)

	prop := driver.DevicePinnedProp(0)
	gomock.InOrder(
		drv.EXPECT().MemAddressReserve(100).Return(mockRange, driver.Success),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(1), driver.Success),
		drv.EXPECT().MemMap(mockRange, 100, driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemSetAccess(mockRange, 100, 0).Return(driver.InvalidValue),
		drv.EXPECT().MemUnmap(mockRange, 100).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemAddressFree(mockRange, 100).Return(driver.Success),
	)

	block := &MemoryBlock{Size: 100}
	err := manager.VirtualAllocator().Allocate(block)
	require.Error(t, err)
	require.True(t, block.IsEmpty())
}

func TestVirtualFreeIsBestEffort(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv, manager := readyVirtualMock(t, ctrl, 100)

	prop := driver.DevicePinnedProp(0)
	gomock.InOrder(
		drv.EXPECT().MemAddressReserve(200).Return(mockRange, driver.Success),
		drv.EXPECT().MemCreate(200, prop).Return(driver.MemHandle(0), driver.OutOfMemory),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(1), driver.Success),
		drv.EXPECT().MemMap(mockRange, 100, driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemCreate(100, prop).Return(driver.MemHandle(2), driver.Success),
		drv.EXPECT().MemMap(mockRange+100, 100, driver.MemHandle(2)).Return(driver.Success),
		drv.EXPECT().MemSetAccess(mockRange, 200, 0).Return(driver.Success),
	)

	block := &MemoryBlock{Size: 200}
	require.NoError(t, manager.VirtualAllocator().Allocate(block))

	gomock.InOrder(
		drv.EXPECT().MemUnmap(mockRange, 100).Return(driver.InvalidValue),
		drv.EXPECT().MemRelease(driver.MemHandle(1)).Return(driver.Success),
		drv.EXPECT().MemUnmap(mockRange+100, 100).Return(driver.Success),
		drv.EXPECT().MemRelease(driver.MemHandle(2)).Return(driver.Success),
		drv.EXPECT().MemAddressFree(mockRange, 200).Return(driver.Success),
	)

	err := manager.VirtualAllocator().Free(block)
	require.Error(t, err)
	require.True(t, block.IsEmpty())
	require.Empty(t, manager.VirtualAllocator().blocks.IDs())
}
