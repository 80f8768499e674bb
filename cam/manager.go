package cam

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam/internal/device"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// DeviceInfo describes a device visible to the Manager
type DeviceInfo struct {
	Index       int
	Name        string
	TotalMemory int
}

// Manager is the entry point for device memory management. It owns one allocator per Strategy and
// hands out buffers bound to them. A Manager must be destroyed with Destroy, which releases any
// memory its buffers leaked.
type Manager struct {
	logger      *slog.Logger
	createFlags CreateFlags

	memory  *device.DeviceMemory
	devices []DeviceInfo
	direct  *DirectAllocator
	virtual *VirtualAllocator
}

// Allocator returns the allocator implementing strategy
func (m *Manager) Allocator(strategy Strategy) (Allocator, error) {
	switch strategy {
	case StrategyDefault:
		return m.direct, nil
	case StrategyVirtual:
		return m.virtual, nil
	}

	return nil, errors.Wrapf(ErrInvalidArgument, "unknown strategy %s", strategy)
}

func (m *Manager) DirectAllocator() *DirectAllocator {
	return m.direct
}

func (m *Manager) VirtualAllocator() *VirtualAllocator {
	return m.virtual
}

// NewBuffer creates an empty Buffer bound to the allocator for strategy
func (m *Manager) NewBuffer(strategy Strategy) (*Buffer, error) {
	allocator, err := m.Allocator(strategy)
	if err != nil {
		return nil, err
	}

	return NewBuffer(allocator), nil
}

// NewPinnedBuffer creates an empty PinnedBuffer bound to the allocator for strategy
func (m *Manager) NewPinnedBuffer(strategy Strategy) (*PinnedBuffer, error) {
	allocator, err := m.Allocator(strategy)
	if err != nil {
		return nil, err
	}

	return &PinnedBuffer{
		host:   m.memory,
		buffer: Buffer{allocator: allocator},
	}, nil
}

// Devices lists every device in index order
func (m *Manager) Devices() []DeviceInfo {
	devices := make([]DeviceInfo, len(m.devices))
	copy(devices, m.devices)
	return devices
}

func (m *Manager) FreeMemory(device int) (int, error) {
	return m.memory.FreeMemory(device)
}

// UseDevice makes device current. Linear allocations made by the DirectAllocator after this call are
// placed on it.
func (m *Manager) UseDevice(device int) error {
	m.logger.Debug("Manager::UseDevice")
	return m.memory.Use(device)
}

// DefaultStream returns one of the streams each device is created with
func (m *Manager) DefaultStream(device int, kind driver.StreamKind) (driver.Stream, error) {
	return m.memory.DefaultStream(device, kind)
}

// Synchronize blocks until all work queued on stream has completed
func (m *Manager) Synchronize(stream driver.Stream) error {
	dev, err := m.memory.CurrentDevice()
	if err != nil {
		return err
	}

	return m.memory.Synchronize(dev, stream)
}

// Validate checks the bookkeeping of both allocators
func (m *Manager) Validate() error {
	err := m.direct.Validate()
	if err != nil {
		return errors.Wrap(err, "direct allocator")
	}

	err = m.virtual.Validate()
	if err != nil {
		return errors.Wrap(err, "virtual allocator")
	}

	return nil
}

// Destroy frees every block either allocator still holds. Those blocks were leaked by their buffers
// and are logged as unreleased memory. The Manager must not be used afterwards.
func (m *Manager) Destroy() error {
	m.logger.Debug("Manager::Destroy")

	return errors.CombineErrors(m.direct.Destroy(), m.virtual.Destroy())
}

// Statistics summarizes the memory held through a Manager
type Statistics struct {
	// Devices holds the committed and handed-out memory per device, indexed by device
	Devices []memutils.Statistics
	// Strategies holds detailed statistics per allocator, indexed by Strategy
	Strategies [2]memutils.DetailedStatistics
	Total      memutils.DetailedStatistics
}

// CalculateStatistics collects the current statistics of the Manager
func (m *Manager) CalculateStatistics() *Statistics {
	stats := &Statistics{}
	stats.Total.Clear()

	for index := range m.devices {
		stats.Devices = append(stats.Devices, m.memory.Statistics(index))
	}

	stats.Strategies[StrategyDefault].Clear()
	m.direct.AddDetailedStatistics(&stats.Strategies[StrategyDefault])

	stats.Strategies[StrategyVirtual].Clear()
	m.virtual.AddDetailedStatistics(&stats.Strategies[StrategyVirtual])

	for i := range stats.Strategies {
		stats.Total.AddDetailedStatistics(&stats.Strategies[i])
	}

	return stats
}

func printStatistics(json *jwriter.ObjectState, stats *memutils.Statistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	printStatistics(json, &stats.Statistics)

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.BlockCount > 0 {
		json.Name("BlockSizeMin").Int(stats.BlockSizeMin)
		json.Name("BlockSizeMax").Int(stats.BlockSizeMax)
	}
}

// BuildStatsString produces a JSON document describing every device and the memory held on it. With
// detailed set, every live block is listed along with its physical pieces.
func (m *Manager) BuildStatsString(detailed bool) string {
	stats := m.CalculateStatistics()

	writer := jwriter.NewWriter()
	objState := writer.Object()

	general := objState.Name("General").Object()
	general.Name("CreateFlags").String(m.createFlags.String())
	general.Name("DeviceCount").Int(len(m.devices))
	general.End()

	total := objState.Name("Total").Object()
	printDetailedStatistics(&total, &stats.Total)
	total.End()

	devices := objState.Name("Devices").Array()
	for _, info := range m.devices {
		deviceObj := devices.Object()
		deviceObj.Name("Index").Int(info.Index)
		deviceObj.Name("Name").String(info.Name)
		deviceObj.Name("TotalMemory").Int(info.TotalMemory)

		free, err := m.memory.FreeMemory(info.Index)
		if err == nil {
			deviceObj.Name("FreeMemory").Int(free)
		}

		statsObj := deviceObj.Name("Stats").Object()
		printStatistics(&statsObj, &stats.Devices[info.Index])
		statsObj.End()

		deviceObj.End()
	}
	devices.End()

	strategies := objState.Name("Strategies").Object()
	for _, strategy := range []Strategy{StrategyDefault, StrategyVirtual} {
		strategyObj := strategies.Name(strategy.String()).Object()
		printDetailedStatistics(&strategyObj, &stats.Strategies[strategy])
		strategyObj.End()
	}
	strategies.End()

	if detailed {
		detailedMap := objState.Name("DetailedMap").Object()

		directBlocks := detailedMap.Name(StrategyDefault.String()).Array()
		m.direct.PrintDetailedMap(&directBlocks)
		directBlocks.End()

		virtualBlocks := detailedMap.Name(StrategyVirtual.String()).Array()
		m.virtual.PrintDetailedMap(&virtualBlocks)
		virtualBlocks.End()

		detailedMap.End()
	}

	objState.End()

	return string(writer.Bytes())
}
