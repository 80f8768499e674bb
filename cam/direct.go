package cam

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/cam/internal/device"
	"github.com/cudabase/arsenal/cam/internal/utils"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

type directBlock struct {
	device int
	ptr    driver.DevicePtr
	size   int
}

func (b *directBlock) Validate() error {
	if b.ptr == 0 || b.size <= 0 {
		return errors.Newf("linear allocation %#x on device %d has size %d", b.ptr, b.device, b.size)
	}

	return nil
}

func (b *directBlock) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.AddBlock(b.size)
	stats.AddAllocation(b.size)
}

func (b *directBlock) printParameters(json *jwriter.ObjectState) {
	json.Name("Device").Int(b.device)
	json.Name("AllocatedSize").Int(b.size)
}

// DirectAllocator serves each block with a single linear allocation of exactly block.Size bytes on
// the current device
type DirectAllocator struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex
	memory *device.DeviceMemory
	blocks blockRegistry[*directBlock]
}

var _ Allocator = &DirectAllocator{}

func newDirectAllocator(logger *slog.Logger, useMutex bool, memory *device.DeviceMemory) *DirectAllocator {
	allocator := &DirectAllocator{
		logger: logger,
		mutex:  utils.OptionalMutex{UseMutex: useMutex},
		memory: memory,
	}
	allocator.blocks.Init()

	return allocator
}

func (a *DirectAllocator) Strategy() Strategy {
	return StrategyDefault
}

// Allocate commits block.Size bytes for an empty block. A zero-sized block is left empty.
func (a *DirectAllocator) Allocate(block *MemoryBlock) error {
	a.logger.Debug("DirectAllocator::Allocate")

	err := checkAllocate(block)
	if err != nil {
		return err
	}

	if block.Size == 0 {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	dev, err := a.memory.CurrentDevice()
	if err != nil {
		return err
	}

	ptr, err := a.memory.Alloc(dev, block.Size)
	if err != nil {
		return err
	}
	a.memory.AddAllocation(dev, block.Size)

	block.ID = a.blocks.Register(&directBlock{
		device: dev,
		ptr:    ptr,
		size:   block.Size,
	})
	block.Handle = ptr
	block.Reserved = block.Size

	memutils.DebugValidate(block)
	return nil
}

func (a *DirectAllocator) lookup(block *MemoryBlock) (*directBlock, error) {
	entry, ok := a.blocks.Get(block.ID)
	if !ok || entry.ptr != block.Handle {
		return nil, errors.Wrapf(ErrInvalidArgument, "block %d was not allocated by this allocator", block.ID)
	}

	return entry, nil
}

// Free returns the block's memory to the device and clears the block. Freeing an empty block does
// nothing.
func (a *DirectAllocator) Free(block *MemoryBlock) error {
	a.logger.Debug("DirectAllocator::Free")

	if block == nil {
		return errors.Wrap(ErrInvalidArgument, "block is nil")
	}

	if block.IsEmpty() {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	entry, err := a.lookup(block)
	if err != nil {
		return err
	}

	a.blocks.Unregister(block.ID)
	block.clear()

	return a.free(entry)
}

func (a *DirectAllocator) free(entry *directBlock) error {
	a.memory.RemoveAllocation(entry.device, entry.size)
	return a.memory.Free(entry.device, entry.ptr, entry.size)
}

func (a *DirectAllocator) Upload(block *MemoryBlock, host []byte, stream driver.Stream) error {
	a.logger.Debug("DirectAllocator::Upload")

	err := checkTransfer(block, host)
	if err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	entry, err := a.lookup(block)
	if err != nil {
		return err
	}

	return a.memory.Upload(entry.device, block.Handle, host[:block.Size], stream)
}

func (a *DirectAllocator) Download(block *MemoryBlock, host []byte, stream driver.Stream) error {
	a.logger.Debug("DirectAllocator::Download")

	err := checkTransfer(block, host)
	if err != nil {
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	entry, err := a.lookup(block)
	if err != nil {
		return err
	}

	return a.memory.Download(entry.device, block.Handle, host[:block.Size], stream)
}

// Destroy frees every block that is still allocated. Blocks freed this way were leaked by their owner
// and are logged as unreleased memory.
func (a *DirectAllocator) Destroy() error {
	a.logger.Debug("DirectAllocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	var err error
	for _, id := range a.blocks.IDs() {
		entry, _ := a.blocks.Get(id)
		a.logger.Warn("[UNRELEASED MEMORY]",
			slog.String("strategy", StrategyDefault.String()),
			slog.Uint64("block", uint64(id)),
			slog.Int("device", entry.device),
			slog.Int("size", entry.size),
		)

		a.blocks.Unregister(id)
		err = errors.CombineErrors(err, a.free(entry))
	}

	return err
}

func (a *DirectAllocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.AddDetailedStatistics(stats)
}

func (a *DirectAllocator) PrintDetailedMap(json *jwriter.ArrayState) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.PrintDetailedMap(json)
}

func (a *DirectAllocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.blocks.Validate()
}
