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

// physicalSuballocation is one physical allocation mapped into a virtual block at offset
type physicalSuballocation struct {
	ptr    driver.DevicePtr
	handle driver.MemHandle
	offset int
	size   int
}

type virtualBlock struct {
	device int
	ptr    driver.DevicePtr
	// size is the logical size the block was allocated with. Buffers resize within the reservation
	// without telling the allocator, so it may differ from the owner's current Size.
	size     int
	reserved int
	// Sorted by offset, covering [0, reserved) without gaps
	suballocations []physicalSuballocation
}

func (b *virtualBlock) Validate() error {
	if b.ptr == 0 {
		return errors.Newf("virtual block on device %d has no address range", b.device)
	}

	if b.size <= 0 || b.reserved < b.size {
		return errors.Newf("virtual block %#x has size %d and reservation %d", b.ptr, b.size, b.reserved)
	}

	offset := 0
	for _, sub := range b.suballocations {
		if sub.offset != offset {
			return errors.Newf("virtual block %#x has a suballocation at offset %d, expected %d", b.ptr, sub.offset, offset)
		}

		if sub.size <= 0 || sub.ptr != b.ptr+driver.DevicePtr(sub.offset) {
			return errors.Newf("virtual block %#x has a malformed suballocation at offset %d", b.ptr, sub.offset)
		}

		offset += sub.size
	}

	if offset != b.reserved {
		return errors.Newf("virtual block %#x suballocations cover %d bytes but %d are reserved", b.ptr, offset, b.reserved)
	}

	return nil
}

func (b *virtualBlock) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for _, sub := range b.suballocations {
		stats.AddBlock(sub.size)
	}
	stats.AddAllocation(b.size)
}

func (b *virtualBlock) printParameters(json *jwriter.ObjectState) {
	json.Name("Device").Int(b.device)
	json.Name("AllocatedSize").Int(b.size)
	json.Name("Reserved").Int(b.reserved)

	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	for _, sub := range b.suballocations {
		obj := arrayState.Object()
		obj.Name("Offset").Int(sub.offset)
		obj.Name("Size").Int(sub.size)
		obj.End()
	}
}

// VirtualAllocator serves each block with a reserved virtual address range backed by one or more
// physical allocations. When a device cannot commit a piece of the requested size, the piece is halved
// until it reaches the allocation granularity, so fragmented free memory can still be used.
type VirtualAllocator struct {
	logger   *slog.Logger
	mutex    utils.OptionalMutex
	memory   *device.DeviceMemory
	headroom int
	blocks   blockRegistry[*virtualBlock]
}

var _ Allocator = &VirtualAllocator{}

func newVirtualAllocator(logger *slog.Logger, useMutex bool, memory *device.DeviceMemory, headroom int) *VirtualAllocator {
	allocator := &VirtualAllocator{
		logger:   logger,
		mutex:    utils.OptionalMutex{UseMutex: useMutex},
		memory:   memory,
		headroom: headroom,
	}
	allocator.blocks.Init()

	return allocator
}

func (a *VirtualAllocator) Strategy() Strategy {
	return StrategyVirtual
}

// Allocate places the block on the first device with enough free memory, reserves an address range
// of block.Size rounded up to the device granularity, and commits physical memory to cover it.
// Size is left as requested and the rounded capacity is written to Reserved.
func (a *VirtualAllocator) Allocate(block *MemoryBlock) error {
	a.logger.Debug("VirtualAllocator::Allocate")

	err := checkAllocate(block)
	if err != nil {
		return err
	}

	if block.Size == 0 {
		return errors.Wrap(ErrInvalidArgument, "virtual blocks must have a positive size")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	dev, err := a.selectDevice(block.Size)
	if err != nil {
		return err
	}

	granularity, err := a.memory.Granularity(dev)
	if err != nil {
		return err
	}

	reserved, err := memutils.RoundUp(block.Size, granularity)
	if err != nil {
		return err
	}

	entry, err := a.commit(dev, block.Size, reserved, granularity)
	if err != nil {
		return err
	}
	a.memory.AddAllocation(dev, block.Size)

	block.ID = a.blocks.Register(entry)
	block.Handle = entry.ptr
	block.Reserved = reserved

	memutils.DebugValidate(entry)
	memutils.DebugValidate(block)
	return nil
}

// selectDevice returns the first device, in index order, whose free memory covers size plus the
// configured headroom
func (a *VirtualAllocator) selectDevice(size int) (int, error) {
	for index := 0; index < a.memory.DeviceCount(); index++ {
		free, err := a.memory.FreeMemory(index)
		if err != nil {
			return 0, err
		}

		if free >= size+a.headroom {
			return index, nil
		}
	}

	return 0, errors.Wrapf(ErrOutOfMemory, "no device has %d bytes free with %d bytes of headroom", size, a.headroom)
}

func (a *VirtualAllocator) commit(dev, size, reserved, granularity int) (_ *virtualBlock, err error) {
	ptr, err := a.memory.AddressReserve(dev, reserved)
	if err != nil {
		return nil, err
	}

	entry := &virtualBlock{
		device:   dev,
		ptr:      ptr,
		size:     size,
		reserved: reserved,
	}
	defer func() {
		// If we failed out, give back everything committed so far
		if err != nil {
			err = errors.CombineErrors(err, a.release(entry))
		}
	}()

	chunk := reserved
	offset := 0
	for offset < reserved {
		chunk = min(chunk, reserved-offset)

		handle, createErr := a.memory.TryCreate(dev, chunk)
		if createErr != nil {
			if chunk <= granularity {
				err = errors.CombineErrors(
					errors.Wrapf(ErrOutOfMemory, "device %d could not commit %d of %d bytes", dev, reserved-offset, reserved),
					createErr,
				)
				a.memory.Fail("virtual block could not be committed", err)
				return nil, err
			}

			a.logger.Debug("VirtualAllocator::commit halving",
				slog.Int("device", dev),
				slog.Int("refused", chunk),
				slog.String("error", createErr.Error()),
			)

			chunk, err = memutils.RoundUp(chunk/2, granularity)
			if err != nil {
				return nil, err
			}
			continue
		}

		sub := physicalSuballocation{
			ptr:    ptr + driver.DevicePtr(offset),
			handle: handle,
			offset: offset,
			size:   chunk,
		}

		err = a.memory.Map(dev, sub.ptr, sub.size, handle)
		if err != nil {
			return nil, errors.CombineErrors(err, a.memory.Release(dev, handle, sub.size))
		}

		entry.suballocations = append(entry.suballocations, sub)
		offset += chunk
	}

	err = a.memory.SetAccess(dev, ptr, reserved)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// release unmaps and releases every suballocation, then frees the address range. Every step is
// attempted even if earlier ones fail.
func (a *VirtualAllocator) release(entry *virtualBlock) error {
	var err error
	for _, sub := range entry.suballocations {
		err = errors.CombineErrors(err, a.memory.Unmap(entry.device, sub.ptr, sub.size))
		err = errors.CombineErrors(err, a.memory.Release(entry.device, sub.handle, sub.size))
	}
	entry.suballocations = nil

	return errors.CombineErrors(err, a.memory.AddressFree(entry.device, entry.ptr, entry.reserved))
}

func (a *VirtualAllocator) lookup(block *MemoryBlock) (*virtualBlock, error) {
	entry, ok := a.blocks.Get(block.ID)
	if !ok || entry.ptr != block.Handle {
		return nil, errors.Wrapf(ErrInvalidArgument, "block %d was not allocated by this allocator", block.ID)
	}

	return entry, nil
}

// Free releases every physical piece of the block and its address range, then clears the block. The
// block is cleared even if some driver calls fail; their errors are combined and returned.
func (a *VirtualAllocator) Free(block *MemoryBlock) error {
	a.logger.Debug("VirtualAllocator::Free")

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

	a.memory.RemoveAllocation(entry.device, entry.size)
	return a.release(entry)
}

// Upload copies block.Size bytes from host, one suballocation at a time in address order
func (a *VirtualAllocator) Upload(block *MemoryBlock, host []byte, stream driver.Stream) error {
	a.logger.Debug("VirtualAllocator::Upload")

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

	for _, sub := range entry.suballocations {
		if sub.offset >= block.Size {
			break
		}

		end := sub.offset + min(sub.size, block.Size-sub.offset)
		err = a.memory.Upload(entry.device, sub.ptr, host[sub.offset:end], stream)
		if err != nil {
			return err
		}
	}

	return nil
}

// Download copies block.Size bytes into host, one suballocation at a time in address order
func (a *VirtualAllocator) Download(block *MemoryBlock, host []byte, stream driver.Stream) error {
	a.logger.Debug("VirtualAllocator::Download")

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

	for _, sub := range entry.suballocations {
		if sub.offset >= block.Size {
			break
		}

		end := sub.offset + min(sub.size, block.Size-sub.offset)
		err = a.memory.Download(entry.device, sub.ptr, host[sub.offset:end], stream)
		if err != nil {
			return err
		}
	}

	return nil
}

// Destroy frees every block that is still allocated, logging each as unreleased memory
func (a *VirtualAllocator) Destroy() error {
	a.logger.Debug("VirtualAllocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	var err error
	for _, id := range a.blocks.IDs() {
		entry, _ := a.blocks.Get(id)
		a.logger.Warn("[UNRELEASED MEMORY]",
			slog.String("strategy", StrategyVirtual.String()),
			slog.Uint64("block", uint64(id)),
			slog.Int("device", entry.device),
			slog.Int("size", entry.size),
			slog.Int("reserved", entry.reserved),
		)

		a.blocks.Unregister(id)
		a.memory.RemoveAllocation(entry.device, entry.size)
		err = errors.CombineErrors(err, a.release(entry))
	}

	return err
}

func (a *VirtualAllocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.AddDetailedStatistics(stats)
}

func (a *VirtualAllocator) PrintDetailedMap(json *jwriter.ArrayState) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.blocks.PrintDetailedMap(json)
}

func (a *VirtualAllocator) Validate() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.blocks.Validate()
}
