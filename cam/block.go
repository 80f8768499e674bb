package cam

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
	"github.com/cudabase/arsenal/memutils"
)

// BlockID identifies a block within the allocator that populated it. The zero value means the block
// holds no memory.
type BlockID uint64

// MemoryBlock describes a region of device memory. Size is the number of bytes the owner may use and
// Reserved is the capacity actually committed, which may be larger. A MemoryBlock is owned by exactly
// one Buffer; allocators fill it in and clear it but never keep a reference to it.
type MemoryBlock struct {
	ID       BlockID
	Handle   driver.DevicePtr
	Size     int
	Reserved int
}

func (b *MemoryBlock) IsEmpty() bool {
	return b.Handle == 0
}

// Equal compares blocks by handle. Two blocks with the same handle describe the same memory, so their
// sizes must agree as well.
func (b *MemoryBlock) Equal(other *MemoryBlock) bool {
	if b.Handle != other.Handle {
		return false
	}

	memutils.DebugAssert(b.Size == other.Size && b.Reserved == other.Reserved,
		"blocks share handle %#x but have sizes %d/%d and reservations %d/%d",
		b.Handle, b.Size, other.Size, b.Reserved, other.Reserved)
	return true
}

func (b *MemoryBlock) Validate() error {
	if b.Handle == 0 {
		if b.ID != 0 || b.Reserved != 0 {
			return errors.Newf("empty block has id %d and reservation %d", b.ID, b.Reserved)
		}
		return nil
	}

	if b.ID == 0 {
		return errors.Newf("block %#x has no id", b.Handle)
	}

	if b.Size <= 0 {
		return errors.Newf("block %d has handle %#x but size %d", b.ID, b.Handle, b.Size)
	}

	if b.Reserved < b.Size {
		return errors.Newf("block %d has size %d larger than its reservation %d", b.ID, b.Size, b.Reserved)
	}

	return nil
}

func (b *MemoryBlock) clear() {
	*b = MemoryBlock{}
}

func checkAllocate(block *MemoryBlock) error {
	if block == nil {
		return errors.Wrap(ErrInvalidArgument, "block is nil")
	}

	if block.Size < 0 {
		return errors.Wrapf(ErrInvalidArgument, "block size %d is negative", block.Size)
	}

	if !block.IsEmpty() {
		return errors.Wrapf(ErrInvalidArgument, "block %d already holds memory", block.ID)
	}

	return nil
}

func checkTransfer(block *MemoryBlock, host []byte) error {
	if block == nil {
		return errors.Wrap(ErrInvalidArgument, "block is nil")
	}

	if block.IsEmpty() {
		return ErrNotInitialized
	}

	if host == nil {
		return errors.Wrap(ErrInvalidArgument, "host memory is nil")
	}

	if len(host) < block.Size {
		return errors.Wrapf(ErrInvalidArgument, "host memory holds %d bytes but block %d holds %d", len(host), block.ID, block.Size)
	}

	return nil
}
