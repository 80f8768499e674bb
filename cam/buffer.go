package cam

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
)

// noCopy may be embedded into structs which must not be copied after first use. go vet's copylocks
// check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Buffer owns a single MemoryBlock and the Allocator that populates it. A Buffer is either empty or
// ready; data can only be moved through a ready buffer. Buffers must not be copied, and should be
// closed when no longer needed:
//
//	buf, err := manager.NewBuffer(cam.StrategyVirtual)
//	if err != nil {
//		return err
//	}
//	defer buf.Close()
type Buffer struct {
	noCopy noCopy

	allocator Allocator
	block     MemoryBlock
}

// NewBuffer creates an empty buffer that will draw memory from allocator
func NewBuffer(allocator Allocator) *Buffer {
	return &Buffer{allocator: allocator}
}

// Initialize makes the buffer ready with room for size bytes. A ready buffer whose reservation already
// covers size is resized in place without allocating. A size of 0 empties the buffer. If allocation
// fails the buffer is left empty.
func (b *Buffer) Initialize(size int) error {
	if size < 0 {
		return errors.Wrapf(ErrInvalidArgument, "buffer size %d is negative", size)
	}

	if size == 0 {
		return b.Deinitialize()
	}

	if !b.block.IsEmpty() && b.block.Reserved >= size {
		b.block.Size = size
		return nil
	}

	err := b.Deinitialize()
	if err != nil {
		return err
	}

	b.block.Size = size
	err = b.allocator.Allocate(&b.block)
	if err != nil {
		b.block.clear()
		return err
	}

	return nil
}

// Deinitialize returns the buffer's memory to its allocator. It is safe to call on an empty buffer.
func (b *Buffer) Deinitialize() error {
	if b.block.IsEmpty() {
		b.block.clear()
		return nil
	}

	err := b.allocator.Free(&b.block)
	b.block.clear()
	return err
}

// Close deinitializes the buffer
func (b *Buffer) Close() error {
	return b.Deinitialize()
}

// Upload synchronously copies Size bytes from host into the buffer
func (b *Buffer) Upload(host []byte) error {
	return b.allocator.Upload(&b.block, host, 0)
}

// UploadAsync enqueues a copy of Size bytes from host on stream. host must stay untouched until the
// stream is synchronized.
func (b *Buffer) UploadAsync(host []byte, stream driver.Stream) error {
	return b.allocator.Upload(&b.block, host, stream)
}

// Download synchronously copies Size bytes from the buffer into host
func (b *Buffer) Download(host []byte) error {
	return b.allocator.Download(&b.block, host, 0)
}

// DownloadAsync enqueues a copy of Size bytes into host on stream. host is only valid once the stream
// is synchronized.
func (b *Buffer) DownloadAsync(host []byte, stream driver.Stream) error {
	return b.allocator.Download(&b.block, host, stream)
}

func (b *Buffer) IsInitialized() bool {
	return !b.block.IsEmpty()
}

func (b *Buffer) Handle() driver.DevicePtr {
	return b.block.Handle
}

func (b *Buffer) Size() int {
	if b.block.IsEmpty() {
		return 0
	}
	return b.block.Size
}

func (b *Buffer) Reserved() int {
	return b.block.Reserved
}

// Block returns a copy of the buffer's block descriptor
func (b *Buffer) Block() MemoryBlock {
	return b.block
}

func (b *Buffer) Allocator() Allocator {
	return b.allocator
}
