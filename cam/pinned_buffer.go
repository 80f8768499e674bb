package cam

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/driver"
)

type hostMemory interface {
	HostAlloc(size int) ([]byte, error)
	FreeHost(host []byte) error
}

// PinnedBuffer is a Buffer paired with a page-locked host mirror of the same size. Data is staged in
// HostHandle and moved with Upload and Download. Page-locked memory is safe to use with the async
// transfer methods.
type PinnedBuffer struct {
	noCopy noCopy

	host   hostMemory
	mirror []byte
	buffer Buffer
}

// Initialize makes both the device block and the host mirror ready for size bytes. The host mirror is
// only reallocated when it is too small. If any step fails, the whole buffer is left empty.
func (p *PinnedBuffer) Initialize(size int) (err error) {
	if size < 0 {
		return errors.Wrapf(ErrInvalidArgument, "buffer size %d is negative", size)
	}

	if size == 0 {
		return p.Deinitialize()
	}

	defer func() {
		// If we failed out, don't leave half a buffer behind
		if err != nil {
			err = errors.CombineErrors(err, p.Deinitialize())
		}
	}()

	if len(p.mirror) < size {
		if p.mirror != nil {
			mirror := p.mirror
			p.mirror = nil

			err = p.host.FreeHost(mirror)
			if err != nil {
				return err
			}
		}

		p.mirror, err = p.host.HostAlloc(size)
		if err != nil {
			p.mirror = nil
			return err
		}
	}

	return p.buffer.Initialize(size)
}

// Deinitialize frees the host mirror and then the device block. Both are attempted even if the first
// fails.
func (p *PinnedBuffer) Deinitialize() error {
	var err error
	if p.mirror != nil {
		mirror := p.mirror
		p.mirror = nil
		err = p.host.FreeHost(mirror)
	}

	return errors.CombineErrors(err, p.buffer.Deinitialize())
}

func (p *PinnedBuffer) Close() error {
	return p.Deinitialize()
}

// HostHandle returns the host mirror, sized to the buffer's logical size. It is nil for an empty
// buffer.
func (p *PinnedBuffer) HostHandle() []byte {
	if !p.buffer.IsInitialized() || p.mirror == nil {
		return nil
	}

	return p.mirror[:p.buffer.Size()]
}

// Upload synchronously copies the host mirror into the device block
func (p *PinnedBuffer) Upload() error {
	return p.buffer.Upload(p.HostHandle())
}

func (p *PinnedBuffer) UploadAsync(stream driver.Stream) error {
	return p.buffer.UploadAsync(p.HostHandle(), stream)
}

// Download synchronously copies the device block into the host mirror
func (p *PinnedBuffer) Download() error {
	return p.buffer.Download(p.HostHandle())
}

func (p *PinnedBuffer) DownloadAsync(stream driver.Stream) error {
	return p.buffer.DownloadAsync(p.HostHandle(), stream)
}

func (p *PinnedBuffer) IsInitialized() bool {
	return p.buffer.IsInitialized()
}

func (p *PinnedBuffer) Handle() driver.DevicePtr {
	return p.buffer.Handle()
}

func (p *PinnedBuffer) Size() int {
	return p.buffer.Size()
}

func (p *PinnedBuffer) Reserved() int {
	return p.buffer.Reserved()
}

func (p *PinnedBuffer) Block() MemoryBlock {
	return p.buffer.Block()
}
