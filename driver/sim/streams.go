package sim

import "github.com/cudabase/arsenal/driver"

type stream struct {
	device  int
	pending []func()
}

func (d *Driver) DefaultStream(index int, kind driver.StreamKind) (driver.Stream, driver.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	dev, res := d.device(index)
	if res != driver.Success {
		return 0, res
	}

	if kind < 0 || int(kind) >= len(dev.defaultStreams) {
		return 0, driver.InvalidValue
	}

	return dev.defaultStreams[kind], driver.Success
}

func (d *Driver) StreamSynchronize(id driver.Stream) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// The null stream synchronizes with every other stream
	if id == 0 {
		for _, s := range d.streams {
			s.flush()
		}
		return driver.Success
	}

	s, ok := d.streams[id]
	if !ok {
		return driver.InvalidHandle
	}

	s.flush()
	return driver.Success
}

func (s *stream) flush() {
	for _, op := range s.pending {
		op()
	}
	s.pending = nil
}

// PendingOperations returns the number of queued operations that will run on the next synchronize
func (d *Driver) PendingOperations(id driver.Stream) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	s, ok := d.streams[id]
	if !ok {
		return 0
	}

	return len(s.pending)
}

// enqueue queues op on a stream. Work on the null stream waits for every other stream and then
// runs immediately.
func (d *Driver) enqueue(id driver.Stream, op func()) driver.Result {
	if id == 0 {
		for _, s := range d.streams {
			s.flush()
		}
		op()
		return driver.Success
	}

	s, ok := d.streams[id]
	if !ok {
		return driver.InvalidHandle
	}

	s.pending = append(s.pending, op)
	return driver.Success
}

func copyToDevice(segments [][]byte, src []byte) {
	for _, segment := range segments {
		copied := copy(segment, src)
		src = src[copied:]
	}
}

func copyFromDevice(dst []byte, segments [][]byte) {
	for _, segment := range segments {
		copied := copy(dst, segment)
		dst = dst[copied:]
	}
}

func (d *Driver) MemcpyHtoD(dst driver.DevicePtr, src []byte) driver.Result {
	return d.MemcpyHtoDAsync(dst, src, 0)
}

func (d *Driver) MemcpyHtoDAsync(dst driver.DevicePtr, src []byte, id driver.Stream) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	segments, res := d.resolve(dst, len(src))
	if res != driver.Success {
		return res
	}

	return d.enqueue(id, func() {
		copyToDevice(segments, src)
	})
}

func (d *Driver) MemcpyDtoH(dst []byte, src driver.DevicePtr) driver.Result {
	return d.MemcpyDtoHAsync(dst, src, 0)
}

func (d *Driver) MemcpyDtoHAsync(dst []byte, src driver.DevicePtr, id driver.Stream) driver.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	segments, res := d.resolve(src, len(dst))
	if res != driver.Success {
		return res
	}

	return d.enqueue(id, func() {
		copyFromDevice(dst, segments)
	})
}
