package cam

import (
	"fmt"

	"github.com/cudabase/arsenal/driver"
)

// Strategy selects how device memory is obtained for a block
type Strategy int

const (
	// StrategyDefault allocates each block as one contiguous linear allocation on the current device
	StrategyDefault Strategy = iota
	// StrategyVirtual reserves a virtual address range and backs it with as many physical allocations
	// as are needed, halving the commitment size whenever the device cannot satisfy it
	StrategyVirtual
)

var strategyMapping = make(map[Strategy]string)

func (s Strategy) Register(str string) {
	strategyMapping[s] = str
}

func (s Strategy) String() string {
	str, ok := strategyMapping[s]
	if !ok {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return str
}

func init() {
	StrategyDefault.Register("StrategyDefault")
	StrategyVirtual.Register("StrategyVirtual")
}

// Allocator populates MemoryBlocks with device memory and moves bytes in and out of them.
//
// Upload and Download copy exactly block.Size bytes. A zero stream copies synchronously; any other
// stream only enqueues the copy, and the caller must synchronize the stream before touching host.
type Allocator interface {
	Strategy() Strategy
	Allocate(block *MemoryBlock) error
	Free(block *MemoryBlock) error
	Upload(block *MemoryBlock, host []byte, stream driver.Stream) error
	Download(block *MemoryBlock, host []byte, stream driver.Stream) error
}
