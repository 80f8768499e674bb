package cam

import (
	"github.com/cockroachdb/errors"
	"github.com/cudabase/arsenal/memutils"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slices"
)

type liveBlock interface {
	Validate() error
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	printParameters(json *jwriter.ObjectState)
}

// blockRegistry tracks the blocks an allocator has handed out, keyed by the BlockID written into the
// caller's MemoryBlock. Allocators serialize access through their own mutex.
type blockRegistry[T liveBlock] struct {
	lastID BlockID
	blocks *swiss.Map[BlockID, T]
}

func (r *blockRegistry[T]) Init() {
	r.blocks = swiss.NewMap[BlockID, T](42)
}

func (r *blockRegistry[T]) Register(block T) BlockID {
	r.lastID++
	r.blocks.Put(r.lastID, block)
	return r.lastID
}

func (r *blockRegistry[T]) Unregister(id BlockID) {
	r.blocks.Delete(id)
}

func (r *blockRegistry[T]) Get(id BlockID) (T, bool) {
	return r.blocks.Get(id)
}

// IDs returns every live block id in ascending order
func (r *blockRegistry[T]) IDs() []BlockID {
	ids := make([]BlockID, 0, r.blocks.Count())
	r.blocks.Iter(func(id BlockID, _ T) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	return ids
}

func (r *blockRegistry[T]) Validate() error {
	for _, id := range r.IDs() {
		block, _ := r.blocks.Get(id)
		err := block.Validate()
		if err != nil {
			return errors.Wrapf(err, "block %d", id)
		}
	}

	return nil
}

func (r *blockRegistry[T]) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	r.blocks.Iter(func(_ BlockID, block T) bool {
		block.AddDetailedStatistics(stats)
		return false
	})
}

func (r *blockRegistry[T]) PrintDetailedMap(json *jwriter.ArrayState) {
	for _, id := range r.IDs() {
		block, _ := r.blocks.Get(id)

		obj := json.Object()
		obj.Name("Id").Int(int(id))
		block.printParameters(&obj)
		obj.End()
	}
}
