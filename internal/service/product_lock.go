package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// productLocks serializes writers of the same product inside one process.
// Different products usually land on different stripes and proceed in parallel.
type productLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *productLocks) lock(productID string) func() {
	h := fnv.New32a()
	h.Write([]byte(productID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
