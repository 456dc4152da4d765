package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyLockStripes = 64

// keyLocks serializes writers of the same key across tiers without
// holding the coordinator lock during tier I/O. Distinct keys may share
// a stripe.
type keyLocks [keyLockStripes]sync.Mutex

func (k *keyLocks) lock(key string) *sync.Mutex {
	m := &k[xxhash.Sum64String(key)%keyLockStripes]
	m.Lock()
	return m
}
