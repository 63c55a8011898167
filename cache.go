package reactor

import (
	"sync"
)

// typeCache holds one cached value per TypeID. Reads don't take the registry
// lock so Cached stays cheap on the hot path.
type typeCache struct {
	data sync.Map
}

func newTypeCache() *typeCache {
	return &typeCache{}
}

func (c *typeCache) Load(key TypeID) (any, bool) {
	return c.data.Load(key)
}

func (c *typeCache) Store(key TypeID, value any) {
	c.data.Store(key, value)
}

func (c *typeCache) Delete(key TypeID) {
	c.data.Delete(key)
}

func (c *typeCache) Range(fn func(key TypeID, value any) bool) {
	c.data.Range(func(key, value any) bool {
		return fn(key.(TypeID), value)
	})
}

func (c *typeCache) Size() int {
	count := 0
	c.data.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

func (c *typeCache) Clear() {
	c.data.Range(func(key, value any) bool {
		c.data.Delete(key)
		return true
	})
}
