package host

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/joeycumines/go-jsbridge/internal/functable"
)

// functionCache presents the function table to scripts as a plain object
// indexed by id. Only functions with in-range integer keys can be stored.
type functionCache struct {
	table *functable.Table[goja.Value]
}

var _ goja.DynamicObject = (*functionCache)(nil)

func (c *functionCache) Get(key string) goja.Value {
	id, ok := parseID(key)
	if !ok {
		return nil
	}
	fn, ok := c.table.Load(id)
	if !ok {
		return nil
	}
	return fn
}

func (c *functionCache) Set(key string, val goja.Value) bool {
	id, ok := parseID(key)
	if !ok {
		return false
	}
	if _, ok := goja.AssertFunction(val); !ok {
		return false
	}
	return c.table.Store(id, val, val.String())
}

func (c *functionCache) Has(key string) bool {
	id, ok := parseID(key)
	if !ok {
		return false
	}
	_, ok = c.table.Load(id)
	return ok
}

func (c *functionCache) Delete(key string) bool {
	id, ok := parseID(key)
	if !ok {
		return true
	}
	c.table.Delete(id)
	return true
}

func (c *functionCache) Keys() []string {
	ids := c.table.IDs()
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatUint(id, 10)
	}
	return keys
}

func parseID(key string) (uint64, bool) {
	id, err := strconv.ParseUint(key, 10, 64)
	return id, err == nil
}
