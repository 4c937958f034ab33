package tools

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// FamilyKey is the input field that scopes a prefs.getBulk call.
const FamilyKey = "familyId"

// PrefsCache wraps an Executor and caches successful prefs.getBulk results
// per family and key set.  Concurrent misses for the same entry share one
// delegate call.  Every other tool passes straight through.
type PrefsCache struct {
	next  Executor
	cache *expirable.LRU[string, Result]
	group singleflight.Group
}

// NewPrefsCache returns a caching decorator around next.
func NewPrefsCache(next Executor, size int, ttl time.Duration) *PrefsCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PrefsCache{
		next:  next,
		cache: expirable.NewLRU[string, Result](size, nil, ttl),
	}
}

// Execute implements Executor.
func (c *PrefsCache) Execute(ctx context.Context, name string, input map[string]any) Result {
	if name != PrefsGetBulk {
		return c.next.Execute(ctx, name, input)
	}
	key := prefsKey(input)
	if r, ok := c.cache.Get(key); ok {
		return r
	}
	v, _, _ := c.group.Do(key, func() (any, error) {
		r := c.next.Execute(ctx, name, input)
		if r.Success {
			c.cache.Add(key, r)
		}
		return r, nil
	})
	return v.(Result)
}

// Invalidate drops every cached entry for familyID.
func (c *PrefsCache) Invalidate(familyID string) {
	prefix := familyID + "|"
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
}

func prefsKey(input map[string]any) string {
	family, _ := input[FamilyKey].(string)
	var keys []string
	switch ks := input["keys"].(type) {
	case []string:
		keys = append(keys, ks...)
	case []any:
		for _, k := range ks {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
	}
	sort.Strings(keys)
	return family + "|" + strings.Join(keys, ",")
}
