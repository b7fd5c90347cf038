package admission

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// tokenCache remembers player session ids that were recently admitted so that a
// replayed token is refused without another round trip to GameLift.
type tokenCache struct {
	cacheInstance *gocache.Cache
	ttl           time.Duration
}

func newTokenCache(ttl time.Duration) *tokenCache {
	return &tokenCache{cacheInstance: gocache.New(ttl, ttl), ttl: ttl}
}

// Reserve claims token, returning false if it was already claimed and has not
// expired. Concurrent callers with the same token see exactly one success.
func (c *tokenCache) Reserve(token string) bool {
	return c.cacheInstance.Add(token, time.Now(), c.ttl) == nil
}

// Release drops a claim, used when GameLift refuses the token.
func (c *tokenCache) Release(token string) {
	c.cacheInstance.Delete(token)
}

func (c *tokenCache) Len() int {
	return c.cacheInstance.ItemCount()
}
