package query

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emberai/search-bridge/schema"
)

// Cache memoizes parsed queries. Parsing and schema validation dominate the
// cost of cheap repeated queries, and hosts tend to re-issue the same
// strings (pagination, refresh).
type Cache struct {
	lru *lru.Cache[string, *Query]
}

// NewCache creates a cache holding up to size parsed queries.
func NewCache(size int) (*Cache, error) {
	inner, err := lru.New[string, *Query](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner}, nil
}

// Parse is Parse with memoization. Queries are keyed by schema fingerprint,
// default fields and source, so one cache can serve many indexes.
func (c *Cache) Parse(s *schema.Schema, src string, defaultFields ...string) (*Query, error) {
	key := s.Fingerprint() + "\x00" + strings.Join(defaultFields, "\x00") + "\x00" + src
	if q, ok := c.lru.Get(key); ok {
		return q, nil
	}
	q, err := Parse(s, src, defaultFields...)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, q)
	return q, nil
}

// Len returns the number of cached queries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge empties the cache.
func (c *Cache) Purge() { c.lru.Purge() }
