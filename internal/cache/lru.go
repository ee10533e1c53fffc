// Package cache keeps hot link records off the datastore for resolve-time
// reads. Click accounting never goes through here; the store's conditional
// update stays the single source of truth for counters.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pebly/pebly/internal/models"
)

type LinkCache struct {
	c *lru.Cache[string, *models.Link]
}

func New(size int) (*LinkCache, error) {
	c, err := lru.New[string, *models.Link](size)
	if err != nil {
		return nil, err
	}
	return &LinkCache{c: c}, nil
}

func (lc *LinkCache) Get(code string) (*models.Link, bool) {
	return lc.c.Get(code)
}

func (lc *LinkCache) Set(code string, link *models.Link) {
	lc.c.Add(code, link)
}

func (lc *LinkCache) Invalidate(code string) {
	lc.c.Remove(code)
}
