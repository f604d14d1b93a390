package cache

import (
	"testing"
	"time"

	"github.com/mistfs/mistfs/internal/remote"
	"github.com/stretchr/testify/assert"
)

func TestGetMiss(t *testing.T) {
	c := New(time.Minute, time.Second)
	defer c.Stop()

	_, ok := c.Get("/a")
	assert.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	c := New(time.Minute, time.Second)
	defer c.Stop()

	listing := remote.Listing{Entries: []remote.MetaFile{{Name: "x"}}}
	c.Put("/a", listing)

	got, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, listing, got)
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute, time.Second)
	defer c.Stop()

	c.Put("/a", remote.Listing{})
	c.Invalidate("/a")

	_, ok := c.Get("/a")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	ttl := 30 * time.Millisecond
	c := New(ttl, 10*time.Millisecond)
	defer c.Stop()

	c.Put("/a", remote.Listing{})
	time.Sleep(ttl + 20*time.Millisecond)

	_, ok := c.Get("/a")
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	c := New(time.Minute, time.Second)
	defer c.Stop()

	c.Put("/a", remote.Listing{Entries: []remote.MetaFile{{Name: "1"}}})
	c.Put("/a", remote.Listing{Entries: []remote.MetaFile{{Name: "2"}}})

	got, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, "2", got.Entries[0].Name)
}
