package database

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached builds the client for the memcached cache backend. The
// cache sits in the request path; the timeout stays tight.
func NewMemcached(server string) *memcache.Client {
	client := memcache.New(server)
	client.Timeout = 250 * time.Millisecond
	client.MaxIdleConns = 10
	return client
}
