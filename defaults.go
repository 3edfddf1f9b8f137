package gorawrstash

import (
	"runtime"
	"time"

	"github.com/Keksclan/goRawrStash/cache"
)

// DefaultOptions returns the recommended set of options for production use:
// dedicated executors sized to the machine with a short keep-alive, and
// eviction logs capped at a few per second.
func DefaultOptions() []Option {
	return []Option{
		WithPoolOptions(
			cache.WithPoolSize(max(2, runtime.GOMAXPROCS(0))),
			cache.WithKeepAlive(30*time.Second),
		),
		WithEvictionLogRate(5, 50),
	}
}
