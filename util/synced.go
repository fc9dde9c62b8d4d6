package util

import "sync/atomic"

// SafeCounter counts events across goroutines. The pipeline uses it to
// track corrective regenerations issued since startup.
type SafeCounter struct {
	value atomic.Int64
}

// NewSafeCounter creates a counter starting at zero.
func NewSafeCounter() *SafeCounter {
	return &SafeCounter{}
}

// Increment adds one and returns the new count.
func (c *SafeCounter) Increment() int {
	return int(c.value.Add(1))
}

// Value returns the current count.
func (c *SafeCounter) Value() int {
	return int(c.value.Load())
}

// SafeFlag is a boolean latch safe for concurrent use. Once a teardown
// path sets it, request paths observe it without holding any lock.
type SafeFlag struct {
	value atomic.Bool
}

// NewSafeFlag creates an unset flag.
func NewSafeFlag() *SafeFlag {
	return &SafeFlag{}
}

// Set stores v.
func (f *SafeFlag) Set(v bool) {
	f.value.Store(v)
}

// IsSet reports the current value.
func (f *SafeFlag) IsSet() bool {
	return f.value.Load()
}
