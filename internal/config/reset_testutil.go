package config

import "sync"

// resetForTest clears the load-once state so tests can exercise Load with
// different environments. Not for production use.
func resetForTest() {
	loadOnce = sync.Once{}
	loaded = nil
	loadErr = nil
}
