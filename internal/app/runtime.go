package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv disables network side effects in the binaries when set.
const TestModeEnv = "WORKSITE_TEST_MODE"

var (
	testModeMu  sync.RWMutex
	testMode    bool
	testModeSet bool
)

// InTestMode reports whether WORKSITE_TEST_MODE holds a true value. The
// variable is read once and cached until RefreshTestMode.
func InTestMode() bool {
	testModeMu.RLock()
	if testModeSet {
		defer testModeMu.RUnlock()
		return testMode
	}
	testModeMu.RUnlock()
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	testModeMu.Lock()
	testMode, testModeSet = on, true
	testModeMu.Unlock()
	return on
}
