// Package testing switches the worksite binaries into test mode. Test
// packages import it for its side effect.
package testing

import (
	"os"
	stdtesting "testing"
)

const testModeEnv = "WORKSITE_TEST_MODE"

func init() {
	if _, ok := os.LookupEnv(testModeEnv); !ok {
		_ = os.Setenv(testModeEnv, "1")
	}
}

// TestMain runs m with test mode enabled.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
