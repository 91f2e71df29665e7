package app

import (
	"os"
	"sync"
)

const testModeEnv = "TANA_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime side effects
// such as opening database and redis connections. Set by the testing
// package before any main runs.
func InTestMode() bool {
	return inTestMode()
}
