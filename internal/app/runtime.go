package app

import (
	"os"
	"sync"
)

// testModeEnv short-circuits startup so the binaries can be exec'd from
// integration tests without live Postgres or Redis behind them.
const testModeEnv = "DUKAPOS_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether runtime side effects should be skipped. The
// environment is read once; the answer is fixed for the process lifetime.
func InTestMode() bool {
	return inTestMode()
}
