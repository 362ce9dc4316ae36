package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv marks a process as running under `go test`. The testing package
// sets it from init so binaries never dial Postgres or Redis during tests.
const TestModeEnv = "BLOODLINK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return testModeEnabled(os.LookupEnv)
})

// InTestMode reports whether the main packages should return before opening
// connections. The environment is read on the first call only.
func InTestMode() bool {
	return testMode()
}

func testModeEnabled(lookup func(string) (string, bool)) bool {
	raw, ok := lookup(TestModeEnv)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(raw)
	return err == nil && on
}
