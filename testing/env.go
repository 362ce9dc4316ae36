// Package testing prepares the process environment for tests that build the
// bloodlink binaries or config. Import it for side effects:
//
//	import _ "github.com/bloodlink/bloodlink/testing"
package testing

import "os"

// Defaults applied when the variable is unset. Values already exported by the
// developer win, except the test mode switch which is always forced on.
var testEnv = map[string]string{
	"JWT_SECRET": "test-secret-not-for-production-use",
	"LOG_LEVEL":  "error",
}

func init() {
	_ = os.Setenv("BLOODLINK_TEST_MODE", "1")
	for key, value := range testEnv {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}
