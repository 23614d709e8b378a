// Package testing switches the binaries into test mode so their main
// functions return before dialing Postgres or Redis.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
)

var once sync.Once

// EnsureTestMode sets ODYSSEY_TEST_MODE and makes app.InTestMode observe it.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		app.RefreshTestMode()
	})
}

func init() {
	EnsureTestMode()
}

// TestMain runs m in test mode.
func TestMain(m *stdtesting.M) {
	EnsureTestMode()
	os.Exit(m.Run())
}
