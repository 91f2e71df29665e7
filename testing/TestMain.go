// Package testing flips the process into test mode before any package main
// can open database or redis connections. Handler tests blank-import it.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	if os.Getenv("TANA_TEST_MODE") == "" {
		_ = os.Setenv("TANA_TEST_MODE", "1")
	}
}

func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
