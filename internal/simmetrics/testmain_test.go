package simmetrics_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine leaks across this package's tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
