package indexer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the worker goroutines spawned by prepareAll's errgroup
// never outlive the Run call that launched them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
