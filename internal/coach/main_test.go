package coach

import (
	"testing"

	"go.uber.org/goleak"
)

// Sessions spawn background goroutines for compaction and tool
// execution; the leak check catches any that outlive their test.
// genkit.Init installs a signal.NotifyContext watcher that lives for
// the process, so it is ignored.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("os/signal.signal_recv"),
	)
}
