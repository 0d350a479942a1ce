package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func init() {
	logrus.SetLevel(logrus.TraceLevel)

	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			return
		}
	}
	logrus.StandardLogger().Out = io.Discard
}

// CaptureLogs records every entry written through the standard logger until
// the test completes. Hooks installed before the call are restored on cleanup.
func CaptureLogs(t *testing.T) *logtest.Hook {
	logger := logrus.StandardLogger()
	original := logger.ReplaceHooks(make(logrus.LevelHooks))
	hook := logtest.NewLocal(logger)
	t.Cleanup(func() {
		logger.ReplaceHooks(original)
	})
	return hook
}

// FindLogEntry returns the first captured entry with the given message
func FindLogEntry(hook *logtest.Hook, message string) (*logrus.Entry, bool) {
	for _, entry := range hook.AllEntries() {
		if entry.Message == message {
			return entry, true
		}
	}
	return nil, false
}
