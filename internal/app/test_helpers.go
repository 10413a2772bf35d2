package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/config"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/testutil"
)

// TestSettings returns the default settings with debug logging, an
// in-memory result store and value maps read from a temporary directory.
func TestSettings(t *testing.T) *config.Settings {
	t.Helper()
	s, err := config.Load("")
	if err != nil {
		t.Fatalf("loading default settings: %v", err)
	}
	s.Log.Level = "debug"
	s.Log.Format = "text"
	s.Store.Backend = config.StoreMemory
	s.Mapping.Dir = t.TempDir()
	return s
}

// SetupAppTest creates a new app instance for system testing. A nil
// settings uses TestSettings. The app is closed when the test ends.
func SetupAppTest(t *testing.T, settings *config.Settings, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()
	if settings == nil {
		settings = TestSettings(t)
	}

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, settings, modules...)
	if err != nil {
		t.Fatalf("creating app: %v", err)
	}

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("FLOWBRIDGE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
