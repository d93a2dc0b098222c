package store

import (
	"path/filepath"
	"testing"

	"github.com/sells-group/analytics-copilot/internal/config"
)

func testStoreConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.sqlite"),
	}
}
