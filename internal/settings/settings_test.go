package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadClampsSearchTimeFloor(t *testing.T) {
	path := writeTemp(t, "search_time_minutes: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SearchTimeMinutes != 1 {
		t.Fatalf("expected SearchTimeMinutes clamped to 1, got %d", cfg.SearchTimeMinutes)
	}
}

func TestLoadPassesThroughValidValue(t *testing.T) {
	path := writeTemp(t, "search_time_minutes: 15\ntemp_download_directory: /tmp/dl\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SearchTimeMinutes != 15 {
		t.Fatalf("expected 15, got %d", cfg.SearchTimeMinutes)
	}
	if cfg.HasTargetDrivePlaceholder() {
		t.Fatal("did not expect a placeholder in a plain path")
	}
}

func TestHasTargetDrivePlaceholder(t *testing.T) {
	cfg := &Config{TempDownloadDirectory: "%[targetdrive]\\downloads\\temp"}
	if !cfg.HasTargetDrivePlaceholder() {
		t.Fatal("expected the literal token to be detected")
	}
}

func TestSchedulerSourceAdapter(t *testing.T) {
	cfg := &Config{SearchTimeMinutes: 7}
	src := SchedulerSource{Config: cfg}
	if src.SearchTimeMinutes() != 7 {
		t.Fatalf("expected adapter to forward the configured value, got %d", src.SearchTimeMinutes())
	}
}
