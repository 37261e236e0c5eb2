package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/capture"
)

// chdir switches to an empty directory so no stray csvscenario.yaml is
// picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "", cfg.Browser.Window)
	assert.Equal(t, 10, cfg.Capture.Overlap)
	assert.Equal(t, time.Second, cfg.Capture.Settle)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.RestoreSettle)
	assert.Equal(t, "", cfg.Run.DB)
	assert.Equal(t, "", cfg.File)
}

func TestLoad_WorkingDirectoryFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
browser:
  headless: true
  window: 1024x768
capture:
  overlap: 20
  settle: 250ms
run:
  db: runs.db
`), 0644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 20, cfg.Capture.Overlap)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.Settle)
	assert.Equal(t, "runs.db", cfg.Run.DB)
	assert.Contains(t, cfg.File, FileName)

	size, err := cfg.Browser.WindowSize()
	require.NoError(t, err)
	assert.Equal(t, browser.Size{Width: 1024, Height: 768}, size)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	chdir(t)

	_, err := Load(New(), "missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config missing.yaml")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  timeout: 3s\n"), 0644))
	t.Setenv("CSVSCENARIO_BROWSER_TIMEOUT", "7s")
	t.Setenv("CSVSCENARIO_RUN_SCREENSHOT_DIR", "shots")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "shots", cfg.Run.ScreenshotDir)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	chdir(t)
	t.Setenv("CSVSCENARIO_BROWSER_HEADLESS", "false")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Bool("headless", false, "")
	fs.String("window", "", "")
	require.NoError(t, fs.Parse([]string{"--headless", "--window", "800x600"}))

	v := New()
	require.NoError(t, BindFlags(v, fs, map[string]string{
		KeyHeadless: "headless",
		KeyWindow:   "window",
		KeyDB:       "db", // not defined on fs
	}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "800x600", cfg.Browser.Window)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t)

	t.Run("window", func(t *testing.T) {
		t.Setenv("CSVSCENARIO_BROWSER_WINDOW", "wide")
		_, err := Load(New(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid window size")
	})

	t.Run("overlap", func(t *testing.T) {
		t.Setenv("CSVSCENARIO_CAPTURE_OVERLAP", "-1")
		_, err := Load(New(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), KeyOverlap)
	})
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    browser.Size
		wantErr bool
	}{
		{"", browser.Size{}, false},
		{"1280x900", browser.Size{Width: 1280, Height: 900}, false},
		{" 800 X 600 ", browser.Size{Width: 800, Height: 600}, false},
		{"800", browser.Size{}, true},
		{"0x600", browser.Size{}, true},
		{"axb", browser.Size{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaptureConfig_Apply(t *testing.T) {
	e := capture.New(nil, nil)
	CaptureConfig{Overlap: 4, Settle: time.Millisecond}.Apply(e)

	assert.Equal(t, 4, e.Overlap)
	assert.Equal(t, time.Millisecond, e.Settle)
	assert.Equal(t, time.Duration(0), e.RestoreSettle)
}
