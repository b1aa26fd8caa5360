package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
guard:
  enabled: true
  user_qps: 10
  api_qps: 100
breaker:
  error_threshold: 0.5
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestLoader(t *testing.T, dir string) Loader {
	t.Helper()
	l, err := New(&Config{Name: "bastion", Paths: []string{dir}, EnvPrefix: "BTEST"})
	require.NoError(t, err)
	return l
}

type guardSection struct {
	Enabled bool    `mapstructure:"enabled"`
	UserQPS float64 `mapstructure:"user_qps"`
	APIQPS  float64 `mapstructure:"api_qps"`
}

func TestLoadAndUnmarshal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bastion.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	var g guardSection
	require.NoError(t, l.UnmarshalKey("guard", &g))
	assert.True(t, g.Enabled)
	assert.Equal(t, 10.0, g.UserQPS)
	assert.Equal(t, 100.0, g.APIQPS)
	assert.Equal(t, 0.5, l.Get("breaker.error_threshold"))
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bastion.yaml", baseYAML)
	t.Setenv("BTEST_GUARD_USER_QPS", "3")

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	var g guardSection
	require.NoError(t, l.UnmarshalKey("guard", &g))
	assert.Equal(t, 3.0, g.UserQPS)
}

func TestEnvironmentSpecificConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bastion.yaml", baseYAML)
	writeFile(t, dir, "bastion.prod.yaml", "guard:\n  api_qps: 500\n")
	t.Setenv("BTEST_ENV", "prod")

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	var g guardSection
	require.NoError(t, l.UnmarshalKey("guard", &g))
	assert.Equal(t, 500.0, g.APIQPS)
	assert.Equal(t, 10.0, g.UserQPS)
}

func TestEmptyConfigFailsValidation(t *testing.T) {
	l := newTestLoader(t, t.TempDir())
	err := l.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsValidationFailed(err))
}

func TestMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bastion.yaml", "guard: [unclosed")

	l := newTestLoader(t, dir)
	err := l.Load(context.Background())
	require.Error(t, err)
	assert.False(t, IsValidationFailed(err))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bastion.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	_, err := l.Watch(context.Background(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "guard.user_qps")
	require.NoError(t, err)

	writeFile(t, dir, "bastion.yaml", "guard:\n  enabled: true\n  user_qps: 42\n")

	// 写文件可能触发多次事件（截断后再写入），只关心最终值
	deadline := time.After(5 * time.Second)
	for got := false; !got; {
		select {
		case ev := <-ch:
			assert.Equal(t, "guard.user_qps", ev.Key)
			assert.Equal(t, "file", ev.Source)
			got = ev.Value != nil && assert.EqualValues(t, 42, ev.Value)
		case <-deadline:
			t.Fatal("no change event received")
		}
	}

	cancel()
	closed := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-closed:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{EnvPrefix: "app"}
	cfg.setDefaults()
	assert.Equal(t, "config", cfg.Name)
	assert.Equal(t, "yaml", cfg.FileType)
	assert.Equal(t, "APP", cfg.EnvPrefix)
	assert.Equal(t, []string{".", "./config"}, cfg.Paths)
}
