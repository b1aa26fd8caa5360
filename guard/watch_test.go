package guard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bastion/config"
)

const watchYAML = `
guard:
  enabled: true
  user_qps: 5
  api_qps: 100
  ip_qps: 100
  breaker:
    enabled: true
    error_threshold: 0.5
    timeout: 2s
`

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bastion.yaml")
	require.NoError(t, os.WriteFile(file, []byte(watchYAML), 0o644))

	loader, err := config.New(&config.Config{Name: "bastion", Paths: []string{dir}, EnvPrefix: "BGUARDTEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var cfg Config
	require.NoError(t, loader.UnmarshalKey("guard", &cfg))
	assert.Equal(t, 2*time.Second, cfg.Breaker.Timeout, "breaker 段的字段平铺在 BreakerConfig 中")

	f := newFixture(t, cfg)
	assert.Equal(t, float64(5), f.guard.Config().UserQPS)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, loader, "guard", f.guard) }()

	// 等待 Watch 完成订阅后再修改文件
	time.Sleep(100 * time.Millisecond)
	updated := "guard:\n  enabled: true\n  user_qps: 42\n  api_qps: 100\n  ip_qps: 100\n"
	require.NoError(t, os.WriteFile(file, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return f.guard.Config().UserQPS == 42
	}, 5*time.Second, 20*time.Millisecond)
	assert.Nil(t, f.guard.Breakers(), "新配置未启用熔断")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestWatchKeepsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bastion.yaml")
	require.NoError(t, os.WriteFile(file, []byte(watchYAML), 0o644))
	t.Setenv("BGUARDENV_GUARD_USER_QPS", "7")

	loader, err := config.New(&config.Config{Name: "bastion", Paths: []string{dir}, EnvPrefix: "BGUARDENV"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var cfg Config
	require.NoError(t, loader.UnmarshalKey("guard", &cfg))
	assert.Equal(t, float64(7), cfg.UserQPS)

	f := newFixture(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, loader, "guard", f.guard) }()

	time.Sleep(100 * time.Millisecond)
	updated := "guard:\n  enabled: true\n  user_qps: 5\n  api_qps: 50\n  ip_qps: 100\n"
	require.NoError(t, os.WriteFile(file, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return f.guard.Config().APIQPS == 50
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, float64(7), f.guard.Config().UserQPS, "环境变量覆盖在重新加载后仍然生效")
}

func TestWatchInvalidKey(t *testing.T) {
	f := newFixture(t, limitsOnly())
	loader, err := config.New(&config.Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.Error(t, Watch(context.Background(), loader, "", f.guard))
}
