package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metuDein/aaveflashbot/config"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["start"])
	assert.True(t, names["fund"])
	assert.True(t, names["quote"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}

func TestDisplayNetwork(t *testing.T) {
	assert.Equal(t, "Sepolia", displayNetwork("sepolia"))
	assert.Equal(t, "custom network", displayNetwork(""))
}

func TestNewNotifierWithoutTelegram(t *testing.T) {
	cfg := config.DefaultConfig()
	n, err := newNotifier(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	n.Notify("🔍 No profitable opportunity found")
	assert.NoError(t, n.Close(time.Second))
}

func TestSetupRejectsIncompleteConfig(t *testing.T) {
	t.Setenv(config.EnvRPCURL, "")
	t.Setenv(config.EnvInfuraKey, "")
	t.Setenv(config.EnvPrivateKey, "")
	t.Setenv(config.EnvArbContract, "")

	_, _, err := setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestExecuteContextRunsSubcommand(t *testing.T) {
	t.Setenv(config.EnvRPCURL, "")
	t.Setenv(config.EnvInfuraKey, "")
	t.Setenv(config.EnvPrivateKey, "")
	t.Setenv(config.EnvArbContract, "")

	rootCmd.SetArgs([]string{"quote"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
