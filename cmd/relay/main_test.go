package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["token"])
}

func TestServeCommand_Flags(t *testing.T) {
	f := serveCmd.Flags().Lookup("port")
	require.NotNil(t, f)
	assert.Equal(t, "p", f.Shorthand)
	assert.Equal(t, "", f.DefValue)

	v := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, v)
	assert.Equal(t, "false", v.DefValue)
}

func TestNewLogger(t *testing.T) {
	verbose = true
	t.Cleanup(func() { verbose = false })

	logger, err := newLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "development logger enables debug")

	verbose = false
	logger, err = newLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}
