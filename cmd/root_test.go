package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"scan", "worker", "export-ready", "waitlist", "event", "ratelimit", "ledger", "migrate", "version"} {
		assert.Contains(t, names, want)
	}

	ledgerCmd, _, err := root.Find([]string{"ledger", "stats"})
	require.NoError(t, err)
	assert.Equal(t, "stats", ledgerCmd.Name())

	cancelCmd, _, err := root.Find([]string{"event", "notify-cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "notify-cancelled", cancelCmd.Name())
}

func TestRootCommand_VersionSkipsConfig(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "myeventlane dev")
}

func TestRootCommand_RequiredFlags(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"export-ready", "--format", "csv"})

	err := root.ExecuteContext(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
