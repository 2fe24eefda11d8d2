package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(cmds []*cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd.Commands())

	expected := []string{"batch", "reconcile", "review", "runs", "scores", "import", "export", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "provider-reconcile", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.True(t, rootCmd.SilenceErrors)
}

func TestRootCommand_Groups(t *testing.T) {
	expected := map[string]string{
		"batch":     groupReconcile,
		"reconcile": groupReconcile,
		"review":    groupReconcile,
		"runs":      groupReport,
		"scores":    groupReport,
		"export":    groupReport,
		"import":    groupData,
		"migrate":   groupData,
		"serve":     groupServe,
	}

	for _, c := range rootCmd.Commands() {
		want, ok := expected[c.Name()]
		if !ok {
			continue
		}
		assert.Equal(t, want, c.GroupID, c.Name())
		assert.True(t, rootCmd.ContainsGroup(c.GroupID), c.Name())
	}
	assert.Len(t, rootCmd.Groups(), 4)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = batchCmd.Flags().Lookup("type")
	require.NotNil(t, flag, "batch command should have --type flag")
	assert.Equal(t, "daily", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
	assert.NotNil(t, importCmd.Flags().Lookup("documents"))
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "scores.xlsx", flag.DefValue)
}

func TestReviewCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(reviewCmd.Commands())
	for _, name := range []string{"list", "approve", "override", "reject"} {
		assert.True(t, names[name], "review should have subcommand %q", name)
	}

	assert.NotNil(t, reviewOverrideCmd.Flags().Lookup("value"))
	assert.Nil(t, reviewApproveCmd.Flags().Lookup("value"))
	assert.Equal(t, "pending", reviewListCmd.Flags().Lookup("status").DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(runsCmd.Commands())
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestMigrateCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(migrateCmd.Commands())
	for _, name := range []string{"up", "down", "version"} {
		assert.True(t, names[name], "migrate should have subcommand %q", name)
	}
}
