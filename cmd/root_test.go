package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:\tdev")
	assert.Contains(t, out.String(), "Commit:\tunknown")
	assert.Contains(t, out.String(), "update-experimental dev")
}

func TestUpdateCmdFlags(t *testing.T) {
	cmd := NewUpdateCmd()
	for _, name := range []string{"trigger", "dry-run", "ci-output", "enable-rollback"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	require.NoError(t, err)
	assert.False(t, dryRun)
}

func TestRollbackCmdRejectsArguments(t *testing.T) {
	cmd := NewRollbackCmd()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestSafeValue(t *testing.T) {
	assert.Equal(t, "fallback", safeValue("  ", "fallback"))
	assert.Equal(t, "v1.2.3", safeValue(" v1.2.3 ", "fallback"))
}
