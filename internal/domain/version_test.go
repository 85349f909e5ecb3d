package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitVersion(t *testing.T) {
	t.Run("Should parse plain git version output", func(t *testing.T) {
		version, err := ParseGitVersion("git version 2.39.3\n")
		require.NoError(t, err)
		assert.Equal(t, "2.39.3", version.String())
	})
	t.Run("Should parse vendor suffixed output", func(t *testing.T) {
		version, err := ParseGitVersion("git version 2.37.1 (Apple Git-137.1)")
		require.NoError(t, err)
		assert.Equal(t, "2.37.1", version.String())
	})
	t.Run("Should parse windows builds", func(t *testing.T) {
		version, err := ParseGitVersion("git version 2.45.2.windows.1")
		require.NoError(t, err)
		assert.Equal(t, "2.45.2", version.String())
	})
	t.Run("Should return error when no version is present", func(t *testing.T) {
		version, err := ParseGitVersion("command not found")
		assert.Error(t, err)
		assert.Nil(t, version)
	})
}

func TestGitVersion_SupportsWriteTree(t *testing.T) {
	cases := []struct {
		output string
		want   bool
	}{
		{output: "git version 2.25.1", want: false},
		{output: "git version 2.37.9", want: false},
		{output: "git version 2.38.0", want: false},
		{output: "git version 2.39.5", want: false},
		{output: "git version 2.40.0", want: true},
		{output: "git version 2.43.0", want: true},
		{output: "git version 3.0.0", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.output, func(t *testing.T) {
			version, err := ParseGitVersion(tc.output)
			require.NoError(t, err)
			assert.Equal(t, tc.want, version.SupportsWriteTree())
		})
	}
}
