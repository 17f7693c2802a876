package display

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd() *cobra.Command {
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	child.Flags().Bool("json", false, "")
	root.AddCommand(child)
	return child
}

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv(EnvJSON, "")

	cmd := newCmd()
	assert.False(t, ShouldOutputJSON(cmd))

	require.NoError(t, cmd.Flags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(cmd))

	assert.False(t, ShouldOutputJSON(nil))
}

func TestShouldOutputJSONFromEnv(t *testing.T) {
	t.Setenv(EnvJSON, "1")
	assert.True(t, ShouldOutputJSON(newCmd()))

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(cmd), "explicit flag wins over the environment")
}

func TestMarshalJSONIndents(t *testing.T) {
	data, err := MarshalJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
