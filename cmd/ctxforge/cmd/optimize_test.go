package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeCmdProducesPrompt(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	indexCmd := NewRootCmd()
	indexCmd.SetArgs([]string{"index", testDir})
	require.NoError(t, indexCmd.Execute())

	optCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	optCmd.SetOut(buf)
	optCmd.SetErr(buf)
	optCmd.SetArgs([]string{"optimize", "how does Greet work?", "--path", testDir, "--budget", "2000"})

	require.NoError(t, optCmd.Execute())
	assert.Contains(t, buf.String(), "how does Greet work?")
	assert.Contains(t, buf.String(), "model=")
}

func TestOptimizeCmdJSONOutput(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	indexCmd := NewRootCmd()
	indexCmd.SetArgs([]string{"index", testDir})
	require.NoError(t, indexCmd.Execute())

	optCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	optCmd.SetOut(buf)
	optCmd.SetArgs([]string{"optimize", "explain Farewell", "--path", testDir, "--json"})

	require.NoError(t, optCmd.Execute())
	assert.Contains(t, buf.String(), `"text"`)
	assert.Contains(t, buf.String(), `"savings"`)
}

func TestOptimizeCmdAddedToRoot(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"optimize"})
	require.NoError(t, err)
	assert.Equal(t, "optimize", found.Name())
}
