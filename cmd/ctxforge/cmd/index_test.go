package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestProject(t *testing.T, dir string) {
	t.Helper()
	src := `package sample

// Greet returns a friendly greeting for name.
func Greet(name string) string {
	return "hello, " + name
}

// Farewell returns a parting message for name.
func Farewell(name string) string {
	return "goodbye, " + name
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(src), 0o644))
}

func TestIndexCmdCreatesDataDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(testDir, ".ctxforge"))
}

func TestIndexCmdCreatesFragmentStore(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(testDir, ".ctxforge", "fragments.db"))
}

func TestIndexCmdReportsProgress(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "indexed")
}

func TestIndexCmdAddedToRoot(t *testing.T) {
	root := NewRootCmd()
	found, _, err := root.Find([]string{"index"})
	require.NoError(t, err)
	assert.Equal(t, "index", found.Name())
}
