package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSimplePattern(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("debug.txt", false))
}

func TestMatchDirectoryOnly(t *testing.T) {
	m := New()
	m.AddPattern("node_modules/")
	assert.True(t, m.Match("node_modules", true))
	assert.True(t, m.Match("node_modules/lib/index.js", false))
	assert.False(t, m.Match("node_modules_backup", true))
}

func TestMatchAnchoredPattern(t *testing.T) {
	m := New()
	m.AddPattern("/build")
	assert.True(t, m.Match("build", true))
	assert.False(t, m.Match("src/build", true))
}

func TestMatchDoubleStarPattern(t *testing.T) {
	m := New()
	m.AddPattern("**/*.generated.go")
	assert.True(t, m.Match("internal/api/types.generated.go", false))
	assert.False(t, m.Match("internal/api/types.go", false))
}

func TestNegationReincludesPath(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!important.log")
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))
}

func TestAddFromFileMissingIsNotError(t *testing.T) {
	m := New()
	require.NoError(t, m.AddFromFile(filepath.Join(t.TempDir(), ".gitignore")))
	assert.False(t, m.Match("anything", false))
}

func TestAddFromFileLoadsPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nvendor/\n*.tmp\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path))
	assert.True(t, m.Match("vendor", true))
	assert.True(t, m.Match("scratch.tmp", false))
	assert.False(t, m.Match("main.go", false))
}
