package fragment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFragment(id, path string, start, end int) *Fragment {
	return &Fragment{
		ID:        id,
		FilePath:  path,
		Name:      "foo",
		Kind:      KindFunction,
		StartLine: start,
		EndLine:   end,
		Content:   "func foo() {}",
		Language:  "go",
	}
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemoryStore()
	f := newTestFragment("a", "a.go", 1, 3)
	require.NoError(t, s.Put(f))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "foo", got.Name)
}

func TestMemoryStore_PutBatchRejectsInvalidLineRange(t *testing.T) {
	s := NewMemoryStore()
	bad := newTestFragment("a", "a.go", 5, 3)
	err := s.PutBatch([]*Fragment{bad})
	require.Error(t, err)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestMemoryStore_DeleteByFileRemovesAllFragmentsForPath(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.PutBatch([]*Fragment{
		newTestFragment("a", "a.go", 1, 3),
		newTestFragment("b", "a.go", 5, 7),
		newTestFragment("c", "b.go", 1, 2),
	}))

	removed := s.DeleteByFile("a.go")
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.Equal(t, 1, s.Count())
	_, ok := s.Get("c")
	assert.True(t, ok)
}

func TestMemoryStore_ModRecordRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.SetModRecord(&FileModificationRecord{Path: "a.go", LastIndexedMtime: now, FileSize: 100}))

	rec, ok := s.GetModRecord("a.go")
	require.True(t, ok)
	assert.Equal(t, int64(100), rec.FileSize)

	s.DeleteModRecord("a.go")
	_, ok = s.GetModRecord("a.go")
	assert.False(t, ok)
}

func TestNewID_IsDeterministic(t *testing.T) {
	id1 := NewID("a.go", "func foo() {}", 1, 3)
	id2 := NewID("a.go", "func foo() {}", 1, 3)
	assert.Equal(t, id1, id2)

	id3 := NewID("a.go", "func bar() {}", 1, 3)
	assert.NotEqual(t, id1, id3)
}

func TestComputeStats_ReportsDimensionAndFileCount(t *testing.T) {
	s := NewMemoryStore()
	f1 := newTestFragment("a", "a.go", 1, 3)
	f1.Embedding = make([]float32, 384)
	f2 := newTestFragment("b", "b.go", 1, 3)
	require.NoError(t, s.PutBatch([]*Fragment{f1, f2}))

	stats := ComputeStats(s)
	assert.Equal(t, 2, stats.FragmentCount)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 384, stats.Dimension)
}

type fakeVectorIDs struct{ ids []string }

func (f fakeVectorIDs) AllIDs() []string { return f.ids }

func TestConsistencyChecker_DetectsOrphansAndMissing(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.PutBatch([]*Fragment{
		newTestFragment("a", "a.go", 1, 3),
		newTestFragment("b", "b.go", 1, 3),
	}))
	vec := fakeVectorIDs{ids: []string{"a", "c"}}

	checker := NewConsistencyChecker(s, vec)
	result := checker.Check()

	assert.Len(t, result.Inconsistencies, 2)
	var kinds []InconsistencyType
	for _, i := range result.Inconsistencies {
		kinds = append(kinds, i.Type)
	}
	assert.Contains(t, kinds, InconsistencyOrphanVector)
	assert.Contains(t, kinds, InconsistencyMissingVector)
}

func TestConsistencyChecker_QuickCheck(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put(newTestFragment("a", "a.go", 1, 3)))
	vec := fakeVectorIDs{ids: []string{"a"}}
	checker := NewConsistencyChecker(s, vec)
	assert.True(t, checker.QuickCheck())
}
