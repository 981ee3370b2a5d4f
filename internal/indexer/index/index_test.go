package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

func upsert(t *testing.T, ix *Index, path, text string) int {
	t.Helper()
	id, err := ix.Upsert(path, tokenizer.Tokenize(text))
	require.NoError(t, err)
	return id
}

func TestUpsertAssignsSequentialIDs(t *testing.T) {
	ix := New()
	assert.Equal(t, 0, upsert(t, ix, "a.txt", "apple"))
	assert.Equal(t, 1, upsert(t, ix, "b.txt", "banana"))
	assert.Equal(t, 2, upsert(t, ix, "c.txt", "cherry"))
	assert.Equal(t, 3, ix.DocCount())
}

func TestUpsertRecordsFrequencyAndPositions(t *testing.T) {
	ix := New()
	id := upsert(t, ix, "doc1", "apple banana apple")

	snap := ix.Snapshot()
	p, ok := snap.Postings("apple").Find(id)
	require.True(t, ok)
	assert.Equal(t, 2, p.Frequency)
	assert.Equal(t, []int{0, 2}, p.Positions)

	doc, ok := snap.Doc(id)
	require.True(t, ok)
	assert.Equal(t, "doc1", doc.Path)
	assert.Equal(t, 3, doc.Length)
}

func TestUpsertSamePathReplacesPostings(t *testing.T) {
	ix := New()
	first := upsert(t, ix, "doc", "alpha beta")
	upsert(t, ix, "other", "beta gamma")
	second := upsert(t, ix, "doc", "gamma delta")

	assert.Equal(t, first, second, "update by path keeps the id")
	snap := ix.Snapshot()
	require.NoError(t, snap.Validate())

	assert.Empty(t, snap.Postings("alpha"), "stale term pruned")
	_, ok := snap.Postings("beta").Find(first)
	assert.False(t, ok)
	assert.Equal(t, 1, snap.DocFreq("beta"))
	assert.Equal(t, 2, snap.DocFreq("gamma"))
	assert.NotContains(t, snap.Terms(), "alpha")
	assert.Equal(t, 2, snap.DocCount())
}

func TestRemoveRetiresID(t *testing.T) {
	ix := New()
	upsert(t, ix, "a", "x y")
	upsert(t, ix, "b", "y z")

	assert.True(t, ix.Remove("a"))
	assert.False(t, ix.Remove("a"))

	id := upsert(t, ix, "c", "x")
	assert.Equal(t, 2, id, "deleted ids are not reused")

	snap := ix.Snapshot()
	require.NoError(t, snap.Validate())
	assert.Equal(t, []int{2}, snap.Postings("x").DocIDs())
	assert.Equal(t, []int{1}, snap.Postings("y").DocIDs())
	_, ok := snap.DocID("a")
	assert.False(t, ok)
}

func TestUpsertRejectsEmptyPath(t *testing.T) {
	_, err := New().Upsert("", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPostingListsSortedUnderConcurrency(t *testing.T) {
	ix := New()
	const docs = 200
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ix.Upsert(fmt.Sprintf("doc-%03d", i), tokenizer.Tokenize("shared common term"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap := ix.Snapshot()
	require.NoError(t, snap.Validate())
	assert.Equal(t, docs, snap.DocFreq("shared"))
	ids := snap.Postings("shared").DocIDs()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestConcurrentUpsertsOfSamePath(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ix.Upsert("same", tokenizer.Tokenize(fmt.Sprintf("version%d body", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap := ix.Snapshot()
	require.NoError(t, snap.Validate())
	assert.Equal(t, 1, snap.DocCount())
	assert.Equal(t, 1, snap.DocFreq("body"))
	versions := 0
	for term := range snap.All() {
		if term != "body" {
			versions++
		}
	}
	assert.Equal(t, 1, versions, "only the last version's terms survive")
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	ix := New()
	upsert(t, ix, "a", "one")
	snap := ix.Snapshot()
	gen := snap.Generation()

	upsert(t, ix, "b", "one two")
	assert.Equal(t, 1, snap.DocFreq("one"))
	assert.Empty(t, snap.Postings("two"))
	assert.Greater(t, ix.Snapshot().Generation(), gen)
}

func TestDropTerms(t *testing.T) {
	ix := New()
	upsert(t, ix, "a", "the cat")
	upsert(t, ix, "b", "the dog")

	assert.Equal(t, 1, ix.DropTerms([]string{"the", "missing"}))
	snap := ix.Snapshot()
	assert.Equal(t, []string{"cat", "dog"}, snap.Terms())
	assert.Equal(t, 2, snap.DocLength(0))
}

func TestFromSnapshotContinuesSequence(t *testing.T) {
	ix := New()
	upsert(t, ix, "a", "red")
	upsert(t, ix, "b", "blue")
	ix.Remove("b")

	restored := FromSnapshot(ix.Snapshot())
	assert.Equal(t, 0, upsert(t, restored, "a", "green"))
	assert.Equal(t, 2, upsert(t, restored, "c", "red"))

	snap := restored.Snapshot()
	require.NoError(t, snap.Validate())
	assert.Equal(t, []int{2}, snap.Postings("red").DocIDs())
	assert.Equal(t, []int{0}, snap.Postings("green").DocIDs())
}

func TestNewSnapshotRejectsUnknownDocument(t *testing.T) {
	_, err := NewSnapshot(
		[]Document{{ID: 0, Path: "a", Length: 1}},
		[]TermEntry{{Term: "x", Postings: PostingList{{DocID: 7, Frequency: 1, Positions: []int{0}}}}},
		1, 1,
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIndexInconsistency))

	var ie *apperrors.InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "x", ie.Term)
	assert.Equal(t, 7, ie.DocID)
}

func TestNewSnapshotRejectsUnsortedPostings(t *testing.T) {
	_, err := NewSnapshot(
		[]Document{{ID: 0, Path: "a"}, {ID: 1, Path: "b"}},
		[]TermEntry{{Term: "x", Postings: PostingList{{DocID: 1, Frequency: 1}, {DocID: 0, Frequency: 1}}}},
		2, 1,
	)
	assert.ErrorIs(t, err, apperrors.ErrIndexInconsistency)
}

func TestPostingListInsertRemove(t *testing.T) {
	var pl PostingList
	for _, id := range []int{5, 1, 3, 9, 3} {
		pl = pl.insert(Posting{DocID: id, Frequency: id})
	}
	assert.Equal(t, []int{1, 3, 5, 9}, pl.DocIDs())
	assert.Equal(t, int64(18), pl.TotalFrequency())

	pl, ok := pl.remove(5)
	assert.True(t, ok)
	_, ok = pl.remove(42)
	assert.False(t, ok)
	assert.Equal(t, []int{1, 3, 9}, pl.DocIDs())

	_, found := pl.Find(3)
	assert.True(t, found)
	_, found = pl.Find(5)
	assert.False(t, found)
}

func BenchmarkUpsert(b *testing.B) {
	tokens := tokenizer.Tokenize("information retrieval systems combine tokenization stemming and stop word removal to normalize text")
	ix := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ix.Upsert(fmt.Sprintf("doc-%d", i), tokens)
	}
}

func BenchmarkUpsertParallel(b *testing.B) {
	tokens := tokenizer.Tokenize("distributed retrieval with posting lists kept sorted by document id")
	ix := New()
	var mu sync.Mutex
	n := 0
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			n++
			path := fmt.Sprintf("doc-%d", n)
			mu.Unlock()
			_, _ = ix.Upsert(path, tokens)
		}
	})
}

func TestFingerprintDistinguishesCollections(t *testing.T) {
	x := New()
	upsert(t, x, "doc1", "apple")
	upsert(t, x, "doc2", "banana")
	y := New()
	upsert(t, y, "one", "cherry")
	upsert(t, y, "two", "cherry")

	sx, sy := x.Snapshot(), y.Snapshot()
	require.Equal(t, sx.Generation(), sy.Generation())
	assert.NotEqual(t, sx.Fingerprint(), sy.Fingerprint())

	again := New()
	upsert(t, again, "doc1", "apple")
	upsert(t, again, "doc2", "banana")
	assert.Equal(t, sx.Fingerprint(), again.Snapshot().Fingerprint())

	restored, err := NewSnapshot(sx.Documents(), []TermEntry{
		{Term: "apple", Postings: sx.Postings("apple")},
		{Term: "banana", Postings: sx.Postings("banana")},
	}, sx.NextID(), sx.Generation())
	require.NoError(t, err)
	assert.Equal(t, sx.Fingerprint(), restored.Fingerprint())

	upsert(t, x, "doc2", "banana banana")
	assert.NotEqual(t, sx.Fingerprint(), x.Snapshot().Fingerprint())
}
