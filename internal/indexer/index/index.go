package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

type termList struct {
	mu       sync.Mutex
	postings PostingList
}

// Index is the mutable inverted index used during a build phase.
//
// Writers for different documents run concurrently: the term map has its
// own RWMutex, each posting list has its own mutex, and writes for the same
// path are serialised by a per-path lock. Snapshot excludes all writers
// through the phase lock and returns an immutable copy for querying.
type Index struct {
	phase sync.RWMutex

	termsMu sync.RWMutex
	terms   map[string]*termList

	docsMu   sync.RWMutex
	docs     map[int]Document
	byPath   map[string]int
	docTerms map[int][]string
	nextID   int

	pathLocks  sync.Map
	generation atomic.Uint64
}

// New returns an empty index. Document ids start at 0.
func New() *Index {
	return &Index{
		terms:    make(map[string]*termList),
		docs:     make(map[int]Document),
		byPath:   make(map[string]int),
		docTerms: make(map[int][]string),
	}
}

// FromSnapshot rebuilds a mutable index from a snapshot, keeping document
// ids and the id counter so later upserts continue the sequence.
func FromSnapshot(s *Snapshot) *Index {
	ix := New()
	ix.nextID = s.nextID
	for _, doc := range s.docs {
		ix.docs[doc.ID] = doc
		ix.byPath[doc.Path] = doc.ID
	}
	for term, postings := range s.terms {
		ix.terms[term] = &termList{postings: postings.clone()}
		for _, p := range postings {
			ix.docTerms[p.DocID] = append(ix.docTerms[p.DocID], term)
		}
	}
	ix.generation.Store(s.generation)
	return ix
}

// Upsert indexes tokens as the content of path. If path is already indexed
// its previous postings are removed from every term first and the document
// keeps its id; otherwise the next sequential id is assigned.
func (ix *Index) Upsert(path string, tokens []tokenizer.Token) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: empty document path", apperrors.ErrInvalidInput)
	}
	ix.phase.RLock()
	defer ix.phase.RUnlock()

	unlock := ix.lockPath(path)
	defer unlock()

	ix.docsMu.Lock()
	docID, exists := ix.byPath[path]
	if !exists {
		docID = ix.nextID
		ix.nextID++
	}
	oldTerms := ix.docTerms[docID]
	ix.docs[docID] = Document{ID: docID, Path: path, Length: len(tokens)}
	ix.byPath[path] = docID
	ix.docsMu.Unlock()

	if exists {
		ix.removePostings(docID, oldTerms)
	}

	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, ok := termData[token.Term]
		if !ok {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	newTerms := make([]string, 0, len(termData))
	for term, posting := range termData {
		tl := ix.termList(term)
		tl.mu.Lock()
		tl.postings = tl.postings.insert(*posting)
		tl.mu.Unlock()
		newTerms = append(newTerms, term)
	}

	ix.docsMu.Lock()
	ix.docTerms[docID] = newTerms
	ix.docsMu.Unlock()

	ix.generation.Add(1)
	return docID, nil
}

// Reserve registers path and returns its id without indexing content,
// so callers can fix the id order before merging postings in parallel.
// It reports whether path was already indexed.
func (ix *Index) Reserve(path string) (int, bool, error) {
	if path == "" {
		return 0, false, fmt.Errorf("%w: empty document path", apperrors.ErrInvalidInput)
	}
	ix.phase.RLock()
	defer ix.phase.RUnlock()

	ix.docsMu.Lock()
	defer ix.docsMu.Unlock()
	if id, ok := ix.byPath[path]; ok {
		return id, true, nil
	}
	id := ix.nextID
	ix.nextID++
	ix.docs[id] = Document{ID: id, Path: path}
	ix.byPath[path] = id
	return id, false, nil
}

// Remove deletes the document at path and all its postings. The id is
// retired and never handed out again.
func (ix *Index) Remove(path string) bool {
	ix.phase.RLock()
	defer ix.phase.RUnlock()

	unlock := ix.lockPath(path)
	defer unlock()

	ix.docsMu.Lock()
	docID, ok := ix.byPath[path]
	if !ok {
		ix.docsMu.Unlock()
		return false
	}
	oldTerms := ix.docTerms[docID]
	delete(ix.byPath, path)
	delete(ix.docs, docID)
	delete(ix.docTerms, docID)
	ix.docsMu.Unlock()

	ix.removePostings(docID, oldTerms)
	ix.generation.Add(1)
	return true
}

// DropTerms removes every posting list for the given terms and returns the
// number of terms that were present. Document lengths are unchanged.
func (ix *Index) DropTerms(terms []string) int {
	ix.phase.Lock()
	defer ix.phase.Unlock()

	dropped := 0
	for _, term := range terms {
		if _, ok := ix.terms[term]; ok {
			delete(ix.terms, term)
			dropped++
		}
	}
	if dropped > 0 {
		ix.generation.Add(1)
	}
	return dropped
}

// DocID returns the id assigned to path.
func (ix *Index) DocID(path string) (int, bool) {
	ix.docsMu.RLock()
	defer ix.docsMu.RUnlock()
	id, ok := ix.byPath[path]
	return id, ok
}

// DocCount returns the number of live documents.
func (ix *Index) DocCount() int {
	ix.docsMu.RLock()
	defer ix.docsMu.RUnlock()
	return len(ix.docs)
}

// Generation increases on every mutation.
func (ix *Index) Generation() uint64 {
	return ix.generation.Load()
}

// Snapshot blocks writers, prunes empty posting lists and returns an
// immutable copy of the index.
func (ix *Index) Snapshot() *Snapshot {
	ix.phase.Lock()
	defer ix.phase.Unlock()

	s := &Snapshot{
		generation: ix.generation.Load(),
		terms:      make(map[string]PostingList, len(ix.terms)),
		docs:       make(map[int]Document, len(ix.docs)),
		paths:      make(map[string]int, len(ix.byPath)),
		nextID:     ix.nextID,
	}
	for term, tl := range ix.terms {
		if len(tl.postings) == 0 {
			delete(ix.terms, term)
			continue
		}
		s.terms[term] = tl.postings.clone()
	}
	for id, doc := range ix.docs {
		s.docs[id] = doc
		s.totalLength += int64(doc.Length)
	}
	for path, id := range ix.byPath {
		s.paths[path] = id
	}
	s.sortedTerms = make([]string, 0, len(s.terms))
	for term := range s.terms {
		s.sortedTerms = append(s.sortedTerms, term)
	}
	sort.Strings(s.sortedTerms)
	return s
}

func (ix *Index) termList(term string) *termList {
	ix.termsMu.RLock()
	tl, ok := ix.terms[term]
	ix.termsMu.RUnlock()
	if ok {
		return tl
	}
	ix.termsMu.Lock()
	defer ix.termsMu.Unlock()
	if tl, ok = ix.terms[term]; ok {
		return tl
	}
	tl = &termList{}
	ix.terms[term] = tl
	return tl
}

// removePostings drops docID from each listed term. Empty lists stay in
// the map until the next Snapshot so concurrent writers never lose a list
// they already hold.
func (ix *Index) removePostings(docID int, terms []string) {
	for _, term := range terms {
		ix.termsMu.RLock()
		tl, ok := ix.terms[term]
		ix.termsMu.RUnlock()
		if !ok {
			continue
		}
		tl.mu.Lock()
		tl.postings, _ = tl.postings.remove(docID)
		tl.mu.Unlock()
	}
}

func (ix *Index) lockPath(path string) func() {
	v, _ := ix.pathLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
