package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"iter"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// Snapshot is an immutable view of an Index. It is safe for concurrent use
// by any number of readers.
type Snapshot struct {
	generation  uint64
	terms       map[string]PostingList
	sortedTerms []string
	docs        map[int]Document
	paths       map[string]int
	nextID      int
	totalLength int64

	fpOnce      sync.Once
	fingerprint string
}

// NewSnapshot assembles a snapshot from persisted parts and validates it.
func NewSnapshot(docs []Document, entries []TermEntry, nextID int, generation uint64) (*Snapshot, error) {
	s := &Snapshot{
		generation:  generation,
		terms:       make(map[string]PostingList, len(entries)),
		sortedTerms: make([]string, 0, len(entries)),
		docs:        make(map[int]Document, len(docs)),
		paths:       make(map[string]int, len(docs)),
		nextID:      nextID,
	}
	for _, doc := range docs {
		s.docs[doc.ID] = doc
		s.paths[doc.Path] = doc.ID
		s.totalLength += int64(doc.Length)
		if doc.ID >= s.nextID {
			s.nextID = doc.ID + 1
		}
	}
	for _, entry := range entries {
		if len(entry.Postings) == 0 {
			continue
		}
		s.terms[entry.Term] = entry.Postings
		s.sortedTerms = append(s.sortedTerms, entry.Term)
	}
	sort.Strings(s.sortedTerms)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) Generation() uint64 { return s.generation }

// Fingerprint identifies the snapshot's content: documents, terms and
// postings. Snapshots of different collections differ even when their
// generations are equal. It is computed once.
func (s *Snapshot) Fingerprint() string {
	s.fpOnce.Do(func() {
		h := sha256.New()
		var buf []byte
		for _, doc := range s.Documents() {
			buf = binary.AppendUvarint(buf[:0], uint64(doc.ID))
			buf = binary.AppendUvarint(buf, uint64(doc.Length))
			buf = binary.AppendUvarint(buf, uint64(len(doc.Path)))
			buf = append(buf, doc.Path...)
			h.Write(buf)
		}
		for _, term := range s.sortedTerms {
			postings := s.terms[term]
			buf = binary.AppendUvarint(buf[:0], uint64(len(term)))
			buf = append(buf, term...)
			buf = binary.AppendUvarint(buf, uint64(len(postings)))
			for _, p := range postings {
				buf = binary.AppendUvarint(buf, uint64(p.DocID))
				buf = binary.AppendUvarint(buf, uint64(p.Frequency))
				for _, pos := range p.Positions {
					buf = binary.AppendUvarint(buf, uint64(pos))
				}
			}
			h.Write(buf)
		}
		s.fingerprint = hex.EncodeToString(h.Sum(nil)[:16])
	})
	return s.fingerprint
}

// NextID is the id the next new document would receive.
func (s *Snapshot) NextID() int { return s.nextID }

func (s *Snapshot) DocCount() int { return len(s.docs) }

func (s *Snapshot) TermCount() int { return len(s.sortedTerms) }

// Postings returns the posting list for term. Callers must not modify it.
func (s *Snapshot) Postings(term string) PostingList {
	return s.terms[term]
}

// DocFreq is the number of documents containing term.
func (s *Snapshot) DocFreq(term string) int {
	return len(s.terms[term])
}

func (s *Snapshot) Doc(id int) (Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// DocID returns the id of the document stored under path.
func (s *Snapshot) DocID(path string) (int, bool) {
	id, ok := s.paths[path]
	return id, ok
}

func (s *Snapshot) DocLength(id int) int {
	return s.docs[id].Length
}

func (s *Snapshot) AvgDocLength() float64 {
	if len(s.docs) == 0 {
		return 0
	}
	return float64(s.totalLength) / float64(len(s.docs))
}

// Terms returns every indexed term in lexicographic order.
func (s *Snapshot) Terms() []string {
	return append([]string(nil), s.sortedTerms...)
}

// All yields terms and their postings in lexicographic term order.
func (s *Snapshot) All() iter.Seq2[string, PostingList] {
	return func(yield func(string, PostingList) bool) {
		for _, term := range s.sortedTerms {
			if !yield(term, s.terms[term]) {
				return
			}
		}
	}
}

// Documents returns the document table ordered by id.
func (s *Snapshot) Documents() []Document {
	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Validate checks the structural invariants: postings reference known
// documents, ids are strictly ascending per list and frequencies match the
// recorded positions.
func (s *Snapshot) Validate() error {
	for _, term := range s.sortedTerms {
		prev := -1
		for _, p := range s.terms[term] {
			if _, ok := s.docs[p.DocID]; !ok {
				return &apperrors.InconsistencyError{Term: term, DocID: p.DocID, Message: "posting references unknown document"}
			}
			if p.DocID <= prev {
				return &apperrors.InconsistencyError{Term: term, DocID: p.DocID, Message: "posting list not strictly ascending"}
			}
			if p.Frequency <= 0 {
				return &apperrors.InconsistencyError{Term: term, DocID: p.DocID, Message: "non-positive term frequency"}
			}
			if len(p.Positions) > 0 && len(p.Positions) != p.Frequency {
				return &apperrors.InconsistencyError{Term: term, DocID: p.DocID, Message: "frequency does not match positions"}
			}
			prev = p.DocID
		}
	}
	for path, id := range s.paths {
		if doc, ok := s.docs[id]; !ok || doc.Path != path {
			return &apperrors.InconsistencyError{DocID: id, Message: "path table out of sync with documents"}
		}
	}
	return nil
}
