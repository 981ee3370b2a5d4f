package index

import "sort"

// Posting records the occurrences of one term in one document.
type Posting struct {
	DocID     int   `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p,omitempty"`
}

// PostingList is kept sorted by ascending DocID with unique ids.
type PostingList []Posting

// Find returns the posting for docID using binary search.
func (pl PostingList) Find(docID int) (Posting, bool) {
	i := pl.search(docID)
	if i < len(pl) && pl[i].DocID == docID {
		return pl[i], true
	}
	return Posting{}, false
}

// TotalFrequency sums the per-document frequencies of the list.
func (pl PostingList) TotalFrequency() int64 {
	var total int64
	for _, p := range pl {
		total += int64(p.Frequency)
	}
	return total
}

// DocIDs returns the document ids of the list in ascending order.
func (pl PostingList) DocIDs() []int {
	ids := make([]int, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

func (pl PostingList) search(docID int) int {
	return sort.Search(len(pl), func(i int) bool {
		return pl[i].DocID >= docID
	})
}

// insert places p in sort order, replacing any posting with the same id.
func (pl PostingList) insert(p Posting) PostingList {
	i := pl.search(p.DocID)
	if i < len(pl) && pl[i].DocID == p.DocID {
		pl[i] = p
		return pl
	}
	pl = append(pl, Posting{})
	copy(pl[i+1:], pl[i:])
	pl[i] = p
	return pl
}

// remove deletes the posting for docID if present.
func (pl PostingList) remove(docID int) (PostingList, bool) {
	i := pl.search(docID)
	if i >= len(pl) || pl[i].DocID != docID {
		return pl, false
	}
	copy(pl[i:], pl[i+1:])
	pl[len(pl)-1] = Posting{}
	return pl[:len(pl)-1], true
}

func (pl PostingList) clone() PostingList {
	out := make(PostingList, len(pl))
	for i, p := range pl {
		out[i] = Posting{
			DocID:     p.DocID,
			Frequency: p.Frequency,
			Positions: append([]int(nil), p.Positions...),
		}
	}
	return out
}

// TermEntry pairs a term with its postings.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Document is the per-document record kept alongside the postings.
type Document struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Length int    `json:"len"`
}
