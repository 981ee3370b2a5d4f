package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
)

// Reader gives read access to one segment file.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	footer   SegmentFooter
	dict     []DictEntry
	docs     []index.Document
}

// OpenReader opens a segment, verifies its header and checksum and loads
// the dictionary and document table. Postings are read on demand.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	name := filepath.Base(path)
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if fi.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("segment %s: truncated (%d bytes)", name, fi.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	if err := header.checkLayout(fi.Size()); err != nil {
		return nil, fmt.Errorf("segment %s: %w", name, err)
	}

	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, header.DocsOffset+header.DocsSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	footer := decodeFooter(footerBytes)

	// postings, dictionary and document table are contiguous
	crc := crc32.NewIEEE()
	body := io.NewSectionReader(f, header.PostOffset, header.PostSize)
	if _, err := io.Copy(crc, body); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DocsOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	crc.Write(dictBytes)
	crc.Write(docsBytes)
	if sum := crc.Sum32(); sum != footer.Checksum {
		return nil, fmt.Errorf("segment %s: checksum mismatch (%08x != %08x)", name, sum, footer.Checksum)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	for i, entry := range dict {
		if entry.PostOffset < 0 || entry.PostLen < 0 || entry.PostOffset+int64(entry.PostLen) > header.PostSize {
			return nil, fmt.Errorf("segment %s: postings of %q out of range", name, entry.Term)
		}
		if i > 0 && dict[i-1].Term >= entry.Term {
			return nil, fmt.Errorf("segment %s: dictionary not sorted at %q", name, entry.Term)
		}
	}
	var docs []index.Document
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		footer:   footer,
		dict:     dict,
		docs:     docs,
	}, nil
}

// checkLayout verifies that the blocks named by the header tile the file
// exactly: header, postings, dictionary, document table, footer.
func (h SegmentHeader) checkLayout(size int64) error {
	switch {
	case h.PostOffset != int64(HeaderSize),
		h.PostSize < 0, h.DictSize < 0, h.DocsSize < 0,
		h.PostSize > size, h.DictSize > size, h.DocsSize > size,
		h.DictOffset != h.PostOffset+h.PostSize,
		h.DocsOffset != h.DictOffset+h.DictSize,
		h.DocsOffset+h.DocsSize+int64(FooterSize) != size:
		return fmt.Errorf("corrupt header: block layout does not match file size %d", size)
	}
	return nil
}

// Search reads the postings of a single term.
func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.read(r.dict[idx])
}

// Snapshot loads every posting list and rebuilds a validated snapshot.
func (r *Reader) Snapshot() (*index.Snapshot, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		postings, err := r.read(entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: entry.Term, Postings: postings})
	}
	snap, err := index.NewSnapshot(r.docs, entries, int(r.footer.NextID), r.footer.Generation)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", filepath.Base(r.filePath), err)
	}
	return snap, nil
}

func (r *Reader) read(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// Stemmed reports whether the segment's terms were stemmed.
func (r *Reader) Stemmed() bool {
	return r.footer.Flags&FlagStemmed != 0
}

// Document returns the document table entry for id.
func (r *Reader) Document(id int) (index.Document, bool) {
	i := sort.Search(len(r.docs), func(i int) bool { return r.docs[i].ID >= id })
	if i < len(r.docs) && r.docs[i].ID == id {
		return r.docs[i], true
	}
	return index.Document{}, false
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Latest returns the path of the newest segment in dir, or "" when the
// directory holds none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	if len(segFiles) == 0 {
		return "", nil
	}
	sort.Strings(segFiles)
	return filepath.Join(dir, segFiles[len(segFiles)-1]), nil
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DocsOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		DocsSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

func decodeFooter(b []byte) SegmentFooter {
	return SegmentFooter{
		Checksum:   binary.LittleEndian.Uint32(b[0:4]),
		NextID:     binary.LittleEndian.Uint32(b[4:8]),
		Generation: binary.LittleEndian.Uint64(b[8:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:24])),
		Flags:      binary.LittleEndian.Uint32(b[24:28]),
	}
}
