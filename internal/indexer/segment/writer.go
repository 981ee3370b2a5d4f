package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 3
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
}

// SegmentFooter trails the document table. Checksum covers the postings
// block, the dictionary and the document table, in file order.
type SegmentFooter struct {
	Checksum   uint32
	NextID     uint32
	Generation uint64
	CreatedAt  int64
	Flags      uint32
}

// FlagStemmed marks a segment whose terms were Snowball-stemmed.
const FlagStemmed uint32 = 1 << 0

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises index snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
	flags   uint32
}

type WriterOption func(*Writer)

// WithStemming records that the snapshot's terms were stemmed, so a reader
// can refuse to mix stemmed and unstemmed terms.
func WithStemming(stemmed bool) WriterOption {
	return func(w *Writer) {
		if stemmed {
			w.flags |= FlagStemmed
		}
	}
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string, opts ...WriterOption) *Writer {
	w := &Writer{dataDir: dataDir}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write atomically creates a new segment file holding the whole snapshot.
// It writes to a .tmp file first and renames on success.
func (w *Writer) Write(snap *index.Snapshot) (string, error) {
	if snap.DocCount() == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	now := time.Now()
	segmentName := fmt.Sprintf("seg_%020d%s", now.UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	committed := false
	defer func() {
		f.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(snap.TermCount()),
		DocCount:  uint32(snap.DocCount()),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	crc := crc32.NewIEEE()
	offset := int64(HeaderSize)
	header.PostOffset = offset
	dict := make([]DictEntry, 0, snap.TermCount())
	for term, postings := range snap.All() {
		postingsData, err := json.Marshal(postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", term, err)
		}
		if err := writeSum(f, crc, postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", term, err)
		}
		dict = append(dict, DictEntry{
			Term:       term,
			PostOffset: offset - header.PostOffset,
			PostLen:    len(postingsData),
			DocFreq:    len(postings),
		})
		offset += int64(len(postingsData))
	}
	header.PostSize = offset - header.PostOffset

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if err := writeSum(f, crc, dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	header.DictOffset = offset
	header.DictSize = int64(len(dictData))
	offset += header.DictSize

	docsData, err := json.Marshal(snap.Documents())
	if err != nil {
		return "", fmt.Errorf("marshaling document table: %w", err)
	}
	if err := writeSum(f, crc, docsData); err != nil {
		return "", fmt.Errorf("writing document table: %w", err)
	}
	header.DocsOffset = offset
	header.DocsSize = int64(len(docsData))

	footer := SegmentFooter{
		Checksum:   crc.Sum32(),
		NextID:     uint32(snap.NextID()),
		Generation: snap.Generation(),
		CreatedAt:  now.Unix(),
		Flags:      w.flags,
	}
	if _, err := f.Write(encodeFooter(footer)); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	committed = true
	return segmentName, nil
}

func writeSum(f *os.File, crc hash.Hash32, data []byte) error {
	crc.Write(data)
	_, err := f.Write(data)
	return err
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DocsSize))
	return b
}

func encodeFooter(ft SegmentFooter) []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], ft.Checksum)
	binary.LittleEndian.PutUint32(b[4:8], ft.NextID)
	binary.LittleEndian.PutUint64(b[8:16], ft.Generation)
	binary.LittleEndian.PutUint64(b[16:24], uint64(ft.CreatedAt))
	binary.LittleEndian.PutUint32(b[24:28], ft.Flags)
	return b
}
