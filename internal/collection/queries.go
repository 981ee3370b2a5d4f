package collection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// Query is one entry of a query file. IDs label results only; the same id
// may appear on several lines.
type Query struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ReadQueriesFile reads the query file at path.
func ReadQueriesFile(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file %s: %w", path, err)
	}
	defer f.Close()
	queries, err := ReadQueries(f)
	if err != nil {
		return nil, fmt.Errorf("query file %s: %w", path, err)
	}
	return queries, nil
}

// ReadQueries parses lines of the form "<id> <query text>". The id may be
// followed by '.', ':' or a tab. Blank lines and lines starting with '#'
// are skipped. Order follows the input.
func ReadQueries(r io.Reader) ([]Query, error) {
	var queries []Query
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := parseQueryLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return queries, nil
}

func parseQueryLine(line string) (Query, error) {
	end := strings.IndexFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ':'
	})
	if end < 0 {
		return Query{}, fmt.Errorf("%w: missing query text after id %q", apperrors.ErrInvalidInput, line)
	}
	id, err := strconv.Atoi(line[:end])
	if err != nil {
		return Query{}, fmt.Errorf("%w: query id %q is not an integer", apperrors.ErrInvalidInput, line[:end])
	}
	rest := line[end:]
	if rest[0] == '.' || rest[0] == ':' {
		rest = rest[1:]
	}
	text := strings.TrimSpace(rest)
	if text == "" {
		return Query{}, fmt.Errorf("%w: missing query text after id %d", apperrors.ErrInvalidInput, id)
	}
	return Query{ID: id, Text: text}, nil
}
