package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// parameterCount is the number of values in a parameters file: query-source
// location, collection-source location, result-output location and
// retrieval mode, one per line in that order.
const parameterCount = 4

// ReadParameters reads a four-line parameters file. Blank lines and lines
// starting with '#' are ignored.
func ReadParameters(path string) (ExperimentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExperimentConfig{}, fmt.Errorf("opening parameters file %s: %w", path, err)
	}
	defer f.Close()
	params, err := ParseParameters(f)
	if err != nil {
		return ExperimentConfig{}, fmt.Errorf("parameters file %s: %w", path, err)
	}
	return params, nil
}

// ParseParameters parses parameters-file content from r.
func ParseParameters(r io.Reader) (ExperimentConfig, error) {
	values := make([]string, 0, parameterCount)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	if err := scanner.Err(); err != nil {
		return ExperimentConfig{}, fmt.Errorf("reading parameters: %w", err)
	}
	if len(values) < parameterCount {
		return ExperimentConfig{}, fmt.Errorf("expected %d parameters, got %d", parameterCount, len(values))
	}
	return ExperimentConfig{
		QueriesPath:    values[0],
		CollectionPath: values[1],
		OutputLocation: values[2],
		Mode:           strings.ToLower(values[3]),
	}, nil
}

// merge copies the non-empty run parameters of params into e.
func (e *ExperimentConfig) merge(params ExperimentConfig) {
	if params.QueriesPath != "" {
		e.QueriesPath = params.QueriesPath
	}
	if params.CollectionPath != "" {
		e.CollectionPath = params.CollectionPath
	}
	if params.OutputLocation != "" {
		e.OutputLocation = params.OutputLocation
	}
	if params.Mode != "" {
		e.Mode = params.Mode
	}
}
