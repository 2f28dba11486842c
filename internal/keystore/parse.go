package keystore

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mahdiidarabi/keyladder/internal/keyspace"
	"github.com/mahdiidarabi/keyladder/internal/verifier"
)

// Column and field names of the datastore formats.
const (
	fieldPuzzle  = "puzzle"
	fieldAddress = "address"
	fieldKeyHex  = "key_hex"
)

// unsolvedMarker is accepted in place of a key for unsolved puzzles.
const unsolvedMarker = "unsolved"

// Load reads a datastore file, choosing the format by extension (.csv or
// .json).
func Load(path string) ([]keyspace.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(file)
	case ".json":
		return ParseJSON(file)
	}
	return nil, fmt.Errorf("unsupported datastore format %q", filepath.Ext(path))
}

// ParseCSV parses datastore rows from CSV with a header naming the puzzle,
// address and key_hex columns in any order.  The puzzle column is required.
func ParseCSV(r io.Reader) ([]keyspace.Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	puzzleIdx, addressIdx, keyIdx := -1, -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case fieldPuzzle:
			puzzleIdx = i
		case fieldAddress:
			addressIdx = i
		case fieldKeyHex:
			keyIdx = i
		}
	}
	if puzzleIdx == -1 {
		return nil, makeError(ErrMalformedRow, "missing required column: puzzle")
	}

	column := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var entries []keyspace.Entry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		entry, err := parseRow(column(record, puzzleIdx),
			column(record, addressIdx), column(record, keyIdx))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseJSON parses datastore rows from a JSON array of objects with puzzle,
// address and key_hex fields.  The puzzle index may be a number or a string.
func ParseJSON(r io.Reader) ([]keyspace.Entry, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var items []map[string]interface{}
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	entries := make([]keyspace.Entry, 0, len(items))
	for i, item := range items {
		idx, err := parseIndex(item[fieldPuzzle])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		address, err := stringField(item, fieldAddress)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		keyHex, err := stringField(item, fieldKeyHex)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		entry, err := buildEntry(idx, address, keyHex)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func stringField(item map[string]interface{}, name string) (string, error) {
	val, ok := item[name]
	if !ok || val == nil {
		return "", nil
	}
	s, ok := val.(string)
	if !ok {
		str := fmt.Sprintf("field %s must be a string, got %T", name, val)
		return "", makeError(ErrMalformedRow, str)
	}
	return strings.TrimSpace(s), nil
}

// parseIndex parses a puzzle index from the representations the datastore
// formats produce.
func parseIndex(val interface{}) (uint, error) {
	var s string
	switch v := val.(type) {
	case nil:
		return 0, makeError(ErrMalformedRow, "missing puzzle index")
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = string(v)
	case float64:
		if v != math.Trunc(v) || v < 0 {
			str := fmt.Sprintf("invalid puzzle index %v", v)
			return 0, makeError(ErrMalformedRow, str)
		}
		s = strconv.FormatFloat(v, 'f', 0, 64)
	default:
		str := fmt.Sprintf("unsupported puzzle index type %T", val)
		return 0, makeError(ErrMalformedRow, str)
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		str := fmt.Sprintf("invalid puzzle index %q", s)
		return 0, makeError(ErrMalformedRow, str)
	}
	return uint(n), nil
}

func parseRow(index, address, keyHex string) (keyspace.Entry, error) {
	idx, err := parseIndex(index)
	if err != nil {
		return keyspace.Entry{}, err
	}
	return buildEntry(idx, address, keyHex)
}

// buildEntry assembles and validates one row.
func buildEntry(idx uint, address, keyHex string) (keyspace.Entry, error) {
	entry := keyspace.Entry{Index: idx, Address: address}
	if keyHex != "" && !strings.EqualFold(keyHex, unsolvedMarker) {
		key, err := keyspace.FromHex(keyHex)
		if err != nil {
			str := fmt.Sprintf("puzzle %d: %v", idx, err)
			return keyspace.Entry{}, makeError(ErrMalformedRow, str)
		}
		entry.Key = key
		entry.Solved = true
	}
	if err := validateEntry(&entry); err != nil {
		return keyspace.Entry{}, err
	}
	return entry, nil
}

// validateEntry checks the index range, that a solved key lies within its
// puzzle's range and that a present address is well formed.
func validateEntry(e *keyspace.Entry) error {
	if e.Index < 1 || e.Index > keyspace.MaxIndex {
		str := fmt.Sprintf("puzzle index %d outside [1, %d]", e.Index,
			keyspace.MaxIndex)
		return makeError(ErrMalformedRow, str)
	}
	if e.Solved && !keyspace.InRange(e.Index, e.Key) {
		str := fmt.Sprintf("puzzle %d: key %s outside the puzzle range",
			e.Index, e.Key.Hex())
		return makeError(ErrMalformedRow, str)
	}
	if e.Address != "" {
		if _, err := verifier.DecodeAddress(e.Address); err != nil {
			str := fmt.Sprintf("puzzle %d: %v", e.Index, err)
			return makeError(ErrMalformedRow, str)
		}
	}
	return nil
}
