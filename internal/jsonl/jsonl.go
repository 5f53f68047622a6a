// Package jsonl reads and writes newline-delimited JSON event objects,
// optionally gzip-compressed, in the shape Snowplow's S3 loader emits:
// one JSON object per line, every value read back as text.
package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"ata-pipeline/internal/model"
	"ata-pipeline/internal/pool"

	json "github.com/goccy/go-json"
)

// maxLineSize bounds a single event line. Form payloads can be large but
// never approach this.
const maxLineSize = 16 * 1024 * 1024

// ErrLineTooLong is returned when a line exceeds maxLineSize.
var ErrLineTooLong = errors.New("jsonl: line too long")

// DecodeGZ gunzips r and decodes it with Decode.
func DecodeGZ(r io.Reader) ([]model.Record, []string, error) {
	zr, err := pool.GetGzipReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	defer pool.PutGzipReader(zr)

	return Decode(zr)
}

// Decode parses one record per non-blank line. Scalars become strings,
// nested objects/arrays keep their raw JSON text, and JSON null is
// treated as absent. A malformed line fails the whole object.
//
// The returned field list is the sorted union of keys seen.
func Decode(r io.Reader) ([]model.Record, []string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	line := pool.GetBuffer()
	defer pool.PutBuffer(line)

	var (
		recs   []model.Record
		seen   = map[string]struct{}{}
		lineNo int
	)

	for {
		line.Reset()
		err := readLine(br, line)
		if err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		if line.Len() > 0 || err == nil {
			lineNo++
		}

		if b := bytes.TrimSpace(line.Bytes()); len(b) > 0 {
			rec, derr := decodeLine(b)
			if derr != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, derr)
			}
			for k := range rec {
				seen[k] = struct{}{}
			}
			recs = append(recs, rec)
		}

		if err == io.EOF {
			break
		}
	}

	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	return recs, fields, nil
}

// readLine appends bytes up to and excluding the next '\n' into buf.
func readLine(br *bufio.Reader, buf *bytes.Buffer) error {
	for {
		chunk, err := br.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > maxLineSize {
			return ErrLineTooLong
		}
		switch err {
		case nil:
			buf.Truncate(buf.Len() - 1)
			return nil
		case bufio.ErrBufferFull:
			continue
		default:
			return err
		}
	}
}

func decodeLine(b []byte) (model.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("expected JSON object")
	}

	rec := make(model.Record, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0, bytes.Equal(v, []byte("null")):
			// absent
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			rec[k] = s
		default:
			rec[k] = string(v)
		}
	}
	return rec, nil
}

// EncodeGZ encodes rows as gzip-compressed JSONL. The returned slice is
// owned by the caller.
func EncodeGZ(rows []map[string]any) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	gz := pool.GetGzipWriter(buf)
	defer pool.PutGzipWriter(gz)

	enc := json.NewEncoder(gz)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	// copy out: buf goes back to the pool
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
