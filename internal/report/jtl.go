package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Sample is one row out of a JMeter CSV result file (the "JTL" format).
// Only the fields C8 needs for aggregation are kept.
type Sample struct {
	Timestamp time.Time
	Label     string
	Elapsed   float64 // ms
	Success   bool
	Bytes     int64
}

// jtlColumn names the CSV header JMeter's CSV writer emits by default
// (timeStamp,elapsed,label,responseCode,responseMessage,threadName,
// dataType,success,bytes,grpThreads,allThreads,Latency).
var jtlColumn = map[string]int{
	"timeStamp": 0,
	"elapsed":   1,
	"label":     2,
	"success":   7,
	"bytes":     8,
}

// ParseJTL reads a JMeter CSV result file into Samples. Header order is read
// from the file itself rather than assumed, so plans with custom
// `jmeter.save.saveservice.*` column sets still parse.
func ParseJTL(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jtl %s: %w", path, err)
	}
	defer f.Close()
	return parseJTLReader(f)
}

func parseJTLReader(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read jtl header: %w", err)
	}
	idx := columnIndex(header)

	var out []Sample
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read jtl row: %w", err)
		}
		s, err := decodeRow(row, idx)
		if err != nil {
			continue // skip malformed rows rather than aborting the whole file
		}
		out = append(out, s)
	}
	return out, nil
}

// columnIndex maps the known field names to their position in header,
// falling back to jtlColumn's default JMeter layout for any name it can't
// find (covers files whose header line was stripped).
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(jtlColumn))
	for name, def := range jtlColumn {
		idx[name] = def
	}
	for i, name := range header {
		if _, known := jtlColumn[name]; known {
			idx[name] = i
		}
	}
	return idx
}

func decodeRow(row []string, idx map[string]int) (Sample, error) {
	var s Sample

	get := func(name string) (string, bool) {
		i := idx[name]
		if i < 0 || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	if v, ok := get("timeStamp"); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Timestamp = time.UnixMilli(ms)
		}
	}
	if v, ok := get("elapsed"); ok {
		elapsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("parse elapsed %q: %w", v, err)
		}
		s.Elapsed = elapsed
	} else {
		return s, fmt.Errorf("no elapsed column")
	}
	if v, ok := get("label"); ok {
		s.Label = v
	}
	if v, ok := get("success"); ok {
		s.Success = v == "true"
	} else {
		s.Success = true
	}
	if v, ok := get("bytes"); ok {
		if b, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Bytes = b
		}
	}
	return s, nil
}
