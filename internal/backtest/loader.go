package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile reads bars from a CSV file. See LoadCSV.
func LoadFile(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads bars from CSV with a header row. Required columns are
// time, underlying and yes_price; no_price defaults to 1 − yes_price and
// liquidity to zero. Time is RFC 3339 or Unix seconds or milliseconds.
func LoadCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"time", "underlying", "yes_price"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("backtest: missing column %q", name)
		}
	}
	cr.FieldsPerRecord = len(header)

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: line %d: %w", line, err)
		}

		var b Bar
		if b.Time, err = parseTime(rec[col["time"]]); err != nil {
			return nil, fmt.Errorf("backtest: line %d: %w", line, err)
		}
		if b.Underlying, err = parseField(rec, col, "underlying"); err != nil {
			return nil, fmt.Errorf("backtest: line %d: %w", line, err)
		}
		if b.YesPrice, err = parseField(rec, col, "yes_price"); err != nil {
			return nil, fmt.Errorf("backtest: line %d: %w", line, err)
		}
		b.NoPrice = 1 - b.YesPrice
		if _, ok := col["no_price"]; ok {
			if b.NoPrice, err = parseField(rec, col, "no_price"); err != nil {
				return nil, fmt.Errorf("backtest: line %d: %w", line, err)
			}
		}
		if _, ok := col["liquidity"]; ok {
			if b.Liquidity, err = parseField(rec, col, "liquidity"); err != nil {
				return nil, fmt.Errorf("backtest: line %d: %w", line, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseField(rec []string, col map[string]int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// parseTime accepts RFC 3339, Unix seconds and Unix milliseconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", s, err)
	}
	return t, nil
}
