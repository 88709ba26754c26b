package telemetry

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	billy "gopkg.in/src-d/go-billy.v4"
	"go.uber.org/multierr"
)

var csvHeader = []string{
	"tick", "time",
	"ax", "ay", "az",
	"gx", "gy", "gz",
	"temp",
	"roll", "pitch", "throttle",
	"fr", "fl", "bl", "br",
}

// SessionName returns the flight-data file name for a session started at t.
func SessionName(t time.Time) string {
	return "flight-" + t.UTC().Format("20060102-150405") + ".csv"
}

// CSVSink writes one row per frame to a file on a billy filesystem.
type CSVSink struct {
	file billy.File
	w    *csv.Writer
}

// NewCSVSink creates name on fs and writes the header row.
func NewCSVSink(fs billy.Filesystem, name string) (*CSVSink, error) {
	f, err := fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	s := &CSVSink{file: f, w: csv.NewWriter(f)}
	if err := s.w.Write(csvHeader); err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	return s, nil
}

func (s *CSVSink) Write(f Frame) error {
	row := make([]string, 0, len(csvHeader))
	row = append(row, strconv.Itoa(f.Tick), f.Time.UTC().Format(time.RFC3339Nano))
	for _, v := range f.Acc {
		row = append(row, strconv.FormatFloat(v, 'f', 4, 64))
	}
	for _, v := range f.Gyro {
		row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
	}
	row = append(row, strconv.FormatFloat(f.Temperature, 'f', 2, 64))
	for _, v := range f.Sticks {
		row = append(row, strconv.Itoa(v))
	}
	for _, v := range f.Duties {
		row = append(row, strconv.Itoa(v))
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes pending rows and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return multierr.Append(s.w.Error(), s.file.Close())
}
