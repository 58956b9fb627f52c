// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavlog

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// KindBadData is the kind of messages holding bytes that could not be framed.
const KindBadData = "BAD_DATA"

// Message is a single framed telemetry message.
type Message struct {
	// Kind is the message type name, or KindBadData.
	Kind string
	// Timestamp is the message time in seconds. Its epoch depends on the log
	// layout: telemetry logs use the Unix epoch, DataFlash logs use vehicle
	// boot time.
	Timestamp float64
	// Raw is the message's encoded bytes, as found in the log.
	Raw []byte
}

// IsBadData returns true if m holds bytes that could not be framed.
func (m *Message) IsBadData() bool { return m.Kind == KindBadData }

// Source yields the messages of a flight log in log order.
type Source interface {
	// Next returns the next message, or io.EOF if there are no more messages.
	Next() (*Message, error)

	// Close releases the Source's resources.
	Close() error
}

// Format is a flight log layout.
type Format int

const (
	// FormatAuto selects a layout from the log's file name.
	FormatAuto Format = iota
	// FormatTLog is the ground station telemetry log layout.
	FormatTLog
	// FormatDataFlash is the on-board DataFlash log layout.
	FormatDataFlash
)

var formatNames = map[Format]string{
	FormatAuto:      "auto",
	FormatTLog:      "tlog",
	FormatDataFlash: "dataflash",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat returns the Format named by v.
func ParseFormat(v string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(name, v) {
			return f, nil
		}
	}
	return FormatAuto, errors.Errorf("unknown log format: %q", v)
}

// FormatNames returns the names of all Formats, in enumeration order.
func FormatNames() []string {
	formats := make([]Format, 0, len(formatNames))
	for f := range formatNames {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })

	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return names
}

// FormatFlag is a pflag.Value implementation that stores a Format.
type FormatFlag Format

var _ pflag.Value = (*FormatFlag)(nil)

func (ff *FormatFlag) String() string { return Format(*ff).String() }

// Set implements pflag.Value.
func (ff *FormatFlag) Set(v string) error {
	f, err := ParseFormat(v)
	if err != nil {
		return err
	}
	*ff = FormatFlag(f)
	return nil
}

// Type implements pflag.Value.
func (ff *FormatFlag) Type() string { return "mavlog.Format" }

// Value returns the Format held by this flag.
func (ff FormatFlag) Value() Format { return Format(ff) }

// DetectFormat chooses a layout for path from its extension.
//
// ".bin" files (in any case) are DataFlash logs. Everything else is treated as
// a telemetry log.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return FormatDataFlash
	}
	return FormatTLog
}

// NewSource returns a Source that reads messages of format f from r.
//
// The Source takes ownership of r, closing it on Close if it is an io.Closer.
// FormatAuto is not accepted here; use Open or DetectFormat.
func NewSource(r io.Reader, f Format) (Source, error) {
	switch f {
	case FormatTLog:
		return NewTLogReader(r), nil
	case FormatDataFlash:
		return NewDataFlashReader(r), nil
	default:
		return nil, errors.Errorf("cannot read log format %s", f)
	}
}

// Open opens the flight log at path.
//
// If f is FormatAuto, the layout is chosen by DetectFormat.
func Open(path string, f Format) (Source, error) {
	if f == FormatAuto {
		f = DetectFormat(path)
	}

	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening log")
	}

	src, err := NewSource(fd, f)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return src, nil
}

// closeIfCloser closes v if it is an io.Closer.
func closeIfCloser(v interface{}) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
