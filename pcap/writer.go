// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcap

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// writeBufferSize is the size of the Writer's output buffer.
const writeBufferSize = 64 * 1024

// WriterConfig configures a new Writer.
type WriterConfig struct {
	// SnapLen is the advisory maximum record length stored in the file header.
	// If zero, DefaultSnapLen is used.
	SnapLen uint32

	// LinkType is stored verbatim in the file header.
	LinkType LinkType

	// ByteOrder is the byte order used for every header and record. If nil,
	// the host's native byte order is used.
	ByteOrder binary.ByteOrder
}

// Writer appends records to a capture stream.
//
// Writer must be instantiated using NewWriter, WriterConfig.NewWriter, or
// Create. It is not safe for concurrent use.
type Writer struct {
	hdr  FileHeader
	opts *struc.Options

	bw     *bufio.Writer
	base   io.Writer
	closed bool

	numRecords int64
	numBytes   int64
}

// NewWriter writes a file header for linkType to w, using the default snapshot
// length and native byte order, and returns a Writer that appends records to w.
func NewWriter(w io.Writer, linkType LinkType) (*Writer, error) {
	cfg := WriterConfig{LinkType: linkType}
	return cfg.NewWriter(w)
}

// Create creates (or truncates) the file at path and opens it for writing.
//
// A nil cfg is equivalent to an empty WriterConfig.
func Create(path string, cfg *WriterConfig) (*Writer, error) {
	if cfg == nil {
		cfg = &WriterConfig{}
	}
	fd, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating capture file")
	}
	return cfg.NewWriter(fd)
}

// NewWriter writes a file header to w and returns a Writer that appends
// records to it.
//
// The header is flushed to w before NewWriter returns, so a failing sink is
// reported here. On failure, w is closed if it is an io.Closer.
func (cfg *WriterConfig) NewWriter(w io.Writer) (*Writer, error) {
	order := cfg.ByteOrder
	if order == nil {
		order = nativeOrder()
	}
	snapLen := cfg.SnapLen
	if snapLen == 0 {
		snapLen = DefaultSnapLen
	}

	pw := Writer{
		hdr: FileHeader{
			Magic:        Magic,
			VersionMajor: VersionMajor,
			VersionMinor: VersionMinor,
			SnapLen:      snapLen,
			LinkType:     uint32(cfg.LinkType),
		},
		opts: structOptions(order),
		bw:   bufio.NewWriterSize(w, writeBufferSize),
		base: w,
	}

	if err := struc.PackWithOptions(pw.bw, &pw.hdr, pw.opts); err != nil {
		_ = closeIfCloser(w)
		return nil, errors.Wrap(err, "writing file header")
	}
	if err := pw.bw.Flush(); err != nil {
		_ = closeIfCloser(w)
		return nil, errors.Wrap(err, "writing file header")
	}
	pw.numBytes = FileHeaderSize
	return &pw, nil
}

// Header returns the file header that was written.
func (w *Writer) Header() FileHeader { return w.hdr }

// ByteOrder returns the byte order used by this Writer.
func (w *Writer) ByteOrder() binary.ByteOrder { return w.opts.Order }

// NumRecords returns the number of records written so far.
func (w *Writer) NumRecords() int64 { return w.numRecords }

// NumBytes returns the number of bytes written so far, including headers.
func (w *Writer) NumBytes() int64 { return w.numBytes }

// WriteRecord appends a record with the given timestamp and payload.
//
// The captured and original lengths are both set to len(payload). Arguments
// are validated before anything is written. A failure while writing leaves
// the stream in an undefined state; the Writer should be closed.
func (w *Writer) WriteRecord(seconds, micros uint32, payload []byte) error {
	if w.closed {
		return errors.New("writer is closed")
	}
	if micros >= microsPerSecond {
		return errors.Errorf("microseconds out of range: %d", micros)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return errors.Errorf("payload too large: %d bytes", len(payload))
	}

	rh := RecordHeader{
		Seconds:     seconds,
		Micros:      micros,
		CapturedLen: uint32(len(payload)),
		OriginalLen: uint32(len(payload)),
	}
	if err := struc.PackWithOptions(w.bw, &rh, w.opts); err != nil {
		return errors.Wrap(err, "writing record header")
	}
	if _, err := w.bw.Write(payload); err != nil {
		return errors.Wrap(err, "writing record payload")
	}

	w.numRecords++
	w.numBytes += RecordHeaderSize + int64(len(payload))
	return nil
}

// WriteTime is like WriteRecord, but takes its timestamp from ts.
//
// ts must fall within the range representable by a 32-bit unsigned count of
// seconds since the Unix epoch.
func (w *Writer) WriteTime(ts time.Time, payload []byte) error {
	sec := ts.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return errors.Errorf("timestamp out of range: %s", ts)
	}
	return w.WriteRecord(uint32(sec), uint32(ts.Nanosecond()/int(time.Microsecond)), payload)
}

// Flush writes any buffered data to the underlying stream.
func (w *Writer) Flush() error { return w.bw.Flush() }

// Close flushes the Writer and closes the underlying stream if it is an
// io.Closer.
//
// The underlying stream is closed even if flushing fails. Close may be called
// more than once; later calls do nothing.
func (w *Writer) Close() (err error) {
	if w.closed {
		return nil
	}
	w.closed = true

	// Always close our underlying base, if we can.
	defer func() {
		closeErr := closeIfCloser(w.base)
		if err == nil {
			err = closeErr
		}
	}()

	err = w.bw.Flush()
	return
}
