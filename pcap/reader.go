// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/danjacques/gomavpcap/support/dataio"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// readBufferSize is the size of the Reader's input buffer.
const readBufferSize = 64 * 1024

// Reader reads records from a capture stream.
//
// Reader must be instantiated using NewReader or Open. Records can be pulled
// with ReadRecord, or iterated with Next, Record, and Err:
//
//	for r.Next() {
//		rec := r.Record()
//		...
//	}
//	if err := r.Err(); err != nil {
//		...
//	}
//
// Iteration is forward-only and cannot be restarted.
type Reader struct {
	hdr  FileHeader
	opts *struc.Options

	br   *bufio.Reader
	base io.Reader

	// offset is the stream offset of the next unread byte.
	offset int64

	// rhBuf holds the raw bytes of the record header being read.
	rhBuf [RecordHeaderSize]byte
	// payloadBuf is reused to accumulate record payloads.
	payloadBuf bytes.Buffer

	// cur is the record most recently returned by Next.
	cur *Record
	// err is the error that stopped iteration, if any.
	err error
	// done is true once iteration has stopped.
	done bool
	// closed is true once Close has been called.
	closed bool
}

// Open opens the capture file at path for reading.
func Open(path string) (*Reader, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening capture file")
	}
	return NewReader(fd)
}

// NewReader reads and validates the file header from r and returns a Reader
// positioned at its first record.
//
// NewReader returns a *FormatError if r does not begin with a complete,
// supported file header. On failure, r is closed if it is an io.Closer.
func NewReader(r io.Reader) (*Reader, error) {
	pr := Reader{
		br:   bufio.NewReaderSize(r, readBufferSize),
		base: r,
	}
	if err := pr.readFileHeader(); err != nil {
		_ = closeIfCloser(r)
		return nil, err
	}
	return &pr, nil
}

func (r *Reader) readFileHeader() error {
	var buf [FileHeaderSize]byte
	switch amt, err := dataio.ReadFull(r.br, buf[:]); {
	case err == nil:
	case err == io.EOF && amt == 0:
		return formatErrorf(0, "empty stream, missing file header")
	case err == io.EOF:
		return formatErrorf(int64(amt), "truncated file header (%d of %d bytes)", amt, FileHeaderSize)
	default:
		return errors.Wrap(err, "reading file header")
	}
	r.offset = FileHeaderSize

	order := detectByteOrder(buf[:4])
	if order == nil {
		return formatErrorf(0, "not a capture file (magic %#08x)", binary.LittleEndian.Uint32(buf[:4]))
	}
	r.opts = structOptions(order)

	if err := struc.UnpackWithOptions(bytes.NewReader(buf[:]), &r.hdr, r.opts); err != nil {
		return errors.Wrap(err, "decoding file header")
	}
	if r.hdr.VersionMajor != VersionMajor || r.hdr.VersionMinor != VersionMinor {
		return formatErrorf(4, "unsupported version %d.%d", r.hdr.VersionMajor, r.hdr.VersionMinor)
	}
	return nil
}

// Header returns the stream's file header.
func (r *Reader) Header() FileHeader { return r.hdr }

// ByteOrder returns the byte order detected from the file header.
func (r *Reader) ByteOrder() binary.ByteOrder { return r.opts.Order }

// LinkType returns the stream's link type.
func (r *Reader) LinkType() LinkType { return LinkType(r.hdr.LinkType) }

// SnapLen returns the stream's advisory snapshot length.
func (r *Reader) SnapLen() uint32 { return r.hdr.SnapLen }

// ReadRecord returns the next record in the stream.
//
// If the end of the stream is reached cleanly, ReadRecord returns io.EOF. A
// partial record header or a payload shorter than its declared length is
// reported as a *FormatError.
func (r *Reader) ReadRecord() (*Record, error) {
	start := r.offset
	amt, err := dataio.ReadFull(r.br, r.rhBuf[:])
	r.offset += int64(amt)
	switch {
	case err == nil:
	case err == io.EOF && amt == 0:
		return nil, io.EOF
	case err == io.EOF:
		return nil, formatErrorf(start, "truncated record header (%d of %d bytes)", amt, RecordHeaderSize)
	default:
		return nil, errors.Wrap(err, "reading record header")
	}

	var rh RecordHeader
	if err := struc.UnpackWithOptions(bytes.NewReader(r.rhBuf[:]), &rh, r.opts); err != nil {
		return nil, errors.Wrap(err, "decoding record header")
	}

	// Read the prescribed amount into our buffer. The buffer grows only as
	// data arrives, so a corrupt length cannot force a huge allocation.
	r.payloadBuf.Reset()
	lr := io.LimitedReader{
		R: r.br,
		N: int64(rh.CapturedLen),
	}
	readCount, err := r.payloadBuf.ReadFrom(&lr)
	r.offset += readCount
	if err != nil {
		return nil, errors.Wrap(err, "reading record payload")
	}
	if readCount != int64(rh.CapturedLen) {
		return nil, formatErrorf(start, "truncated record (%d of %d payload bytes)", readCount, rh.CapturedLen)
	}

	rec := Record{
		Seconds:     rh.Seconds,
		Micros:      rh.Micros,
		OriginalLen: rh.OriginalLen,
		Payload:     make([]byte, readCount),
	}
	copy(rec.Payload, r.payloadBuf.Bytes())
	return &rec, nil
}

// Next advances to the next record, returning false when iteration stops.
//
// Iteration stops at the end of the stream or on the first error; Err
// distinguishes the two.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}

	rec, err := r.ReadRecord()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		r.cur, r.done = nil, true
		return false
	}
	r.cur = rec
	return true
}

// Record returns the record loaded by the last successful Next call.
func (r *Reader) Record() *Record { return r.cur }

// Err returns the error that stopped iteration, or nil if the stream ended
// cleanly or iteration is still in progress.
func (r *Reader) Err() error { return r.err }

// Close releases the Reader, closing the underlying stream if it is an
// io.Closer. Close may be called more than once; later calls do nothing.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed, r.done = true, true
	return closeIfCloser(r.base)
}
