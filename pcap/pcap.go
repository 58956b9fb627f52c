// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcap

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// Magic is the file header magic number, after byte-order correction.
	Magic uint32 = 0xA1B2C3D4

	// VersionMajor is the only supported major file format version.
	VersionMajor uint16 = 2
	// VersionMinor is the only supported minor file format version.
	VersionMinor uint16 = 4

	// DefaultSnapLen is the snapshot length written when none is configured.
	DefaultSnapLen uint32 = 65535

	// FileHeaderSize is the encoded size of a FileHeader, in bytes.
	FileHeaderSize = 24
	// RecordHeaderSize is the encoded size of a RecordHeader, in bytes.
	RecordHeaderSize = 16

	// microsPerSecond bounds the ts_usec record field.
	microsPerSecond = 1000000
)

// LinkType identifies how downstream readers should interpret record payloads.
//
// Values follow the tcpdump.org LINKTYPE_ registry. This package treats them
// as opaque tags.
type LinkType uint32

const (
	// LinkTypeNull is BSD loopback encapsulation.
	LinkTypeNull LinkType = 0
	// LinkTypeEthernet is IEEE 802.3 Ethernet.
	LinkTypeEthernet LinkType = 1

	// LinkTypeUser0 is the first of the sixteen link types reserved for
	// private use. Telemetry captures are written with it.
	LinkTypeUser0 LinkType = 147
	// LinkTypeUser15 is the last of the private-use link types.
	LinkTypeUser15 LinkType = 162
)

func (lt LinkType) String() string {
	switch {
	case lt == LinkTypeNull:
		return "NULL"
	case lt == LinkTypeEthernet:
		return "ETHERNET"
	case lt >= LinkTypeUser0 && lt <= LinkTypeUser15:
		return fmt.Sprintf("USER%d", lt-LinkTypeUser0)
	default:
		return fmt.Sprintf("LINKTYPE_%d", uint32(lt))
	}
}

// FileHeader is the global header at the start of every capture file.
type FileHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	// ThisZone is the GMT-to-local correction. Always written as zero.
	ThisZone int32
	// SigFigs is the timestamp accuracy. Always written as zero.
	SigFigs uint32
	// SnapLen is the advisory maximum number of captured bytes per record.
	SnapLen  uint32
	LinkType uint32
}

// RecordHeader precedes each record's payload.
type RecordHeader struct {
	Seconds     uint32
	Micros      uint32
	CapturedLen uint32
	OriginalLen uint32
}

// Record is a single decoded capture record.
type Record struct {
	// Seconds is the record timestamp, in whole seconds.
	Seconds uint32
	// Micros is the sub-second part of the timestamp, in [0, 1000000).
	Micros uint32
	// OriginalLen is the length of the record before any truncation.
	OriginalLen uint32
	// Payload is the captured record body. It is owned by the caller.
	Payload []byte
}

// Time returns the record's timestamp as a UTC time.
func (r *Record) Time() time.Time {
	return time.Unix(int64(r.Seconds), int64(r.Micros)*int64(time.Microsecond)).UTC()
}

// Truncated returns true if fewer bytes were captured than the record
// originally held.
func (r *Record) Truncated() bool { return uint32(len(r.Payload)) < r.OriginalLen }

// FormatError is returned when a capture stream is malformed or unsupported.
type FormatError struct {
	// Reason describes what is wrong with the stream.
	Reason string
	// Offset is the stream offset at which the problem was detected.
	Offset int64
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("pcap: %s (at offset %d)", e.Reason, e.Offset)
}

// IsFormatError returns true if err, or the error it wraps, is a FormatError.
func IsFormatError(err error) bool {
	_, ok := errors.Cause(err).(*FormatError)
	return ok
}

func formatErrorf(offset int64, f string, args ...interface{}) *FormatError {
	return &FormatError{
		Reason: fmt.Sprintf(f, args...),
		Offset: offset,
	}
}

// detectByteOrder returns the byte order in which magic reads as Magic, or nil
// if there is none.
func detectByteOrder(magic []byte) binary.ByteOrder {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if order.Uint32(magic) == Magic {
			return order
		}
	}
	return nil
}

// nativeOrder returns the host byte order as binary.LittleEndian or
// binary.BigEndian.
func nativeOrder() binary.ByteOrder {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 0x0001 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// closeIfCloser closes v if it is an io.Closer.
func closeIfCloser(v interface{}) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func structOptions(order binary.ByteOrder) *struc.Options {
	return &struc.Options{Order: order}
}
