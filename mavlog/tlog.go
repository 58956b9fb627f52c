// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavlog

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/danjacques/gomavpcap/support/dataio"

	"github.com/pkg/errors"
)

const (
	// mavlink1Magic starts a MAVLink v1 frame.
	mavlink1Magic = 0xFE
	// mavlink2Magic starts a MAVLink v2 frame.
	mavlink2Magic = 0xFD

	// mavlink1HeaderSize is the size of a v1 header, including the magic byte.
	mavlink1HeaderSize = 6
	// mavlink2HeaderSize is the size of a v2 header, including the magic byte.
	mavlink2HeaderSize = 10
	// mavlinkChecksumSize is the size of the trailing frame checksum.
	mavlinkChecksumSize = 2
	// mavlink2SignatureSize is the size of an optional v2 frame signature.
	mavlink2SignatureSize = 13
	// mavlink2FlagSigned is the incompatibility flag marking a signed v2 frame.
	mavlink2FlagSigned = 0x01

	// tlogTimestampSize is the size of the timestamp preceding each frame.
	tlogTimestampSize = 8
)

// TLogReader frames MAVLink messages from a telemetry log.
type TLogReader struct {
	br   *bufio.Reader
	base io.Reader

	// ts is the timestamp read for the next frame, valid if haveTS is true.
	ts     float64
	haveTS bool
	// tsRaw holds the encoded timestamp until a byte following it is consumed.
	tsRaw []byte

	done bool
}

var _ Source = (*TLogReader)(nil)

// NewTLogReader returns a TLogReader that reads from r.
func NewTLogReader(r io.Reader) *TLogReader {
	return &TLogReader{
		br:   bufio.NewReader(r),
		base: r,
	}
}

// Next implements Source.
func (t *TLogReader) Next() (*Message, error) {
	if t.done {
		return nil, io.EOF
	}

	if !t.haveTS {
		var buf [tlogTimestampSize]byte
		switch amt, err := dataio.ReadFull(t.br, buf[:]); {
		case err == nil:
			t.ts = float64(binary.BigEndian.Uint64(buf[:])) / 1e6
			t.haveTS = true
			t.tsRaw = buf[:]
		case err == io.EOF && amt == 0:
			t.done = true
			return nil, io.EOF
		case err == io.EOF:
			t.done = true
			return t.badData(buf[:amt]), nil
		default:
			return nil, errors.Wrap(err, "reading timestamp")
		}
	}

	// Skip (and report) anything that isn't the start of a frame.
	first, err := t.br.Peek(1)
	switch {
	case err == io.EOF:
		t.done = true
		if t.tsRaw != nil {
			// A timestamp with no frame after it.
			return t.badData(t.tsRaw), nil
		}
		return nil, io.EOF
	case err != nil:
		return nil, errors.Wrap(err, "reading frame")
	case !isMAVLinkMagic(first[0]):
		t.tsRaw = nil
		return t.skipToFrame()
	}
	t.tsRaw = nil

	hdrSize := mavlink1HeaderSize
	if first[0] == mavlink2Magic {
		hdrSize = mavlink2HeaderSize
	}
	hdr, err := t.br.Peek(hdrSize)
	if err != nil {
		if err == io.EOF {
			return t.badTail()
		}
		return nil, errors.Wrap(err, "reading frame header")
	}

	frameSize := hdrSize + int(hdr[1]) + mavlinkChecksumSize
	var msgID uint32
	if hdrSize == mavlink1HeaderSize {
		msgID = uint32(hdr[5])
	} else {
		msgID = uint32(hdr[7]) | uint32(hdr[8])<<8 | uint32(hdr[9])<<16
		if hdr[2]&mavlink2FlagSigned != 0 {
			frameSize += mavlink2SignatureSize
		}
	}

	frame := make([]byte, frameSize)
	switch amt, err := dataio.ReadFull(t.br, frame); {
	case err == nil:
	case err == io.EOF:
		t.done = true
		return t.badData(frame[:amt]), nil
	default:
		return nil, errors.Wrap(err, "reading frame")
	}

	t.haveTS = false
	return &Message{
		Kind:      MAVLinkMessageName(msgID),
		Timestamp: t.ts,
		Raw:       frame,
	}, nil
}

// skipToFrame consumes bytes up to the next frame start or the end of the log,
// and reports them as bad data.
func (t *TLogReader) skipToFrame() (*Message, error) {
	var skipped []byte
	for {
		b, err := t.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				t.done = true
				return t.badData(skipped), nil
			}
			return nil, errors.Wrap(err, "reading frame")
		}
		skipped = append(skipped, b)

		if next, err := t.br.Peek(1); err == nil && isMAVLinkMagic(next[0]) {
			return t.badData(skipped), nil
		}
	}
}

// badTail consumes the rest of the log and reports it as bad data.
func (t *TLogReader) badTail() (*Message, error) {
	t.done = true
	rest, err := io.ReadAll(t.br)
	if err != nil {
		return nil, errors.Wrap(err, "reading frame")
	}
	return t.badData(rest), nil
}

func (t *TLogReader) badData(raw []byte) *Message {
	return &Message{
		Kind:      KindBadData,
		Timestamp: t.ts,
		Raw:       append([]byte(nil), raw...),
	}
}

// Close implements Source.
func (t *TLogReader) Close() error {
	t.done = true
	return closeIfCloser(t.base)
}

func isMAVLinkMagic(b byte) bool { return b == mavlink1Magic || b == mavlink2Magic }
