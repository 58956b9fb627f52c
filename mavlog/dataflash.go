// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/danjacques/gomavpcap/support/dataio"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// dfHead1 and dfHead2 start every DataFlash message.
	dfHead1 = 0xA3
	dfHead2 = 0x95
	// dfHeaderSize is the size of a message header: two marker bytes and a
	// type byte.
	dfHeaderSize = 3

	// dfFormatType is the type of FMT messages.
	dfFormatType = 128
	// dfFormatSize is the full size of a FMT message.
	dfFormatSize = 89
	// dfFormatName is the name FMT messages describe themselves with.
	dfFormatName = "FMT"
)

// dfFieldSizes maps DataFlash format characters to their encoded sizes.
var dfFieldSizes = map[byte]int{
	'a': 64, // int16[32]
	'b': 1,
	'B': 1,
	'h': 2,
	'H': 2,
	'i': 4,
	'I': 4,
	'f': 4,
	'd': 8,
	'n': 4,
	'N': 16,
	'Z': 64,
	'c': 2,
	'C': 2,
	'e': 4,
	'E': 4,
	'L': 4,
	'M': 1,
	'q': 8,
	'Q': 8,
}

// dfFormatBody is the body of a FMT message, following its header.
type dfFormatBody struct {
	Type    uint8
	Length  uint8
	Name    []byte `struc:"[4]byte"`
	Format  []byte `struc:"[16]byte"`
	Columns []byte `struc:"[64]byte"`
}

// dfFormat describes one DataFlash message type.
type dfFormat struct {
	name   string
	length int

	// timeOffset is the offset of the message's time field within the full
	// message, or -1 if it has none.
	timeOffset int
	// timeSize is the encoded size of the time field.
	timeSize int
	// timeUnits is the number of time field units per second.
	timeUnits float64
}

// timestamp extracts the message time from msg, in seconds.
func (f *dfFormat) timestamp(msg []byte) (float64, bool) {
	if f.timeOffset < 0 || f.timeOffset+f.timeSize > len(msg) {
		return 0, false
	}

	field := msg[f.timeOffset : f.timeOffset+f.timeSize]
	var v uint64
	switch f.timeSize {
	case 8:
		v = binary.LittleEndian.Uint64(field)
	case 4:
		v = uint64(binary.LittleEndian.Uint32(field))
	case 2:
		v = uint64(binary.LittleEndian.Uint16(field))
	case 1:
		v = uint64(field[0])
	default:
		return 0, false
	}
	return float64(v) / f.timeUnits, true
}

func parseFormatBody(body []byte) (uint8, *dfFormat, error) {
	var fb dfFormatBody
	if err := struc.Unpack(bytes.NewReader(body), &fb); err != nil {
		return 0, nil, errors.Wrap(err, "decoding FMT message")
	}

	f := dfFormat{
		name:       cString(fb.Name),
		length:     int(fb.Length),
		timeOffset: -1,
	}
	if f.length < dfHeaderSize {
		return 0, nil, errors.Errorf("FMT for %q declares invalid length %d", f.name, f.length)
	}

	format := cString(fb.Format)
	columns := strings.Split(cString(fb.Columns), ",")
	offset := dfHeaderSize
	for i := 0; i < len(format); i++ {
		size, ok := dfFieldSizes[format[i]]
		if !ok {
			// Later field offsets are unknowable.
			break
		}

		if i < len(columns) {
			switch columns[i] {
			case "TimeUS":
				f.timeOffset, f.timeSize, f.timeUnits = offset, size, 1e6
			case "TimeMS":
				f.timeOffset, f.timeSize, f.timeUnits = offset, size, 1e3
			}
		}
		if f.timeOffset >= 0 {
			break
		}
		offset += size
	}
	return fb.Type, &f, nil
}

// DataFlashReader frames messages from an ArduPilot DataFlash log.
type DataFlashReader struct {
	br   *bufio.Reader
	base io.Reader

	formats map[uint8]*dfFormat
	// lastTS is the most recent message timestamp, used for messages that do
	// not carry their own.
	lastTS float64

	done bool
}

var _ Source = (*DataFlashReader)(nil)

// NewDataFlashReader returns a DataFlashReader that reads from r.
func NewDataFlashReader(r io.Reader) *DataFlashReader {
	return &DataFlashReader{
		br:   bufio.NewReader(r),
		base: r,
		formats: map[uint8]*dfFormat{
			dfFormatType: {
				name:       dfFormatName,
				length:     dfFormatSize,
				timeOffset: -1,
			},
		},
	}
}

// Next implements Source.
func (d *DataFlashReader) Next() (*Message, error) {
	if d.done {
		return nil, io.EOF
	}

	hdr, err := d.br.Peek(dfHeaderSize)
	switch {
	case err == io.EOF && len(hdr) == 0:
		d.done = true
		return nil, io.EOF
	case err == io.EOF:
		return d.badTail()
	case err != nil:
		return nil, errors.Wrap(err, "reading message header")
	case hdr[0] != dfHead1 || hdr[1] != dfHead2:
		return d.skipToMessage()
	}

	msgType := hdr[2]
	f := d.formats[msgType]
	if f == nil {
		// Without a format, the message length is unknown. Report the header and
		// resynchronize on the next marker.
		var raw [dfHeaderSize]byte
		if _, err := dataio.ReadFull(d.br, raw[:]); err != nil {
			return nil, errors.Wrap(err, "reading message header")
		}
		return d.badData(raw[:]), nil
	}

	msg := make([]byte, f.length)
	switch amt, err := dataio.ReadFull(d.br, msg); {
	case err == nil:
	case err == io.EOF:
		d.done = true
		return d.badData(msg[:amt]), nil
	default:
		return nil, errors.Wrap(err, "reading message")
	}

	if msgType == dfFormatType {
		// A malformed FMT message is still forwarded; it just defines nothing.
		if defType, def, err := parseFormatBody(msg[dfHeaderSize:]); err == nil && defType != dfFormatType {
			d.formats[defType] = def
		}
	}

	if ts, ok := f.timestamp(msg); ok {
		d.lastTS = ts
	}
	return &Message{
		Kind:      f.name,
		Timestamp: d.lastTS,
		Raw:       msg,
	}, nil
}

// skipToMessage consumes bytes up to the next message marker or the end of
// the log, and reports them as bad data.
func (d *DataFlashReader) skipToMessage() (*Message, error) {
	var skipped []byte
	for {
		b, err := d.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				d.done = true
				return d.badData(skipped), nil
			}
			return nil, errors.Wrap(err, "reading message")
		}
		skipped = append(skipped, b)

		if next, err := d.br.Peek(2); err == nil && next[0] == dfHead1 && next[1] == dfHead2 {
			return d.badData(skipped), nil
		}
	}
}

// badTail consumes the rest of the log and reports it as bad data.
func (d *DataFlashReader) badTail() (*Message, error) {
	d.done = true
	rest, err := io.ReadAll(d.br)
	if err != nil {
		return nil, errors.Wrap(err, "reading message")
	}
	return d.badData(rest), nil
}

func (d *DataFlashReader) badData(raw []byte) *Message {
	return &Message{
		Kind:      KindBadData,
		Timestamp: d.lastTS,
		Raw:       append([]byte(nil), raw...),
	}
}

// Close implements Source.
func (d *DataFlashReader) Close() error {
	d.done = true
	return closeIfCloser(d.base)
}

// cString returns the text of b up to its first NUL byte.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
