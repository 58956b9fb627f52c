// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcap

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing/iotest"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

// closingReader is a bytes.Reader that records whether it was closed.
type closingReader struct {
	*bytes.Reader
	closed bool
}

func (cr *closingReader) Close() error {
	cr.closed = true
	return nil
}

func concat(b ...[]byte) []byte { return bytes.Join(b, nil) }

func readAll(r *Reader) ([]*Record, error) {
	var recs []*Record
	for r.Next() {
		recs = append(recs, r.Record())
	}
	return recs, r.Err()
}

var _ = Describe("Reader", func() {
	records := []Record{
		{Seconds: 0, Micros: 0, Payload: []byte("x")},
		{Seconds: 1, Micros: 500000, Payload: []byte{0x01, 0x02, 0x03}},
		{Seconds: 4294967295, Micros: 999999, Payload: bytes.Repeat([]byte{0xFD}, 280)},
		{Seconds: 7, Micros: 1, Payload: []byte{}},
	}

	DescribeTable("round-trips records written in either byte order",
		func(order binary.ByteOrder) {
			var buf bytes.Buffer
			cfg := WriterConfig{
				LinkType:  LinkTypeUser0,
				ByteOrder: order,
			}
			w, err := cfg.NewWriter(&buf)
			Expect(err).ToNot(HaveOccurred())
			for _, rec := range records {
				Expect(w.WriteRecord(rec.Seconds, rec.Micros, rec.Payload)).To(Succeed())
			}
			Expect(w.Close()).To(Succeed())

			r, err := NewReader(&buf)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.ByteOrder()).To(Equal(order))
			Expect(r.LinkType()).To(Equal(LinkTypeUser0))
			Expect(r.SnapLen()).To(Equal(DefaultSnapLen))

			recs, err := readAll(r)
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(len(records)))
			for i, rec := range recs {
				Expect(rec.Seconds).To(Equal(records[i].Seconds))
				Expect(rec.Micros).To(Equal(records[i].Micros))
				Expect(rec.Payload).To(Equal(records[i].Payload))
				Expect(rec.OriginalLen).To(Equal(uint32(len(records[i].Payload))))
			}

			// Iteration is not restartable.
			Expect(r.Next()).To(BeFalse())
		},
		Entry("little-endian", binary.LittleEndian),
		Entry("big-endian", binary.BigEndian),
	)

	DescribeTable("reads hand-encoded files in either byte order",
		func(order binary.ByteOrder) {
			data := concat(
				rawHeader(order, 2, 4, 65535, LinkTypeUser0),
				rawRecord(order, 1, 500000, []byte{0x01, 0x02, 0x03}),
				rawRecord(order, 2, 0, []byte("ohai")))

			r, err := NewReader(iotest.HalfReader(bytes.NewReader(data)))
			Expect(err).ToNot(HaveOccurred())

			rec, err := r.ReadRecord()
			Expect(err).ToNot(HaveOccurred())
			Expect(*rec).To(Equal(Record{Seconds: 1, Micros: 500000, OriginalLen: 3, Payload: []byte{0x01, 0x02, 0x03}}))

			rec, err = r.ReadRecord()
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.Payload).To(Equal([]byte("ohai")))

			_, err = r.ReadRecord()
			Expect(err).To(Equal(io.EOF))
		},
		Entry("little-endian", binary.LittleEndian),
		Entry("big-endian", binary.BigEndian),
	)

	DescribeTable("rejects unsupported versions",
		func(order binary.ByteOrder, major, minor uint16) {
			cr := closingReader{Reader: bytes.NewReader(rawHeader(order, major, minor, 65535, LinkTypeUser0))}
			_, err := NewReader(&cr)
			Expect(IsFormatError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("unsupported version"))
			Expect(cr.closed).To(BeTrue())
		},
		Entry("2.2 little-endian", binary.LittleEndian, uint16(2), uint16(2)),
		Entry("2.2 big-endian", binary.BigEndian, uint16(2), uint16(2)),
		Entry("1.0 little-endian", binary.LittleEndian, uint16(1), uint16(0)),
		Entry("4.2 big-endian", binary.BigEndian, uint16(4), uint16(2)),
	)

	It("rejects streams with a foreign magic number", func() {
		data := rawHeader(binary.LittleEndian, 2, 4, 65535, LinkTypeUser0)
		// Nanosecond-resolution pcap magic.
		binary.LittleEndian.PutUint32(data, 0xA1B23C4D)

		_, err := NewReader(bytes.NewReader(data))
		Expect(IsFormatError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("not a capture file"))
	})

	It("rejects an empty stream", func() {
		_, err := NewReader(bytes.NewReader(nil))
		Expect(IsFormatError(err)).To(BeTrue())
	})

	It("rejects a truncated file header", func() {
		data := rawHeader(binary.LittleEndian, 2, 4, 65535, LinkTypeUser0)
		_, err := NewReader(bytes.NewReader(data[:FileHeaderSize-1]))
		Expect(IsFormatError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("truncated file header"))
	})

	Context("with a header and no records", func() {
		It("is immediately exhausted", func() {
			r, err := NewReader(bytes.NewReader(rawHeader(binary.BigEndian, 2, 4, 65535, LinkTypeUser0)))
			Expect(err).ToNot(HaveOccurred())

			Expect(r.Next()).To(BeFalse())
			Expect(r.Err()).ToNot(HaveOccurred())
			Expect(r.Record()).To(BeNil())
		})
	})

	Context("with a truncated final record", func() {
		order := binary.LittleEndian
		good := rawRecord(order, 1, 2, []byte("first"))
		last := rawRecord(order, 3, 4, []byte("second"))

		It("reads preceding records, then reports a truncated payload", func() {
			data := concat(rawHeader(order, 2, 4, 65535, LinkTypeUser0), good, last[:len(last)-2])
			r, err := NewReader(bytes.NewReader(data))
			Expect(err).ToNot(HaveOccurred())

			recs, err := readAll(r)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Payload).To(Equal([]byte("first")))
			Expect(IsFormatError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("truncated record"))
			Expect(err.(*FormatError).Offset).To(Equal(int64(FileHeaderSize + len(good))))
		})

		It("reports a truncated record header", func() {
			data := concat(rawHeader(order, 2, 4, 65535, LinkTypeUser0), good, last[:RecordHeaderSize-1])
			r, err := NewReader(bytes.NewReader(data))
			Expect(err).ToNot(HaveOccurred())

			_, err = r.ReadRecord()
			Expect(err).ToNot(HaveOccurred())
			_, err = r.ReadRecord()
			Expect(IsFormatError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("truncated record header"))
		})
	})

	It("does not trust huge declared lengths", func() {
		order := binary.BigEndian
		rec := rawRecord(order, 1, 2, nil)
		order.PutUint32(rec[8:], 0xFFFFFFF0)

		r, err := NewReader(bytes.NewReader(concat(rawHeader(order, 2, 4, 65535, LinkTypeUser0), rec, []byte("abc"))))
		Expect(err).ToNot(HaveOccurred())
		_, err = r.ReadRecord()
		Expect(IsFormatError(err)).To(BeTrue())
	})

	Context("with files on disk", func() {
		var tdir string

		BeforeEach(func() {
			var err error
			tdir, err = ioutil.TempDir("", "pcap_test")
			Expect(err).ToNot(HaveOccurred())
		})

		AfterEach(func() {
			if tdir != "" {
				_ = os.RemoveAll(tdir)
				tdir = ""
			}
		})

		It("creates and reopens a capture file", func() {
			path := filepath.Join(tdir, "out.pcap")
			w, err := Create(path, &WriterConfig{LinkType: LinkTypeUser0})
			Expect(err).ToNot(HaveOccurred())
			Expect(w.WriteRecord(10, 20, []byte("hello"))).To(Succeed())
			Expect(w.Close()).To(Succeed())

			r, err := Open(path)
			Expect(err).ToNot(HaveOccurred())
			defer r.Close()

			recs, err := readAll(r)
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Payload).To(Equal([]byte("hello")))
			Expect(r.Close()).To(Succeed())
		})

		It("refuses to read an empty file", func() {
			path := filepath.Join(tdir, "empty.pcap")
			Expect(ioutil.WriteFile(path, nil, 0644)).To(Succeed())

			_, err := Open(path)
			Expect(IsFormatError(err)).To(BeTrue())
		})

		It("reports a missing file as an I/O error", func() {
			_, err := Open(filepath.Join(tdir, "missing.pcap"))
			Expect(err).To(HaveOccurred())
			Expect(IsFormatError(err)).To(BeFalse())
			Expect(os.IsNotExist(errors.Cause(err))).To(BeTrue())
		})
	})
})
