// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcap

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// trackingBuffer is a bytes.Buffer that records whether it was closed.
type trackingBuffer struct {
	bytes.Buffer
	closed int
}

func (tb *trackingBuffer) Close() error {
	tb.closed++
	return nil
}

// failingWriter fails every write.
type failingWriter struct {
	closed bool
}

func (fw *failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func (fw *failingWriter) Close() error {
	fw.closed = true
	return nil
}

var _ = Describe("Writer", func() {
	var buf trackingBuffer

	BeforeEach(func() {
		buf = trackingBuffer{}
	})

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		order := order

		Context("writing "+order.String(), func() {
			var w *Writer

			BeforeEach(func() {
				var err error
				cfg := WriterConfig{
					SnapLen:   1024,
					LinkType:  LinkTypeUser0,
					ByteOrder: order,
				}
				w, err = cfg.NewWriter(&buf)
				Expect(err).ToNot(HaveOccurred())
			})

			It("writes the file header immediately", func() {
				Expect(buf.Bytes()).To(Equal(rawHeader(order, 2, 4, 1024, LinkTypeUser0)))
				Expect(w.NumBytes()).To(Equal(int64(FileHeaderSize)))
				Expect(w.ByteOrder()).To(Equal(order))
			})

			It("frames records with equal captured and original lengths", func() {
				Expect(w.WriteRecord(1, 500000, []byte{0x01, 0x02, 0x03})).To(Succeed())
				Expect(w.Flush()).To(Succeed())

				expected := append(rawHeader(order, 2, 4, 1024, LinkTypeUser0),
					rawRecord(order, 1, 500000, []byte{0x01, 0x02, 0x03})...)
				Expect(buf.Bytes()).To(Equal(expected))
				Expect(w.NumRecords()).To(Equal(int64(1)))
				Expect(w.NumBytes()).To(Equal(int64(FileHeaderSize + RecordHeaderSize + 3)))
			})
		})
	}

	It("defaults to the native byte order and snapshot length", func() {
		w, err := NewWriter(&buf, LinkTypeEthernet)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Header().SnapLen).To(Equal(DefaultSnapLen))
		Expect(w.Header().LinkType).To(Equal(uint32(LinkTypeEthernet)))
		Expect(buf.Bytes()).To(Equal(rawHeader(nativeOrder(), 2, 4, DefaultSnapLen, LinkTypeEthernet)))
	})

	It("rejects out-of-range microseconds without writing", func() {
		w, err := NewWriter(&buf, LinkTypeUser0)
		Expect(err).ToNot(HaveOccurred())

		Expect(w.WriteRecord(0, 1000000, []byte("x"))).ToNot(Succeed())
		Expect(w.Flush()).To(Succeed())
		Expect(buf.Len()).To(Equal(FileHeaderSize))
		Expect(w.NumRecords()).To(BeZero())
	})

	It("writes records from a time.Time", func() {
		cfg := WriterConfig{ByteOrder: binary.LittleEndian}
		w, err := cfg.NewWriter(&buf)
		Expect(err).ToNot(HaveOccurred())

		ts := time.Unix(1500000000, 123456789)
		Expect(w.WriteTime(ts, []byte("ab"))).To(Succeed())
		Expect(w.Flush()).To(Succeed())
		Expect(buf.Bytes()[FileHeaderSize:]).To(Equal(rawRecord(binary.LittleEndian, 1500000000, 123456, []byte("ab"))))

		Expect(w.WriteTime(time.Unix(-1, 0), []byte("ab"))).ToNot(Succeed())
	})

	It("flushes and closes the underlying stream once", func() {
		w, err := NewWriter(&buf, LinkTypeUser0)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.WriteRecord(3, 4, []byte("payload"))).To(Succeed())

		Expect(w.Close()).To(Succeed())
		Expect(w.Close()).To(Succeed())
		Expect(buf.closed).To(Equal(1))
		Expect(buf.Len()).To(Equal(FileHeaderSize + RecordHeaderSize + 7))

		Expect(w.WriteRecord(3, 4, []byte("late"))).ToNot(Succeed())
	})

	It("reports a failing sink at open time and releases it", func() {
		fw := failingWriter{}
		_, err := NewWriter(&fw, LinkTypeUser0)
		Expect(err).To(HaveOccurred())
		Expect(IsFormatError(err)).To(BeFalse())
		Expect(fw.closed).To(BeTrue())
	})
})
