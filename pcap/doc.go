// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pcap reads and writes libpcap capture files.
//
// A capture file consists of a 24-byte file header followed by any number of
// records. Each record is a 16-byte record header and its payload:
//
//	file header:   magic:u32 major:u16 minor:u16 thiszone:i32 sigfigs:u32
//	               snaplen:u32 linktype:u32
//	record header: ts_sec:u32 ts_usec:u32 incl_len:u32 orig_len:u32
//
// All integers in a file share one byte order. Writers choose it (native by
// default); Readers detect it from the magic number, which must equal
// 0xA1B2C3D4 once interpreted in the file's order. Only version 2.4 is
// supported.
//
// Intent is always explicit: a stream is opened for writing with NewWriter or
// Create and for reading with NewReader or Open. An empty stream opened for
// reading is a FormatError, never an implicit new file.
//
// Both Reader and Writer take ownership of their underlying stream. If it is
// an io.Closer, it is closed by Close, and also when the constructor fails.
package pcap
