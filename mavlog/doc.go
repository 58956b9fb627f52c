// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mavlog splits flight logs into individual telemetry messages.
//
// Two log layouts are supported:
//
//	- Telemetry logs (".tlog"), as recorded by ground control stations: each
//	  MAVLink v1 or v2 frame is preceded by a big-endian 64-bit count of
//	  microseconds since the Unix epoch.
//	- DataFlash logs (".bin"), as recorded on board by ArduPilot: each message
//	  starts with the 0xA3 0x95 marker and a type byte, and FMT messages
//	  describe the layout of every other type.
//
// mavlog only frames messages. It reports each message's kind, timestamp, and
// raw encoded bytes; it does not decode message fields or verify checksums.
// Bytes that cannot be framed are reported as KindBadData messages rather than
// errors, so callers can skip them and continue.
package mavlog
