// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio contains byte-level reading helpers shared by the capture
// codec and the telemetry framers.
package dataio

import (
	"io"
)

// ReadFull reads from r until buf is full, or until an error is encountered.
// It returns the number of bytes that were read into buf.
//
// This accommodates the fact that io.Reader is allowed to return less than the
// full buffer size without erroring.
//
// Unlike io.ReadFull, an io.EOF is returned unchanged regardless of how much
// data was read before it. Callers inspect the returned count to tell a clean
// end of stream (zero bytes) apart from a truncated one.
func ReadFull(r io.Reader, buf []byte) (int, error) {
	count := 0
	for remaining := buf; len(remaining) > 0; {
		amt, err := r.Read(remaining)
		remaining, count = remaining[amt:], count+amt
		if err != nil {
			if err == io.EOF && len(remaining) == 0 {
				// Finished read and returned EOF.
				return count, nil
			}

			// Either did not finish read, or returned a non-EOF error.
			return count, err
		}
	}
	return count, nil
}
