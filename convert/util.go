// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package convert

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SplitTimestamp splits a timestamp in seconds into whole seconds and
// microseconds.
//
// Microseconds are rounded to the nearest value. If rounding reaches a full
// second, it carries into the seconds, so usec is always below 1000000.
func SplitTimestamp(ts float64) (sec, usec uint32, err error) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return 0, 0, errors.Errorf("invalid timestamp %v", ts)
	}

	whole := math.Floor(ts)
	frac := math.Round((ts - whole) * 1e6)
	if frac >= 1e6 {
		whole, frac = whole+1, frac-1e6
	}
	if whole > math.MaxUint32 {
		return 0, 0, errors.Errorf("timestamp %v is too large", ts)
	}
	return uint32(whole), uint32(frac), nil
}

// OutputPath derives a capture file path from an input log path.
//
// The final extension of the input's base name is removed, prefix is prepended
// and ext is appended. The result is in the same directory as input. A base
// name with several dots loses only its last dot-segment; a base name without
// an extension is kept whole.
func OutputPath(input, prefix, ext string) string {
	dir, file := filepath.Split(input)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	return dir + prefix + base + ext
}
