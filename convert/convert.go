// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package convert turns flight logs into capture files, writing one capture
// record per telemetry message.
package convert

import (
	"io"

	"github.com/danjacques/gomavpcap/mavlog"
	"github.com/danjacques/gomavpcap/pcap"
	"github.com/danjacques/gomavpcap/support/fmtutil"
	"github.com/danjacques/gomavpcap/support/logging"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

const (
	// DefaultExt is the extension given to output capture files.
	DefaultExt = ".pcap"

	// lockSuffix is appended to an output path to name its lock file.
	lockSuffix = ".lock"
)

// DefaultSkipKinds returns the message kinds that are not written by default.
//
// FMT messages describe the log layout and PARM messages hold vehicle
// parameters; neither is telemetry.
func DefaultSkipKinds() []string { return []string{"FMT", "PARM"} }

// Config configures conversions.
type Config struct {
	// LinkType is the link type written to capture file headers.
	LinkType pcap.LinkType
	// SnapLen is the snapshot length written to capture file headers.
	SnapLen uint32

	// SkipKinds lists message kinds that are not written.
	SkipKinds []string

	// ZeroTimeBase, if true, makes record timestamps relative to the first
	// message in the log.
	ZeroTimeBase bool

	// Logger, if not nil, is used to log conversion progress.
	Logger logging.L
}

// DefaultConfig returns the Config used by the mavpcap command.
func DefaultConfig() Config {
	return Config{
		LinkType:     pcap.LinkTypeUser0,
		SnapLen:      pcap.DefaultSnapLen,
		SkipKinds:    DefaultSkipKinds(),
		ZeroTimeBase: true,
	}
}

// Stats summarizes a conversion.
type Stats struct {
	// Messages is the number of messages read from the source.
	Messages int64
	// Written is the number of records written.
	Written int64
	// Skipped is the number of messages dropped because of their kind.
	Skipped int64
	// BadData is the number of bad data messages dropped.
	BadData int64
	// Bytes is the number of payload bytes written.
	Bytes int64
	// Clamped is the number of messages whose timestamp preceded the time
	// base and was clamped to zero.
	Clamped int64
}

// Convert reads every message from src and appends the telemetry messages to
// w.
//
// Bad data and messages of a skipped kind are dropped. Convert does not close
// src or w.
func (cfg *Config) Convert(src mavlog.Source, w *pcap.Writer) (Stats, error) {
	logger := logging.Must(cfg.Logger)

	skip := make(map[string]struct{}, len(cfg.SkipKinds))
	for _, kind := range cfg.SkipKinds {
		skip[kind] = struct{}{}
	}

	var (
		st       Stats
		base     float64
		haveBase bool
	)
	for {
		m, err := src.Next()
		switch {
		case err == io.EOF:
			if st.Clamped > 0 {
				logger.Warnf("Clamped %d message timestamp(s) that preceded the first message to zero.",
					st.Clamped)
			}
			return st, nil
		case err != nil:
			return st, errors.Wrap(err, "reading message")
		}
		st.Messages++

		if m.IsBadData() {
			st.BadData++
			convertMessages.WithLabelValues(outcomeBadData).Inc()
			logger.Debugf("Skipping %d bytes of bad data: %s", len(m.Raw), fmtutil.HexSlice(m.Raw))
			continue
		}

		ts := m.Timestamp
		if cfg.ZeroTimeBase {
			if !haveBase {
				base, haveBase = ts, true
			}
			if ts -= base; ts < 0 {
				if st.Clamped == 0 {
					logger.Debugf("Message #%d (%s) precedes the first message by %.6fs; clamping to zero.",
						st.Messages, m.Kind, -ts)
				}
				st.Clamped++
				ts = 0
			}
		}

		if _, ok := skip[m.Kind]; ok {
			st.Skipped++
			convertMessages.WithLabelValues(outcomeSkipped).Inc()
			continue
		}

		sec, usec, err := SplitTimestamp(ts)
		if err != nil {
			return st, errors.Wrapf(err, "message #%d (%s)", st.Messages, m.Kind)
		}
		if err := w.WriteRecord(sec, usec, m.Raw); err != nil {
			return st, errors.Wrapf(err, "writing message #%d (%s)", st.Messages, m.Kind)
		}

		st.Written++
		st.Bytes += int64(len(m.Raw))
		convertMessages.WithLabelValues(outcomeWritten).Inc()
		convertWrittenBytes.Add(float64(len(m.Raw)))
	}
}

// ConvertFile converts the flight log at input into a capture file at output.
//
// The output file is locked against concurrent conversions for the duration
// of the call, using a persistent "<output>.lock" file. If the conversion fails, output may be left incomplete.
func (cfg *Config) ConvertFile(input, output string, format mavlog.Format) (st Stats, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		convertFiles.WithLabelValues(result).Inc()
	}()

	lock := flock.New(output + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return st, errors.Wrap(err, "locking output")
	}
	if !locked {
		return st, errors.Errorf("output %q is locked by another conversion", output)
	}
	// The lock file is left in place. Removing it would let a waiter holding
	// the old inode and a newcomer creating a fresh one both win the lock.
	defer func() {
		_ = lock.Unlock()
	}()

	// Open our source first, so a bad input does not leave an empty output.
	src, err := mavlog.Open(input, format)
	if err != nil {
		return st, err
	}
	defer func() {
		_ = src.Close()
	}()

	w, err := pcap.Create(output, &pcap.WriterConfig{
		SnapLen:  cfg.SnapLen,
		LinkType: cfg.LinkType,
	})
	if err != nil {
		return st, err
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "closing output")
		}
	}()

	logging.Must(cfg.Logger).Debugf("Converting %q to %q.", input, output)
	return cfg.Convert(src, w)
}
