// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mavpcap defines the "mavpcap" command-line tool.
//
// mavpcap converts MAVLink telemetry logs and ArduPilot DataFlash logs into
// pcap capture files, one record per telemetry message, so they can be opened
// with generic packet inspection tools. Each input "DIR/NAME.EXT" is written
// to "DIR/<prefix>NAME.pcap".
//
// The "dump" subcommand prints the records of existing capture files.
package mavpcap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danjacques/gomavpcap/convert"
	"github.com/danjacques/gomavpcap/support/logging"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Main is the main entry point.
func Main() {
	if err := NewCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// NewCommand returns the root "mavpcap" command.
func NewCommand() *cobra.Command {
	opts := NewOptions()
	cmd := &cobra.Command{
		Use:           "mavpcap [flags] INPUT...",
		Short:         "Convert MAVLink flight logs into pcap capture files.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().SortFlags = false
	opts.AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd.Flags())
		if err != nil {
			return err
		}
		if err := opts.Load(v); err != nil {
			return err
		}
		return runConvert(cmd, opts, args)
	}

	cmd.AddCommand(newDumpCommand())
	return cmd
}

func runConvert(cmd *cobra.Command, opts *Options, inputs []string) (err error) {
	logger, syncLogger, err := logging.NewConsole(opts.Verbose)
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer syncLogger()

	if opts.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		convert.RegisterMonitoring(reg)
		defer func() {
			if writeErr := prometheus.WriteToTextfile(opts.MetricsFile, reg); writeErr != nil && err == nil {
				err = errors.Wrap(writeErr, "writing metrics file")
			}
		}()
	}

	cfg := opts.ConvertConfig(logger)
	failed := 0
	for _, input := range inputs {
		output := convert.OutputPath(input, opts.Prefix, opts.Ext)
		if filepath.Clean(output) == filepath.Clean(input) {
			err := errors.Errorf("output for %q would overwrite its input", input)
			if !opts.KeepGoing {
				return err
			}
			logger.Errorf("Skipping %q: %s", input, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Creating %s\n", output)

		st, err := cfg.ConvertFile(input, output, opts.Format.Value())
		if err != nil {
			if !opts.KeepGoing {
				return errors.Wrapf(err, "converting %q", input)
			}
			logger.Errorf("Failed to convert %q: %s", input, err)
			failed++
			continue
		}

		logger.Infof("Wrote %s records (%s) to %s; skipped %s, bad data %s, clamped %s.",
			humanize.Comma(st.Written), humanize.Bytes(uint64(st.Bytes)), output,
			humanize.Comma(st.Skipped), humanize.Comma(st.BadData), humanize.Comma(st.Clamped))
	}

	if failed > 0 {
		return errors.Errorf("%d of %d conversions failed", failed, len(inputs))
	}
	return nil
}
