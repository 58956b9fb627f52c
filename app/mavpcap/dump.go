// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavpcap

import (
	"fmt"
	"io"
	"time"

	"github.com/danjacques/gomavpcap/pcap"
	"github.com/danjacques/gomavpcap/support/fmtutil"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

// dumpPreviewBytes is the number of payload bytes shown per table row.
const dumpPreviewBytes = 16

type dumpOptions struct {
	hex   bool
	limit int
}

func newDumpCommand() *cobra.Command {
	var opts dumpOptions
	cmd := &cobra.Command{
		Use:   "dump [flags] CAPTURE...",
		Short: "Print the records of capture files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := dumpFile(cmd.OutOrStdout(), path, &opts); err != nil {
					return err
				}
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&opts.hex, "hex", false, "Print a full hex dump of each payload.")
	fs.IntVar(&opts.limit, "limit", 0, "Print at most this many records per file (0 for all).")
	return cmd
}

func dumpFile(out io.Writer, path string, opts *dumpOptions) error {
	r, err := pcap.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	hdr := r.Header()
	fmt.Fprintf(out, "%s: version %d.%d, %s, link type %s, snaplen %d\n",
		path, hdr.VersionMajor, hdr.VersionMinor, r.ByteOrder(), r.LinkType(), hdr.SnapLen)

	table := uitable.New()
	table.AddRow("#", "TIME", "LENGTH", "PAYLOAD")

	var count, total int64
	for r.Next() {
		rec := r.Record()
		count++
		total += int64(len(rec.Payload))
		if opts.limit > 0 && count > int64(opts.limit) {
			continue
		}

		if opts.hex {
			fmt.Fprintf(out, "#%d %s (%d bytes)\n%s", count, rec.Time().Format(time.RFC3339Nano), len(rec.Payload),
				fmtutil.Hex(rec.Payload))
			continue
		}
		table.AddRow(count, rec.Time().Format(time.RFC3339Nano), len(rec.Payload),
			fmtutil.Preview(rec.Payload, dumpPreviewBytes))
	}
	if !opts.hex {
		fmt.Fprintln(out, table)
	}
	if err := r.Err(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s records, %s of payload\n", humanize.Comma(count), humanize.Bytes(uint64(total)))
	return nil
}
