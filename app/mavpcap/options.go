// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavpcap

import (
	"fmt"
	"strings"

	"github.com/danjacques/gomavpcap/convert"
	"github.com/danjacques/gomavpcap/mavlog"
	"github.com/danjacques/gomavpcap/pcap"
	"github.com/danjacques/gomavpcap/support/logging"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment variables that override flag defaults, e.g.
// MAVPCAP_PRE for --pre.
const envPrefix = "MAVPCAP"

// Options holds the conversion command's settings.
type Options struct {
	Prefix       string
	Ext          string
	Format       mavlog.FormatFlag
	LinkType     uint32
	SnapLen      uint32
	Skip         []string
	ZeroTimeBase bool
	KeepGoing    bool
	MetricsFile  string
	ConfigFile   string
	Verbose      bool
}

// NewOptions returns Options populated with default values.
func NewOptions() *Options {
	cfg := convert.DefaultConfig()
	return &Options{
		Ext:          convert.DefaultExt,
		Format:       mavlog.FormatFlag(mavlog.FormatAuto),
		LinkType:     uint32(cfg.LinkType),
		SnapLen:      cfg.SnapLen,
		Skip:         cfg.SkipKinds,
		ZeroTimeBase: cfg.ZeroTimeBase,
	}
}

// AddFlags adds the Options' flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Prefix, "pre", "p", o.Prefix,
		"Prefix prepended to output file names.")
	fs.StringVar(&o.Ext, "ext", o.Ext,
		"Extension of output file names.")
	fs.Var(&o.Format, "format",
		fmt.Sprintf("Input log format. Options are: %s.", strings.Join(mavlog.FormatNames(), ", ")))
	fs.Uint32Var(&o.LinkType, "link-type", o.LinkType,
		"Link type written to capture file headers.")
	fs.Uint32Var(&o.SnapLen, "snaplen", o.SnapLen,
		"Snapshot length written to capture file headers.")
	fs.StringSliceVar(&o.Skip, "skip", o.Skip,
		"Message kinds that are not written.")
	fs.BoolVar(&o.ZeroTimeBase, "zero-time-base", o.ZeroTimeBase,
		"Make record timestamps relative to the first message of each log.")
	fs.BoolVar(&o.KeepGoing, "keep-going", o.KeepGoing,
		"Continue with the next input after a failed conversion.")
	fs.StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile,
		"If set, write Prometheus conversion metrics to this file.")
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile,
		"Optional configuration file (YAML, JSON or TOML) with flag defaults.")
	fs.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose,
		"Emit debug logging.")
}

// newViper returns a viper instance that resolves flag values from fs, the
// environment, and an optional configuration file.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}
	return v, nil
}

// Load resolves the Options from v, reading the configuration file if one is
// named, and validates them.
func (o *Options) Load(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config file %q", path)
		}
	}

	o.Prefix = v.GetString("pre")
	o.Ext = v.GetString("ext")
	if err := o.Format.Set(v.GetString("format")); err != nil {
		return err
	}
	o.LinkType = v.GetUint32("link-type")
	o.SnapLen = v.GetUint32("snaplen")
	o.Skip = splitKinds(v.GetStringSlice("skip"))
	o.ZeroTimeBase = v.GetBool("zero-time-base")
	o.KeepGoing = v.GetBool("keep-going")
	o.MetricsFile = v.GetString("metrics-file")
	o.ConfigFile = v.GetString("config")
	o.Verbose = v.GetBool("verbose")

	if errs := o.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return errors.Errorf("invalid options: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Validate checks the Options for consistency.
func (o *Options) Validate() []error {
	var errs []error
	if o.SnapLen == 0 {
		errs = append(errs, errors.New("snaplen must be positive"))
	}
	if o.Prefix == "" && o.Ext == "" {
		errs = append(errs, errors.New("a prefix or an extension is required"))
	}
	return errs
}

// ConvertConfig returns the conversion Config described by the Options.
func (o *Options) ConvertConfig(logger logging.L) convert.Config {
	return convert.Config{
		LinkType:     pcap.LinkType(o.LinkType),
		SnapLen:      o.SnapLen,
		SkipKinds:    o.Skip,
		ZeroTimeBase: o.ZeroTimeBase,
		Logger:       logger,
	}
}

// splitKinds flattens comma-separated entries. Values read from the
// environment or a scalar config key arrive as a single entry.
func splitKinds(values []string) []string {
	kinds := make([]string, 0, len(values))
	for _, v := range values {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, k)
			}
		}
	}
	return kinds
}
