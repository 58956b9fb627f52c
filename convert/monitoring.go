// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package convert

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Message outcomes, used as the "outcome" label of convertMessages.
const (
	outcomeWritten = "written"
	outcomeSkipped = "skipped"
	outcomeBadData = "bad_data"
)

var (
	convertFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mavpcap_convert_files",
		Help: "Count of converted input files, by result.",
	}, []string{"result"})

	convertMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mavpcap_convert_messages",
		Help: "Count of telemetry messages read, by outcome.",
	}, []string{"outcome"})

	convertWrittenBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mavpcap_convert_written_bytes",
		Help: "Count of payload bytes written to capture records.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		convertFiles,
		convertMessages,
		convertWrittenBytes,
	)
}
