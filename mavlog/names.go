// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mavlog

import (
	"fmt"
)

// mavlinkNames maps common MAVLink message IDs to their names.
var mavlinkNames = map[uint32]string{
	0:   "HEARTBEAT",
	1:   "SYS_STATUS",
	2:   "SYSTEM_TIME",
	4:   "PING",
	11:  "SET_MODE",
	20:  "PARAM_REQUEST_READ",
	21:  "PARAM_REQUEST_LIST",
	22:  "PARAM_VALUE",
	23:  "PARAM_SET",
	24:  "GPS_RAW_INT",
	25:  "GPS_STATUS",
	26:  "SCALED_IMU",
	27:  "RAW_IMU",
	29:  "SCALED_PRESSURE",
	30:  "ATTITUDE",
	31:  "ATTITUDE_QUATERNION",
	32:  "LOCAL_POSITION_NED",
	33:  "GLOBAL_POSITION_INT",
	35:  "RC_CHANNELS_RAW",
	36:  "SERVO_OUTPUT_RAW",
	42:  "MISSION_CURRENT",
	62:  "NAV_CONTROLLER_OUTPUT",
	65:  "RC_CHANNELS",
	74:  "VFR_HUD",
	76:  "COMMAND_LONG",
	77:  "COMMAND_ACK",
	109: "RADIO_STATUS",
	111: "TIMESYNC",
	116: "SCALED_IMU2",
	125: "POWER_STATUS",
	147: "BATTERY_STATUS",
	148: "AUTOPILOT_VERSION",
	230: "ESTIMATOR_STATUS",
	241: "VIBRATION",
	242: "HOME_POSITION",
	245: "EXTENDED_SYS_STATE",
	253: "STATUSTEXT",
}

// MAVLinkMessageName returns the name of the MAVLink message with the given
// ID. IDs without a known name are rendered as "MSG_<id>".
func MAVLinkMessageName(id uint32) string {
	if name, ok := mavlinkNames[id]; ok {
		return name
	}
	return fmt.Sprintf("MSG_%d", id)
}
