package model

import "strconv"

// hardwareModelNames maps the Meshtastic HardwareModel protobuf enum value
// to a friendly display name. This table is a living artefact: firmware
// releases add new board ids faster than any static list can track, so a
// miss falls back to "hw_" followed by the enum's numeric value rather than
// erroring.
//
// Values mirror meshtastic.HardwareModel from the bundled protobuf schema.
var hardwareModelNames = map[int32]string{
	0:  "unset",
	1:  "tlora_v2",
	2:  "tlora_v1",
	3:  "tlora_v2_1_1p6",
	4:  "tbeam",
	5:  "heltec_v2_0",
	9:  "heltec_v2_1",
	10: "heltec_v1",
	12: "rak4631",
	25: "heltec_v3",
	26: "heltec_wsl_v3",
	27: "station_g1",
	43: "tbeam_m2",
	51: "station_g2",
	57: "heltec_mesh_node_t114",
	58: "sensecap_indicator",
}

// HardwareModelDisplayName normalizes a raw HardwareModel enum value to a
// friendly display name. Unrecognized values fall back to "hw_" plus their
// numeric value (e.g. "hw_9999") rather than an error, per the hardware-model table being a living
// artefact (see SPEC_FULL.md §3).
func HardwareModelDisplayName(raw int32) string {
	if name, ok := hardwareModelNames[raw]; ok {
		return name
	}
	return rawHardwareModelString(raw)
}

func rawHardwareModelString(raw int32) string {
	return "hw_" + strconv.Itoa(int(raw))
}
