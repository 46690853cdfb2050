// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"fmt"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// Definitions returns the compiled-in block definition set matching the
// builders in NewRegistry. Exposed properties carry the mapping and
// live-editability metadata the flow service uses to validate property
// edits; variable-pad blocks (the mixer) leave ExternalPads empty since
// their builders compute pads from properties.
func Definitions() []model.BlockDefinition {
	return []model.BlockDefinition{
		{
			ID: "builtin.aes67_input", Name: "AES67 Input", Category: "Inputs", BuiltIn: true,
			Description: "Receive AES67 audio stream via RTP using SDP description",
			ExposedProperties: []model.ExposedProperty{
				{
					Name:         "SDP",
					Label:        "SDP",
					Description:  "SDP text describing the AES67 stream (paste SDP content here)",
					PropertyType: model.PropertyType{Kind: model.PropertyMultiline},
					Mapping: model.PropertyMapping{
						ElementID:    "filesrc",
						PropertyName: "location",
						Transform:    model.TransformWriteTempFile,
					},
				},
			},
		},
		{
			ID: "builtin.aes67_output", Name: "AES67 Output", Category: "Outputs", BuiltIn: true,
			Description: "Sends the stream as AES67 L24/48k RTP multicast",
			ExposedProperties: []model.ExposedProperty{
				blockProp("host", "Multicast group", model.PropertyType{Kind: model.PropertyString}),
				blockProp("port", "UDP port", intType(1, 65535)),
				blockProp("session_name", "SDP session name", model.PropertyType{Kind: model.PropertyString}),
			},
		},
		{
			ID: "builtin.meter", Name: "Meter", Category: "Processing", BuiltIn: true,
			Description: "Standalone level meter emitting MeterData events",
			ExposedProperties: []model.ExposedProperty{
				blockProp("interval", "Message interval (ms)", intType(10, 10000)),
			},
		},
		{
			ID: "builtin.latency", Name: "Latency", Category: "Processing", BuiltIn: true,
			Description: "Latency probe emitting LatencyData events",
			ExposedProperties: []model.ExposedProperty{
				blockProp("samplesperbuffer", "Samples per buffer", intType(1, 48000)),
				blockProp("print_latency", "Log measured latency", model.PropertyType{Kind: model.PropertyBool}),
			},
		},
		{
			ID: "builtin.whip", Name: "WHIP Output", Category: "Outputs", BuiltIn: true,
			Description: "Publishes the stream to a WHIP WebRTC endpoint",
			ExposedProperties: []model.ExposedProperty{
				blockProp("whip_endpoint", "WHIP endpoint URL", model.PropertyType{Kind: model.PropertyString}),
				blockProp("stun_server", "STUN server", model.PropertyType{Kind: model.PropertyString}),
				blockProp("auth_token", "Bearer token", model.PropertyType{Kind: model.PropertyString}),
			},
		},
		{
			ID: "builtin.whep", Name: "WHEP Input", Category: "Inputs", BuiltIn: true,
			Description: "Ingests a WHEP WebRTC stream into the flow",
			ExposedProperties: []model.ExposedProperty{
				blockProp("whep_endpoint", "WHEP endpoint URL", model.PropertyType{Kind: model.PropertyString}),
				blockProp("stun_server", "STUN server", model.PropertyType{Kind: model.PropertyString}),
			},
		},
		{
			ID: "builtin.inter", Name: "Inter-flow Channel", Category: "Routing", BuiltIn: true,
			Description: "Shares a stream with other flows over a named channel",
			ExposedProperties: []model.ExposedProperty{
				blockProp("channel", "Channel name", model.PropertyType{Kind: model.PropertyString}),
				blockProp("direction", "Direction", model.PropertyType{Kind: model.PropertyEnum, Values: []string{"input", "output"}}),
			},
		},
		mixerDefinition(),
	}
}

func mixerDefinition() model.BlockDefinition {
	props := []model.ExposedProperty{
		blockProp("num_channels", "Channel count", intType(1, MixerMaxChannels)),
		blockProp("num_aux_buses", "Aux bus count", intType(0, MixerMaxAuxBuses)),
		blockProp("num_groups", "Group count", intType(0, MixerMaxGroups)),
		blockProp("meter_interval", "Meter message interval (ms)", intType(10, 10000)),
	}

	for ch := 1; ch <= MixerMaxChannels; ch++ {
		chName := fmt.Sprintf("ch%d", ch)
		props = append(props,
			liveProp(fmt.Sprintf("gain_%d", ch), fmt.Sprintf("Channel %d gain (dB)", ch),
				floatType(DBFloor, 24), chName+"_gain", "volume", model.TransformDBToLinear),
			liveProp(fmt.Sprintf("hpf_freq_%d", ch), fmt.Sprintf("Channel %d HPF cutoff (Hz)", ch),
				floatType(20, 2000), chName+"_hpf", "cutoff", model.TransformNone),
			liveProp(fmt.Sprintf("gate_threshold_%d", ch), fmt.Sprintf("Channel %d gate threshold (dB)", ch),
				floatType(DBFloor, 0), chName+"_gate", "threshold", model.TransformNone),
			liveProp(fmt.Sprintf("gate_attack_%d", ch), fmt.Sprintf("Channel %d gate attack (ms)", ch),
				floatType(0.1, 500), chName+"_gate", "attack", model.TransformNone),
			liveProp(fmt.Sprintf("gate_release_%d", ch), fmt.Sprintf("Channel %d gate release (ms)", ch),
				floatType(1, 2000), chName+"_gate", "release", model.TransformNone),
			liveProp(fmt.Sprintf("gate_enabled_%d", ch), fmt.Sprintf("Channel %d gate enabled", ch),
				model.PropertyType{Kind: model.PropertyBool}, chName+"_gate", "enabled", model.TransformNone),
			liveProp(fmt.Sprintf("comp_threshold_%d", ch), fmt.Sprintf("Channel %d compressor threshold (dB)", ch),
				floatType(DBFloor, 0), chName+"_comp", "threshold", model.TransformNone),
			liveProp(fmt.Sprintf("comp_ratio_%d", ch), fmt.Sprintf("Channel %d compressor ratio", ch),
				floatType(1, 20), chName+"_comp", "ratio", model.TransformNone),
			liveProp(fmt.Sprintf("comp_attack_%d", ch), fmt.Sprintf("Channel %d compressor attack (ms)", ch),
				floatType(0.1, 500), chName+"_comp", "attack", model.TransformNone),
			liveProp(fmt.Sprintf("comp_release_%d", ch), fmt.Sprintf("Channel %d compressor release (ms)", ch),
				floatType(1, 2000), chName+"_comp", "release", model.TransformNone),
			liveProp(fmt.Sprintf("comp_makeup_%d", ch), fmt.Sprintf("Channel %d compressor makeup (dB)", ch),
				floatType(0, 24), chName+"_comp", "makeup", model.TransformNone),
			liveProp(fmt.Sprintf("comp_knee_%d", ch), fmt.Sprintf("Channel %d compressor knee (dB)", ch),
				floatType(-24, 0), chName+"_comp", "knee", model.TransformNone),
			liveProp(fmt.Sprintf("comp_enabled_%d", ch), fmt.Sprintf("Channel %d compressor enabled", ch),
				model.PropertyType{Kind: model.PropertyBool}, chName+"_comp", "enabled", model.TransformNone),
			liveProp(fmt.Sprintf("pan_%d", ch), fmt.Sprintf("Channel %d pan", ch),
				floatType(-1, 1), chName+"_pan", "panorama", model.TransformNone),
			liveProp(fmt.Sprintf("fader_%d", ch), fmt.Sprintf("Channel %d fader", ch),
				floatType(0, 2), chName+"_fader", "volume", model.TransformNone),
			liveProp(fmt.Sprintf("mute_%d", ch), fmt.Sprintf("Channel %d mute", ch),
				model.PropertyType{Kind: model.PropertyBool}, chName+"_fader", "mute", model.TransformNone),
			blockProp(fmt.Sprintf("solo_%d", ch), fmt.Sprintf("Channel %d solo", ch),
				model.PropertyType{Kind: model.PropertyBool}),
			blockProp(fmt.Sprintf("solo_mode_%d", ch), fmt.Sprintf("Channel %d solo mode", ch),
				model.PropertyType{Kind: model.PropertyEnum, Values: []string{"pfl", "afl"}}),
			blockProp(fmt.Sprintf("group_%d", ch), fmt.Sprintf("Channel %d group assignment", ch),
				intType(0, MixerMaxGroups)),
		)
		for b := 1; b <= 4; b++ {
			props = append(props,
				liveProp(fmt.Sprintf("eq_band%d_freq_%d", b, ch), fmt.Sprintf("Channel %d EQ band %d frequency (Hz)", ch, b),
					floatType(20, 20000), chName+"_eq", fmt.Sprintf("band%d-frequency", b), model.TransformNone),
				liveProp(fmt.Sprintf("eq_band%d_gain_%d", b, ch), fmt.Sprintf("Channel %d EQ band %d gain (dB)", ch, b),
					floatType(-24, 24), chName+"_eq", fmt.Sprintf("band%d-gain", b), model.TransformNone),
				liveProp(fmt.Sprintf("eq_band%d_q_%d", b, ch), fmt.Sprintf("Channel %d EQ band %d Q", ch, b),
					floatType(0.1, 10), chName+"_eq", fmt.Sprintf("band%d-q", b), model.TransformNone),
			)
		}
		for a := 1; a <= MixerMaxAuxBuses; a++ {
			props = append(props,
				liveProp(fmt.Sprintf("aux_%d_%d_level", ch, a), fmt.Sprintf("Channel %d aux %d send (dB)", ch, a),
					floatType(DBFloor, 6), fmt.Sprintf("%s_aux%d_send", chName, a), "volume", model.TransformDBToLinear),
				blockProp(fmt.Sprintf("aux_%d_%d_pre", ch, a), fmt.Sprintf("Channel %d aux %d pre-fader", ch, a),
					model.PropertyType{Kind: model.PropertyBool}),
			)
		}
	}

	props = append(props,
		liveProp("main_fader", "Master fader (dB)", floatType(DBFloor, 6), "main_fader", "volume", model.TransformDBToLinear),
		liveProp("main_mute", "Master mute", model.PropertyType{Kind: model.PropertyBool}, "main_fader", "mute", model.TransformNone),
		liveProp("main_comp_threshold", "Master compressor threshold (dB)", floatType(DBFloor, 0), "main_comp", "threshold", model.TransformNone),
		liveProp("main_limiter_threshold", "Master limiter threshold (dB)", floatType(DBFloor, 0), "main_limiter", "threshold", model.TransformNone),
	)
	for b := 1; b <= 4; b++ {
		props = append(props,
			liveProp(fmt.Sprintf("main_eq_band%d_freq", b), fmt.Sprintf("Master EQ band %d frequency (Hz)", b),
				floatType(20, 20000), "main_eq", fmt.Sprintf("band%d-frequency", b), model.TransformNone),
			liveProp(fmt.Sprintf("main_eq_band%d_gain", b), fmt.Sprintf("Master EQ band %d gain (dB)", b),
				floatType(-24, 24), "main_eq", fmt.Sprintf("band%d-gain", b), model.TransformNone),
			liveProp(fmt.Sprintf("main_eq_band%d_q", b), fmt.Sprintf("Master EQ band %d Q", b),
				floatType(0.1, 10), "main_eq", fmt.Sprintf("band%d-q", b), model.TransformNone),
		)
	}

	return model.BlockDefinition{
		ID:                "builtin.mixer",
		Name:              "Mixer",
		Category:          "Processing",
		Description:       "Multi-channel mixing console with aux, group, and PFL buses",
		BuiltIn:           true,
		ExposedProperties: props,
	}
}

// blockProp declares a property consumed by the builder itself (the _block
// sentinel); structural knobs and builder-interpreted values use this form.
func blockProp(name, label string, pt model.PropertyType) model.ExposedProperty {
	return model.ExposedProperty{
		Name:         name,
		Label:        label,
		PropertyType: pt,
		Mapping:      model.PropertyMapping{ElementID: model.BlockSentinel, PropertyName: name},
	}
}

// liveProp declares a property mapped onto a concrete internal element,
// mutable while the flow is Playing.
func liveProp(name, label string, pt model.PropertyType, elementID, propertyName string, transform model.TransformTag) model.ExposedProperty {
	return model.ExposedProperty{
		Name:         name,
		Label:        label,
		PropertyType: pt,
		Mapping:      model.PropertyMapping{ElementID: elementID, PropertyName: propertyName, Transform: transform},
		Live:         true,
	}
}

func intType(min, max float64) model.PropertyType {
	return model.PropertyType{Kind: model.PropertyInt, Min: &min, Max: &max}
}

func floatType(min, max float64) model.PropertyType {
	return model.PropertyType{Kind: model.PropertyFloat, Min: &min, Max: &max}
}
