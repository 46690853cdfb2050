// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"fmt"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// meterMessageIntervalMs is the default period at which every level
// element in a mixer instance posts a "level" element message on the bus;
// the meter_interval property overrides it per instance.
const meterMessageIntervalMs = 100

// MixerBuilder is the reference block: a multi-channel digital mixing
// console whose per-channel chain, aux/group bus routing, PFL bus, and
// live property control exercise most of the compiler/manager machinery.
type MixerBuilder struct{}

func (MixerBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	numChannels := clampInt(propInt(properties, "num_channels", MixerDefaultChannels), 1, MixerMaxChannels)
	numAux := clampInt(propInt(properties, "num_aux_buses", 0), 0, MixerMaxAuxBuses)
	numGroups := clampInt(propInt(properties, "num_groups", 0), 0, MixerMaxGroups)
	meterIntervalMs := propInt(properties, "meter_interval", meterMessageIntervalMs)
	meterIntervalNs := model.UIntValue(uint64(meterIntervalMs) * 1_000_000)

	elements := map[string]framework.Element{}
	var links []model.Link
	padProps := map[PadKey]map[string]model.PropertyValue{}

	newElem := func(internalName, factory string) (string, framework.Element, error) {
		id := elementID(instanceID, internalName)
		if _, exists := elements[id]; exists {
			return "", nil, errConfig("duplicate element %q within instance %q", internalName, instanceID)
		}
		e, err := ctx.Factory.NewElement(id, factory)
		if err != nil {
			return "", nil, errElement("%s: %v", id, err)
		}
		elements[id] = e
		return id, e, nil
	}

	link := func(fromElem, fromPad, toElem, toPad string) {
		links = append(links, model.Link{From: padRef(fromElem, fromPad), To: padRef(toElem, toPad)})
	}

	// Main bus: aggregator -> compressor -> eq -> limiter -> fader -> level -> output tee.
	mainAgg, _, err := newElem("main_agg", "audiomixer")
	if err != nil {
		return BuildResult{}, err
	}
	mainComp, _, err := newElem("main_comp", "compressor")
	if err != nil {
		return BuildResult{}, err
	}
	mainEQ, _, err := newElem("main_eq", "parametric_eq")
	if err != nil {
		return BuildResult{}, err
	}
	mainLimiter, _, err := newElem("main_limiter", "limiter")
	if err != nil {
		return BuildResult{}, err
	}
	mainFader, _, err := newElem("main_fader", "volume")
	if err != nil {
		return BuildResult{}, err
	}
	mainLevel, _, err := newElem("main_level", "level")
	if err != nil {
		return BuildResult{}, err
	}
	mainTee, _, err := newElem("main_out_tee", "tee")
	if err != nil {
		return BuildResult{}, err
	}
	link(mainAgg, "src", mainComp, "sink")
	link(mainComp, "src", mainEQ, "sink")
	link(mainEQ, "src", mainLimiter, "sink")
	link(mainLimiter, "src", mainFader, "sink")
	link(mainFader, "src", mainLevel, "sink")
	link(mainLevel, "src", mainTee, "sink")

	setProp(padProps, mainLimiter, "", "threshold", model.FloatValue(propFloat(properties, "main_limiter_threshold", MixerDefaultLimiterThreshold)))
	setProp(padProps, mainComp, "", "threshold", model.FloatValue(propFloat(properties, "main_comp_threshold", MixerDefaultCompThreshold)))
	for b := 1; b <= 4; b++ {
		defaults := MixerDefaultEQBands[b-1]
		setProp(padProps, mainEQ, "", fmt.Sprintf("band%d-frequency", b),
			model.FloatValue(propFloat(properties, fmt.Sprintf("main_eq_band%d_freq", b), defaults[0])))
		setProp(padProps, mainEQ, "", fmt.Sprintf("band%d-gain", b),
			model.FloatValue(propFloat(properties, fmt.Sprintf("main_eq_band%d_gain", b), defaults[1])))
		setProp(padProps, mainEQ, "", fmt.Sprintf("band%d-q", b),
			model.FloatValue(propFloat(properties, fmt.Sprintf("main_eq_band%d_q", b), defaults[2])))
	}
	setProp(padProps, mainFader, "", "volume", model.FloatValue(DBToLinear(propFloat(properties, "main_fader", 0))))
	setProp(padProps, mainFader, "", "mute", propValueOrBool(properties, "main_mute", false))
	setProp(padProps, mainLevel, "", "interval", meterIntervalNs)
	setProp(padProps, mainTee, "", "allow-not-linked", model.BoolValue(true))
	setProp(padProps, mainAgg, "", "force-live", model.BoolValue(true))

	// Group buses.
	groupTargets := make([]string, numGroups)
	for g := 1; g <= numGroups; g++ {
		aggID, _, err := newElem(fmt.Sprintf("group%d_agg", g), "audiomixer")
		if err != nil {
			return BuildResult{}, err
		}
		levelID, _, err := newElem(fmt.Sprintf("group%d_level", g), "level")
		if err != nil {
			return BuildResult{}, err
		}
		teeID, _, err := newElem(fmt.Sprintf("group%d_out_tee", g), "tee")
		if err != nil {
			return BuildResult{}, err
		}
		link(aggID, "src", levelID, "sink")
		link(levelID, "src", teeID, "sink")
		setProp(padProps, aggID, "", "force-live", model.BoolValue(true))
		setProp(padProps, teeID, "", "allow-not-linked", model.BoolValue(true))
		setProp(padProps, levelID, "", "interval", meterIntervalNs)
		groupTargets[g-1] = aggID
	}

	// Aux buses.
	auxTargets := make([]string, numAux)
	for a := 1; a <= numAux; a++ {
		aggID, _, err := newElem(fmt.Sprintf("aux%d_agg", a), "audiomixer")
		if err != nil {
			return BuildResult{}, err
		}
		levelID, _, err := newElem(fmt.Sprintf("aux%d_level", a), "level")
		if err != nil {
			return BuildResult{}, err
		}
		teeID, _, err := newElem(fmt.Sprintf("aux%d_out_tee", a), "tee")
		if err != nil {
			return BuildResult{}, err
		}
		link(aggID, "src", levelID, "sink")
		link(levelID, "src", teeID, "sink")
		setProp(padProps, aggID, "", "force-live", model.BoolValue(true))
		setProp(padProps, teeID, "", "allow-not-linked", model.BoolValue(true))
		setProp(padProps, levelID, "", "interval", meterIntervalNs)
		auxTargets[a-1] = aggID
	}

	// PFL bus.
	pflAgg, _, err := newElem("pfl_agg", "audiomixer")
	if err != nil {
		return BuildResult{}, err
	}
	pflLevel, _, err := newElem("pfl_level", "level")
	if err != nil {
		return BuildResult{}, err
	}
	pflTee, _, err := newElem("pfl_out_tee", "tee")
	if err != nil {
		return BuildResult{}, err
	}
	link(pflAgg, "src", pflLevel, "sink")
	link(pflLevel, "src", pflTee, "sink")
	setProp(padProps, pflAgg, "", "force-live", model.BoolValue(true))
	setProp(padProps, pflTee, "", "allow-not-linked", model.BoolValue(true))
	setProp(padProps, pflLevel, "", "interval", meterIntervalNs)

	inputs := make([]model.ExternalPad, 0, numChannels)

	for ch := 1; ch <= numChannels; ch++ {
		prefix := fmt.Sprintf("ch%d", ch)
		converter, _, err := newElem(prefix+"_convert", "audioconvert")
		if err != nil {
			return BuildResult{}, err
		}
		caps, _, err := newElem(prefix+"_caps", "capsfilter")
		if err != nil {
			return BuildResult{}, err
		}
		gain, _, err := newElem(prefix+"_gain", "volume")
		if err != nil {
			return BuildResult{}, err
		}
		hpf, _, err := newElem(prefix+"_hpf", "highpass")
		if err != nil {
			return BuildResult{}, err
		}
		gate, _, err := newElem(prefix+"_gate", "gate")
		if err != nil {
			return BuildResult{}, err
		}
		comp, _, err := newElem(prefix+"_comp", "compressor")
		if err != nil {
			return BuildResult{}, err
		}
		eq, _, err := newElem(prefix+"_eq", "parametric_eq")
		if err != nil {
			return BuildResult{}, err
		}
		preTee, _, err := newElem(prefix+"_pre_fader_tee", "tee")
		if err != nil {
			return BuildResult{}, err
		}
		pan, _, err := newElem(prefix+"_pan", "audiopanorama")
		if err != nil {
			return BuildResult{}, err
		}
		fader, _, err := newElem(prefix+"_fader", "volume")
		if err != nil {
			return BuildResult{}, err
		}
		postTee, _, err := newElem(prefix+"_post_fader_tee", "tee")
		if err != nil {
			return BuildResult{}, err
		}
		level, _, err := newElem(prefix+"_level", "level")
		if err != nil {
			return BuildResult{}, err
		}
		soloVolume, _, err := newElem(prefix+"_solo_volume", "volume")
		if err != nil {
			return BuildResult{}, err
		}

		link(converter, "src", caps, "sink")
		link(caps, "src", gain, "sink")
		link(gain, "src", hpf, "sink")
		link(hpf, "src", gate, "sink")
		link(gate, "src", comp, "sink")
		link(comp, "src", eq, "sink")
		link(eq, "src", preTee, "sink")
		link(preTee, "src_0", pan, "sink")
		link(pan, "src", fader, "sink")
		link(fader, "src", postTee, "sink")
		link(postTee, "src_0", level, "sink")

		setProp(padProps, caps, "", "caps", model.StringValue("audio/x-raw,format=F32LE"))
		setProp(padProps, gain, "", "volume", model.FloatValue(DBToLinear(propFloat(properties, fmt.Sprintf("gain_%d", ch), MixerDefaultGain))))
		setProp(padProps, hpf, "", "cutoff", model.FloatValue(propFloat(properties, fmt.Sprintf("hpf_freq_%d", ch), MixerDefaultHPFFreq)))
		setProp(padProps, gate, "", "threshold", model.FloatValue(propFloat(properties, fmt.Sprintf("gate_threshold_%d", ch), MixerDefaultGateThreshold)))
		setProp(padProps, gate, "", "attack", model.FloatValue(propFloat(properties, fmt.Sprintf("gate_attack_%d", ch), MixerDefaultGateAttack)))
		setProp(padProps, gate, "", "release", model.FloatValue(propFloat(properties, fmt.Sprintf("gate_release_%d", ch), MixerDefaultGateRelease)))
		setProp(padProps, gate, "", "enabled", propValueOrBool(properties, fmt.Sprintf("gate_enabled_%d", ch), true))
		setProp(padProps, comp, "", "threshold", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_threshold_%d", ch), MixerDefaultCompThreshold)))
		setProp(padProps, comp, "", "ratio", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_ratio_%d", ch), MixerDefaultCompRatio)))
		setProp(padProps, comp, "", "attack", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_attack_%d", ch), MixerDefaultCompAttack)))
		setProp(padProps, comp, "", "release", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_release_%d", ch), MixerDefaultCompRelease)))
		setProp(padProps, comp, "", "makeup", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_makeup_%d", ch), MixerDefaultCompMakeup)))
		setProp(padProps, comp, "", "knee", model.FloatValue(propFloat(properties, fmt.Sprintf("comp_knee_%d", ch), MixerDefaultCompKnee)))
		setProp(padProps, comp, "", "enabled", propValueOrBool(properties, fmt.Sprintf("comp_enabled_%d", ch), true))
		for b := 1; b <= 4; b++ {
			defaults := MixerDefaultEQBands[b-1]
			setProp(padProps, eq, "", fmt.Sprintf("band%d-frequency", b),
				model.FloatValue(propFloat(properties, fmt.Sprintf("eq_band%d_freq_%d", b, ch), defaults[0])))
			setProp(padProps, eq, "", fmt.Sprintf("band%d-gain", b),
				model.FloatValue(propFloat(properties, fmt.Sprintf("eq_band%d_gain_%d", b, ch), defaults[1])))
			setProp(padProps, eq, "", fmt.Sprintf("band%d-q", b),
				model.FloatValue(propFloat(properties, fmt.Sprintf("eq_band%d_q_%d", b, ch), defaults[2])))
		}
		setProp(padProps, pan, "", "panorama", model.FloatValue(propFloat(properties, fmt.Sprintf("pan_%d", ch), MixerDefaultPan)))
		fader0 := propFloat(properties, fmt.Sprintf("fader_%d", ch), MixerDefaultFader)
		setProp(padProps, fader, "", "volume", model.FloatValue(fader0))
		setProp(padProps, fader, "", "mute", propValueOrBool(properties, fmt.Sprintf("mute_%d", ch), false))
		setProp(padProps, level, "", "interval", meterIntervalNs)
		setProp(padProps, preTee, "", "allow-not-linked", model.BoolValue(true))
		setProp(padProps, postTee, "", "allow-not-linked", model.BoolValue(true))

		// Target bus: assigned group, or main.
		groupIdx := propInt(properties, fmt.Sprintf("group_%d", ch), 0)
		targetAgg := mainAgg
		if groupIdx >= 1 && groupIdx <= numGroups {
			targetAgg = groupTargets[groupIdx-1]
		}
		link(level, "src", targetAgg, "sink_%u")

		// Solo/PFL tap: source switches pre/post fader by solo_mode.
		soloMode := propString(properties, fmt.Sprintf("solo_mode_%d", ch), "pfl")
		soloSource, soloPad := preTee, "src_1"
		if soloMode == "afl" {
			soloSource, soloPad = postTee, "src_1"
		}
		link(soloSource, soloPad, soloVolume, "sink")
		link(soloVolume, "src", pflAgg, "sink_%u")
		soloEnabled := false
		if v, ok := properties[fmt.Sprintf("solo_%d", ch)]; ok && v.Kind == model.PropertyBool {
			soloEnabled = v.Bool
		}
		soloGain := 0.0
		if soloEnabled {
			soloGain = 1.0
		}
		setProp(padProps, soloVolume, "", "volume", model.FloatValue(soloGain))

		// Aux sends, pre- or post-fader per bus.
		for a := 1; a <= numAux; a++ {
			pre := MixerDefaultAuxPre[a-1]
			if v, ok := properties[fmt.Sprintf("aux_%d_%d_pre", ch, a)]; ok && v.Kind == model.PropertyBool {
				pre = v.Bool
			}
			auxSend, _, err := newElem(fmt.Sprintf("%s_aux%d_send", prefix, a), "volume")
			if err != nil {
				return BuildResult{}, err
			}
			src, pad := postTee, "src_2"
			if pre {
				src, pad = preTee, "src_2"
			}
			link(src, pad, auxSend, "sink")
			link(auxSend, "src", auxTargets[a-1], "sink_%u")
			level := propFloat(properties, fmt.Sprintf("aux_%d_%d_level", ch, a), 0)
			setProp(padProps, auxSend, "", "volume", model.FloatValue(DBToLinear(level)))
		}

		inputs = append(inputs, model.ExternalPad{
			Name:              fmt.Sprintf("input_%d", ch),
			MediaType:         model.MediaAudio,
			InternalElementID: converter,
			InternalPadName:   "sink",
		})
	}

	outputs := []model.ExternalPad{
		{Name: "main_out", MediaType: model.MediaAudio, InternalElementID: mainTee, InternalPadName: "src_0"},
	}
	for a := 1; a <= numAux; a++ {
		outputs = append(outputs, model.ExternalPad{
			Name:              fmt.Sprintf("aux_out_%d", a),
			MediaType:         model.MediaAudio,
			InternalElementID: elementID(instanceID, fmt.Sprintf("aux%d_out_tee", a)),
			InternalPadName:   "src_0",
		})
	}
	for g := 1; g <= numGroups; g++ {
		outputs = append(outputs, model.ExternalPad{
			Name:              fmt.Sprintf("group_out_%d", g),
			MediaType:         model.MediaAudio,
			InternalElementID: elementID(instanceID, fmt.Sprintf("group%d_out_tee", g)),
			InternalPadName:   "src_0",
		})
	}

	return BuildResult{
		Elements:             elements,
		InternalLinks:        links,
		PadProperties:        padProps,
		BusSubscriber:        mixerMeterSubscriber(instanceID),
		ComputedExternalPads: &model.ExternalPads{Inputs: inputs, Outputs: outputs},
	}, nil
}

// mixerMeterSubscriber installs a single bus subscriber per mixer instance
// that dispatches "level" element messages to typed MeterData events, keyed
// by the meter_id convention mixer:ch_N / mixer:aux_N / mixer:group_N /
// mixer:main / mixer:pfl.
func mixerMeterSubscriber(instanceID string) BusSubscriber {
	return func(pipeline framework.Pipeline, flowID string, handle func(model.StromEvent)) {
		pipeline.WatchBus(func(msg framework.Message) {
			if msg.Type != framework.MessageElement || msg.Structure == nil {
				return
			}
			if msg.Structure["name"] != "level" {
				return
			}
			meterID, ok := meterIDForSource(instanceID, msg.Source)
			if !ok {
				return
			}
			rms, _ := msg.Structure["rms"].([]float64)
			peak, _ := msg.Structure["peak"].([]float64)
			decay, _ := msg.Structure["decay"].([]float64)
			if len(rms) == 0 {
				return
			}
			handle(model.StromEvent{
				Type: model.EventMeterData,
				Data: model.MeterData{
					FlowID:    flowID,
					ElementID: msg.Source,
					MeterID:   meterID,
					RMS:       rms,
					Peak:      peak,
					Decay:     decay,
				},
			})
		})
	}
}

func meterIDForSource(instanceID, source string) (string, bool) {
	mainID := elementID(instanceID, "main_level")
	pflID := elementID(instanceID, "pfl_level")
	switch source {
	case mainID:
		return "mixer:main", true
	case pflID:
		return "mixer:pfl", true
	}
	var n int
	if _, err := fmt.Sscanf(source, instanceID+":ch%d_level", &n); err == nil {
		return fmt.Sprintf("mixer:ch_%d", n), true
	}
	if _, err := fmt.Sscanf(source, instanceID+":aux%d_level", &n); err == nil {
		return fmt.Sprintf("mixer:aux_%d", n), true
	}
	if _, err := fmt.Sscanf(source, instanceID+":group%d_level", &n); err == nil {
		return fmt.Sprintf("mixer:group_%d", n), true
	}
	return "", false
}

func setProp(padProps map[PadKey]map[string]model.PropertyValue, elementID, pad, name string, value model.PropertyValue) {
	key := PadKey{ElementID: elementID, PadName: pad}
	if padProps[key] == nil {
		padProps[key] = map[string]model.PropertyValue{}
	}
	padProps[key][name] = value
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func propInt(properties map[string]model.PropertyValue, name string, def int) int {
	v, ok := properties[name]
	if !ok {
		return def
	}
	if f, ok := v.AsFloat(); ok {
		return int(f)
	}
	return def
}

func propFloat(properties map[string]model.PropertyValue, name string, def float64) float64 {
	v, ok := properties[name]
	if !ok {
		return def
	}
	if f, ok := v.AsFloat(); ok {
		return f
	}
	return def
}

func propString(properties map[string]model.PropertyValue, name, def string) string {
	v, ok := properties[name]
	if !ok || v.Kind != model.PropertyString {
		return def
	}
	return v.Str
}

func propValueOrBool(properties map[string]model.PropertyValue, name string, def bool) model.PropertyValue {
	v, ok := properties[name]
	if !ok || v.Kind != model.PropertyBool {
		return model.BoolValue(def)
	}
	return v
}
