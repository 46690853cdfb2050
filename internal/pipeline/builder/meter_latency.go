// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"strings"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// MeterBuilder wraps a single level element, publishing MeterData events off
// of its periodic "level" element messages.
type MeterBuilder struct{}

func (MeterBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	f := newElementFactory(instanceID, ctx)
	levelID, err := f.new("level", "level")
	if err != nil {
		return BuildResult{}, err
	}

	intervalMs := propInt(properties, "interval", meterMessageIntervalMs)
	padProps := map[PadKey]map[string]model.PropertyValue{
		{ElementID: levelID}: {
			"interval":      model.UIntValue(uint64(intervalMs) * 1_000_000),
			"post-messages": model.BoolValue(true),
		},
	}

	return BuildResult{
		Elements:      f.elems,
		PadProperties: padProps,
		BusSubscriber: meterSubscriber(levelID),
		ComputedExternalPads: &model.ExternalPads{
			Inputs:  []model.ExternalPad{{Name: "input", MediaType: model.MediaAudio, InternalElementID: levelID, InternalPadName: "sink"}},
			Outputs: []model.ExternalPad{{Name: "output", MediaType: model.MediaAudio, InternalElementID: levelID, InternalPadName: "src"}},
		},
	}, nil
}

func meterSubscriber(levelID string) BusSubscriber {
	return func(pipeline framework.Pipeline, flowID string, handle func(model.StromEvent)) {
		pipeline.WatchBus(func(msg framework.Message) {
			if msg.Type != framework.MessageElement || msg.Source != levelID || msg.Structure == nil {
				return
			}
			if msg.Structure["name"] != "level" {
				return
			}
			rms, _ := msg.Structure["rms"].([]float64)
			if len(rms) == 0 {
				return
			}
			peak, _ := msg.Structure["peak"].([]float64)
			decay, _ := msg.Structure["decay"].([]float64)
			handle(model.StromEvent{
				Type: model.EventMeterData,
				Data: model.MeterData{
					FlowID:    flowID,
					ElementID: strings.TrimSuffix(levelID, ":level"),
					MeterID:   "meter",
					RMS:       rms,
					Peak:      peak,
					Decay:     decay,
				},
			})
		})
	}
}

// LatencyBuilder wraps an audiolatency element, publishing LatencyData events.
type LatencyBuilder struct{}

func (LatencyBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	f := newElementFactory(instanceID, ctx)
	latID, err := f.new("audiolatency", "audiolatency")
	if err != nil {
		return BuildResult{}, err
	}

	samplesPerBuffer := propInt(properties, "samplesperbuffer", 240)
	printLatency := false
	if v, ok := properties["print_latency"]; ok && v.Kind == model.PropertyBool {
		printLatency = v.Bool
	}
	padProps := map[PadKey]map[string]model.PropertyValue{
		{ElementID: latID}: {
			"samplesperbuffer": model.IntValue(int64(samplesPerBuffer)),
			"print-latency":    model.BoolValue(printLatency),
		},
	}

	return BuildResult{
		Elements:      f.elems,
		PadProperties: padProps,
		BusSubscriber: latencySubscriber(latID),
		ComputedExternalPads: &model.ExternalPads{
			Inputs:  []model.ExternalPad{{Name: "input", MediaType: model.MediaAudio, InternalElementID: latID, InternalPadName: "sink"}},
			Outputs: []model.ExternalPad{{Name: "output", MediaType: model.MediaAudio, InternalElementID: latID, InternalPadName: "src"}},
		},
	}, nil
}

func latencySubscriber(latID string) BusSubscriber {
	return func(pipeline framework.Pipeline, flowID string, handle func(model.StromEvent)) {
		pipeline.WatchBus(func(msg framework.Message) {
			if msg.Type != framework.MessageElement || msg.Source != latID || msg.Structure == nil {
				return
			}
			if msg.Structure["name"] != "latency" {
				return
			}
			lastUs, _ := msg.Structure["last-latency"].(int64)
			avgUs, _ := msg.Structure["average-latency"].(int64)
			handle(model.StromEvent{
				Type: model.EventLatencyData,
				Data: model.LatencyData{
					FlowID:            flowID,
					ElementID:         strings.TrimSuffix(latID, ":audiolatency"),
					LastLatencyUs:     lastUs,
					AverageLatencyUs:  avgUs,
				},
			})
		})
	}
}
