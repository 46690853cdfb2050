// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// defaultStunServer is used when the block's stun_server property is unset
// or empty.
const defaultStunServer = "stun://stun.l.google.com:19302"

// WHIPBuilder publishes an internal audio stream to a WHIP (WebRTC-HTTP
// Ingestion Protocol) endpoint: audioconvert -> audioresample -> whip sink.
type WHIPBuilder struct{}

func (WHIPBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	endpoint := propString(properties, "whip_endpoint", "")
	if endpoint == "" {
		return BuildResult{}, errProperty("whip_endpoint property required")
	}

	f := newElementFactory(instanceID, ctx)
	convert, err := f.new("audioconvert", "audioconvert")
	if err != nil {
		return BuildResult{}, err
	}
	resample, err := f.new("audioresample", "audioresample")
	if err != nil {
		return BuildResult{}, err
	}
	sink, err := f.new("whipclientsink", "whipclientsink")
	if err != nil {
		return BuildResult{}, err
	}

	stun := propString(properties, "stun_server", defaultStunServer)
	padProps := map[PadKey]map[string]model.PropertyValue{
		{ElementID: sink}: {
			"stun-server":      model.StringValue(stun),
			"signaller.whip-endpoint": model.StringValue(endpoint),
		},
	}
	if token := propString(properties, "auth_token", ""); token != "" {
		padProps[PadKey{ElementID: sink}]["signaller.auth-token"] = model.StringValue(token)
	}

	return BuildResult{
		Elements: f.elems,
		InternalLinks: []model.Link{
			{From: padRef(convert, "src"), To: padRef(resample, "sink")},
			{From: padRef(resample, "src"), To: padRef(sink, "audio_%u")},
		},
		PadProperties: padProps,
		ComputedExternalPads: &model.ExternalPads{
			Inputs: []model.ExternalPad{{Name: "input", MediaType: model.MediaAudio, InternalElementID: convert, InternalPadName: "sink"}},
		},
	}, nil
}

// WHEPBuilder ingests a WebRTC-HTTP Egress Protocol stream into the flow:
// whep source -> audioconvert -> audioresample, mirroring WHIPBuilder.
type WHEPBuilder struct{}

func (WHEPBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	endpoint := propString(properties, "whep_endpoint", "")
	if endpoint == "" {
		return BuildResult{}, errProperty("whep_endpoint property required")
	}

	f := newElementFactory(instanceID, ctx)
	src, err := f.new("whepclientsrc", "whepclientsrc")
	if err != nil {
		return BuildResult{}, err
	}
	convert, err := f.new("audioconvert", "audioconvert")
	if err != nil {
		return BuildResult{}, err
	}
	resample, err := f.new("audioresample", "audioresample")
	if err != nil {
		return BuildResult{}, err
	}

	stun := propString(properties, "stun_server", defaultStunServer)
	padProps := map[PadKey]map[string]model.PropertyValue{
		{ElementID: src}: {
			"stun-server":             model.StringValue(stun),
			"signaller.whep-endpoint": model.StringValue(endpoint),
		},
	}

	return BuildResult{
		Elements: f.elems,
		InternalLinks: []model.Link{
			{From: padRef(src, "audio_0"), To: padRef(convert, "sink")},
			{From: padRef(convert, "src"), To: padRef(resample, "sink")},
		},
		PadProperties: padProps,
		ComputedExternalPads: &model.ExternalPads{
			Outputs: []model.ExternalPad{{Name: "output", MediaType: model.MediaAudio, InternalElementID: resample, InternalPadName: "src"}},
		},
	}, nil
}

// InterBuilder implements both halves of inter-flow stream sharing: a block
// instance with direction="output" publishes onto a named channel (bridging
// to the Channel Registry, C10); direction="input" subscribes to one.
// The flow service reads the instance's "channel" and "direction" properties
// to claim output channel names in the channel registry; the builder itself
// does not reach across flows.
type InterBuilder struct{}

func (InterBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	channel := propString(properties, "channel", "")
	if channel == "" {
		return BuildResult{}, errProperty("channel property required")
	}
	direction := propString(properties, "direction", "output")

	f := newElementFactory(instanceID, ctx)
	switch direction {
	case "output":
		sink, err := f.new("intersink", "intersink")
		if err != nil {
			return BuildResult{}, err
		}
		padProps := map[PadKey]map[string]model.PropertyValue{
			{ElementID: sink}: {"channel": model.StringValue(channel)},
		}
		return BuildResult{
			Elements:      f.elems,
			PadProperties: padProps,
			ComputedExternalPads: &model.ExternalPads{
				Inputs: []model.ExternalPad{{Name: "input", MediaType: model.MediaAudio, InternalElementID: sink, InternalPadName: "sink"}},
			},
		}, nil
	case "input":
		src, err := f.new("intersrc", "intersrc")
		if err != nil {
			return BuildResult{}, err
		}
		padProps := map[PadKey]map[string]model.PropertyValue{
			{ElementID: src}: {"channel": model.StringValue(channel)},
		}
		return BuildResult{
			Elements:      f.elems,
			PadProperties: padProps,
			ComputedExternalPads: &model.ExternalPads{
				Outputs: []model.ExternalPad{{Name: "output", MediaType: model.MediaAudio, InternalElementID: src, InternalPadName: "src"}},
			},
		}, nil
	default:
		return BuildResult{}, errConfig("inter block direction must be \"input\" or \"output\", got %q", direction)
	}
}
