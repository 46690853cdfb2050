// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"fmt"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// aes67SampleRate and friends are the fixed AES67 profile this build
// targets: 48 kHz, L24, stereo, dynamic payload type 96.
const (
	aes67SampleRate  = 48000
	aes67Channels    = 2
	aes67PayloadType = 96
)

// AES67InputBuilder receives an AES67/RTP stream described by a pasted SDP.
// The SDP text is written to a temporary file (the exposed SDP property's
// write_temp_file transform) which filesrc reads and sdpdemux interprets;
// this avoids an app-source while still not requiring the user to manage a
// file themselves.
type AES67InputBuilder struct{}

func (AES67InputBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	f := newElementFactory(instanceID, ctx)
	fileSrc, err := f.new("filesrc", "filesrc")
	if err != nil {
		return BuildResult{}, err
	}
	demux, err := f.new("sdpdemux", "sdpdemux")
	if err != nil {
		return BuildResult{}, err
	}

	return BuildResult{
		Elements: f.elems,
		InternalLinks: []model.Link{
			{From: padRef(fileSrc, "src"), To: padRef(demux, "sink")},
		},
		ComputedExternalPads: &model.ExternalPads{
			Outputs: []model.ExternalPad{
				{Name: "audio_out", MediaType: model.MediaAudio, InternalElementID: demux, InternalPadName: "src_0"},
			},
		},
	}, nil
}

// AES67OutputBuilder sends an internal stream out as an AES67/RTP multicast
// stream; GenerateSDP renders the matching session description for
// discovery/announce, computed on demand rather than cached on the block.
type AES67OutputBuilder struct{}

func (AES67OutputBuilder) Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error) {
	f := newElementFactory(instanceID, ctx)
	convert, err := f.new("convert", "audioconvert")
	if err != nil {
		return BuildResult{}, err
	}
	pay, err := f.new("pay", "rtpL24pay")
	if err != nil {
		return BuildResult{}, err
	}
	udpSink, err := f.new("udpsink", "udpsink")
	if err != nil {
		return BuildResult{}, err
	}

	padProps := map[PadKey]map[string]model.PropertyValue{}
	host := propString(properties, "host", "239.69.1.1")
	port := propInt(properties, "port", 5004)
	setProp(padProps, pay, "", "pt", model.IntValue(aes67PayloadType))
	setProp(padProps, udpSink, "", "host", model.StringValue(host))
	setProp(padProps, udpSink, "", "port", model.IntValue(int64(port)))
	setProp(padProps, udpSink, "", "auto-multicast", model.BoolValue(true))

	return BuildResult{
		Elements: f.elems,
		InternalLinks: []model.Link{
			{From: padRef(convert, "src"), To: padRef(pay, "sink")},
			{From: padRef(pay, "src"), To: padRef(udpSink, "sink")},
		},
		PadProperties: padProps,
		ComputedExternalPads: &model.ExternalPads{
			Inputs: []model.ExternalPad{
				{Name: "input", MediaType: model.MediaAudio, InternalElementID: convert, InternalPadName: "sink"},
			},
		},
	}, nil
}

// GenerateSDP renders the session description for an AES67OutputBuilder
// instance, following the fixed AES67 L24 template.
func GenerateSDP(block model.BlockInstance, sessionName string, originIP string) string {
	host := "239.69.1.1"
	if v, ok := block.Properties["host"]; ok && v.Kind == model.PropertyString {
		host = v.Str
	}
	port := int64(5004)
	if v, ok := block.Properties["port"]; ok {
		if f, ok := v.AsFloat(); ok {
			port = int64(f)
		}
	}
	sessionID := time.Now().Unix()

	return fmt.Sprintf(
		"v=0\r\n"+
			"o=- %d %d IN IP4 %s\r\n"+
			"s=%s\r\n"+
			"c=IN IP4 %s\r\n"+
			"t=0 0\r\n"+
			"a=recvonly\r\n"+
			"m=audio %d RTP/AVP %d\r\n"+
			"a=rtpmap:%d L24/%d/%d\r\n"+
			"a=ptime:1\r\n"+
			"a=ts-refclk:ptp=IEEE1588-2008:00-00-00-00-00-00-00-00:0\r\n"+
			"a=mediaclk:direct=0\r\n",
		sessionID, sessionID, originIP,
		sessionName,
		host,
		port, aes67PayloadType,
		aes67PayloadType, aes67SampleRate, aes67Channels,
	)
}
