// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package compiler

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

type fakeRegistry map[string]model.BlockDefinition

func (r fakeRegistry) GetByID(id string) (model.BlockDefinition, bool) {
	d, ok := r[id]
	return d, ok
}

func meterDef() model.BlockDefinition {
	return model.BlockDefinition{
		ID:      "builtin.meter",
		Name:    "Meter",
		BuiltIn: true,
		ExposedProperties: []model.ExposedProperty{
			{
				Name:    "interval",
				Mapping: model.PropertyMapping{ElementID: "level", PropertyName: "interval", Transform: model.TransformMsToNs},
			},
		},
	}
}

func TestCompile_SingleBlock_AppliesExposedProperty(t *testing.T) {
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{
			{
				ID:                "m1",
				BlockDefinitionID: "builtin.meter",
				Properties:        map[string]model.PropertyValue{"interval": model.IntValue(50)},
			},
		},
	}

	graph, err := Compile(flow, fakeRegistry{"builtin.meter": meterDef()}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.NoError(t, err)
	require.Contains(t, graph.Elements, "m1:level")

	props := graph.PadProperties[builder.PadKey{ElementID: "m1:level"}]
	require.Equal(t, model.UIntValue(50*1_000_000), props["interval"])
}

func TestCompile_UnknownBlock_Fails(t *testing.T) {
	flow := model.Flow{
		ID:     "flow1",
		Blocks: []model.BlockInstance{{ID: "m1", BlockDefinitionID: "builtin.missing"}},
	}

	_, err := Compile(flow, fakeRegistry{}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, UnknownBlock, ce.Kind)
}

func TestCompile_ResolvesLinksBetweenInstances(t *testing.T) {
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{
			{ID: "m1", BlockDefinitionID: "builtin.meter"},
			{ID: "m2", BlockDefinitionID: "builtin.meter"},
		},
		Links: []model.Link{
			{From: "m1:output", To: "m2:input"},
		},
	}

	graph, err := Compile(flow, fakeRegistry{"builtin.meter": meterDef()}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.NoError(t, err)
	require.Len(t, graph.ExternalLinks, 1)
	require.Equal(t, "m1:level:src", graph.ExternalLinks[0].From)
	require.Equal(t, "m2:level:sink", graph.ExternalLinks[0].To)
}

func TestCompile_MixerToAES67Output(t *testing.T) {
	reg := fakeRegistry{}
	for _, d := range builder.Definitions() {
		reg[d.ID] = d
	}
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{
			{
				ID:                "m",
				BlockDefinitionID: "builtin.mixer",
				Properties: map[string]model.PropertyValue{
					"num_channels":  model.IntValue(3),
					"num_aux_buses": model.IntValue(2),
					"num_groups":    model.IntValue(1),
				},
			},
			{ID: "o", BlockDefinitionID: "builtin.aes67_output"},
		},
		Links: []model.Link{{From: "m:main_out", To: "o:input"}},
	}

	graph, err := Compile(flow, reg, builder.NewRegistry(), &framework.MemoryFactory{})
	require.NoError(t, err)

	require.Len(t, graph.ExternalLinks, 1)
	require.Equal(t, "m:main_out_tee:src_0", graph.ExternalLinks[0].From)
	require.Equal(t, "o:convert:sink", graph.ExternalLinks[0].To)

	// Both rewritten endpoints reference elements present in the graph.
	require.Contains(t, graph.Elements, "m:main_out_tee")
	require.Contains(t, graph.Elements, "o:convert")
}

func TestCompile_WriteTempFileTransform_PersistsSDP(t *testing.T) {
	reg := fakeRegistry{}
	for _, d := range builder.Definitions() {
		reg[d.ID] = d
	}
	const sdpText = "v=0\r\ns=Cust\r\nm=audio 6000 RTP/AVP 96\r\n"
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{{
			ID:                "in",
			BlockDefinitionID: "builtin.aes67_input",
			Properties:        map[string]model.PropertyValue{"SDP": model.StringValue(sdpText)},
		}},
	}

	graph, err := Compile(flow, reg, builder.NewRegistry(), &framework.MemoryFactory{})
	require.NoError(t, err)

	props := graph.PadProperties[builder.PadKey{ElementID: "in:filesrc"}]
	location := props["location"]
	require.Equal(t, model.PropertyString, location.Kind)
	require.NotEmpty(t, location.Str)
	t.Cleanup(func() { os.Remove(location.Str) })

	written, err := os.ReadFile(location.Str)
	require.NoError(t, err)
	require.Equal(t, sdpText, string(written))
}

func TestCompile_WriteTempFileTransform_RejectsNonString(t *testing.T) {
	reg := fakeRegistry{}
	for _, d := range builder.Definitions() {
		reg[d.ID] = d
	}
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{{
			ID:                "in",
			BlockDefinitionID: "builtin.aes67_input",
			Properties:        map[string]model.PropertyValue{"SDP": model.IntValue(7)},
		}},
	}

	_, err := Compile(flow, reg, builder.NewRegistry(), &framework.MemoryFactory{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, InvalidProperty, ce.Kind)
}

func TestCompile_RemoteClockWithoutAddress_Fails(t *testing.T) {
	flow := model.Flow{
		ID:         "flow1",
		Properties: model.FlowProperties{ClockType: model.ClockRemote},
	}

	_, err := Compile(flow, fakeRegistry{}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, InvalidConfiguration, ce.Kind)
}

func TestCompile_UnknownTransformTag_Fails(t *testing.T) {
	def := meterDef()
	def.ExposedProperties[0].Mapping.Transform = "fahrenheit_to_celsius"
	flow := model.Flow{
		ID: "flow1",
		Blocks: []model.BlockInstance{{
			ID:                "m1",
			BlockDefinitionID: "builtin.meter",
			Properties:        map[string]model.PropertyValue{"interval": model.IntValue(50)},
		}},
	}

	_, err := Compile(flow, fakeRegistry{"builtin.meter": def}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, InvalidProperty, ce.Kind)
}

func TestCompile_UnresolvableLink_Fails(t *testing.T) {
	flow := model.Flow{
		ID:     "flow1",
		Blocks: []model.BlockInstance{{ID: "m1", BlockDefinitionID: "builtin.meter"}},
		Links:  []model.Link{{From: "m1:output", To: "ghost:input"}},
	}

	_, err := Compile(flow, fakeRegistry{"builtin.meter": meterDef()}, builder.NewRegistry(), &framework.MemoryFactory{})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, LinkError, ce.Kind)
}
