/*
 * Copyright 2024 The EdgeLink Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"errors"
	"testing"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/test"
	"github.com/stretchr/testify/assert"
)

type testPlugins struct {
	rec *test.Recorder
}

func (p *testPlugins) Init() error {
	return nil
}

func (p *testPlugins) FlowNodeProviders() []types.FlowNodeProvider {
	return []types.FlowNodeProvider{
		test.NewNodeProvider("plugin-pipe", types.PIPE, p.rec),
		test.NewNodeProvider("plugin-sink", types.SINK, p.rec),
	}
}

func (p *testPlugins) StandaloneNodeProviders() []types.StandaloneNodeProvider {
	return []types.StandaloneNodeProvider{test.NewStandaloneProvider("plugin-service", p.rec)}
}

func TestRegistry(t *testing.T) {
	rec := test.NewRecorder()
	r := NewRegistry()

	assert.Nil(t, r.RegisterFlowNode(test.NewNodeProvider("pipe", types.PIPE, rec)))
	assert.Nil(t, r.RegisterStandaloneNode(test.NewStandaloneProvider("service", rec)))

	err := r.RegisterFlowNode(test.NewNodeProvider("pipe", types.SINK, rec))
	assert.True(t, errors.Is(err, types.ErrComponentExists))
	err = r.RegisterFlowNode(test.NewNodeProvider("service", types.SINK, rec))
	assert.True(t, errors.Is(err, types.ErrComponentExists))

	p, err := r.GetFlowNodeProvider("pipe")
	assert.Nil(t, err)
	assert.Equal(t, types.PIPE, p.Descriptor().Kind())
	assert.Equal(t, p, p.Descriptor().Provider())

	_, err = r.GetFlowNodeProvider("service")
	assert.True(t, errors.Is(err, types.ErrUnknownNodeType))
	_, err = r.GetStandaloneNodeProvider("pipe")
	assert.True(t, errors.Is(err, types.ErrUnknownNodeType))
	sp, err := r.GetStandaloneNodeProvider("service")
	assert.Nil(t, err)
	assert.Equal(t, types.STANDALONE, sp.Descriptor().Kind())

	descriptors := r.Descriptors()
	assert.Equal(t, 2, len(descriptors))
	assert.Equal(t, "pipe", descriptors[0].Type())
	assert.Equal(t, "service", descriptors[1].Type())

	assert.Nil(t, r.Unregister("pipe"))
	_, err = r.GetFlowNodeProvider("pipe")
	assert.True(t, errors.Is(err, types.ErrUnknownNodeType))
	assert.True(t, errors.Is(r.Unregister("pipe"), types.ErrUnknownNodeType))
}

func TestRegistryPlugin(t *testing.T) {
	rec := test.NewRecorder()
	r := NewRegistry()
	assert.Nil(t, r.registerPluginRegistry("demo", &testPlugins{rec: rec}))
	_, err := r.GetFlowNodeProvider("plugin-pipe")
	assert.Nil(t, err)
	_, err = r.GetStandaloneNodeProvider("plugin-service")
	assert.Nil(t, err)

	err = r.registerPluginRegistry("demo", &testPlugins{rec: rec})
	assert.True(t, errors.Is(err, types.ErrComponentExists))
	err = r.registerPluginRegistry("other", &testPlugins{rec: rec})
	assert.True(t, errors.Is(err, types.ErrComponentExists))

	assert.Nil(t, r.Unregister("demo"))
	assert.Equal(t, 0, len(r.Descriptors()))

	assert.NotNil(t, r.RegisterPlugin("missing", "./not-exists.so"))
}

func TestDefaultRegistry(t *testing.T) {
	kinds := map[string]types.NodeKind{}
	for _, desc := range Registry.Descriptors() {
		kinds[desc.Type()] = desc.Kind()
	}
	expected := map[string]types.NodeKind{
		"inject":        types.SOURCE,
		"debug":         types.SINK,
		"junction":      types.JUNCTION,
		"link in":       types.JUNCTION,
		"link out":      types.SINK,
		"change":        types.PIPE,
		"switch":        types.PIPE,
		"filter":        types.FILTER,
		"function":      types.PIPE,
		"delay":         types.PIPE,
		"mqtt-broker":   types.STANDALONE,
		"mqtt in":       types.SOURCE,
		"mqtt out":      types.SINK,
		"http-server":   types.STANDALONE,
		"http in":       types.SOURCE,
		"websocket out": types.SINK,
		"sql":           types.SINK,
	}
	for typeName, kind := range expected {
		actual, ok := kinds[typeName]
		assert.True(t, ok, typeName)
		assert.Equal(t, kind, actual, typeName)
	}
}
