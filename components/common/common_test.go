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

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/test"
	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	lines []string
	sync.Mutex
}

func (l *captureLogger) Printf(format string, v ...interface{}) {
	l.Lock()
	defer l.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *captureLogger) Lines() []string {
	l.Lock()
	defer l.Unlock()
	return append([]string(nil), l.lines...)
}

func create(t *testing.T, typeName string, flow types.Flow, outputs int, dsl string) types.FlowNode {
	t.Helper()
	for _, p := range Registry.FlowNodeProviders() {
		if p.Descriptor().Type() == typeName {
			node, err := p.Create(test.Record(t, dsl).Id(), test.Record(t, dsl), test.Ports(outputs), flow)
			if err != nil {
				t.Fatalf("create %s: %v", typeName, err)
			}
			return node
		}
	}
	t.Fatalf("type %s not registered", typeName)
	return nil
}

func createErr(t *testing.T, typeName string, dsl string) error {
	t.Helper()
	for _, p := range Registry.FlowNodeProviders() {
		if p.Descriptor().Type() == typeName {
			_, err := p.Create(test.Record(t, dsl).Id(), test.Record(t, dsl), test.Ports(1), test.NewFlow(types.NewConfig()))
			return err
		}
	}
	t.Fatalf("type %s not registered", typeName)
	return nil
}

func TestInjectNode(t *testing.T) {
	t.Run("once", func(t *testing.T) {
		flow := test.NewFlow(types.NewConfig())
		node := create(t, "inject", flow, 1, `{"id":"i1","type":"inject","once":true,"onceDelay":"0","topic":"t1"}`)
		before := time.Now().UnixMilli()
		assert.Nil(t, node.Start(context.Background()))
		defer node.Stop(context.Background())

		sent := flow.WaitSent(1, time.Second)
		assert.Equal(t, 1, len(sent))
		assert.Equal(t, "t1", sent[0].Msg.Topic())
		ts, ok := sent[0].Msg.Payload().(int64)
		assert.True(t, ok)
		assert.True(t, ts >= before)

		time.Sleep(time.Millisecond * 50)
		assert.Equal(t, 1, len(flow.Sent()))
	})

	t.Run("repeat", func(t *testing.T) {
		flow := test.NewFlow(types.NewConfig())
		node := create(t, "inject", flow, 1, `{"id":"i1","type":"inject","repeat":"0.02","payload":"tick","payloadType":"str"}`)
		assert.Nil(t, node.Start(context.Background()))
		sent := flow.WaitSent(3, time.Second*2)
		assert.Nil(t, node.Stop(context.Background()))
		assert.True(t, len(sent) >= 3)
		assert.Equal(t, "tick", sent[0].Msg.Payload())
		assert.NotEqual(t, sent[0].Msg.Id(), sent[1].Msg.Id())
	})

	t.Run("props", func(t *testing.T) {
		flow := test.NewFlow(types.NewConfig(types.WithProperties(map[string]string{"site": "s1"})))
		node := create(t, "inject", flow, 1, `{"id":"i1","type":"inject",
			"props":[{"p":"payload","v":"{\"a\":1}","vt":"json"},{"p":"where.site","v":"site","vt":"global"},{"p":"level","v":"3","vt":"num"}]}`)
		assert.Nil(t, node.(*InjectNode).Trigger(context.Background()))
		sent := flow.Sent()
		assert.Equal(t, 1, len(sent))
		assert.Equal(t, map[string]interface{}{"a": float64(1)}, sent[0].Msg.Payload())
		v, err := sent[0].Msg.GetAt("where.site")
		assert.Nil(t, err)
		assert.Equal(t, "s1", v)
		v, _ = sent[0].Msg.GetAt("level")
		assert.Equal(t, float64(3), v)
	})

	t.Run("badProp", func(t *testing.T) {
		flow := test.NewFlow(types.NewConfig())
		node := create(t, "inject", flow, 1, `{"id":"i1","type":"inject","props":[{"p":"payload","v":"missing","vt":"global"}]}`)
		assert.NotNil(t, node.(*InjectNode).Trigger(context.Background()))
		assert.Equal(t, 0, len(flow.Sent()))
	})

	t.Run("schedule", func(t *testing.T) {
		flow := test.NewFlow(types.NewConfig())
		node := create(t, "inject", flow, 1, `{"id":"i1","type":"inject","crontab":"@every 5s","once":true,"onceDelay":0.5}`).(*InjectNode)
		now := time.Now()
		wait, ok := node.next(now)
		assert.True(t, ok)
		assert.Equal(t, time.Millisecond*500, wait)
		wait, ok = node.next(now)
		assert.True(t, ok)
		assert.True(t, wait > time.Second*4 && wait <= time.Second*5)

		idle := create(t, "inject", flow, 1, `{"id":"i2","type":"inject"}`).(*InjectNode)
		_, ok = idle.next(now)
		assert.False(t, ok)
	})

	t.Run("config", func(t *testing.T) {
		err := createErr(t, "inject", `{"id":"i1","type":"inject","crontab":"not a cron"}`)
		assert.True(t, errors.Is(err, types.ErrBadConfig))
		err = createErr(t, "inject", `{"id":"i1","type":"inject","crontab":"*/5 * * * *","repeat":"5"}`)
		assert.True(t, errors.Is(err, types.ErrBadConfig))
		err = createErr(t, "inject", `{"id":"i1","type":"inject","repeat":"soon"}`)
		assert.True(t, errors.Is(err, types.ErrBadConfig))
		assert.Nil(t, createErr(t, "inject", `{"id":"i1","type":"inject","crontab":"0 */5 * * * *"}`))
	})
}

func TestDebugNode(t *testing.T) {
	logger := &captureLogger{}
	flow := test.NewFlow(types.NewConfig(types.WithLogger(logger)))

	node := create(t, "debug", flow, 0, `{"id":"d1","type":"debug"}`).(*DebugNode)
	msg := test.Msg(map[string]interface{}{"temperature": 21})
	assert.Nil(t, node.Receive(context.Background(), msg))

	whole := create(t, "debug", flow, 0, `{"id":"d2","type":"debug","complete":"true"}`).(*DebugNode)
	assert.Nil(t, whole.Receive(context.Background(), msg))

	prop := create(t, "debug", flow, 0, `{"id":"d3","type":"debug","complete":"payload.temperature"}`).(*DebugNode)
	assert.Nil(t, prop.Receive(context.Background(), msg))

	inactive := create(t, "debug", flow, 0, `{"id":"d4","type":"debug","active":false}`).(*DebugNode)
	assert.Nil(t, inactive.Receive(context.Background(), msg))
	assert.Equal(t, int64(1), inactive.Count())

	lines := logger.Lines()
	assert.Equal(t, 3, len(lines))
	assert.True(t, strings.HasSuffix(lines[0], `{"temperature":21}`))
	assert.True(t, strings.Contains(lines[1], `"_msgid"`))
	assert.True(t, strings.HasSuffix(lines[2], ": 21"))
}

func TestJunctionNode(t *testing.T) {
	flow := test.NewFlow(types.NewConfig())
	node := create(t, "junction", flow, 1, `{"id":"j1","type":"junction"}`).(*JunctionNode)
	msg := test.Msg("x")
	assert.Nil(t, node.Receive(context.Background(), msg))
	sent := flow.Sent()
	assert.Equal(t, 1, len(sent))
	assert.True(t, sent[0].Msg == msg)

	linkIn := create(t, "link in", flow, 1, `{"id":"li1","type":"link in"}`)
	assert.Equal(t, types.JUNCTION, linkIn.Descriptor().Kind())

	for _, p := range Registry.FlowNodeProviders() {
		if p.Descriptor().Type() == "junction" {
			_, err := p.Create("j2", types.Record{"id": "j2", "type": "junction"}, test.Ports(2), flow)
			assert.True(t, errors.Is(err, types.ErrBadConfig))
		}
	}
}

func TestLinkOutNode(t *testing.T) {
	env := test.NewEnv(types.NewConfig())
	source := test.NewFlowInEnv(env)
	target := test.NewFlowInEnv(env)
	target.Add(create(t, "link in", target, 1, `{"id":"li1","type":"link in"}`))
	target.Add(create(t, "link in", target, 1, `{"id":"li2","type":"link in"}`))

	node := create(t, "link out", source, 0, `{"id":"lo1","type":"link out","links":["li1","missing","li2"]}`)
	msg := test.Msg(map[string]interface{}{"a": 1})
	err := node.(*LinkOutNode).Receive(context.Background(), msg)
	assert.True(t, errors.Is(err, types.ErrDestinationNotFound))

	delivered := target.Delivered()
	assert.Equal(t, 2, len(delivered))
	assert.Equal(t, "lo1", delivered[0].FromId)
	assert.Equal(t, "li1", delivered[0].ToId)
	assert.Equal(t, "li2", delivered[1].ToId)
	assert.True(t, delivered[0].Msg == msg)
	assert.False(t, delivered[1].Msg == msg)
	assert.Equal(t, msg.Id(), delivered[1].Msg.Id())
	assert.Equal(t, msg.Payload(), delivered[1].Msg.Payload())
}
