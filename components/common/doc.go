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

// Package common provides the general purpose node types of a flow:
//
//   - inject: emits messages on an interval, a crontab schedule or once at start
//   - debug: logs messages or one of their properties
//   - junction: forwards messages unchanged, used to tidy wiring
//   - link out / link in: carry messages between flows without a wire
//
// Each type is added to Registry at init and registered by the engine's default
// registry. Records use the Node-RED layout, for example:
//
//	{"id":"n1","type":"inject","z":"f1","repeat":"5","payloadType":"date","wires":[["n2"]]}
package common

import (
	"github.com/edgelinkgo/edgelink/api/types"
)

// Registry collects the providers of this package.
var Registry = &types.SafeProviderSlice{}
