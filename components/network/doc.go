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

// Package network provides the HTTP and WebSocket node types:
//
//   - http-server: a standalone HTTP listener that http in nodes attach routes to
//   - http in: emits a message for each request on its route
//   - websocket out: writes message payloads to a WebSocket server
package network

import (
	"github.com/edgelinkgo/edgelink/api/types"
)

// Registry collects the providers of this package.
var Registry = &types.SafeProviderSlice{}
