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

// Package function provides the node types that transform, route and delay
// messages:
//
//   - change: sets, changes, deletes or moves message properties
//   - switch: routes a message to the ports whose rules match
//   - filter: forwards a message only when an expression holds
//   - function: runs a JavaScript body against the message
//   - delay: forwards each message after a fixed delay
//
// Expressions of switch and filter rules are compiled with expr-lang. They see
// the message fields as msg, plus payload, topic, id and global.
package function

import (
	"github.com/edgelinkgo/edgelink/api/types"
)

// Registry collects the providers of this package.
var Registry = &types.SafeProviderSlice{}
