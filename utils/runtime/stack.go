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

// Package runtime formats the call stack for panic reports.
package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// MaxFrames bounds the number of frames Stack reports.
const MaxFrames = 32

// Stack returns the caller's stack, one "function file:line" per line, starting
// at the function that called Stack's caller. Inside a deferred recover this is
// the frame that panicked.
func Stack() string {
	pc := make([]uintptr, MaxFrames)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, " %s %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}
