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

package base

import (
	"fmt"
	"os"
	"time"

	"github.com/edgelinkgo/edgelink/api/types"
	"github.com/edgelinkgo/edgelink/utils/cache"
	"github.com/edgelinkgo/edgelink/utils/cast"
	"github.com/edgelinkgo/edgelink/utils/json"
	"github.com/edgelinkgo/edgelink/utils/str"
)

// Value types of typed node fields, such as "payloadType" or "tot".
const (
	TypeStr    = "str"
	TypeNum    = "num"
	TypeBool   = "bool"
	TypeJson   = "json"
	TypeDate   = "date"
	TypeMsg    = "msg"
	TypeEnv    = "env"
	TypeGlobal = "global"
)

// TypedValue resolves a field value v of type vt. TypeMsg reads the property
// expression v from msg, TypeEnv an environment variable and TypeGlobal the
// global context, falling back to the engine properties. An empty type returns
// v unchanged.
func TypedValue(v interface{}, vt string, msg *types.Msg, env types.Environment) (interface{}, error) {
	switch vt {
	case "":
		return v, nil
	case TypeStr:
		return str.ToString(v), nil
	case TypeNum:
		return cast.ToFloat64E(v)
	case TypeBool:
		return cast.ToBoolE(v)
	case TypeJson:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out interface{}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid json value %q: %w", s, err)
		}
		return out, nil
	case TypeDate:
		return time.Now().UnixMilli(), nil
	case TypeMsg:
		if msg == nil {
			return nil, fmt.Errorf("%w: no message to read %v from", types.ErrInvalidOperation, v)
		}
		return msg.GetAt(str.ToString(v))
	case TypeEnv:
		return os.Getenv(str.ToString(v)), nil
	case TypeGlobal:
		if env == nil {
			return nil, fmt.Errorf("%w: no environment", types.ErrInvalidOperation)
		}
		key := str.ToString(v)
		if env.Cache() != nil {
			if value := env.Cache().Get(cache.GlobalNamespace() + key); value != nil {
				return value, nil
			}
		}
		value, ok := env.Config().Properties[key]
		if !ok {
			return nil, fmt.Errorf("global property %v not found", v)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %q", types.ErrBadConfig, vt)
	}
}
