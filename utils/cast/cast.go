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

// Package cast converts loosely typed configuration and message values, such as
// numbers decoded from JSON or strings entered in an editor, to Go types.
package cast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToFloat64E converts value to float64.
func ToFloat64E(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %q to float64", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unable to cast %v of type %T to float64", value, value)
	}
}

// ToBoolE converts value to bool. Numbers are true when non-zero.
func ToBoolE(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		f, err := ToFloat64E(value)
		if err != nil {
			return false, fmt.Errorf("unable to cast %v of type %T to bool", value, value)
		}
		return f != 0, nil
	}
}

// ToDurationE converts value to a duration. Bare numbers are read as unit
// multiples; strings may also use time.ParseDuration syntax such as "1m30s".
func ToDurationE(value interface{}, unit time.Duration) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(unit)), nil
		}
		return time.ParseDuration(s)
	default:
		f, err := ToFloat64E(value)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %v of type %T to duration", value, value)
		}
		return time.Duration(f * float64(unit)), nil
	}
}
