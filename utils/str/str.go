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

// Package str holds the string helpers shared by the engine and the built-in
// nodes: placeholder substitution, value formatting and SQL placeholder rewriting.
package str

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgelinkgo/edgelink/utils/json"
)

// matches ${key} or ${ key.sub }
var tplVarRegex = regexp.MustCompile(`\$\{ *([^}]+?) *\}`)

// SprintfDict replaces ${key} placeholders in original with values from dict.
// Placeholders without a matching key are kept as they are.
//
//	SprintfDict("tcp://${global.host}:1883", map[string]string{"global.host": "10.0.0.1"})
func SprintfDict(original string, dict map[string]string) string {
	if !CheckHasVar(original) {
		return original
	}
	return tplVarRegex.ReplaceAllStringFunc(original, func(s string) string {
		matches := tplVarRegex.FindStringSubmatch(s)
		if len(matches) < 2 {
			return s
		}
		if result, ok := dict[strings.TrimSpace(matches[1])]; ok {
			return result
		}
		return s
	})
}

// CheckHasVar reports whether s may contain a placeholder.
func CheckHasVar(s string) bool {
	return strings.Contains(s, "${") && strings.Contains(s, "}")
}

// ToString formats input as text, ignoring errors.
func ToString(input interface{}) string {
	v, _ := ToStringMaybeErr(input)
	return v
}

// ToStringMaybeErr formats input as text. Scalars use their natural form; objects
// and arrays are encoded as JSON.
func ToStringMaybeErr(input interface{}) (string, error) {
	switch v := input.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case []byte:
		return string(v), nil
	case error:
		return v.Error(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		b, err := json.Marshal(input)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// ConvertDollarPlaceholder rewrites ? placeholders to $1, $2... for postgres.
// Other database types are returned unchanged.
func ConvertDollarPlaceholder(sql, dbType string) string {
	if dbType != "postgres" {
		return sql
	}
	var sb strings.Builder
	n := 1
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			sb.WriteString("$" + strconv.Itoa(n))
			n++
			continue
		}
		sb.WriteByte(sql[i])
	}
	return sb.String()
}

// Contains reports whether target is in list.
func Contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
