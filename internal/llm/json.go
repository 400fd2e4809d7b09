// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// ExtractJSONArray returns the first well-formed JSON array embedded in a
// model reply. Models often wrap JSON in prose or code fences; anything
// around the array is ignored. A reply without one reports
// types.ErrGenerationFormat.
func ExtractJSONArray(reply string) (json.RawMessage, error) {
	return extractJSON(reply, '[')
}

// ExtractJSONObject returns the first well-formed JSON object embedded in a
// model reply, or types.ErrGenerationFormat.
func ExtractJSONObject(reply string) (json.RawMessage, error) {
	return extractJSON(reply, '{')
}

func extractJSON(reply string, open byte) (json.RawMessage, error) {
	for i := 0; i < len(reply); i++ {
		j := strings.IndexByte(reply[i:], open)
		if j < 0 {
			break
		}
		i += j
		dec := json.NewDecoder(strings.NewReader(reply[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 && raw[0] == open {
				return raw, nil
			}
		}
	}
	kind := "array"
	if open == '{' {
		kind = "object"
	}
	return nil, fmt.Errorf("%w: no JSON %s in reply", types.ErrGenerationFormat, kind)
}

// LenientInt reads an integer field a model may have written as an
// integer, a float, or a numeric string. Non-integers are rounded half
// away from zero; values beyond the int range saturate at math.MaxInt or
// math.MinInt so later clamping keeps their sign.
func LenientInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Round(f)
	switch {
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(f), true
}
