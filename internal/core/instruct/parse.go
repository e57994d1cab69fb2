package instruct

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyiyo/toole/pkg/types"
)

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// Parse decodes a model reply into an InstructionResult. Optional fields
// fall back to defaults; the reply as a whole must be a JSON object (or an
// array whose first element is one) carrying at least one known field.
func Parse(raw string) (*types.InstructionResult, error) {
	body := []byte(sanitizeJSON(raw))
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrBadResponse)
	}
	if body[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrBadResponse)
		}
		body = arr[0]
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	devRaw, hasDev := obj["device_name"]
	riskRaw, hasRisk := obj["risk_alert"]
	stepsRaw, hasSteps := obj["steps"]
	if !hasDev && !hasRisk && !hasSteps {
		return nil, fmt.Errorf("%w: no known fields", ErrBadResponse)
	}

	res := &types.InstructionResult{
		DeviceName: strings.TrimSpace(asString(devRaw)),
		Steps:      []types.Step{},
	}
	if res.DeviceName == "" {
		res.DeviceName = types.DefaultDeviceName
	}
	if risk := strings.TrimSpace(asString(riskRaw)); risk != "" && !strings.EqualFold(risk, "null") {
		res.RiskAlert = &risk
	}

	var steps []json.RawMessage
	if json.Unmarshal(stepsRaw, &steps) != nil {
		steps = nil
	}
	for i, s := range steps {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(s, &fields); err != nil || fields == nil {
			continue
		}
		res.Steps = append(res.Steps, parseStep(fields, i+1))
	}
	return res, nil
}

func parseStep(f map[string]json.RawMessage, pos int) types.Step {
	st := types.Step{
		Order:      pos,
		Text:       strings.TrimSpace(asString(f["text"])),
		ActionType: strings.ToLower(strings.TrimSpace(asString(f["action_type"]))),
		Box:        parseBox(f["box_2d"]),
	}
	if n, ok := asNumber(f["order"]); ok && n >= 1 && n == math.Trunc(n) && n <= math.MaxInt32 {
		st.Order = int(n)
	}
	if st.ActionType == "" {
		st.ActionType = types.DefaultActionType
	}
	return st
}

// parseBox accepts exactly four numbers, rounds them and clamps them into
// [0, 1000]. Anything else yields nil.
func parseBox(raw json.RawMessage) *types.Box {
	if len(raw) == 0 {
		return nil
	}
	var vals []json.RawMessage
	if json.Unmarshal(raw, &vals) != nil || len(vals) != 4 {
		return nil
	}
	var b types.Box
	for i, v := range vals {
		n, ok := asNumber(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		b[i] = int(math.Round(math.Max(0, math.Min(1000, n))))
	}
	return &b
}

func asString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if n, ok := asNumber(raw); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func asNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// sanitizeJSON strips markdown fences and surrounding prose and returns the
// first JSON value in the reply. Trailing commas are only removed when the
// value does not decode as is.
func sanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return strings.TrimSpace(raw)
	}
	raw = raw[start:]
	if v, ok := firstValue(raw); ok {
		return v
	}
	raw = trailingComma.ReplaceAllString(raw, "$1")
	if v, ok := firstValue(raw); ok {
		return v
	}
	return strings.TrimSpace(raw)
}

// firstValue decodes exactly one JSON value from the start of s, ignoring
// whatever follows it.
func firstValue(s string) (string, bool) {
	var v json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&v); err != nil {
		return "", false
	}
	return string(v), true
}
