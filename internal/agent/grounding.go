package agent

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/taarya/taarya/internal/tools"
)

// groundingTolerance is the relative tolerance when matching a numeric
// claim against retrieved values.
const groundingTolerance = 1e-3

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// UnverifiedClaims returns numeric values stated in the answer that do not
// match any numeric field in the tool outputs within tolerance. An empty
// output set verifies nothing and flags nothing: there is no retrieved
// data to contradict.
func UnverifiedClaims(answer string, outputs []tools.Output) []string {
	if len(outputs) == 0 {
		return nil
	}

	retrieved := collectNumbers(outputs)
	if len(retrieved) == 0 {
		return nil
	}

	var unverified []string
	seen := make(map[string]bool)
	for _, claim := range numberPattern.FindAllString(answer, -1) {
		value, err := strconv.ParseFloat(claim, 64)
		if err != nil || seen[claim] {
			continue
		}
		seen[claim] = true
		if !matchesAny(value, retrieved) {
			unverified = append(unverified, claim)
		}
	}
	return unverified
}

// flagUnverified appends a caveat naming the unverified values, so a
// contradicted claim never reaches the caller unmarked.
func flagUnverified(answer string, claims []string) string {
	if len(claims) == 0 {
		return answer
	}
	return answer + "\n\nNote: the following numeric values could not be verified against the retrieved data: " +
		strings.Join(claims, ", ")
}

func matchesAny(value float64, retrieved []float64) bool {
	for _, r := range retrieved {
		if value == r {
			return true
		}
		scale := math.Max(math.Abs(value), math.Abs(r))
		if math.Abs(value-r) <= groundingTolerance*scale {
			return true
		}
	}
	return false
}

// collectNumbers walks tool output data and gathers every numeric value,
// including numbers embedded in strings. Data is normalized through JSON
// so structs and maps are treated alike.
func collectNumbers(outputs []tools.Output) []float64 {
	var numbers []float64
	for _, out := range outputs {
		raw, err := json.Marshal(out.Data)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		numbers = appendNumbers(numbers, v)
	}
	return numbers
}

func appendNumbers(acc []float64, v any) []float64 {
	switch x := v.(type) {
	case float64:
		acc = append(acc, x)
	case string:
		for _, m := range numberPattern.FindAllString(x, -1) {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				acc = append(acc, f)
			}
		}
	case bool, nil:
	case []any:
		for _, item := range x {
			acc = appendNumbers(acc, item)
		}
	case map[string]any:
		for _, item := range x {
			acc = appendNumbers(acc, item)
		}
	}
	return acc
}
