package nl2sql

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Filter is the subset of known category and merchant values judged relevant to a
// question. Empty slices mean no filter on that dimension. Values are sorted and unique.
type Filter struct {
	Categories []string `json:"category"`
	Merchants  []string `json:"merchant"`
}

func (f Filter) IsEmpty() bool {
	return len(f.Categories) == 0 && len(f.Merchants) == 0
}

// Statement is the audit line every answer ends with.
func (f Filter) Statement() string {
	return fmt.Sprintf("Filtered by category: %s and merchant: %s", joinOrNone(f.Categories), joinOrNone(f.Merchants))
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

// ParseFilter reads the model's filter object. Both keys are required; each may be a list
// of strings, a single string or null.
func ParseFilter(raw string) (Filter, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return Filter{}, &ExtractionParseError{Raw: raw, Reason: "no JSON object in output"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return Filter{}, &ExtractionParseError{Raw: raw, Reason: err.Error()}
	}

	var filter Filter
	for _, key := range []string{"category", "merchant"} {
		value, ok := fields[key]
		if !ok {
			return Filter{}, &ExtractionParseError{Raw: raw, Reason: fmt.Sprintf("missing key %q", key)}
		}
		items, err := decodeStringList(value)
		if err != nil {
			return Filter{}, &ExtractionParseError{Raw: raw, Reason: fmt.Sprintf("key %q: %v", key, err)}
		}
		if key == "category" {
			filter.Categories = items
		} else {
			filter.Merchants = items
		}
	}
	return filter, nil
}

func decodeStringList(value json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var single string
		if err := json.Unmarshal(value, &single); err != nil {
			return nil, err
		}
		if strings.TrimSpace(single) == "" {
			return nil, nil
		}
		return []string{single}, nil
	}
	var items []string
	if err := json.Unmarshal(value, &items); err != nil {
		return nil, fmt.Errorf("want a list of strings")
	}
	return items, nil
}

// Restrict keeps only values that occur exactly (case-sensitive) in the known lists, then
// sorts and de-duplicates them.
func (f Filter) Restrict(knownCategories, knownMerchants []string) Filter {
	return Filter{
		Categories: intersect(f.Categories, knownCategories),
		Merchants:  intersect(f.Merchants, knownMerchants),
	}
}

func intersect(values, known []string) []string {
	allowed := make(map[string]struct{}, len(known))
	for _, value := range known {
		allowed[value] = struct{}{}
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := allowed[value]; ok {
			out = append(out, value)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// cleanModelJSON strips markdown fences and surrounding prose, returning the outermost
// JSON object or "".
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}
