package relay

import "encoding/hex"

// Filter selects events for a SUBSCRIBE frame.
type Filter struct {
	Kinds   []int
	Authors [][]byte // x-only pubkeys
	Tags    map[string][]string
	Since   *int64
	Until   *int64
}

// Matches reports whether e satisfies f. Outgoing filter frames are
// built by toWire, not by Matches, and Pool.Retrieve does not re-check
// the events a relay sends back against the filter.
func (f Filter) Matches(e *Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 {
		hexPub := hex.EncodeToString(e.PubKey)
		found := false
		for _, a := range f.Authors {
			if hex.EncodeToString(a) == hexPub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, values := range f.Tags {
		have := e.TagValues(key)
		if !anyOverlap(values, have) {
			return false
		}
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func anyOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// wireFilter is the JSON-over-the-wire shape of a Filter.
type wireFilter struct {
	Kinds   []int               `json:"kinds,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Tags    map[string][]string `json:"tags,omitempty"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
}

func (f Filter) toWire() wireFilter {
	w := wireFilter{Kinds: f.Kinds, Tags: f.Tags, Since: f.Since, Until: f.Until}
	for _, a := range f.Authors {
		w.Authors = append(w.Authors, hex.EncodeToString(a))
	}
	return w
}
