package classifier

import (
	"fmt"
	"sort"
)

// LabelEncoder maps class names to contiguous indices in sorted order.
type LabelEncoder struct {
	Classes []string `json:"classes"`
	index   map[string]int
}

func NewLabelEncoder(labels []string) *LabelEncoder {
	seen := map[string]bool{}
	var classes []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)
	e := &LabelEncoder{Classes: classes}
	e.build()
	return e
}

func (e *LabelEncoder) build() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

func (e *LabelEncoder) Len() int { return len(e.Classes) }

func (e *LabelEncoder) Encode(label string) (int, error) {
	if e.index == nil {
		e.build()
	}
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return i, nil
}

func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		c, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (e *LabelEncoder) Decode(i int) string {
	if i < 0 || i >= len(e.Classes) {
		return ""
	}
	return e.Classes[i]
}
