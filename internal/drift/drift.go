// Package drift compares successive entity snapshots and reports
// divergence. Findings inform the world-state machine but never command
// it: they are recorded as operational memory, not as transitions.
package drift

import (
	"fmt"
	"sort"
	"strings"
)

// Snapshot maps entity id -> attribute set.
type Snapshot map[string]map[string]string

// Change classifies a finding.
const (
	EntityAdded   = "entity_added"
	EntityRemoved = "entity_removed"
	AttrsChanged  = "attributes_changed"
)

// Delta is one attribute-level difference.
type Delta struct {
	Attr     string `json:"attr"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
}

// Finding is the divergence observed for one entity between two snapshots.
type Finding struct {
	Entity string  `json:"entity"`
	Change string  `json:"change"`
	Deltas []Delta `json:"deltas,omitempty"`
}

// Summary renders a one-line human description.
func (f Finding) Summary() string {
	switch f.Change {
	case EntityAdded:
		return fmt.Sprintf("entity %s appeared", f.Entity)
	case EntityRemoved:
		return fmt.Sprintf("entity %s disappeared", f.Entity)
	}
	parts := make([]string, 0, len(f.Deltas))
	for _, d := range f.Deltas {
		switch {
		case d.Previous == "":
			parts = append(parts, fmt.Sprintf("%s=%q added", d.Attr, d.Current))
		case d.Current == "":
			parts = append(parts, fmt.Sprintf("%s removed", d.Attr))
		default:
			parts = append(parts, fmt.Sprintf("%s: %q -> %q", d.Attr, d.Previous, d.Current))
		}
	}
	return fmt.Sprintf("entity %s changed: %s", f.Entity, strings.Join(parts, ", "))
}

// Detect is a pure function over two snapshots. One finding is emitted per
// entity whose attribute set was added, removed or changed. Identical
// snapshots yield no findings. Output is sorted by entity id.
func Detect(prev, cur Snapshot) []Finding {
	var findings []Finding

	for id, attrs := range cur {
		prevAttrs, ok := prev[id]
		if !ok {
			findings = append(findings, Finding{Entity: id, Change: EntityAdded, Deltas: addedDeltas(attrs)})
			continue
		}
		if deltas := diffAttrs(prevAttrs, attrs); len(deltas) > 0 {
			findings = append(findings, Finding{Entity: id, Change: AttrsChanged, Deltas: deltas})
		}
	}
	for id, prevAttrs := range prev {
		if _, ok := cur[id]; !ok {
			findings = append(findings, Finding{Entity: id, Change: EntityRemoved, Deltas: removedDeltas(prevAttrs)})
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Entity < findings[j].Entity })
	return findings
}

func diffAttrs(prev, cur map[string]string) []Delta {
	var deltas []Delta
	for k, v := range cur {
		pv, ok := prev[k]
		if !ok {
			deltas = append(deltas, Delta{Attr: k, Current: v})
		} else if pv != v {
			deltas = append(deltas, Delta{Attr: k, Previous: pv, Current: v})
		}
	}
	for k, pv := range prev {
		if _, ok := cur[k]; !ok {
			deltas = append(deltas, Delta{Attr: k, Previous: pv})
		}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Attr < deltas[j].Attr })
	return deltas
}

func addedDeltas(attrs map[string]string) []Delta {
	deltas := make([]Delta, 0, len(attrs))
	for k, v := range attrs {
		deltas = append(deltas, Delta{Attr: k, Current: v})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Attr < deltas[j].Attr })
	return deltas
}

func removedDeltas(attrs map[string]string) []Delta {
	deltas := make([]Delta, 0, len(attrs))
	for k, v := range attrs {
		deltas = append(deltas, Delta{Attr: k, Previous: v})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Attr < deltas[j].Attr })
	return deltas
}
