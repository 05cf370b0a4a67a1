// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "sort"

// Entry is one inventory record: a physical capture device identified by a
// stable key (bus info) and the node path currently used to reach it.
type Entry struct {
	Key    string `json:"key"`
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// Dedupe collapses entries sharing a key. When two entries share a key the one
// with the lexicographically greater path wins. Entries with an empty key are
// dropped. The result is sorted by key.
func Dedupe(entries []Entry) []Entry {
	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if cur, ok := byKey[e.Key]; ok && cur.Path >= e.Path {
			continue
		}
		byKey[e.Key] = e
	}
	out := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Index returns the entries keyed by stable key.
func Index(entries []Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Key] = e
	}
	return m
}
