// Package resolver defines the read-only lookup interfaces the store
// consults while decoding and filtering records — interface display
// names, rule labels, and alias expansions — plus lock-free default
// implementations the host can mutate and hot-swap without taking a
// lock the filter engine's workers would contend on.
package resolver

import "github.com/alphadose/haxmap"

// InterfaceResolver maps a physical interface name (e.g. "igb0") to its
// operator-assigned display name (e.g. "WAN").
type InterfaceResolver interface {
	Resolve(physical string) (display string, ok bool)
}

// RuleLabelResolver maps a firewall rule identifier to its human label.
type RuleLabelResolver interface {
	Resolve(ruleID string) (label string, ok bool)
}

// AliasResolver expands a pfSense/OPNsense alias name to its underlying
// value (a host, network, or port list rendered as a display string).
type AliasResolver interface {
	Resolve(alias string) (expansion string, ok bool)
}

// InterfaceMap is a concurrent, hot-swappable InterfaceResolver backed by
// a lock-free hash map, safe to read from many filter-engine workers
// while the host mutates it from another goroutine.
type InterfaceMap struct {
	m *haxmap.Map[string, string]
}

// NewInterfaceMap creates an empty InterfaceMap.
func NewInterfaceMap() *InterfaceMap {
	return &InterfaceMap{m: haxmap.New[string, string]()}
}

// Resolve implements InterfaceResolver.
func (r *InterfaceMap) Resolve(physical string) (string, bool) {
	return r.m.Get(physical)
}

// Set assigns or updates the display name for a physical interface.
func (r *InterfaceMap) Set(physical, display string) {
	r.m.Set(physical, display)
}

// Delete removes a mapping.
func (r *InterfaceMap) Delete(physical string) {
	r.m.Del(physical)
}

// Snapshot copies the current mappings into a plain map. The store takes
// this copy once, when the resolver is installed, and decodes against it
// rather than calling back into the live concurrent map on every record:
// it is cheaper per lookup, and it means a resolver swap mid-pass cannot
// produce a chunk whose records were decoded against two different
// mappings. Set or Delete calls made after installation are not seen
// until the resolver is installed again.
func (r *InterfaceMap) Snapshot() map[string]string {
	out := make(map[string]string, int(r.m.Len()))
	r.m.ForEach(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// RuleLabelMap is a concurrent, hot-swappable RuleLabelResolver.
type RuleLabelMap struct {
	m *haxmap.Map[string, string]
}

// NewRuleLabelMap creates an empty RuleLabelMap.
func NewRuleLabelMap() *RuleLabelMap {
	return &RuleLabelMap{m: haxmap.New[string, string]()}
}

// Resolve implements RuleLabelResolver.
func (r *RuleLabelMap) Resolve(ruleID string) (string, bool) {
	return r.m.Get(ruleID)
}

// Set assigns or updates the label for a rule identifier.
func (r *RuleLabelMap) Set(ruleID, label string) {
	r.m.Set(ruleID, label)
}

// Delete removes a mapping.
func (r *RuleLabelMap) Delete(ruleID string) {
	r.m.Del(ruleID)
}

// Snapshot copies the current mappings into a plain map, for the same
// reason as InterfaceMap.Snapshot.
func (r *RuleLabelMap) Snapshot() map[string]string {
	out := make(map[string]string, int(r.m.Len()))
	r.m.ForEach(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// AliasMap is a concurrent, hot-swappable AliasResolver.
type AliasMap struct {
	m *haxmap.Map[string, string]
}

// NewAliasMap creates an empty AliasMap.
func NewAliasMap() *AliasMap {
	return &AliasMap{m: haxmap.New[string, string]()}
}

// Resolve implements AliasResolver.
func (r *AliasMap) Resolve(alias string) (string, bool) {
	return r.m.Get(alias)
}

// Set assigns or updates an alias's expansion.
func (r *AliasMap) Set(alias, expansion string) {
	r.m.Set(alias, expansion)
}

// Delete removes a mapping.
func (r *AliasMap) Delete(alias string) {
	r.m.Del(alias)
}

// Snapshot copies the current mappings into a plain map, for the same
// reason as InterfaceMap.Snapshot.
func (r *AliasMap) Snapshot() map[string]string {
	out := make(map[string]string, int(r.m.Len()))
	r.m.ForEach(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}
