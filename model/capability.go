// Package model provides capability-based model selection.
// Workflow stages ask for a capability (routing, research, writing) and the
// registry resolves it to configured endpoints with a fallback chain.
package model

import "sort"

// Capability names the kind of work a generation call does.
type Capability string

const (
	// CapabilityRouting is for short classification answers that pick the next stage.
	CapabilityRouting Capability = "routing"

	// CapabilityResearch is for planning searches and judging research sufficiency.
	CapabilityResearch Capability = "research"

	// CapabilityWriting is for long-form output: policy summaries, rankings, proposals.
	CapabilityWriting Capability = "writing"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// StageCapabilities maps workflow stages to the capability their model call uses.
var StageCapabilities = map[string]Capability{
	"determine_research_path": CapabilityRouting,
	"get_policies":            CapabilityWriting,
	"find_pois":               CapabilityFast,
	"rank_pois":               CapabilityWriting,
	"create_research_plan":    CapabilityResearch,
	"evaluate_research":       CapabilityResearch,
	"web_research":            CapabilityResearch,
	"evaluate_web_research":   CapabilityResearch,
	"write_proposal":          CapabilityWriting,
}

// CapabilityForStage returns the capability for a stage, CapabilityFast when unknown.
func CapabilityForStage(stage string) Capability {
	if c, ok := StageCapabilities[stage]; ok {
		return c
	}
	return CapabilityFast
}

// IsValid reports whether c is one of the known capabilities.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityRouting, CapabilityResearch, CapabilityWriting, CapabilityFast:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts s to a Capability, returning "" for unknown values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}

// AllCapabilities returns the known capabilities in sorted order.
func AllCapabilities() []Capability {
	all := []Capability{CapabilityRouting, CapabilityResearch, CapabilityWriting, CapabilityFast}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}
