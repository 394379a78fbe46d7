// Package prompts builds the model prompts for each workflow stage.
// Stages own routing; prompts only ask for the markers stages look for.
package prompts

import "fmt"

// ResearchPath asks whether a complaint needs zoning analysis or web research only.
func ResearchPath(summary, solutionOutline string) string {
	return fmt.Sprintf(`Given the following information about a complaint and a brief solution outline:

Complaint: %s
Solution outline: %s

Determine if this requires:
1. Zoning analysis (for location-specific development proposals)
2. Web research ONLY (for proposals that are not tied to a location and do not involve land use)

Consider:
- Is this about a specific location or development?
- Does it involve land use or building regulations?

Default to zoning analysis unless it is clearly inapplicable.

Reply with either:
"NEEDS_ZONING" or "NEEDS_WEB_RESEARCH"
`, summary, solutionOutline)
}
