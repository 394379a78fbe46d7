package prompts

import (
	"fmt"
	"strings"
)

// ProposalInput is the final state rendered for the proposal writer.
type ProposalInput struct {
	Location        string
	Summary         string
	SolutionOutline string
	ZoneType        string
	BylawChapter    string
	BylawSection    string
	Policies        string
	RankedPOIs      string
	Research        string
	Sources         []string
}

const proposalSections = `Write a formal proposal that includes:
1. Executive Summary (100 words)
2. Background and Context (150 words)
3. Proposed Solutions%s (200 words)
4. Implementation Timeline (50 words)
5. Next Steps (50 words)
6. References

Requirements:
- Use the research findings above as evidence throughout.
- Cite every source listed above at least once, and list all of them under References.
- Do not use tables. Use headings, paragraphs and bullet lists only.
`

func sourceList(sources []string) string {
	if len(sources) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s)
	}
	return b.String()
}

// LocationProposal is used when ranked locations are available.
func LocationProposal(in ProposalInput) string {
	return fmt.Sprintf(`You are a municipal government proposal writer for the City of Toronto. Create a formal proposal using the following information.

Complaint: %s
Location: %s
Solution outline: %s

Zoning Information:
- Zone Type: %s
- Bylaw Chapter: %s
- Bylaw Section: %s

Relevant Policies:
%s

Recommended Locations:
%s

Research Findings:
%s

Sources:
%s
`+proposalSections, in.Summary, in.Location, in.SolutionOutline,
		in.ZoneType, in.BylawChapter, in.BylawSection, in.Policies, in.RankedPOIs,
		in.Research, sourceList(in.Sources), " with the specific recommended locations")
}

// GeneralProposal is used when no ranked locations exist.
func GeneralProposal(in ProposalInput) string {
	return fmt.Sprintf(`You are a municipal government proposal writer for the City of Toronto. Create a formal proposal using the following information.

Complaint: %s
Location: %s
Solution outline: %s

Research Findings:
%s

Sources:
%s
`+proposalSections, in.Summary, in.Location, in.SolutionOutline,
		in.Research, sourceList(in.Sources), "")
}
