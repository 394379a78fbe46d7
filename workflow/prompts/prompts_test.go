package prompts

import (
	"strings"
	"testing"
)

func TestResearchPath(t *testing.T) {
	prompt := ResearchPath("Homeless encampment near Niagara St", "Build shelters")

	for _, want := range []string{"NEEDS_ZONING", "NEEDS_WEB_RESEARCH", "Default to zoning analysis", "Niagara St", "Build shelters"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("ResearchPath missing %q", want)
		}
	}
}

func TestRankPOIs(t *testing.T) {
	prompt := RankPOIs(
		Target{ZoneType: "CR", BylawChapter: "40", BylawSection: "40.10"},
		"summary", "outline",
		[]Candidate{{Name: "Trinity Bellwoods Park", Address: "790 Queen St W", CurrentZone: "OR", CurrentChapter: "90", Type: "park"}},
	)

	for _, want := range []string{"exactly 3", "Zone Type: CR", "Bylaw Section: 40.10", "name: Trinity Bellwoods Park", "current_zone: OR", "justification"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("RankPOIs missing %q", want)
		}
	}
}

func TestResearchPlan(t *testing.T) {
	base := ResearchPlan(PlanInput{Location: "Niagara", Summary: "s", SolutionOutline: "o"})
	if !strings.Contains(base, "search_queries") || !strings.Contains(base, "topics") {
		t.Error("ResearchPlan should name both JSON keys")
	}
	if strings.Contains(base, "Ranked Locations") {
		t.Error("ResearchPlan without zoning should not include the zoning block")
	}
	if strings.Contains(base, "gaps") {
		t.Error("ResearchPlan without feedback should not mention gaps")
	}

	full := ResearchPlan(PlanInput{Location: "Niagara", Zoning: `{"zone_type":"CR"}`, RankedPOIs: "1. Park", Feedback: "no cost data"})
	for _, want := range []string{"Ranked Locations: 1. Park", "no cost data", `"zone_type":"CR"`} {
		if !strings.Contains(full, want) {
			t.Errorf("ResearchPlan missing %q", want)
		}
	}
}

func TestEvaluatePromptsAreLenient(t *testing.T) {
	zoning := EvaluateResearch(EvalInput{Location: "Niagara"})
	if !strings.Contains(zoning, "lenient") || !strings.Contains(zoning, "6. Economic impact") {
		t.Error("EvaluateResearch should list six criteria and ask for leniency")
	}

	web := EvaluateWebResearch("s", "o", "r")
	if !strings.Contains(web, "4. Expected outcomes") || strings.Contains(web, "5.") {
		t.Error("EvaluateWebResearch should list exactly four criteria")
	}
}

func TestProposalTemplates(t *testing.T) {
	in := ProposalInput{
		Location:   "Niagara",
		ZoneType:   "CR",
		RankedPOIs: "1. Trinity Bellwoods Park",
		Research:   "Shelter occupancy is 98%",
		Sources:    []string{"https://www.toronto.ca/shelter", "https://example.org/study"},
	}

	loc := LocationProposal(in)
	gen := GeneralProposal(in)

	for name, p := range map[string]string{"location": loc, "general": gen} {
		for _, want := range []string{"Cite every source", "Do not use tables", "[2] https://example.org/study", "Shelter occupancy is 98%"} {
			if !strings.Contains(p, want) {
				t.Errorf("%s proposal missing %q", name, want)
			}
		}
		if strings.Contains(p, "%!") {
			t.Errorf("%s proposal has a formatting error", name)
		}
	}

	if !strings.Contains(loc, "Trinity Bellwoods Park") || !strings.Contains(loc, "recommended locations") {
		t.Error("location proposal should include ranked locations")
	}
	if strings.Contains(gen, "Trinity Bellwoods Park") {
		t.Error("general proposal should not include ranked locations")
	}
	if !strings.Contains(GeneralProposal(ProposalInput{}), "(none)") {
		t.Error("empty source list should render as (none)")
	}
}
