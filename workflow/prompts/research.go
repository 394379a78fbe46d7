package prompts

import (
	"fmt"
	"strings"
)

// JSONOnlySystem pins structured-output requests to a single JSON document.
const JSONOnlySystem = "You are a research planning assistant. Respond with a single valid JSON document and nothing else: no prose, no markdown fences."

// researchCriteria are the topics a zoning-path plan and its evaluation cover.
var researchCriteria = []string{
	"Demographics in the area.",
	"Relevant data about main issues in the complaint.",
	"Similar projects or initiatives in Toronto.",
	"Studies in Toronto related to the issue.",
	"Environmental impact in the area.",
	"Economic impact in the area.",
}

// webCriteria are the topics a web-only evaluation checks.
var webCriteria = []string{
	"Evidence of the problem in Toronto.",
	"Similar programs or initiatives in Toronto or other cities.",
	"Costs or funding sources.",
	"Expected outcomes or impact.",
}

func numbered(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return b.String()
}

// PlanInput is the state snapshot a research plan is built from.
type PlanInput struct {
	Location        string
	Summary         string
	SolutionOutline string
	Zoning          string
	Policies        string
	RankedPOIs      string
	PriorResearch   string
	Feedback        string
}

// ResearchPlan asks for {topics, search_queries}.
func ResearchPlan(in PlanInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Imagine you are a research planner for a municipal proposal that aims to address the following complaint.

Complaint: %s
Location: %s, Toronto, Canada
Rough solution outline: %s
`, in.Summary, in.Location, in.SolutionOutline)

	if in.Zoning != "" || in.RankedPOIs != "" {
		fmt.Fprintf(&b, `
Also consider the following zoning information and potential locations that should be mentioned in the proposal:
Zoning: %s
Policies: %s
Ranked Locations: %s
`, in.Zoning, in.Policies, in.RankedPOIs)
	}
	if in.PriorResearch != "" {
		fmt.Fprintf(&b, "\nCurrent research:\n%s\n", in.PriorResearch)
	}
	if in.Feedback != "" {
		fmt.Fprintf(&b, "\nA reviewer found these gaps in the research so far. Target them:\n%s\n", in.Feedback)
	}

	fmt.Fprintf(&b, `
Write a set of search queries (max. 5) for important topics to gather data and information that will be used in the proposal.

Things you should consider:
%s
Be very specific in your search queries. Format your response as a JSON object with the following keys:
- topics: LIST of topics to research (4 words max per topic)
- search_queries: LIST of search queries based on the topics.
`, numbered(researchCriteria))
	return b.String()
}

// EvalInput is what the research evaluator sees.
type EvalInput struct {
	Location   string
	Zoning     string
	Policies   string
	RankedPOIs string
	Research   string
}

// EvaluateResearch asks whether the gathered research is enough.
func EvaluateResearch(in EvalInput) string {
	return fmt.Sprintf(`Evaluate if we have sufficient information for a strong proposal.

Core Information:
- Location: %s
- Zoning: %s
- Policies: %s
- Ranked Locations: %s

Additional Research:
%s

Do we have some, but not necessarily all, of the following:
%s
Be lenient: partial coverage of these points is acceptable.

Reply with either:
"COMPLETE" if research is sufficient
"NEEDS_MORE_RESEARCH" if additional research is needed, followed by the specific gaps
`, in.Location, in.Zoning, in.Policies, in.RankedPOIs, in.Research, numbered(researchCriteria))
}

// WebQueries asks for a JSON array of 3 to 5 search queries.
func WebQueries(summary, solutionOutline, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are researching a municipal proposal for the City of Toronto.

Complaint: %s
Solution outline: %s
`, summary, solutionOutline)
	if feedback != "" {
		fmt.Fprintf(&b, "\nPrevious research was judged insufficient. Address these gaps:\n%s\n", feedback)
	}
	b.WriteString(`
Write between 3 and 5 specific web search queries that would gather evidence,
comparable programs and costs for this proposal.

Respond with a JSON array of strings only, for example:
["query one", "query two", "query three"]
`)
	return b.String()
}

// EvaluateWebResearch is the simpler four-point sufficiency check.
func EvaluateWebResearch(summary, solutionOutline, research string) string {
	return fmt.Sprintf(`Evaluate if we have sufficient information to write a proposal.

Complaint: %s
Solution outline: %s

Research gathered:
%s

Do we have at least some information on:
%s
Reply with either:
"COMPLETE" if research is sufficient
"NEEDS_MORE_RESEARCH" if additional research is needed, followed by the specific gaps
`, summary, solutionOutline, research, numbered(webCriteria))
}
