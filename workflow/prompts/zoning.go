package prompts

import (
	"fmt"
	"strings"
)

// ZoningPolicy asks for a plain-language summary of scraped bylaw text.
func ZoningPolicy(zoneType, bylawSection, bylawText string) string {
	return fmt.Sprintf(`You are a zoning policy researcher for the City of Toronto.

Based on the following zoning bylaw text (section %s) for zone type %s,
extract the key policies and restrictions:

%s

Summarize the most important regulations in a clear, concise format.
`, bylawSection, zoneType, bylawText)
}

// ZoningPolicyFromZone is used when the bylaw text could not be retrieved.
func ZoningPolicyFromZone(zoneType, bylawSection string) string {
	return fmt.Sprintf(`You are a zoning policy researcher for the City of Toronto.

The text of Toronto Zoning By-law 569-2013 section %s could not be retrieved.
From general knowledge of the by-law, summarize the key policies and
restrictions that usually apply to zone type %s.

Say plainly that the summary was produced without the bylaw text.
`, bylawSection, zoneType)
}

// POIQuery asks for one natural-language place search query.
func POIQuery(location, summary, solutionOutline string) string {
	return fmt.Sprintf(`You are helping plan a municipal proposal in %s, Toronto.

Complaint: %s
Solution outline: %s

Write ONE general search query for ONE type of public location that would
suit this solution (for example public spaces, parks or community centres).
The query will be sent to a map search engine. Write it in English and
respond with the query text only.
`, location, summary, solutionOutline)
}

// Candidate is a located POI with the zone it currently sits in.
type Candidate struct {
	Name           string
	Address        string
	CurrentZone    string
	CurrentChapter string
	Type           string
}

// Target is the zone the proposal is aimed at.
type Target struct {
	ZoneType     string
	BylawChapter string
	BylawSection string
}

// RankPOIs asks for the best three candidates with a justification each.
func RankPOIs(target Target, summary, solutionOutline string, candidates []Candidate) string {
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. name: %s; address: %s; current_zone: %s; current_chapter: %s; type: %s\n",
			i+1, c.Name, c.Address, c.CurrentZone, c.CurrentChapter, c.Type)
	}

	return fmt.Sprintf(`You are a zoning expert for the City of Toronto and part of a team drafting a
municipal proposal. Analyze these locations for compatibility with the target zone.

Issue: %s
Solution outline: %s

Target Zone Information:
- Zone Type: %s
- Bylaw Chapter: %s
- Bylaw Section: %s

Potential Locations:
%s
Return exactly 3 locations (or fewer if fewer are available) that best fit the
proposal. For each give the address, name, type and a justification.
`, summary, solutionOutline, target.ZoneType, target.BylawChapter, target.BylawSection, list.String())
}
