package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/civicdraft/places"
	"github.com/c360studio/civicdraft/search"
	"github.com/c360studio/civicdraft/zoning"
)

// Proposal metadata constants.
const (
	ProposalStatusDraft = "DRAFT"
	ProposalVersion     = "1.0"
	ProposalDepartment  = "City Planning"
)

// RankingErrorNoPOIs is recorded when rank_pois has nothing to rank.
const RankingErrorNoPOIs = "No POIs provided"

// Coordinates is a latitude/longitude pair, encoded as [lat, lon].
type Coordinates struct {
	Lat float64
	Lon float64
}

// MarshalJSON implements json.Marshaler.
func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lon})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coordinates must be [lat, lon]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("coordinates must have 2 values, got %d", len(pair))
	}
	c.Lat, c.Lon = pair[0], pair[1]
	return nil
}

// ZoningPolicies is the plain-language summary of a bylaw section.
type ZoningPolicies struct {
	ZoneType     string `json:"zone_type"`
	BylawSection string `json:"bylaw_section"`
	Policies     string `json:"policies"`
	Source       string `json:"source"`
}

// ResearchResult is the outcome of one executed search query.
type ResearchResult struct {
	Query   string          `json:"query"`
	Answer  string          `json:"answer,omitempty"`
	Results []search.Result `json:"results"`
	Sources []string        `json:"sources"`
}

// ResearchPlan is the generated set of topics and queries.
type ResearchPlan struct {
	Topics        []string `json:"topics"`
	SearchQueries []string `json:"search_queries"`
}

// RankedCandidate is a POI annotated with the zone it sits in.
type RankedCandidate struct {
	places.POI
	Zone zoning.Zone `json:"zoning"`
}

// ProposalMetadata describes a drafted proposal.
type ProposalMetadata struct {
	GeneratedAt    string `json:"date_generated"`
	Status         string `json:"status"`
	Version        string `json:"version"`
	Department     string `json:"department"`
	ZoneType       string `json:"zone_type"`
	BylawReference string `json:"bylaw_reference"`
}

// Proposal is the final drafted document.
type Proposal struct {
	Proposal string           `json:"proposal"`
	Metadata ProposalMetadata `json:"metadata"`
}

// Degradation records a stage-local failure that was absorbed.
type Degradation struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// State is threaded through every stage of one run. The engine owns it for
// the duration of Run; stages mutate it in place.
type State struct {
	Location        string       `json:"location"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	Summary         string       `json:"summary"`
	SolutionOutline string       `json:"solution_outline"`
	NextAction      string       `json:"next_action"`

	ZoningInfo     *zoning.Zone      `json:"zoning_info,omitempty"`
	ZoningPolicies *ZoningPolicies   `json:"zoning_policies,omitempty"`
	POIs           []places.POI      `json:"pois"`
	RankedPOIs     string            `json:"ranked_pois,omitempty"`
	RankedDetail   []RankedCandidate `json:"ranked_detail,omitempty"`
	RankingError   string            `json:"ranking_error,omitempty"`

	ResearchResults  []ResearchResult `json:"research_results"`
	ResearchPlan     ResearchPlan     `json:"research_plan"`
	ResearchFeedback string           `json:"research_feedback,omitempty"`

	Proposal     *Proposal     `json:"proposal,omitempty"`
	Degradations []Degradation `json:"degradations,omitempty"`
}

// ErrLocationRequired is returned by Validate for an empty location.
var ErrLocationRequired = errors.New("location is required")

// Validate checks the caller-supplied fields of a new state.
func (s *State) Validate() error {
	if strings.TrimSpace(s.Location) == "" {
		return ErrLocationRequired
	}
	return nil
}

// Degrade appends a degradation record.
func (s *State) Degrade(stage, reason string) {
	s.Degradations = append(s.Degradations, Degradation{Stage: stage, Reason: reason})
}

// ZoneOr returns the zoning info, or def when zoning never ran.
func (s *State) ZoneOr(def zoning.Zone) zoning.Zone {
	if s.ZoningInfo != nil {
		return *s.ZoningInfo
	}
	return def
}

// Sources returns every distinct research source URL in the order found.
func (s *State) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.ResearchResults {
		for _, src := range r.Sources {
			if !seen[src] {
				seen[src] = true
				out = append(out, src)
			}
		}
	}
	return out
}
