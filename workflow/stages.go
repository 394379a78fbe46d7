package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/civicdraft/bylaw"
	"github.com/c360studio/civicdraft/llm"
	"github.com/c360studio/civicdraft/model"
	"github.com/c360studio/civicdraft/places"
	"github.com/c360studio/civicdraft/progress"
	"github.com/c360studio/civicdraft/search"
	"github.com/c360studio/civicdraft/workflow/prompts"
	"github.com/c360studio/civicdraft/zoning"
)

// Stage names.
const (
	StageDetermineResearchPath = "determine_research_path"
	StageCheckZoning           = "check_zoning"
	StageGetPolicies           = "get_policies"
	StageFindPOIs              = "find_pois"
	StageRankPOIs              = "rank_pois"
	StageCreateResearchPlan    = "create_research_plan"
	StageConductResearch       = "conduct_research"
	StageEvaluateResearch      = "evaluate_research"
	StageWebResearch           = "web_research"
	StageEvaluateWebResearch   = "evaluate_web_research"
	StageWriteProposal         = "write_proposal"
)

// Progress action labels shown to the observer.
const (
	ActionStart              = "Starting proposal research"
	ActionResearchPath       = "Determining research path"
	ActionZoning             = "Checking zoning"
	ActionPolicies           = "Researching zoning policies"
	ActionFindPOIs           = "Finding points of interest"
	ActionRankPOIs           = "Ranking locations"
	ActionPlan               = "Planning research"
	ActionResearch           = "Conducting research"
	ActionEvaluate           = "Evaluating research"
	ActionWebResearch        = "Conducting web research"
	ActionEvaluateWebResults = "Evaluating web research"
	ActionProposal           = "Writing proposal"
)

const (
	maxPlanQueries    = 5
	maxRankedDetail   = 3
	maxSnippetRunes   = 500
	maxFallbackRunes  = 80
	defaultRadius     = 5000
	defaultMaxResults = 10
)

// Timeouts bounds each external call. Zero means no extra bound.
type Timeouts struct {
	LLM    time.Duration
	Search time.Duration
	Zoning time.Duration
	Places time.Duration
	Bylaw  time.Duration
}

// PlaceSearch tunes find_pois.
type PlaceSearch struct {
	City           string
	RadiusMeters   float64
	MaxResults     int
	FallbackCenter places.LatLon
}

// DefaultPlaceSearch returns the Toronto settings.
func DefaultPlaceSearch() PlaceSearch {
	return PlaceSearch{
		City:           "Toronto, Canada",
		RadiusMeters:   defaultRadius,
		MaxResults:     defaultMaxResults,
		FallbackCenter: places.LatLon{Lat: 49.2827, Lon: -79.1207},
	}
}

// Deps are the clients the stages call. LLM and Search are required.
// A nil Zoning resolves every lookup to DefaultZone; a nil Bylaw or
// Places degrades the stages that use them.
type Deps struct {
	LLM          llm.Generator
	Search       search.Searcher
	Zoning       zoning.Lookup
	DefaultZone  zoning.Zone
	Bylaw        bylaw.TextFetcher
	BylawBaseURL string
	Places       places.Searcher
	Geocoder     places.Geocoder
	Progress     progress.Reporter
	PlaceSearch  PlaceSearch
	Timeouts     Timeouts
	Logger       *slog.Logger
	Now          func() time.Time
}

// Stages holds one method per workflow stage. It is shared by concurrent
// runs; all per-run data lives in State and the context.
type Stages struct {
	d Deps
}

// NewStages validates deps and fills defaults.
func NewStages(d Deps) (*Stages, error) {
	if d.LLM == nil {
		return nil, errors.New("language model client is required")
	}
	if d.Search == nil {
		return nil, errors.New("web search client is required")
	}
	if d.DefaultZone == (zoning.Zone{}) {
		d.DefaultZone = zoning.DefaultZone()
	}
	if d.Zoning == nil {
		d.Zoning = zoning.Static(d.DefaultZone)
	}
	if d.BylawBaseURL == "" {
		d.BylawBaseURL = bylaw.DefaultBaseURL
	}
	if d.Progress == nil {
		d.Progress = progress.Nop{}
	}
	if d.PlaceSearch.City == "" {
		d.PlaceSearch.City = DefaultPlaceSearch().City
	}
	if d.PlaceSearch.RadiusMeters <= 0 {
		d.PlaceSearch.RadiusMeters = defaultRadius
	}
	if d.PlaceSearch.MaxResults <= 0 {
		d.PlaceSearch.MaxResults = defaultMaxResults
	}
	if d.PlaceSearch.FallbackCenter == (places.LatLon{}) {
		d.PlaceSearch.FallbackCenter = DefaultPlaceSearch().FallbackCenter
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Stages{d: d}, nil
}

type sessionKey struct{}

// ContextWithSession tags ctx with the progress session id.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the progress session id, or "".
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func (s *Stages) report(ctx context.Context, ev progress.Event) {
	s.d.Progress.Report(ctx, SessionFromContext(ctx), ev)
}

func (s *Stages) degrade(ctx context.Context, st *State, stage, action, reason string) {
	st.Degrade(stage, reason)
	s.d.Logger.Warn("Stage degraded", "stage", stage, "reason", reason)
	s.report(ctx, progress.Success(action, map[string]any{"degraded": reason}))
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *Stages) generate(ctx context.Context, stage string, req llm.GenerateRequest) (string, error) {
	ctx, cancel := bounded(ctx, s.d.Timeouts.LLM)
	defer cancel()
	req.Capability = model.CapabilityForStage(stage).String()
	return s.d.LLM.Generate(ctx, req)
}

func (s *Stages) lookupZone(ctx context.Context, c Coordinates) (zoning.Zone, error) {
	ctx, cancel := bounded(ctx, s.d.Timeouts.Zoning)
	defer cancel()
	return s.d.Zoning.Lookup(ctx, c.Lat, c.Lon)
}

func (s *Stages) search(ctx context.Context, query string) (*search.Response, error) {
	ctx, cancel := bounded(ctx, s.d.Timeouts.Search)
	defer cancel()
	return s.d.Search.Search(ctx, query)
}

// DetermineResearchPath routes to check_zoning when the model answers
// NEEDS_ZONING and to web_research otherwise.
func (s *Stages) DetermineResearchPath(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionResearchPath))

	text, err := s.generate(ctx, StageDetermineResearchPath, llm.GenerateRequest{
		Prompt: prompts.ResearchPath(st.Summary, st.SolutionOutline),
	})
	if err != nil {
		return fmt.Errorf("classify research path: %w", err)
	}

	if _, ok := Classify(text, CaseSensitive, MarkerNeedsZoning); ok {
		st.NextAction = StageCheckZoning
	} else {
		st.NextAction = StageWebResearch
	}

	s.report(ctx, progress.Success(ActionResearchPath, map[string]any{"path": st.NextAction}))
	return nil
}

// CheckZoning resolves the zone at the complaint coordinates. No
// coordinates, no match or a failed lookup all yield the default zone.
func (s *Stages) CheckZoning(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionZoning))

	zone := s.d.DefaultZone
	if st.Coordinates != nil {
		z, err := s.lookupZone(ctx, *st.Coordinates)
		if err != nil {
			s.degrade(ctx, st, StageCheckZoning, ActionZoning, fmt.Sprintf("zoning lookup failed, using default zone: %v", err))
		} else {
			zone = z
		}
	}

	st.ZoningInfo = &zone
	st.NextAction = StageGetPolicies

	s.report(ctx, progress.Success(ActionZoning, map[string]any{
		"zone_type":     zone.ZoneType,
		"bylaw_chapter": zone.BylawChapter,
		"bylaw_section": zone.BylawSection,
	}))
	return nil
}

// GetPolicies summarizes the bylaw section for the zone. Without bylaw
// text the summary is generated from the zone type alone.
func (s *Stages) GetPolicies(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionPolicies))

	zone := st.ZoneOr(s.d.DefaultZone)
	text, err := s.fetchBylaw(ctx, zone.BylawSection)

	var prompt string
	if err != nil {
		s.degrade(ctx, st, StageGetPolicies, ActionPolicies, fmt.Sprintf("bylaw text unavailable: %v", err))
		prompt = prompts.ZoningPolicyFromZone(zone.ZoneType, zone.BylawSection)
	} else {
		prompt = prompts.ZoningPolicy(zone.ZoneType, zone.BylawSection, text)
	}

	summary, err := s.generate(ctx, StageGetPolicies, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("summarize zoning policies: %w", err)
	}

	st.ZoningPolicies = &ZoningPolicies{
		ZoneType:     zone.ZoneType,
		BylawSection: strings.ReplaceAll(zone.BylawSection, ".", "_"),
		Policies:     strings.TrimSpace(summary),
		Source:       bylaw.SourceURL(s.d.BylawBaseURL, zone.BylawSection),
	}
	st.NextAction = StageFindPOIs

	s.report(ctx, progress.Success(ActionPolicies, map[string]any{"source": st.ZoningPolicies.Source}))
	return nil
}

func (s *Stages) fetchBylaw(ctx context.Context, section string) (string, error) {
	if s.d.Bylaw == nil {
		return "", errors.New("bylaw fetcher not configured")
	}
	if section == "" {
		return "", bylaw.ErrEmptySection
	}
	ctx, cancel := bounded(ctx, s.d.Timeouts.Bylaw)
	defer cancel()
	return s.d.Bylaw.Fetch(ctx, section)
}

// FindPOIs asks the model for one place query and runs it near the
// geocoded location. A failed or empty query yields no POIs.
func (s *Stages) FindPOIs(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionFindPOIs))
	st.NextAction = StageRankPOIs
	st.POIs = []places.POI{}

	text, err := s.generate(ctx, StageFindPOIs, llm.GenerateRequest{
		Prompt: prompts.POIQuery(st.Location, st.Summary, st.SolutionOutline),
	})
	query := strings.Trim(strings.TrimSpace(text), "\"'`")
	switch {
	case err != nil:
		s.degrade(ctx, st, StageFindPOIs, ActionFindPOIs, fmt.Sprintf("place query generation failed: %v", err))
		return nil
	case query == "":
		s.degrade(ctx, st, StageFindPOIs, ActionFindPOIs, "place query generation returned nothing")
		return nil
	case s.d.Places == nil:
		s.degrade(ctx, st, StageFindPOIs, ActionFindPOIs, "place search not configured")
		return nil
	}

	center := s.geocode(ctx, st.Location)

	pctx, cancel := bounded(ctx, s.d.Timeouts.Places)
	defer cancel()
	pois, err := s.d.Places.Search(pctx, places.Query{
		Text:         query,
		Center:       center,
		RadiusMeters: s.d.PlaceSearch.RadiusMeters,
		MaxResults:   s.d.PlaceSearch.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("search places: %w", err)
	}
	if pois != nil {
		st.POIs = pois
	}

	s.report(ctx, progress.Success(ActionFindPOIs, map[string]any{"query": query, "count": len(st.POIs)}))
	return nil
}

func (s *Stages) geocode(ctx context.Context, location string) places.LatLon {
	fallback := s.d.PlaceSearch.FallbackCenter
	if s.d.Geocoder == nil {
		return fallback
	}
	ctx, cancel := bounded(ctx, s.d.Timeouts.Places)
	defer cancel()

	address := fmt.Sprintf("%s, %s", location, s.d.PlaceSearch.City)
	ll, err := s.d.Geocoder.Geocode(ctx, address)
	if err != nil {
		s.d.Logger.Info("Geocoding failed, using fallback center", "address", address, "error", err)
		return fallback
	}
	return ll
}

// RankPOIs annotates located POIs with their zone and asks the model for
// the best three. Empty input short-circuits without a model call.
func (s *Stages) RankPOIs(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionRankPOIs))
	st.NextAction = StageCreateResearchPlan

	if len(st.POIs) == 0 {
		st.RankingError = RankingErrorNoPOIs
		s.report(ctx, progress.Success(ActionRankPOIs, map[string]any{"error": RankingErrorNoPOIs}))
		return nil
	}

	var located []RankedCandidate
	for _, poi := range st.POIs {
		if poi.Coordinates == nil {
			continue
		}
		zone, err := s.lookupZone(ctx, Coordinates{Lat: poi.Coordinates.Lat, Lon: poi.Coordinates.Lon})
		if err != nil {
			s.d.Logger.Debug("Skipping POI after zoning lookup failure", "poi", poi.Name, "error", err)
			continue
		}
		located = append(located, RankedCandidate{POI: poi, Zone: zone})
	}
	if len(located) == 0 {
		st.RankingError = RankingErrorNoLocatedPOIs
		s.report(ctx, progress.Success(ActionRankPOIs, map[string]any{"error": RankingErrorNoLocatedPOIs}))
		return nil
	}

	target := st.ZoneOr(s.d.DefaultZone)
	candidates := make([]prompts.Candidate, len(located))
	for i, c := range located {
		candidates[i] = prompts.Candidate{
			Name:           c.Name,
			Address:        c.Address,
			CurrentZone:    c.Zone.ZoneType,
			CurrentChapter: c.Zone.BylawChapter,
			Type:           strings.Join(c.Categories, ", "),
		}
	}

	text, err := s.generate(ctx, StageRankPOIs, llm.GenerateRequest{
		Prompt: prompts.RankPOIs(prompts.Target{
			ZoneType:     target.ZoneType,
			BylawChapter: target.BylawChapter,
			BylawSection: target.BylawSection,
		}, st.Summary, st.SolutionOutline, candidates),
	})
	if err != nil {
		st.RankingError = fmt.Sprintf("ranking failed: %v", err)
		s.degrade(ctx, st, StageRankPOIs, ActionRankPOIs, st.RankingError)
		return nil
	}

	st.RankedPOIs = strings.TrimSpace(text)
	st.RankedDetail = located[:min(len(located), maxRankedDetail)]
	st.RankingError = ""

	s.report(ctx, progress.Success(ActionRankPOIs, map[string]any{"candidates": len(located)}))
	return nil
}

// RankingErrorNoLocatedPOIs is recorded when no POI has coordinates.
const RankingErrorNoLocatedPOIs = "No POIs with coordinates"

// FallbackPlan is the deterministic plan used when the model's plan is unusable.
func FallbackPlan(location string) ResearchPlan {
	loc := strings.TrimSpace(location)
	return ResearchPlan{
		Topics: []string{
			loc + " demographics",
			loc + " community issues",
			"Toronto similar initiatives",
		},
		SearchQueries: []string{
			fmt.Sprintf("%s Toronto demographics and population statistics", loc),
			fmt.Sprintf("%s Toronto community issues and resident concerns", loc),
			fmt.Sprintf("similar municipal initiatives near %s Toronto", loc),
		},
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func validPlan(p ResearchPlan) error {
	if len(cleanList(p.Topics)) == 0 {
		return errors.New("plan has no topics")
	}
	if len(cleanList(p.SearchQueries)) == 0 {
		return errors.New("plan has no search queries")
	}
	return nil
}

// CreateResearchPlan asks for a JSON plan. Any failure uses FallbackPlan.
func (s *Stages) CreateResearchPlan(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionPlan))
	st.NextAction = StageConductResearch

	in := prompts.PlanInput{
		Location:        st.Location,
		Summary:         st.Summary,
		SolutionOutline: st.SolutionOutline,
		RankedPOIs:      st.RankedPOIs,
		PriorResearch:   renderResearch(st.ResearchResults),
		Feedback:        st.ResearchFeedback,
	}
	if st.ZoningInfo != nil {
		in.Zoning = mustJSON(st.ZoningInfo)
	}
	if st.ZoningPolicies != nil {
		in.Policies = st.ZoningPolicies.Policies
	}

	fallback := FallbackPlan(st.Location)
	plan := fallback
	text, err := s.generate(ctx, StageCreateResearchPlan, llm.GenerateRequest{
		Prompt: prompts.ResearchPlan(in),
		System: prompts.JSONOnlySystem,
		Mode:   llm.ModeJSON,
	})
	if err != nil {
		s.degrade(ctx, st, StageCreateResearchPlan, ActionPlan, fmt.Sprintf("research plan generation failed: %v", err))
	} else {
		var reason *FallbackReason
		plan, reason = ParseStructured(text, llm.ExtractJSON, validPlan, fallback)
		if reason != nil {
			s.degrade(ctx, st, StageCreateResearchPlan, ActionPlan, reason.Error())
		}
	}

	plan.Topics = cleanList(plan.Topics)
	plan.SearchQueries = cleanList(plan.SearchQueries)
	if len(plan.SearchQueries) > maxPlanQueries {
		plan.SearchQueries = plan.SearchQueries[:maxPlanQueries]
	}
	st.ResearchPlan = plan

	s.report(ctx, progress.Success(ActionPlan, map[string]any{
		"topics":         plan.Topics,
		"search_queries": plan.SearchQueries,
	}))
	return nil
}

// ConductResearch runs every planned query in order and appends results.
func (s *Stages) ConductResearch(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionResearch))

	if err := s.runQueries(ctx, st, st.ResearchPlan.SearchQueries); err != nil {
		return err
	}
	st.NextAction = StageEvaluateResearch

	s.report(ctx, progress.Success(ActionResearch, map[string]any{"results": len(st.ResearchResults)}))
	return nil
}

func (s *Stages) runQueries(ctx context.Context, st *State, queries []string) error {
	for _, q := range queries {
		resp, err := s.search(ctx, q)
		if err != nil {
			return fmt.Errorf("search %q: %w", q, err)
		}
		st.ResearchResults = append(st.ResearchResults, ResearchResult{
			Query:   q,
			Answer:  resp.Answer,
			Results: resp.Results,
			Sources: resp.Sources(),
		})
	}
	return nil
}

// EvaluateResearch loops back to planning when the model asks for more research.
func (s *Stages) EvaluateResearch(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionEvaluate))

	in := prompts.EvalInput{
		Location:   st.Location,
		RankedPOIs: st.RankedPOIs,
		Research:   renderResearch(st.ResearchResults),
	}
	if st.ZoningInfo != nil {
		in.Zoning = mustJSON(st.ZoningInfo)
	}
	if st.ZoningPolicies != nil {
		in.Policies = st.ZoningPolicies.Policies
	}

	text, err := s.generate(ctx, StageEvaluateResearch, llm.GenerateRequest{Prompt: prompts.EvaluateResearch(in)})
	if err != nil {
		return fmt.Errorf("evaluate research: %w", err)
	}

	s.route(st, text, StageCreateResearchPlan)
	s.report(ctx, progress.Success(ActionEvaluate, map[string]any{"next": st.NextAction}))
	return nil
}

// route sends the run back to retry when text asks for more research.
func (s *Stages) route(st *State, text, retry string) {
	if _, more := Classify(text, CaseInsensitive, MarkerNeedsMoreResearch); more {
		st.ResearchFeedback = strings.TrimSpace(text)
		st.NextAction = retry
		return
	}
	st.NextAction = StageWriteProposal
}

// FallbackWebQueries are used when the model's query list is unusable.
func FallbackWebQueries(summary, solutionOutline string) []string {
	topic := clip(firstNonEmpty(summary, solutionOutline, "community issue"), maxFallbackRunes)
	fix := clip(firstNonEmpty(solutionOutline, summary, "municipal program"), maxFallbackRunes)
	return []string{
		topic + " Toronto",
		fix + " municipal program examples",
		fix + " cost and funding Toronto",
	}
}

func validQueries(q []string) error {
	if len(cleanList(q)) == 0 {
		return errors.New("no search queries")
	}
	return nil
}

// WebResearch generates queries straight from the complaint and runs them.
func (s *Stages) WebResearch(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionWebResearch))

	fallback := FallbackWebQueries(st.Summary, st.SolutionOutline)
	queries := fallback

	// JSON mode constrains providers to objects, so the array is asked for in text mode.
	text, err := s.generate(ctx, StageWebResearch, llm.GenerateRequest{
		Prompt: prompts.WebQueries(st.Summary, st.SolutionOutline, st.ResearchFeedback),
	})
	if err != nil {
		s.degrade(ctx, st, StageWebResearch, ActionWebResearch, fmt.Sprintf("query generation failed: %v", err))
	} else {
		var reason *FallbackReason
		queries, reason = ParseStructured(text, llm.ExtractJSONArray, validQueries, fallback)
		if reason != nil {
			s.degrade(ctx, st, StageWebResearch, ActionWebResearch, reason.Error())
		}
	}

	queries = cleanList(queries)
	if len(queries) > maxPlanQueries {
		queries = queries[:maxPlanQueries]
	}

	if err := s.runQueries(ctx, st, queries); err != nil {
		return err
	}
	st.NextAction = StageEvaluateWebResearch

	s.report(ctx, progress.Success(ActionWebResearch, map[string]any{"queries": queries}))
	return nil
}

// EvaluateWebResearch loops back to web_research when research is thin.
func (s *Stages) EvaluateWebResearch(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionEvaluateWebResults))

	text, err := s.generate(ctx, StageEvaluateWebResearch, llm.GenerateRequest{
		Prompt: prompts.EvaluateWebResearch(st.Summary, st.SolutionOutline, renderResearch(st.ResearchResults)),
	})
	if err != nil {
		return fmt.Errorf("evaluate web research: %w", err)
	}

	s.route(st, text, StageWebResearch)
	s.report(ctx, progress.Success(ActionEvaluateWebResults, map[string]any{"next": st.NextAction}))
	return nil
}

// WriteProposal drafts the final document and ends the run.
func (s *Stages) WriteProposal(ctx context.Context, st *State) error {
	s.report(ctx, progress.Pending(ActionProposal))

	zone := st.ZoneOr(s.d.DefaultZone)
	in := prompts.ProposalInput{
		Location:        st.Location,
		Summary:         st.Summary,
		SolutionOutline: st.SolutionOutline,
		ZoneType:        zone.ZoneType,
		BylawChapter:    zone.BylawChapter,
		BylawSection:    zone.BylawSection,
		RankedPOIs:      st.RankedPOIs,
		Research:        renderResearch(st.ResearchResults),
		Sources:         st.Sources(),
	}
	if st.ZoningPolicies != nil {
		in.Policies = st.ZoningPolicies.Policies
	}

	prompt := prompts.GeneralProposal(in)
	if st.RankedPOIs != "" {
		prompt = prompts.LocationProposal(in)
	}

	text, err := s.generate(ctx, StageWriteProposal, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("write proposal: %w", err)
	}

	st.Proposal = &Proposal{
		Proposal: strings.TrimSpace(text),
		Metadata: ProposalMetadata{
			GeneratedAt:    s.d.Now().UTC().Format(time.RFC3339),
			Status:         ProposalStatusDraft,
			Version:        ProposalVersion,
			Department:     ProposalDepartment,
			ZoneType:       zone.ZoneType,
			BylawReference: zone.BylawReference(),
		},
	}
	st.NextAction = End

	s.report(ctx, progress.Success(ActionProposal, map[string]any{"bylaw_reference": zone.BylawReference()}))
	return nil
}

func renderResearch(results []ResearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "Query %d: %s\n", i+1, r.Query)
		if r.Answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n", r.Answer)
		}
		for _, hit := range r.Results {
			fmt.Fprintf(&b, "- %s (%s): %s\n", hit.Title, hit.URL, clip(hit.Content, maxSnippetRunes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
