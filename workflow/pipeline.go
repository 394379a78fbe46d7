// Package workflow drafts municipal proposals from citizen complaints.
//
// A run walks a graph of stages: classify the complaint, then either the
// zoning path (zoning, bylaw policies, nearby places, ranking, planned
// research with an evaluation loop) or the web path (direct research with
// its own evaluation loop), and finally write the proposal.
//
//	determine_research_path ─┬─> check_zoning -> get_policies -> find_pois -> rank_pois
//	                         │       -> create_research_plan -> conduct_research -> evaluate_research
//	                         │              ^                                         │
//	                         │              └──────────── needs more ─────────────────┤
//	                         └─> web_research -> evaluate_web_research ──────────────>├─> write_proposal -> end
//	                                   ^                   │
//	                                   └── needs more ─────┘
package workflow

// NewGraphFor wires the proposal graph over s.
func NewGraphFor(s *Stages) *Graph {
	return NewGraph(StageDetermineResearchPath).
		AddStage(StageDetermineResearchPath, s.DetermineResearchPath).
		AddStage(StageCheckZoning, s.CheckZoning).
		AddStage(StageGetPolicies, s.GetPolicies).
		AddStage(StageFindPOIs, s.FindPOIs).
		AddStage(StageRankPOIs, s.RankPOIs).
		AddStage(StageCreateResearchPlan, s.CreateResearchPlan).
		AddStage(StageConductResearch, s.ConductResearch).
		AddStage(StageEvaluateResearch, s.EvaluateResearch).
		AddStage(StageWebResearch, s.WebResearch).
		AddStage(StageEvaluateWebResearch, s.EvaluateWebResearch).
		AddStage(StageWriteProposal, s.WriteProposal).
		AddConditionalEdges(StageDetermineResearchPath, map[string]string{
			StageCheckZoning: StageCheckZoning,
			StageWebResearch: StageWebResearch,
		}).
		AddEdge(StageCheckZoning, StageGetPolicies).
		AddEdge(StageGetPolicies, StageFindPOIs).
		AddEdge(StageFindPOIs, StageRankPOIs).
		AddEdge(StageRankPOIs, StageCreateResearchPlan).
		AddEdge(StageCreateResearchPlan, StageConductResearch).
		AddEdge(StageConductResearch, StageEvaluateResearch).
		AddConditionalEdges(StageEvaluateResearch, map[string]string{
			StageCreateResearchPlan: StageCreateResearchPlan,
			StageWriteProposal:      StageWriteProposal,
		}).
		AddEdge(StageWebResearch, StageEvaluateWebResearch).
		AddConditionalEdges(StageEvaluateWebResearch, map[string]string{
			StageWebResearch:   StageWebResearch,
			StageWriteProposal: StageWriteProposal,
		}).
		AddEdge(StageWriteProposal, End)
}

// New builds the stages from deps and compiles the proposal graph.
func New(deps Deps, opts ...EngineOption) (*Engine, error) {
	s, err := NewStages(deps)
	if err != nil {
		return nil, err
	}
	opts = append([]EngineOption{WithProgress(s.d.Progress)}, opts...)
	return NewGraphFor(s).Compile(opts...)
}
