package layer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/scoring"
)

const (
	DefaultGoalMaxDepth            = 3
	DefaultGoalMaxBranching        = 4
	DefaultGoalPerturbation        = 0.1
	DefaultConvergenceThreshold    = 0.75
	DefaultEscalationThreshold     = 0.8
	DefaultRoleAgreementTolerance  = 0.2
	DefaultVoteShareForResolution  = 0.6
	defaultWeakBeliefConfidence    = 0.4
	convergencePrimaryWeight       = 0.4
	convergenceResolutionWeight    = 0.4
	convergenceRoleAgreementWeight = 0.2
)

// GoalPlanningConfig tunes goal planning. Zero values are replaced by the
// defaults in NewGoalPlanning.
type GoalPlanningConfig struct {
	MaxDepth             int
	MaxBranching         int
	Perturbation         float64
	ConvergenceThreshold float64
	EscalationThreshold  float64
	RoleWeights          domain.RoleWeights
	Emergence            scoring.EmergenceScorer
}

func DefaultGoalPlanningConfig() GoalPlanningConfig {
	return GoalPlanningConfig{
		MaxDepth:             DefaultGoalMaxDepth,
		MaxBranching:         DefaultGoalMaxBranching,
		Perturbation:         DefaultGoalPerturbation,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		EscalationThreshold:  DefaultEscalationThreshold,
		RoleWeights:          domain.DefaultRoleWeights(),
		Emergence:            scoring.DefaultBlendedEmergence(),
	}
}

// GoalPlanning is layer 7: it expands a goal tree, measures drift and goal
// entropy, arbitrates conflicts by weighted role vote, and scores convergence.
type GoalPlanning struct {
	cfg GoalPlanningConfig
}

func NewGoalPlanning(cfg GoalPlanningConfig) *GoalPlanning {
	def := DefaultGoalPlanningConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxBranching <= 0 {
		cfg.MaxBranching = def.MaxBranching
	}
	if cfg.Perturbation < 0 {
		cfg.Perturbation = 0
	}
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = def.EscalationThreshold
	}
	if cfg.RoleWeights == nil {
		cfg.RoleWeights = def.RoleWeights
	}
	if cfg.Emergence == nil {
		cfg.Emergence = def.Emergence
	}
	return &GoalPlanning{cfg: cfg}
}

func (g *GoalPlanning) ID() domain.LayerID { return domain.LayerGoalPlanning }
func (g *GoalPlanning) Name() string { return "goal_planning" }

func (g *GoalPlanning) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	next := rc.Clone()
	rng := passRand(rc, g.ID())

	goals := g.expandGoals(next)
	pass := max(1, next.PassNumber)
	scale := g.cfg.Perturbation / float64(pass)
	for i := range goals {
		goals[i].Probability = scoring.Clamp01(goals[i].Probability + (rng.Float64()*2-1)*scale)
	}
	next.Goals = goals

	drift := scoring.ConfidenceDrift(next.ConfidenceHistory)
	normDrift := 0.0
	if n := len(next.ConfidenceHistory); n > 0 {
		if dims := len(next.ConfidenceHistory[n-1]); dims > 0 {
			normDrift = scoring.Clamp01(drift / math.Sqrt(float64(dims)))
		}
	}

	probs := make([]float64, len(goals))
	for i, goal := range goals {
		probs[i] = goal.Probability
	}
	goalEntropy := scoring.NormalizedEntropy(probs)

	g.detectGoalConflicts(next)
	total, resolved := g.arbitrate(next)
	resolutionRate := 1.0
	if total > 0 {
		resolutionRate = float64(resolved) / float64(total)
	}
	if total > resolved {
		next.AddFlag(FlagGoalConflict)
	}

	agreement := roleAgreement(next.Roles)
	primary := 0.0
	if len(goals) > 0 {
		primary = goals[0].Probability
	}
	convergence := scoring.Clamp01(convergencePrimaryWeight*primary +
		convergenceResolutionWeight*resolutionRate +
		convergenceRoleAgreementWeight*agreement)

	emergence := g.cfg.Emergence.Emergence(scoring.EmergenceInput{
		NormalizedEntropy: goalEntropy,
		NormalizedDrift:   normDrift,
		ConvergenceScore:  convergence,
	})
	if emergence > g.cfg.EscalationThreshold {
		next.EscalateAmbiguity = true
		next.AddFlag(FlagAmbiguityEscalation)
	}

	next.SetMetric("goal_entropy", goalEntropy)
	next.SetMetric("confidence_drift", drift)
	next.SetMetric("convergence", convergence)

	rep := newReport(g, domain.LayerCompleted, convergence)
	rep.Metrics["goals"] = float64(len(goals))
	rep.Metrics["goal_entropy"] = goalEntropy
	rep.Metrics["drift"] = drift
	rep.Metrics["conflicts"] = float64(total)
	rep.Metrics["resolved"] = float64(resolved)
	rep.Metrics["role_agreement"] = agreement
	rep.Metrics["convergence"] = convergence
	rep.Metrics["emergence"] = emergence
	if convergence >= g.cfg.ConvergenceThreshold {
		rep.Notes = append(rep.Notes, "converged")
	}
	if next.EscalateAmbiguity {
		rep.Notes = append(rep.Notes, "ambiguity escalated")
	}
	return next, rep, nil
}

// expandGoals builds the tree breadth first: the query at depth 0, one goal
// per role at depth 1, and the role's belief keywords at depth 2.
func (g *GoalPlanning) expandGoals(rc *domain.ReasoningContext) []domain.Goal {
	root := domain.Goal{
		Content:       "resolve " + rc.Query,
		Probability:   scoring.Clamp01(rc.Confidence),
		Depth:         0,
		TemporalScope: "session",
	}
	root.ID = goalID(root.Content, 0)
	goals := []domain.Goal{root}
	if g.cfg.MaxDepth < 2 {
		return goals
	}

	roles := make([]string, 0, len(rc.Roles))
	for r := range rc.Roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	if len(roles) > g.cfg.MaxBranching {
		roles = roles[:g.cfg.MaxBranching]
	}

	for _, role := range roles {
		out := rc.Roles[role]
		child := domain.Goal{
			Content:       fmt.Sprintf("address %s perspective", role),
			Probability:   scoring.Clamp01(out.Confidence),
			Depth:         1,
			ParentID:      root.ID,
			TemporalScope: "pass",
		}
		child.ID = goalID(child.Content, 1)
		goals = append(goals, child)
		if g.cfg.MaxDepth < 3 {
			continue
		}

		seen := make(map[string]bool)
		var leaves []domain.Goal
		for _, id := range out.BeliefIDs {
			idx := rc.BeliefByID(id)
			if idx < 0 {
				continue
			}
			b := rc.Beliefs[idx]
			for _, kw := range scoring.Keywords(b.Content) {
				if seen[kw] || len(leaves) >= g.cfg.MaxBranching {
					continue
				}
				seen[kw] = true
				leaf := domain.Goal{
					Content:       "clarify " + kw,
					Probability:   scoring.Clamp01(b.Confidence),
					Depth:         2,
					ParentID:      child.ID,
					TemporalScope: "immediate",
				}
				leaf.ID = goalID(leaf.Content+"/"+role, 2)
				leaves = append(leaves, leaf)
			}
		}
		goals = append(goals, leaves...)
	}
	return goals
}

func goalID(content string, depth int) string {
	return fmt.Sprintf("g%d-%s", depth, scoring.AnchorKey("goal", content)[:8])
}

// detectGoalConflicts records a conflict for each leaf goal undermined by a
// weak or contradicting belief on the same topic.
func (g *GoalPlanning) detectGoalConflicts(rc *domain.ReasoningContext) {
	existing := make(map[string]bool, len(rc.Conflicts))
	for _, c := range rc.Conflicts {
		existing[c.LeftID+"|"+c.RightID] = true
	}
	for _, goal := range rc.Goals {
		if goal.Depth == 0 {
			continue
		}
		for _, b := range rc.Beliefs {
			if b.ReconciledWith != "" || !scoring.SharesTopic(goal.Content, b.Content) {
				continue
			}
			weak := b.Confidence < defaultWeakBeliefConfidence
			if !weak && !scoring.Contradicts(goal.Content, b.Content) {
				continue
			}
			key := goal.ID + "|" + b.ID
			if existing[key] {
				continue
			}
			existing[key] = true
			rc.Conflicts = append(rc.Conflicts, domain.Conflict{
				ID:       fmt.Sprintf("c-%d", len(rc.Conflicts)+1),
				Kind:     domain.ConflictGoalBelief,
				LeftID:   goal.ID,
				RightID:  b.ID,
				Severity: scoring.Clamp01(goal.Probability - b.Confidence + 0.5),
			})
		}
	}
}

// arbitrate settles unresolved conflicts by weighted role vote. A side wins
// once it holds DefaultVoteShareForResolution of the cast weight.
func (g *GoalPlanning) arbitrate(rc *domain.ReasoningContext) (total, resolved int) {
	roles := make([]string, 0, len(rc.Roles))
	for r := range rc.Roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)

	for i := range rc.Conflicts {
		c := &rc.Conflicts[i]
		total++
		if c.Resolved {
			resolved++
			continue
		}
		left, leftSource := itemContent(rc, c.LeftID)
		right, rightSource := itemContent(rc, c.RightID)

		var leftW, rightW float64
		for _, role := range roles {
			out := rc.Roles[role]
			ls := scoring.ContentOverlap(out.Response, left)
			rs := scoring.ContentOverlap(out.Response, right)
			if leftSource == role {
				ls++
			}
			if rightSource == role {
				rs++
			}
			w := g.cfg.RoleWeights.Weight(role) * out.Confidence
			switch {
			case ls > rs:
				leftW += w
			case rs > ls:
				rightW += w
			}
		}
		cast := leftW + rightW
		if cast <= 0 {
			continue
		}
		winner := c.LeftID
		share := leftW / cast
		if rightW > leftW {
			winner = c.RightID
			share = rightW / cast
		}
		if share >= DefaultVoteShareForResolution {
			c.Resolved = true
			c.Resolution = "vote:" + winner
			resolved++
		}
	}
	return total, resolved
}

func itemContent(rc *domain.ReasoningContext, id string) (content, source string) {
	if idx := rc.BeliefByID(id); idx >= 0 {
		return rc.Beliefs[idx].Content, rc.Beliefs[idx].Source
	}
	for _, goal := range rc.Goals {
		if goal.ID == id {
			return goal.Content, ""
		}
	}
	return "", ""
}

// roleAgreement is the share of role pairs whose confidences differ by less
// than DefaultRoleAgreementTolerance. A single role agrees with itself.
func roleAgreement(roles map[string]domain.RoleOutput) float64 {
	confs := make([]float64, 0, len(roles))
	for _, r := range roles {
		confs = append(confs, r.Confidence)
	}
	if len(confs) < 2 {
		return 1
	}
	pairs, agree := 0, 0
	for i := 0; i < len(confs); i++ {
		for j := i + 1; j < len(confs); j++ {
			pairs++
			if math.Abs(confs[i]-confs[j]) < DefaultRoleAgreementTolerance {
				agree++
			}
		}
	}
	return float64(agree) / float64(pairs)
}
