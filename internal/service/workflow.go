package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/knowledge"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/scoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Workflow step names, in execution order. Role steps are named
// "role:<role>".
const (
	StepInitialAnalysis      = "initial_analysis"
	StepConflictDetection    = "conflict_detection"
	StepConflictResolution   = "conflict_resolution"
	StepConfidenceAssessment = "confidence_assessment"
	StepConvergence          = "convergence_determination"
	StepFactVerification     = "fact_verification"
	StepCoherenceCheck       = "coherence_check"
	StepFinalSynthesis       = "final_synthesis"
)

const rolePrefix = "role:"

const (
	DefaultDominanceGap        = 0.2
	DefaultLowSupportThreshold = 0.3
	DefaultReinforcementGain   = 0.35
)

// Metric names the workflow writes on the reasoning context.
const (
	MetricWorkflowConfidence = "workflow_confidence"
	MetricFactSupport        = "fact_support"
	MetricCoherence          = "coherence"
)

var errNoRoles = errors.New("no role produced a response")

// stepFunc derives a new context from rc. On error the returned context is
// ignored and the pass continues from rc.
type stepFunc func(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error)

type step struct {
	name string
	run  stepFunc
}

// Workflow is the fixed layer 1-3 sequence run on every pass.
type Workflow struct {
	personas    domain.PersonaSource
	knowledge   domain.KnowledgeRegistry
	model       *scoring.Model
	roleWeights domain.RoleWeights
	metrics     *Metrics
	logger      *zap.Logger

	DominanceGap        float64
	LowSupportThreshold float64
	// ReinforcementGain is the share of a repeated belief's remaining doubt
	// removed each pass it is restated.
	ReinforcementGain float64
}

func NewWorkflow(personas domain.PersonaSource, registry domain.KnowledgeRegistry, model *scoring.Model, weights domain.RoleWeights, logger *zap.Logger) *Workflow {
	if model == nil {
		model = scoring.NewModel()
	}
	if weights == nil {
		weights = domain.DefaultRoleWeights()
	}
	return &Workflow{
		personas:            personas,
		knowledge:           registry,
		model:               model,
		roleWeights:         weights,
		metrics:             NewMetrics(),
		logger:              logger,
		DominanceGap:        DefaultDominanceGap,
		LowSupportThreshold: DefaultLowSupportThreshold,
		ReinforcementGain:   DefaultReinforcementGain,
	}
}

// StepNames lists the steps in the order Run executes them.
func StepNames() []string {
	names := []string{StepInitialAnalysis}
	for _, r := range domain.BaseRoles() {
		names = append(names, rolePrefix+r)
	}
	return append(names,
		StepConflictDetection,
		StepConflictResolution,
		StepConfidenceAssessment,
		StepConvergence,
		StepFactVerification,
		StepCoherenceCheck,
		StepFinalSynthesis,
	)
}

// Run executes every step in order. A failing step is recorded and the next
// step starts from the last good context. Only cancellation stops the run
// early; the remaining steps are then reported as skipped.
func (w *Workflow) Run(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, []domain.StepResult) {
	var results []domain.StepResult

	before := []step{{StepInitialAnalysis, w.initialAnalysis}}
	after := []step{
		{StepConflictDetection, w.detectConflicts},
		{StepConflictResolution, w.resolveConflicts},
		{StepConfidenceAssessment, w.assessConfidence},
		{StepConvergence, w.determineConvergence},
		{StepFactVerification, w.verifyFacts},
		{StepCoherenceCheck, w.checkCoherence},
		{StepFinalSynthesis, w.synthesize},
	}

	rc, results = w.runSteps(ctx, rc, before, results)
	if ctx.Err() == nil {
		var roleResults []domain.StepResult
		rc, roleResults = w.runRoles(ctx, rc)
		results = append(results, roleResults...)
	} else {
		for _, r := range domain.BaseRoles() {
			results = append(results, domain.StepResult{Name: rolePrefix + r, Status: domain.StepSkipped})
		}
	}
	rc, results = w.runSteps(ctx, rc, after, results)
	return rc, results
}

func (w *Workflow) runSteps(ctx context.Context, rc *domain.ReasoningContext, steps []step, results []domain.StepResult) (*domain.ReasoningContext, []domain.StepResult) {
	for _, s := range steps {
		if ctx.Err() != nil {
			results = append(results, domain.StepResult{Name: s.name, Status: domain.StepSkipped})
			continue
		}
		start := time.Now()
		next, err := s.run(ctx, rc)
		res := domain.StepResult{Name: s.name, Duration: time.Since(start)}
		if err != nil {
			res.Status = domain.StepFailed
			res.Error = domain.NewStepFailure(s.name, err).Error()
			w.stepFailed(rc, s.name, err)
		} else {
			res.Status = domain.StepSucceeded
			rc = next
		}
		results = append(results, res)
	}
	return rc, results
}

func (w *Workflow) stepFailed(rc *domain.ReasoningContext, name string, err error) {
	w.metrics.StepFailures.WithLabelValues(name).Inc()
	w.logger.Warn("workflow step failed",
		zap.String("session_id", rc.SessionID),
		zap.Int("pass", rc.PassNumber),
		zap.String("step", name),
		zap.Error(err))
}

func (w *Workflow) initialAnalysis(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	if strings.TrimSpace(rc.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	next := rc.Clone()
	next.Keywords = scoring.Keywords(rc.Query)
	next.SetMetric("keywords", float64(len(next.Keywords)))
	return next, nil
}

type roleResult struct {
	resp     *domain.RoleResponse
	err      error
	duration time.Duration
}

// runRoles asks every base role concurrently against the same snapshot and
// merges the answers in fixed role order, so the result does not depend on
// which goroutine finishes first.
func (w *Workflow) runRoles(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, []domain.StepResult) {
	roles := domain.BaseRoles()
	out := make([]roleResult, len(roles))
	snapshot := rc.Clone()

	var g errgroup.Group
	for i, role := range roles {
		g.Go(func() error {
			start := time.Now()
			resp, err := w.personas.Respond(ctx, role, snapshot.Query, snapshot.Hints)
			if err == nil && resp == nil {
				err = fmt.Errorf("persona %s returned no response", role)
			}
			out[i] = roleResult{resp: resp, err: err, duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	next := rc.Clone()
	results := make([]domain.StepResult, 0, len(roles))
	for i, role := range roles {
		name := rolePrefix + role
		res := domain.StepResult{Name: name, Duration: out[i].duration}
		if out[i].err != nil {
			res.Status = domain.StepFailed
			res.Error = domain.NewStepFailure(name, out[i].err).Error()
			w.stepFailed(rc, name, out[i].err)
			results = append(results, res)
			continue
		}
		mergeRole(next, role, out[i].resp, w.ReinforcementGain)
		res.Status = domain.StepSucceeded
		results = append(results, res)
	}
	return next, results
}

// mergeRole replaces the role's output and its beliefs. A belief repeated from
// an earlier pass keeps its state, is marked reinforced and gains gain·(1−c)
// confidence unless it was reconciled away. The role is then at least as
// confident as its mean reinforced belief.
func mergeRole(rc *domain.ReasoningContext, role string, resp *domain.RoleResponse, gain float64) {
	existing := make(map[string]domain.Belief)
	var kept []domain.Belief
	for _, b := range rc.Beliefs {
		if b.Source == role {
			existing[b.ID] = b
			continue
		}
		kept = append(kept, b)
	}

	out := domain.RoleOutput{
		Role:       role,
		Response:   resp.Content,
		Confidence: scoring.Clamp01(resp.Confidence),
		Flags:      append([]string(nil), resp.Flags...),
	}
	seen := make(map[string]bool)
	var reinforced []float64
	for _, d := range resp.Beliefs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		id := BeliefID(role, d.Content)
		if seen[id] {
			continue
		}
		seen[id] = true
		b, ok := existing[id]
		if ok {
			b.Reinforced = true
			if b.ReconciledWith == "" {
				b.Confidence = scoring.Clamp01(b.Confidence + gain*(1-b.Confidence))
				reinforced = append(reinforced, b.Confidence)
			}
		} else {
			conf := scoring.Clamp01(d.Confidence)
			b = domain.Belief{
				ID:                 id,
				Content:            d.Content,
				Confidence:         conf,
				OriginalConfidence: conf,
				Decay:              1,
				Source:             role,
				Reinforced:         d.Reinforced,
			}
		}
		kept = append(kept, b)
		out.BeliefIDs = append(out.BeliefIDs, id)
	}
	rc.Beliefs = kept
	if len(reinforced) > 0 {
		if m := scoring.Mean(reinforced); m > out.Confidence {
			out.Confidence = m
		}
	}
	if rc.Roles == nil {
		rc.Roles = make(map[string]domain.RoleOutput)
	}
	rc.Roles[role] = out
}

// BeliefID is stable for a role and content so repeated beliefs keep their
// identity across passes.
func BeliefID(role, content string) string {
	return "b-" + role + "-" + scoring.AnchorKey("belief", content)[:10]
}

func (w *Workflow) detectConflicts(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	next := rc.Clone()
	known := make(map[string]bool, len(next.Conflicts))
	for _, c := range next.Conflicts {
		known[c.ID] = true
	}
	found := 0
	for i := 0; i < len(next.Beliefs); i++ {
		a := next.Beliefs[i]
		if a.ReconciledWith != "" {
			continue
		}
		for j := i + 1; j < len(next.Beliefs); j++ {
			b := next.Beliefs[j]
			if b.ReconciledWith != "" || !scoring.Contradicts(a.Content, b.Content) {
				continue
			}
			id := "c-" + a.ID + "-" + b.ID
			if known[id] {
				continue
			}
			known[id] = true
			next.Conflicts = append(next.Conflicts, domain.Conflict{
				ID:       id,
				Kind:     domain.ConflictBeliefBelief,
				LeftID:   a.ID,
				RightID:  b.ID,
				Severity: scoring.Clamp01((a.Confidence + b.Confidence) / 2),
			})
			found++
		}
	}
	next.SetMetric("conflicts_detected", float64(found))
	return next, nil
}

// resolveConflicts settles belief pairs where one side clearly dominates.
// Closer calls are left for the gated layers.
func (w *Workflow) resolveConflicts(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	next := rc.Clone()
	resolved := 0
	for i := range next.Conflicts {
		c := &next.Conflicts[i]
		if c.Resolved || c.Kind != domain.ConflictBeliefBelief {
			continue
		}
		li, ri := next.BeliefByID(c.LeftID), next.BeliefByID(c.RightID)
		if li < 0 || ri < 0 {
			c.Resolved = true
			c.Resolution = "stale"
			resolved++
			continue
		}
		l, r := next.Beliefs[li], next.Beliefs[ri]
		gap := l.Confidence*w.roleWeights.Weight(l.Source) - r.Confidence*w.roleWeights.Weight(r.Source)
		switch {
		case gap >= w.DominanceGap:
			c.Resolved, c.Resolution = true, "dominant:"+l.ID
		case -gap >= w.DominanceGap:
			c.Resolved, c.Resolution = true, "dominant:"+r.ID
		default:
			continue
		}
		resolved++
	}
	next.SetMetric("conflicts_resolved", float64(resolved))
	return next, nil
}

// roleConfidences returns the confidences and weights of the roles present,
// in base role order.
func (w *Workflow) roleConfidences(rc *domain.ReasoningContext) (confs, weights []float64) {
	for _, role := range domain.BaseRoles() {
		out, ok := rc.Roles[role]
		if !ok {
			continue
		}
		confs = append(confs, out.Confidence)
		weights = append(weights, w.roleWeights.Weight(role))
	}
	return confs, weights
}

func (w *Workflow) assessConfidence(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	confs, weights := w.roleConfidences(rc)
	if len(confs) == 0 {
		return nil, errNoRoles
	}
	next := rc.Clone()
	unresolved := next.UnresolvedConflicts()
	next.Confidence = w.model.WorkflowConfidence(confs, weights, unresolved)
	next.Entropy = w.model.PassEntropy(confs, goalEntropy(next.Goals), len(next.Goals) > 0, unresolved)
	next.SetMetric(MetricWorkflowConfidence, next.Confidence)
	return next, nil
}

func goalEntropy(goals []domain.Goal) float64 {
	probs := make([]float64, len(goals))
	for i, g := range goals {
		probs[i] = g.Probability
	}
	return scoring.NormalizedEntropy(probs)
}

func (w *Workflow) determineConvergence(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	if _, ok := rc.Metrics[MetricWorkflowConfidence]; !ok {
		return nil, errors.New("confidence was not assessed")
	}
	next := rc.Clone()
	converged := 0.0
	if rc.Target > 0 && scoring.Reaches(rc.Confidence, rc.Target) {
		converged = 1
	}
	next.SetMetric("workflow_converged", converged)
	return next, nil
}

// verifyFacts consults the knowledge registry. Weak support raises
// hallucination_drift for the next gatekeeper evaluation.
func (w *Workflow) verifyFacts(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	results := w.knowledge.Execute(ctx, domain.LayerWorkflow, rc.SessionID, rc.PassNumber, AlgorithmInputFor(rc))
	support, ok := knowledge.Summary(results)
	if !ok {
		if len(results) == 0 {
			return nil, errors.New("no knowledge algorithm produced a result")
		}
		next := rc.Clone()
		next.SetMetric("fact_checks", float64(len(results)))
		return next, nil
	}
	next := rc.Clone()
	next.SetMetric(MetricFactSupport, support)
	next.SetMetric("fact_checks", float64(len(results)))
	if support < w.LowSupportThreshold {
		next.AddFlag(FlagHallucinationDrift)
	}
	return next, nil
}

// AlgorithmInputFor builds the knowledge algorithm input from a context.
func AlgorithmInputFor(rc *domain.ReasoningContext) domain.AlgorithmInput {
	return domain.AlgorithmInput{
		Query:      rc.Query,
		Keywords:   append([]string(nil), rc.Keywords...),
		Beliefs:    append([]domain.Belief(nil), rc.Beliefs...),
		Goals:      append([]domain.Goal(nil), rc.Goals...),
		Confidence: rc.Confidence,
		Entropy:    rc.Entropy,
	}
}

// checkCoherence scores how settled the belief set is: half from the share of
// conflicts resolved, half from memory alignment.
func (w *Workflow) checkCoherence(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	next := rc.Clone()
	resolvedShare := 1.0
	if n := len(next.Conflicts); n > 0 {
		resolvedShare = 1 - float64(next.UnresolvedConflicts())/float64(n)
	}
	next.Coherence = scoring.Clamp01(0.5*resolvedShare + 0.5*layer.MemoryAlignment(next.Beliefs))
	next.SetMetric(MetricCoherence, next.Coherence)
	return next, nil
}

// synthesize keeps the strongest unreconciled belief per source, ordered by
// confidence.
func (w *Workflow) synthesize(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, error) {
	best := make(map[string]domain.Belief)
	for _, b := range rc.Beliefs {
		if b.ReconciledWith != "" {
			continue
		}
		if cur, ok := best[b.Source]; !ok || b.Confidence > cur.Confidence {
			best[b.Source] = b
		}
	}
	if len(best) == 0 {
		return nil, errors.New("no beliefs to synthesize")
	}
	picked := make([]domain.Belief, 0, len(best))
	for _, b := range best {
		picked = append(picked, b)
	}
	sort.Slice(picked, func(i, j int) bool {
		if picked[i].Confidence != picked[j].Confidence {
			return picked[i].Confidence > picked[j].Confidence
		}
		return picked[i].Source < picked[j].Source
	})
	lines := make([]string, len(picked))
	for i, b := range picked {
		lines[i] = fmt.Sprintf("%s (%.2f): %s", b.Source, b.Confidence, b.Content)
	}
	next := rc.Clone()
	next.Synthesis = strings.Join(lines, "\n")
	return next, nil
}
