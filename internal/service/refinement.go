package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/knowledge"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/persona"
	"github.com/Harshitk-cp/refinery/internal/scoring"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultMaxPasses        = 5
	DefaultTargetConfidence = 0.95
	// PlateauDelta is the largest pass-to-pass change still counted as a plateau.
	PlateauDelta = 0.05
)

// ReasonCancelled is the halt reason of a session whose context ended.
const ReasonCancelled = "cancelled"

const metricKnowledgeSupport = "knowledge_support"

// RefinementConfig holds the session defaults.
type RefinementConfig struct {
	MaxPasses        int
	TargetConfidence float64
	// Seed is used for every session when non-zero; otherwise each session
	// derives its seed from its id.
	Seed        uint64
	RunTimeout  time.Duration
	RoleWeights domain.RoleWeights
	Policy      GatekeeperPolicy
}

func DefaultRefinementConfig() RefinementConfig {
	return RefinementConfig{
		MaxPasses:        DefaultMaxPasses,
		TargetConfidence: DefaultTargetConfidence,
		RoleWeights:      domain.DefaultRoleWeights(),
		Policy:           DefaultGatekeeperPolicy(),
	}
}

// Deps are the collaborators of the orchestrator. Personas and Knowledge are
// required; everything else has a working default.
type Deps struct {
	Personas   domain.PersonaSource
	Knowledge  domain.KnowledgeRegistry
	Audit      domain.AuditSink
	Sessions   domain.SessionStore
	Anchors    *layer.AnchorSet
	AnchorSync *AnchorSync
	Publisher  domain.AlertPublisher
	Estimator  domain.SignalEstimator
	// Layers replaces the default strategy for the layers it contains.
	Layers []layer.Strategy
}

// RefinementRequest starts a session. Zero values take the service defaults.
type RefinementRequest struct {
	Query            string
	LocationHints    []string
	TargetConfidence *float64
	MaxPasses        int
	Seed             *uint64
}

type sessionEntry struct {
	session *domain.Session
	rc      *domain.ReasoningContext
	running bool
}

// RefinementService owns sessions and runs the bounded refinement loop.
// Passes of one session run serially; different sessions may run
// concurrently.
type RefinementService struct {
	cfg         RefinementConfig
	personas    domain.PersonaSource
	knowledge   domain.KnowledgeRegistry
	auditSink   domain.AuditSink
	sessions    domain.SessionStore
	anchors     *layer.AnchorSet
	anchorSync  *AnchorSync
	estimator   domain.SignalEstimator
	gatekeeper  *Gatekeeper
	containment *ContainmentSupervisor
	workflow    *Workflow
	layers      layer.Set
	model       *scoring.Model
	metrics     *Metrics
	logger      *zap.Logger

	mu       sync.RWMutex
	registry map[uuid.UUID]*sessionEntry
}

func NewRefinementService(deps Deps, cfg RefinementConfig, logger *zap.Logger) (*RefinementService, error) {
	const op = "new refinement service"
	if deps.Personas == nil {
		return nil, domain.NewConfigurationError(op, errors.New("persona source is required"))
	}
	if deps.Knowledge == nil {
		return nil, domain.NewConfigurationError(op, errors.New("knowledge registry is required"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	if cfg.TargetConfidence <= 0 || cfg.TargetConfidence > 1 {
		cfg.TargetConfidence = DefaultTargetConfidence
	}
	if cfg.RoleWeights == nil {
		cfg.RoleWeights = domain.DefaultRoleWeights()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, domain.NewConfigurationError(op, err)
	}

	s := &RefinementService{
		cfg:        cfg,
		personas:   deps.Personas,
		knowledge:  deps.Knowledge,
		auditSink:  deps.Audit,
		sessions:   deps.Sessions,
		anchors:    deps.Anchors,
		anchorSync: deps.AnchorSync,
		estimator:  deps.Estimator,
		model:      scoring.NewModel(),
		metrics:    NewMetrics(),
		logger:     logger,
		registry:   make(map[uuid.UUID]*sessionEntry),
	}
	if s.auditSink == nil {
		s.auditSink = nopAudit{}
	}
	if s.anchors == nil {
		s.anchors = layer.NewAnchorSet(0)
	}
	if s.estimator == nil {
		s.estimator = persona.LexicalEstimator{}
	}
	s.gatekeeper = NewGatekeeper(cfg.Policy, logger)
	s.containment = NewContainmentSupervisor(deps.Publisher, logger)
	s.workflow = NewWorkflow(deps.Personas, deps.Knowledge, s.model, cfg.RoleWeights, logger)
	s.layers = s.defaultLayers()
	for _, l := range deps.Layers {
		if !l.ID().Valid() {
			return nil, domain.NewConfigurationError(op, fmt.Errorf("layer %d is not a gated layer", l.ID()))
		}
		s.layers[l.ID()] = l
	}
	return s, nil
}

func (s *RefinementService) defaultLayers() layer.Set {
	goals := layer.DefaultGoalPlanningConfig()
	goals.RoleWeights = s.cfg.RoleWeights
	ambiguity := layer.DefaultAmbiguityConfig()
	ambiguity.RoleWeights = s.cfg.RoleWeights
	recursive := layer.DefaultRecursiveConfig()
	recursive.RoleWeights = s.cfg.RoleWeights

	strategies := layer.DefaultPassthroughs()
	strategies = append(strategies,
		layer.NewGoalPlanning(goals),
		layer.NewAmbiguityResolution(ambiguity),
		layer.NewRecursiveConsistency(recursive, s.personas.Experts()),
		layer.NewSelfAwareness(layer.DefaultSelfAwarenessConfig(), s.anchors),
	)
	return layer.NewSet(strategies...)
}

func (s *RefinementService) Gatekeeper() *Gatekeeper { return s.gatekeeper }
func (s *RefinementService) Containment() *ContainmentSupervisor { return s.containment }
func (s *RefinementService) Anchors() *layer.AnchorSet { return s.anchors }
func (s *RefinementService) Config() RefinementConfig { return s.cfg }

// KnowledgeIDs lists the registered knowledge algorithms.
func (s *RefinementService) KnowledgeIDs() []string {
	return s.knowledge.IDs()
}

// StartRefinement registers a new session and returns its id. It fails fast
// with a configuration error when no knowledge algorithm is registered.
func (s *RefinementService) StartRefinement(ctx context.Context, req RefinementRequest) (uuid.UUID, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return uuid.Nil, domain.ErrEmptyQuery
	}
	if len(s.knowledge.IDs()) == 0 {
		return uuid.Nil, domain.NewConfigurationError("start refinement", errors.New("no knowledge algorithm registered"))
	}
	target := s.cfg.TargetConfidence
	if req.TargetConfidence != nil {
		target = *req.TargetConfidence
		if target <= 0 || target > 1 || math.IsNaN(target) {
			return uuid.Nil, fmt.Errorf("start refinement: %w", domain.ErrInvalidTarget)
		}
	}
	maxPasses := s.cfg.MaxPasses
	if req.MaxPasses > 0 {
		maxPasses = req.MaxPasses
	}

	id := uuid.New()
	seed := binary.BigEndian.Uint64(id[:8])
	switch {
	case req.Seed != nil:
		seed = *req.Seed
	case s.cfg.Seed != 0:
		seed = s.cfg.Seed
	}

	var hints []string
	for _, h := range req.LocationHints {
		if h = strings.TrimSpace(h); h != "" {
			hints = append(hints, h)
		}
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:               id,
		Query:            query,
		LocationHints:    hints,
		TargetConfidence: target,
		MaxPasses:        maxPasses,
		Seed:             seed,
		Status:           domain.SessionInitialized,
		Passes:           []domain.Pass{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	rc := &domain.ReasoningContext{
		SessionID:       id.String(),
		Query:           query,
		Hints:           hints,
		Seed:            seed,
		Target:          target,
		BaselineEntropy: scoring.DefaultEntropyBaseline,
		Roles:           make(map[string]domain.RoleOutput),
		Metrics:         make(map[string]float64),
	}

	s.mu.Lock()
	s.registry[id] = &sessionEntry{session: sess, rc: rc}
	s.mu.Unlock()

	s.audit(ctx, id, domain.EntrySessionStarted, 0, 0, query, target)
	s.persist(ctx, sess.Snapshot())
	s.logger.Info("refinement session started",
		zap.String("session_id", id.String()),
		zap.Float64("target_confidence", target),
		zap.Int("max_passes", maxPasses),
		zap.Uint64("seed", seed))
	return id, nil
}

// RunRefinement drives a session to a terminal status and returns its final
// snapshot. Safety halts and cancellation are reported through the session
// status, not the error.
func (s *RefinementService) RunRefinement(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	e, ok := s.registry[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	if e.session.Status.Terminal() {
		s.mu.Unlock()
		return nil, domain.ErrSessionTerminal
	}
	if e.running {
		s.mu.Unlock()
		return nil, domain.ErrSessionRunning
	}
	e.running = true
	e.session.Status = domain.SessionRunning
	e.session.UpdatedAt = time.Now().UTC()
	sess := e.session.Snapshot()
	rc := e.rc
	s.mu.Unlock()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	ctx, span := startSpan(ctx, "refinement.run",
		attribute.String("session_id", id.String()),
		attribute.Int("max_passes", sess.MaxPasses))

	s.metrics.ActiveSessions.Inc()
	defer s.metrics.ActiveSessions.Dec()

	for sess.Status == domain.SessionRunning {
		if ctx.Err() != nil {
			s.stop(sess, domain.SessionError, ReasonCancelled)
			break
		}
		if len(sess.Passes) >= sess.MaxPasses {
			s.stop(sess, domain.SessionCompleted, "")
			break
		}

		pass, next, out := s.runPass(ctx, sess, rc)
		rc = next
		sess.Passes = append(sess.Passes, pass)
		sess.FinalConfidence = pass.Confidence.Overall
		sess.FinalEntropy = pass.Entropy
		sess.UpdatedAt = time.Now().UTC()

		switch {
		case out.cancelled:
			s.stop(sess, domain.SessionError, ReasonCancelled)
		case out.halted:
			sess.HumanReviewRequired = sess.HumanReviewRequired || out.humanReview
			s.stop(sess, domain.SessionHalted, out.reason)
		case pass.Status != domain.PassError && scoring.Reaches(pass.Confidence.Overall, sess.TargetConfidence):
			s.stop(sess, domain.SessionConverged, "")
		case len(sess.Passes) >= sess.MaxPasses:
			s.stop(sess, domain.SessionCompleted, "")
		}
		s.update(id, sess, rc, sess.Status.Terminal())
		s.persist(ctx, sess.Snapshot())
	}

	s.finish(ctx, sess)
	s.update(id, sess, rc, true)
	endSpan(span, nil)
	return sess.Snapshot(), nil
}

// Simulate starts a session, runs it to completion and summarizes it.
func (s *RefinementService) Simulate(ctx context.Context, query string, hints []string, target *float64) (*domain.SimulationResult, error) {
	id, err := s.StartRefinement(ctx, RefinementRequest{Query: query, LocationHints: hints, TargetConfidence: target})
	if err != nil {
		return nil, err
	}
	sess, err := s.RunRefinement(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &domain.SimulationResult{
		SessionID:           sess.ID,
		Status:              sess.Status,
		FinalConfidence:     sess.FinalConfidence,
		FinalEntropy:        sess.FinalEntropy,
		HumanReviewRequired: sess.HumanReviewRequired,
		HaltReason:          sess.HaltReason,
		Passes:              sess.Passes,
	}
	if last := sess.LastPass(); last != nil {
		res.Synthesis = last.Synthesis
	}
	return res, nil
}

// GetSession returns a snapshot from the registry, falling back to the
// session store for sessions that have been evicted.
func (s *RefinementService) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	e, ok := s.registry[id]
	var snap *domain.Session
	if ok {
		snap = e.session.Snapshot()
	}
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if s.sessions == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s.sessions.GetByID(ctx, id)
}

// ListSessions returns snapshots of every registered session, newest first.
func (s *RefinementService) ListSessions() []*domain.Session {
	s.mu.RLock()
	out := make([]*domain.Session, 0, len(s.registry))
	for _, e := range s.registry {
		out = append(out, e.session.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// EvictFinished drops terminal sessions last updated before cutoff and
// returns how many were removed.
func (s *RefinementService) EvictFinished(cutoff time.Time) int {
	s.mu.Lock()
	var evicted []uuid.UUID
	for id, e := range s.registry {
		if e.running || !e.session.Status.Terminal() || !e.session.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.registry, id)
		evicted = append(evicted, id)
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.containment.Forget(id)
	}
	return len(evicted)
}

// RefinementStats is a point-in-time summary of the registry.
type RefinementStats struct {
	Sessions       int                          `json:"sessions"`
	ByStatus       map[domain.SessionStatus]int `json:"by_status"`
	Anchors        int                          `json:"anchors"`
	EvictedAnchors int                          `json:"evicted_anchors"`
	Containment    int                          `json:"containment_events"`
	Alerts         int                          `json:"emergence_alerts"`
}

func (s *RefinementService) Stats() RefinementStats {
	st := RefinementStats{ByStatus: make(map[domain.SessionStatus]int)}
	s.mu.RLock()
	st.Sessions = len(s.registry)
	for _, e := range s.registry {
		st.ByStatus[e.session.Status]++
	}
	s.mu.RUnlock()
	st.Anchors = s.anchors.Len()
	st.EvictedAnchors = s.anchors.Evicted()
	st.Containment = len(s.containment.Events(uuid.Nil))
	st.Alerts = len(s.containment.Alerts(uuid.Nil))
	return st
}

type passOutcome struct {
	halted      bool
	cancelled   bool
	humanReview bool
	reason      string
}

// runPass executes one pass and returns the pass record together with the
// context the next pass starts from.
func (s *RefinementService) runPass(ctx context.Context, sess *domain.Session, prev *domain.ReasoningContext) (domain.Pass, *domain.ReasoningContext, passOutcome) {
	n := len(sess.Passes) + 1
	ctx, span := startSpan(ctx, "refinement.pass",
		attribute.String("session_id", sess.ID.String()),
		attribute.Int("pass", n))
	defer span.End()

	start := time.Now()
	rc := preparePass(prev, n)
	signals := s.signals(sess, rc)
	decision := s.gatekeeper.Evaluate(signals)

	pass := domain.Pass{
		Number:       n,
		ActiveLayers: decision.ActiveLayers(),
		Decision:     decision,
		StartedAt:    start.UTC(),
	}
	s.audit(ctx, sess.ID, domain.EntryPassStarted, n, 0, fmt.Sprintf("pass %d started", n), signals.Confidence)
	s.audit(ctx, sess.ID, domain.EntryGateDecision, n, 0, marshalContent(decision), signals.Confidence)

	if decision.HaltDueToEntropy {
		cd := s.containment.EntropyHalt(ctx, sess.ID, n, signals.Entropy)
		pass.Status = domain.PassHalted
		pass.Containment = &cd
		pass.Confidence = domain.ConfidenceBreakdown{Roles: map[string]float64{}, Overall: scoring.Clamp01(signals.Confidence)}
		pass.Entropy = scoring.Clamp01(signals.Entropy)
		pass.Flags = append([]string(nil), rc.Flags...)
		s.audit(ctx, sess.ID, domain.EntryContainment, n, 0, cd.Reason, signals.Entropy)
		s.closePass(ctx, sess.ID, &pass, start)
		return pass, rc, passOutcome{halted: true, reason: cd.Reason}
	}

	rc, pass.Steps = s.workflow.Run(ctx, rc)
	for _, st := range pass.Steps {
		switch st.Status {
		case domain.StepSucceeded:
			s.audit(ctx, sess.ID, domain.EntryStepCompleted, n, int(domain.LayerWorkflow), st.Name, rc.Confidence)
		case domain.StepFailed:
			s.audit(ctx, sess.ID, domain.EntryStepFailed, n, int(domain.LayerWorkflow), st.Name+": "+st.Error, 0)
		}
	}
	workflowConf, scored := rc.Metrics[MetricWorkflowConfidence]

	var layerConfs []float64
	failedLayers := 0
	if scored {
		rc, pass.Layers, layerConfs, failedLayers = s.dispatch(ctx, rc, pass.ActiveLayers)
	}
	if ctx.Err() != nil {
		pass.Status = domain.PassError
		pass.Confidence = domain.ConfidenceBreakdown{Roles: map[string]float64{}, Overall: prev.Confidence}
		pass.Entropy = prev.Entropy
		pass.Flags = append([]string(nil), rc.Flags...)
		s.closePass(ctx, sess.ID, &pass, start)
		return pass, prev, passOutcome{cancelled: true, reason: ReasonCancelled}
	}

	roleConfs, _ := s.workflow.roleConfidences(rc)
	breakdown := domain.ConfidenceBreakdown{Roles: make(map[string]float64, len(rc.Roles))}
	for role, out := range rc.Roles {
		breakdown.Roles[role] = out.Confidence
	}
	if scored {
		unresolved := rc.UnresolvedConflicts()
		rc.Confidence = s.model.PassConfidence(workflowConf, layerConfs, unresolved > 0 || failedLayers > 0)
		rc.Entropy = s.model.PassEntropy(roleConfs, goalEntropy(rc.Goals), len(rc.Goals) > 0, unresolved)
		rc.PassConfidences = append(rc.PassConfidences, rc.Confidence)
		rc.ConfidenceHistory = append(rc.ConfidenceHistory, roleConfs)
	}
	breakdown.Overall = rc.Confidence
	pass.Confidence = breakdown
	pass.Entropy = rc.Entropy

	cd := s.containment.Assess(ctx, sess.ID, n, rc.Self)
	if rc.Self != nil {
		pass.Containment = &cd
	}
	if cd.Action != domain.ContainmentNone {
		s.audit(ctx, sess.ID, domain.EntryContainment, n, int(domain.LayerSelfAwareness), string(cd.Action)+": "+cd.Reason, rc.Confidence)
	}
	switch cd.Action {
	case domain.ContainmentLimit:
		rc.RecursionBudget = s.containment.LimitedBudget
	case domain.ContainmentNone:
		rc.RecursionBudget = 0
	}
	s.commitAnchors(rc)

	switch {
	case cd.Action == domain.ContainmentHalt:
		pass.Status = domain.PassHalted
	case !scored:
		pass.Status = domain.PassError
	case pass.FailedSteps() > 0 || failedLayers > 0:
		pass.Status = domain.PassDegraded
	default:
		pass.Status = domain.PassCompleted
	}
	pass.Flags = append([]string(nil), rc.Flags...)
	pass.Synthesis = rc.Synthesis
	s.closePass(ctx, sess.ID, &pass, start)

	if cd.Action == domain.ContainmentHalt {
		return pass, rc, passOutcome{halted: true, humanReview: cd.HumanReviewRequired, reason: cd.Reason}
	}
	return pass, rc, passOutcome{}
}

// dispatch runs the activated layers in ascending order. A failing layer is
// recorded with zero confidence and the next layer starts from the last good
// context. Skipped layers do not contribute to the pass confidence.
func (s *RefinementService) dispatch(ctx context.Context, rc *domain.ReasoningContext, active []domain.LayerID) (*domain.ReasoningContext, []domain.LayerReport, []float64, int) {
	var (
		reports []domain.LayerReport
		confs   []float64
		failed  int
	)
	for _, id := range active {
		if ctx.Err() != nil {
			break
		}
		strat, ok := s.layers[id]
		if !ok {
			continue
		}
		lctx, span := startSpan(ctx, "refinement.layer",
			attribute.String("session_id", rc.SessionID),
			attribute.Int("pass", rc.PassNumber),
			attribute.Int("layer", int(id)),
			attribute.String("name", strat.Name()))
		s.metrics.LayerActivations.WithLabelValues(id.String()).Inc()

		next, rep, err := strat.Process(lctx, rc)
		if err != nil {
			failed++
			lerr := domain.NewLayerFailure(strat.Name(), err)
			rep = &domain.LayerReport{Layer: id, Name: strat.Name(), Status: domain.LayerFailed, Error: lerr.Error()}
			confs = append(confs, 0)
			s.metrics.LayerFailures.WithLabelValues(id.String()).Inc()
			s.logger.Warn("layer failed",
				zap.String("session_id", rc.SessionID),
				zap.Int("pass", rc.PassNumber),
				zap.Int("layer", int(id)),
				zap.Error(err))
			s.audit(ctx, parseSessionID(rc.SessionID), domain.EntryLayerFailed, rc.PassNumber, int(id), lerr.Error(), 0)
			endSpan(span, err)
			reports = append(reports, *rep)
			continue
		}
		if next != nil {
			rc = next
		}
		if rep == nil {
			rep = &domain.LayerReport{Layer: id, Name: strat.Name(), Status: domain.LayerCompleted, Confidence: rc.Confidence}
		}
		rep.Confidence = scoring.Clamp01(rep.Confidence)
		if rep.Status != domain.LayerSkipped {
			confs = append(confs, rep.Confidence)
			if id >= domain.LayerGoalPlanning {
				s.consultKnowledge(lctx, rc, id, rep)
			}
		}
		s.audit(ctx, parseSessionID(rc.SessionID), domain.EntryLayerCompleted, rc.PassNumber, int(id), strat.Name()+": "+string(rep.Status), rep.Confidence)
		endSpan(span, nil)
		reports = append(reports, *rep)
	}
	return rc, reports, confs, failed
}

// consultKnowledge runs the registry for a layer and records the mean support
// on its report.
func (s *RefinementService) consultKnowledge(ctx context.Context, rc *domain.ReasoningContext, id domain.LayerID, rep *domain.LayerReport) {
	results := s.knowledge.Execute(ctx, id, rc.SessionID, rc.PassNumber, AlgorithmInputFor(rc))
	sid := parseSessionID(rc.SessionID)
	for _, r := range results {
		s.audit(ctx, sid, domain.EntryAlgorithm, rc.PassNumber, int(id), marshalContent(r), r.Confidence)
	}
	if support, ok := knowledge.Summary(results); ok {
		if rep.Metrics == nil {
			rep.Metrics = make(map[string]float64)
		}
		rep.Metrics[metricKnowledgeSupport] = support
	}
}

// preparePass derives the starting context of pass n. Per-pass fields and
// metrics are reset and trend flags replace the previous pass's flags.
func preparePass(prev *domain.ReasoningContext, n int) *domain.ReasoningContext {
	rc := prev.Clone()
	rc.PassNumber = n
	rc.RecursionDepth = 0
	rc.EscalateAmbiguity = false
	rc.Self = nil
	rc.NewAnchors = nil
	rc.Metrics = make(map[string]float64)
	if n > 1 {
		rc.PrevBeliefCount = len(prev.Beliefs)
	}
	trend := TrendFlags(prev.PassConfidences)
	if containsString(trend, FlagConfidencePlateau) {
		rc.PlateauStreak++
	} else {
		rc.PlateauStreak = 0
	}
	rc.Flags = trend
	return rc
}

// TrendFlags derives confidence trend flags from the overall confidence of
// completed passes.
func TrendFlags(confs []float64) []string {
	n := len(confs)
	if n < 2 {
		return nil
	}
	var flags []string
	last := confs[n-1] - confs[n-2]
	if last < 0 {
		flags = append(flags, FlagConfidenceDecreasing)
	}
	if math.Abs(last) < PlateauDelta {
		flags = append(flags, FlagConfidencePlateau)
	}
	if n >= 3 {
		before := confs[n-2] - confs[n-3]
		if before*last < 0 {
			flags = append(flags, FlagConfidenceOscillation)
		}
	}
	return flags
}

func isTrendFlag(f string) bool {
	switch f {
	case FlagConfidenceDecreasing, FlagConfidencePlateau, FlagConfidenceOscillation:
		return true
	}
	return false
}

// signals builds the gatekeeper input. The first pass is estimated from the
// query; later passes read the previous pass's scores, the flags it raised,
// role flags and open conflicts.
func (s *RefinementService) signals(sess *domain.Session, rc *domain.ReasoningContext) domain.Signals {
	var sig domain.Signals
	if rc.PassNumber == 1 {
		sig = s.estimator.Estimate(rc.Query, rc.Hints)
		sig.Confidence = scoring.Clamp01(sig.Confidence)
		sig.Entropy = scoring.Clamp01(sig.Entropy)
	} else {
		sig = domain.Signals{
			Confidence:    rc.Confidence,
			Entropy:       rc.Entropy,
			ConflictCount: rc.UnresolvedConflicts(),
		}
		for _, role := range domain.BaseRoles() {
			out, ok := rc.Roles[role]
			if !ok || len(out.Flags) == 0 {
				continue
			}
			sig.TriggeredRoles = append(sig.TriggeredRoles, role)
			for _, f := range out.Flags {
				if !containsString(sig.RegulatoryFlags, f) {
					sig.RegulatoryFlags = append(sig.RegulatoryFlags, f)
				}
			}
		}
		if last := sess.LastPass(); last != nil {
			for _, f := range last.Flags {
				if !isTrendFlag(f) && !containsString(sig.Flags, f) {
					sig.Flags = append(sig.Flags, f)
				}
			}
		}
	}
	sig.TargetConfidence = rc.Target
	for _, f := range rc.Flags {
		if !containsString(sig.Flags, f) {
			sig.Flags = append(sig.Flags, f)
		}
	}
	return sig
}

func (s *RefinementService) commitAnchors(rc *domain.ReasoningContext) {
	if len(rc.NewAnchors) == 0 {
		return
	}
	keys := make([]string, len(rc.NewAnchors))
	for i, a := range rc.NewAnchors {
		keys[i] = a.Key
	}
	s.anchors.Add(keys...)
	if s.anchorSync != nil {
		s.anchorSync.Enqueue(rc.NewAnchors)
	}
	s.metrics.AnchorSetSize.Set(float64(s.anchors.Len()))
	rc.NewAnchors = nil
}

func (s *RefinementService) closePass(ctx context.Context, sessionID uuid.UUID, pass *domain.Pass, start time.Time) {
	pass.EndedAt = time.Now().UTC()
	s.metrics.PassesTotal.WithLabelValues(string(pass.Status)).Inc()
	s.metrics.PassDuration.Observe(time.Since(start).Seconds())
	s.audit(ctx, sessionID, domain.EntryPassCompleted, pass.Number, 0, string(pass.Status), pass.Confidence.Overall)
	s.logger.Info("refinement pass finished",
		zap.String("session_id", sessionID.String()),
		zap.Int("pass", pass.Number),
		zap.String("status", string(pass.Status)),
		zap.Float64("confidence", pass.Confidence.Overall),
		zap.Float64("entropy", pass.Entropy),
		zap.Int("active_layers", len(pass.ActiveLayers)))
}

func (s *RefinementService) stop(sess *domain.Session, status domain.SessionStatus, reason string) {
	sess.Status = status
	sess.HaltReason = reason
	sess.UpdatedAt = time.Now().UTC()
}

func (s *RefinementService) finish(ctx context.Context, sess *domain.Session) {
	s.metrics.SessionsTotal.WithLabelValues(string(sess.Status)).Inc()
	s.metrics.FinalConfidence.Observe(sess.FinalConfidence)
	s.audit(ctx, sess.ID, domain.EntrySessionFinished, len(sess.Passes), 0, string(sess.Status), sess.FinalConfidence)
	s.persist(ctx, sess.Snapshot())
	s.logger.Info("refinement session finished",
		zap.String("session_id", sess.ID.String()),
		zap.String("status", string(sess.Status)),
		zap.Int("passes", len(sess.Passes)),
		zap.Float64("final_confidence", sess.FinalConfidence),
		zap.Bool("human_review_required", sess.HumanReviewRequired),
		zap.String("halt_reason", sess.HaltReason))
}

// update publishes the loop's local session state to the registry.
func (s *RefinementService) update(id uuid.UUID, sess *domain.Session, rc *domain.ReasoningContext, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.registry[id]
	if !ok {
		return
	}
	e.session = sess.Snapshot()
	e.rc = rc
	if done {
		e.running = false
	}
}

// audit writes one entry. Failures are logged and never affect the pass.
func (s *RefinementService) audit(ctx context.Context, sessionID uuid.UUID, typ domain.EntryType, pass, layerNum int, content string, confidence float64) {
	e := &domain.MemoryEntry{
		SessionID:  sessionID,
		EntryType:  typ,
		PassNum:    pass,
		LayerNum:   layerNum,
		Content:    content,
		Confidence: scoring.Clamp01(confidence),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.auditSink.AppendEntry(context.WithoutCancel(ctx), e); err != nil {
		s.metrics.AuditWriteErrors.Inc()
		s.logger.Warn("failed to write audit entry",
			zap.String("session_id", sessionID.String()),
			zap.String("entry_type", string(typ)),
			zap.Int("pass", pass),
			zap.Error(err))
	}
}

func (s *RefinementService) persist(ctx context.Context, sess *domain.Session) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Warn("failed to persist session",
			zap.String("session_id", sess.ID.String()),
			zap.Error(err))
	}
}

func marshalContent(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func parseSessionID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type nopAudit struct{}

func (nopAudit) AppendEntry(context.Context, *domain.MemoryEntry) error { return nil }
