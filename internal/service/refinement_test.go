package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/knowledge"
	"github.com/Harshitk-cp/refinery/internal/layer"
	"github.com/Harshitk-cp/refinery/internal/persona"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedEstimator domain.Signals

func (f fixedEstimator) Estimate(string, []string) domain.Signals {
	s := domain.Signals(f)
	s.TriggeredRoles = append([]string(nil), f.TriggeredRoles...)
	s.RegulatoryFlags = append([]string(nil), f.RegulatoryFlags...)
	return s
}

// stubLayer reports a fixed confidence, or fails with err.
type stubLayer struct {
	id   domain.LayerID
	conf float64
	err  error
}

func (s stubLayer) ID() domain.LayerID { return s.id }
func (s stubLayer) Name() string { return "stub_" + s.id.String() }

func (s stubLayer) Process(ctx context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return rc.Clone(), &domain.LayerReport{Layer: s.id, Name: s.Name(), Status: domain.LayerCompleted, Confidence: s.conf}, nil
}

func stubLayers(conf float64) []layer.Strategy {
	var out []layer.Strategy
	for _, id := range domain.GatedLayers() {
		out = append(out, stubLayer{id: id, conf: conf})
	}
	return out
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.MemoryEntry
	err     error
}

func (r *recordingAudit) AppendEntry(_ context.Context, e *domain.MemoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordingAudit) Entries() []domain.MemoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MemoryEntry(nil), r.entries...)
}

func confident() fixedEstimator {
	return fixedEstimator{Confidence: 0.99, Entropy: 0.05}
}

func newTestRefinement(t *testing.T, deps Deps, cfg RefinementConfig) *RefinementService {
	t.Helper()
	if deps.Personas == nil {
		deps.Personas = persona.NewMockSource()
	}
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.NewDefaultRegistry(zap.NewNop())
	}
	svc, err := NewRefinementService(deps, cfg, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func ptr[T any](v T) *T { return &v }

func TestNewRefinementService_RequiresCollaborators(t *testing.T) {
	_, err := NewRefinementService(Deps{Knowledge: knowledge.NewDefaultRegistry(zap.NewNop())}, DefaultRefinementConfig(), zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	_, err = NewRefinementService(Deps{Personas: persona.NewMockSource()}, DefaultRefinementConfig(), zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestStartRefinement_Validation(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: confident()}, DefaultRefinementConfig())
	ctx := context.Background()

	_, err := svc.StartRefinement(ctx, RefinementRequest{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	_, err = svc.StartRefinement(ctx, RefinementRequest{Query: "q", TargetConfidence: ptr(1.5)})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	_, err = svc.StartRefinement(ctx, RefinementRequest{Query: "q", TargetConfidence: ptr(0.0)})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	empty := newTestRefinement(t, Deps{Knowledge: knowledge.NewRegistry(zap.NewNop())}, DefaultRefinementConfig())
	_, err = empty.StartRefinement(ctx, RefinementRequest{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestStartRefinement_Defaults(t *testing.T) {
	cfg := DefaultRefinementConfig()
	cfg.MaxPasses = 4
	svc := newTestRefinement(t, Deps{Estimator: confident()}, cfg)

	id, err := svc.StartRefinement(context.Background(), RefinementRequest{
		Query:         "  expand cold storage capacity  ",
		LocationHints: []string{"rotterdam", " "},
	})
	require.NoError(t, err)

	sess, err := svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "expand cold storage capacity", sess.Query)
	assert.Equal(t, []string{"rotterdam"}, sess.LocationHints)
	assert.Equal(t, domain.SessionInitialized, sess.Status)
	assert.Equal(t, DefaultTargetConfidence, sess.TargetConfidence)
	assert.Equal(t, 4, sess.MaxPasses)
	assert.NotZero(t, sess.Seed)
	assert.Empty(t, sess.Passes)
}

func TestRunRefinement_ConvergesInOnePass(t *testing.T) {
	audit := &recordingAudit{}
	personas := persona.NewMockSource()
	personas.Confidence = 0.85
	svc := newTestRefinement(t, Deps{Personas: personas, Audit: audit}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods to hamburg", TargetConfidence: ptr(0.85)})
	require.NoError(t, err)

	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConverged, sess.Status)
	require.Len(t, sess.Passes, 1)

	pass := sess.Passes[0]
	assert.Equal(t, 1, pass.Number)
	assert.Equal(t, domain.PassCompleted, pass.Status)
	assert.Contains(t, pass.ActiveLayers, domain.LayerAmbiguity)
	assert.InDelta(t, 0.85, pass.Confidence.Overall, 1e-9)
	for _, rep := range pass.Layers {
		if rep.Layer == domain.LayerAmbiguity {
			assert.InDelta(t, 0.85, rep.Confidence, 1e-9)
		}
	}
	assert.Len(t, pass.Confidence.Roles, len(domain.BaseRoles()))
	assert.Equal(t, pass.Confidence.Overall, sess.FinalConfidence)
	assert.NotEmpty(t, pass.Synthesis)
	assert.Zero(t, pass.FailedSteps())

	entries := audit.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.EntrySessionStarted, entries[0].EntryType)
	assert.Equal(t, domain.EntrySessionFinished, entries[len(entries)-1].EntryType)
	for _, e := range entries {
		assert.Equal(t, id, e.SessionID)
		assert.GreaterOrEqual(t, e.Confidence, 0.0)
		assert.LessOrEqual(t, e.Confidence, 1.0)
	}
}

func TestRunRefinement_EntropyHalt(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: fixedEstimator{Confidence: 0.5, Entropy: 0.95}}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "maybe possibly reroute"})
	require.NoError(t, err)

	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionHalted, sess.Status)
	require.Len(t, sess.Passes, 1)
	assert.Equal(t, domain.PassHalted, sess.Passes[0].Status)
	assert.Empty(t, sess.Passes[0].Steps)
	assert.NotEmpty(t, sess.HaltReason)

	events := svc.Containment().Events(id)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ContainmentHalt, events[0].Action)
	assert.Equal(t, []string{TriggerEntropyHalt}, events[0].Triggers)
}

func TestRunRefinement_StopsAtMaxPasses(t *testing.T) {
	cfg := DefaultRefinementConfig()
	cfg.MaxPasses = 3
	svc := newTestRefinement(t, Deps{Estimator: confident(), Layers: stubLayers(0.9)}, cfg)
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods to hamburg", TargetConfidence: ptr(1.0)})
	require.NoError(t, err)

	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, sess.Status)
	require.Len(t, sess.Passes, 3)
	for i, p := range sess.Passes {
		assert.Equal(t, i+1, p.Number)
		assert.Equal(t, domain.PassCompleted, p.Status)
	}
	assert.Empty(t, sess.Passes[0].ActiveLayers)
	assert.NotEmpty(t, sess.Passes[1].ActiveLayers)
	assert.Contains(t, sess.Passes[2].Flags, FlagConfidencePlateau)

	_, err = svc.RunRefinement(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionTerminal)
}

func TestRunRefinement_DefaultWiringConfidenceRises(t *testing.T) {
	svc := newTestRefinement(t, Deps{Personas: persona.NewCatalog()}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "expand cold storage capacity near the port"})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(sess.Passes), 2)
	first, last := sess.Passes[0], sess.Passes[len(sess.Passes)-1]
	assert.Less(t, first.Confidence.Overall, DefaultTargetConfidence)
	assert.Greater(t, last.Confidence.Overall, first.Confidence.Overall)
	for role, c := range first.Confidence.Roles {
		assert.GreaterOrEqual(t, last.Confidence.Roles[role], c, role)
	}
	assert.NotEqual(t, domain.SessionHalted, sess.Status)
}

func TestRunRefinement_PerRequestMaxPasses(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: confident(), Layers: stubLayers(0.9)}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "q one two", TargetConfidence: ptr(1.0), MaxPasses: 2})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Passes, 2)
}

func TestRunRefinement_LayerFailureDegradesPass(t *testing.T) {
	layers := stubLayers(0.9)
	layers = append(layers, stubLayer{id: domain.LayerPerspective, err: errors.New("perspective unavailable")})
	svc := newTestRefinement(t, Deps{
		Estimator: fixedEstimator{Confidence: 0.9, Entropy: 0.1},
		Layers:    layers,
	}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods to hamburg", TargetConfidence: ptr(0.5)})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionConverged, sess.Status)
	pass := sess.Passes[0]
	assert.Equal(t, domain.PassDegraded, pass.Status)
	assert.Equal(t, []domain.LayerID{domain.LayerMultiRole, domain.LayerPerspective, domain.LayerAmbiguity}, pass.ActiveLayers)
	require.Len(t, pass.Layers, 3)

	failed := pass.Layers[1]
	assert.Equal(t, domain.LayerPerspective, failed.Layer)
	assert.Equal(t, domain.LayerFailed, failed.Status)
	assert.Zero(t, failed.Confidence)
	assert.Contains(t, failed.Error, string(domain.KindLayerFailure))

	// 0.7*0.9 + 0.3*mean(0.9, 0, 0.9)
	assert.InDelta(t, 0.81, pass.Confidence.Overall, 1e-9)
	assert.Contains(t, pass.Layers[2].Metrics, metricKnowledgeSupport)
}

func TestRunRefinement_StepFailureDegradesPass(t *testing.T) {
	personas := persona.NewMockSource()
	personas.Errors[domain.RoleCompliance] = errors.New("upstream timeout")
	svc := newTestRefinement(t, Deps{Personas: personas, Estimator: confident()}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods to hamburg", TargetConfidence: ptr(0.5)})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionConverged, sess.Status)
	pass := sess.Passes[0]
	assert.Equal(t, domain.PassDegraded, pass.Status)
	assert.Equal(t, 1, pass.FailedSteps())
	assert.NotContains(t, pass.Confidence.Roles, domain.RoleCompliance)
}

func TestRunRefinement_CancelledContext(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: confident()}, DefaultRefinementConfig())

	id, err := svc.StartRefinement(context.Background(), RefinementRequest{Query: "q one two"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionError, sess.Status)
	assert.Equal(t, ReasonCancelled, sess.HaltReason)
	assert.Empty(t, sess.Passes)
}

func TestRunRefinement_UnknownSession(t *testing.T) {
	svc := newTestRefinement(t, Deps{}, DefaultRefinementConfig())
	_, err := svc.RunRefinement(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRunRefinement_AuditFailureDoesNotStopSession(t *testing.T) {
	audit := &recordingAudit{err: errors.New("disk full")}
	svc := newTestRefinement(t, Deps{Estimator: confident(), Audit: audit}, DefaultRefinementConfig())
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods to hamburg", TargetConfidence: ptr(0.85)})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConverged, sess.Status)
	assert.Empty(t, audit.Entries())
}

func TestRunRefinement_SameSeedSameResult(t *testing.T) {
	run := func() *domain.Session {
		cfg := DefaultRefinementConfig()
		cfg.MaxPasses = 3
		svc := newTestRefinement(t, Deps{Estimator: fixedEstimator{Confidence: 0.6, Entropy: 0.4}}, cfg)
		id, err := svc.StartRefinement(context.Background(), RefinementRequest{
			Query:            "expand cold storage capacity near the port",
			TargetConfidence: ptr(1.0),
			Seed:             ptr(uint64(42)),
		})
		require.NoError(t, err)
		sess, err := svc.RunRefinement(context.Background(), id)
		require.NoError(t, err)
		return sess
	}

	a, b := run(), run()
	require.Equal(t, len(a.Passes), len(b.Passes))
	assert.Equal(t, a.Status, b.Status)
	for i := range a.Passes {
		assert.Equal(t, a.Passes[i].ActiveLayers, b.Passes[i].ActiveLayers)
		assert.InDelta(t, a.Passes[i].Confidence.Overall, b.Passes[i].Confidence.Overall, 1e-9)
		assert.InDelta(t, a.Passes[i].Entropy, b.Passes[i].Entropy, 1e-9)
	}
}

func TestRunRefinement_CommitsAnchors(t *testing.T) {
	anchors := layer.NewAnchorSet(100)
	store := &fakeAnchorStore{}
	syncer := NewAnchorSync(store, anchors, zap.NewNop())

	cfg := DefaultRefinementConfig()
	cfg.MaxPasses = 1
	svc := newTestRefinement(t, Deps{
		Estimator:  fixedEstimator{Confidence: 0.6, Entropy: 0.3},
		Anchors:    anchors,
		AnchorSync: syncer,
	}, cfg)

	id, err := svc.StartRefinement(context.Background(), RefinementRequest{Query: "expand cold storage capacity", TargetConfidence: ptr(0.5)})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.Passes, 1)
	assert.Contains(t, sess.Passes[0].ActiveLayers, domain.LayerSelfAwareness)
	assert.Positive(t, anchors.Len())
	assert.Equal(t, anchors.Len(), syncer.Pending())
}

// selfStub stands in for layer 10. It writes the assessment returned for each
// pass and records the recursion budget the pass started with.
type selfStub struct {
	assess  func(pass int) *domain.SelfAssessment
	budgets []int
}

func (s *selfStub) ID() domain.LayerID { return domain.LayerSelfAwareness }
func (s *selfStub) Name() string { return "stub_self_awareness" }

func (s *selfStub) Process(_ context.Context, rc *domain.ReasoningContext) (*domain.ReasoningContext, *domain.LayerReport, error) {
	s.budgets = append(s.budgets, rc.RecursionBudget)
	next := rc.Clone()
	next.Self = s.assess(rc.PassNumber)
	return next, &domain.LayerReport{Layer: s.ID(), Name: s.Name(), Status: domain.LayerCompleted, Confidence: rc.Confidence}, nil
}

// newContainmentRefinement keeps every pass below the layer 10 gate without
// tripping the entropy halt.
func newContainmentRefinement(t *testing.T, self *selfStub, maxPasses int) *RefinementService {
	t.Helper()
	personas := persona.NewMockSource()
	personas.Confidence = 0.1
	cfg := DefaultRefinementConfig()
	cfg.MaxPasses = maxPasses
	svc := newTestRefinement(t, Deps{
		Personas:  personas,
		Estimator: fixedEstimator{Confidence: 0.1, Entropy: 0.3},
		Layers:    append(stubLayers(0.1), self),
	}, cfg)
	svc.workflow.ReinforcementGain = 0
	return svc
}

func TestRunRefinement_CriticalEmergenceHalts(t *testing.T) {
	self := &selfStub{assess: func(int) *domain.SelfAssessment {
		return &domain.SelfAssessment{
			EmergenceScore:    0.97,
			CriticalEmergence: true,
			Heuristics:        []string{"goal_drift"},
			Action:            domain.ContainmentHalt,
		}
	}}
	svc := newContainmentRefinement(t, self, 5)
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "reroute the fleet overnight"})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionHalted, sess.Status)
	assert.True(t, sess.HumanReviewRequired)
	assert.Contains(t, sess.HaltReason, "critical emergence")
	require.Len(t, sess.Passes, 1)
	pass := sess.Passes[0]
	assert.Equal(t, domain.PassHalted, pass.Status)
	require.NotNil(t, pass.Containment)
	assert.Equal(t, domain.ContainmentHalt, pass.Containment.Action)
	assert.Len(t, svc.Containment().Alerts(id), 1)
}

func TestRunRefinement_LimitCapsNextPassBudget(t *testing.T) {
	self := &selfStub{assess: func(pass int) *domain.SelfAssessment {
		if pass == 1 {
			return &domain.SelfAssessment{Action: domain.ContainmentLimit, Triggers: []string{"energy_limit"}}
		}
		return &domain.SelfAssessment{Action: domain.ContainmentNone}
	}}
	svc := newContainmentRefinement(t, self, 3)
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "reroute the fleet overnight"})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionCompleted, sess.Status)
	require.Len(t, sess.Passes, 3)
	require.NotNil(t, sess.Passes[0].Containment)
	assert.Equal(t, domain.ContainmentLimit, sess.Passes[0].Containment.Action)
	assert.Equal(t, []int{0, svc.Containment().LimitedBudget, 0}, self.budgets)
	assert.False(t, sess.HumanReviewRequired)
}

func TestRunRefinement_RepeatedLimitEscalatesToHalt(t *testing.T) {
	self := &selfStub{assess: func(int) *domain.SelfAssessment {
		return &domain.SelfAssessment{Action: domain.ContainmentLimit, Triggers: []string{"energy_limit"}}
	}}
	svc := newContainmentRefinement(t, self, 6)
	ctx := context.Background()

	id, err := svc.StartRefinement(ctx, RefinementRequest{Query: "reroute the fleet overnight"})
	require.NoError(t, err)
	sess, err := svc.RunRefinement(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionHalted, sess.Status)
	require.Len(t, sess.Passes, DefaultLimitEscalation)
	last := sess.Passes[len(sess.Passes)-1]
	assert.Equal(t, domain.PassHalted, last.Status)
	require.NotNil(t, last.Containment)
	assert.Contains(t, last.Containment.Triggers, TriggerRepeatedLimit)

	events := svc.Containment().Events(id)
	require.Len(t, events, DefaultLimitEscalation)
	assert.Equal(t, domain.ContainmentLimit, events[0].Action)
	assert.Equal(t, domain.ContainmentLimit, events[1].Action)
	assert.Equal(t, domain.ContainmentHalt, events[2].Action)
}

func TestSimulate(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: confident()}, DefaultRefinementConfig())

	res, err := svc.Simulate(context.Background(), "ship perishable goods to hamburg", nil, ptr(0.85))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionConverged, res.Status)
	assert.Len(t, res.Passes, 1)
	assert.NotEmpty(t, res.Synthesis)

	_, err = svc.Simulate(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestListAndEvictSessions(t *testing.T) {
	svc := newTestRefinement(t, Deps{Estimator: confident()}, DefaultRefinementConfig())
	ctx := context.Background()

	done, err := svc.StartRefinement(ctx, RefinementRequest{Query: "ship perishable goods", TargetConfidence: ptr(0.85)})
	require.NoError(t, err)
	_, err = svc.RunRefinement(ctx, done)
	require.NoError(t, err)
	pending, err := svc.StartRefinement(ctx, RefinementRequest{Query: "expand cold storage"})
	require.NoError(t, err)

	assert.Len(t, svc.ListSessions(), 2)
	stats := svc.Stats()
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 1, stats.ByStatus[domain.SessionConverged])
	assert.Equal(t, 1, stats.ByStatus[domain.SessionInitialized])

	assert.Zero(t, svc.EvictFinished(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, svc.EvictFinished(time.Now().Add(time.Hour)))

	_, err = svc.GetSession(ctx, done)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.GetSession(ctx, pending)
	assert.NoError(t, err)
}

func TestTrendFlags(t *testing.T) {
	tests := []struct {
		name  string
		confs []float64
		want  []string
	}{
		{"none", nil, nil},
		{"single pass", []float64{0.5}, nil},
		{"rising", []float64{0.5, 0.7}, nil},
		{"decreasing", []float64{0.7, 0.5}, []string{FlagConfidenceDecreasing}},
		{"plateau", []float64{0.7, 0.72}, []string{FlagConfidencePlateau}},
		{"small drop", []float64{0.72, 0.7}, []string{FlagConfidenceDecreasing, FlagConfidencePlateau}},
		{"oscillation", []float64{0.5, 0.7, 0.6}, []string{FlagConfidenceDecreasing, FlagConfidenceOscillation}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendFlags(tt.confs))
		})
	}
}
