package persona

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Deterministic(t *testing.T) {
	c := NewCatalog()
	a, err := c.Respond(context.Background(), domain.RoleKnowledge, "How long are invoices retained?", nil)
	require.NoError(t, err)
	b, err := c.Respond(context.Background(), domain.RoleKnowledge, "How long are invoices retained?", nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, domain.RoleKnowledge, a.Role)
	require.Len(t, a.Beliefs, 1)
	assert.Equal(t, a.Confidence, a.Beliefs[0].Confidence)
}

func TestCatalog_HedgesLowerConfidence(t *testing.T) {
	c := NewCatalog()
	plain, err := c.Respond(context.Background(), domain.RoleSector, "invoice retention period", nil)
	require.NoError(t, err)
	hedged, err := c.Respond(context.Background(), domain.RoleSector, "maybe invoice retention period, unclear", nil)
	require.NoError(t, err)
	assert.Less(t, hedged.Confidence, plain.Confidence)
}

func TestCatalog_Flags(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()
	query := "GDPR breach notification duties"

	reg, err := c.Respond(ctx, domain.RoleRegulatory, query, nil)
	require.NoError(t, err)
	assert.Contains(t, reg.Flags, FlagRegulatoryReview)

	comp, err := c.Respond(ctx, domain.RoleCompliance, query, nil)
	require.NoError(t, err)
	assert.Contains(t, comp.Flags, FlagComplianceGap)

	know, err := c.Respond(ctx, domain.RoleKnowledge, query, nil)
	require.NoError(t, err)
	assert.Contains(t, know.Flags, FlagMultiRole)

	sector, err := c.Respond(ctx, domain.RoleSector, query, []string{"EU"})
	require.NoError(t, err)
	assert.Contains(t, sector.Flags, FlagLocationSpecific)
	assert.Len(t, sector.Beliefs, 2)
}

func TestCatalog_UnknownRole(t *testing.T) {
	_, err := NewCatalog().Respond(context.Background(), "astrologer", "q", nil)
	assert.Error(t, err)
}

func TestCatalog_ExpertsAreCopied(t *testing.T) {
	c := NewCatalog()
	experts := c.Experts()
	require.NotEmpty(t, experts)
	experts[0].Role = "changed"
	assert.NotEqual(t, "changed", c.Experts()[0].Role)
}

func TestOpenAISource_Respond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, chatModel, req.Model)
		assert.Len(t, req.Messages, 2)

		reply := "```json\n" + `{"content":"Keep invoices","confidence":1.4,"beliefs":[{"content":"Invoices are kept seven years","confidence":0.7},{"content":" ","confidence":0.9}],"flags":["compliance_gap"]}` + "\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": reply}}},
		})
	}))
	defer srv.Close()

	s := NewOpenAISource("test-key")
	s.SetURL(srv.URL)
	resp, err := s.Respond(context.Background(), domain.RoleCompliance, "invoice retention", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCompliance, resp.Role)
	assert.Equal(t, 1.0, resp.Confidence)
	require.Len(t, resp.Beliefs, 1)
	assert.Equal(t, 0.7, resp.Beliefs[0].Confidence)
	assert.Equal(t, []string{"compliance_gap"}, resp.Flags)
}

func TestOpenAISource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewOpenAISource("k")
	s.SetURL(srv.URL)
	_, err := s.Respond(context.Background(), domain.RoleKnowledge, "q", nil)
	assert.ErrorContains(t, err, "status 503")
}

func TestMockSource(t *testing.T) {
	m := NewMockSource()
	m.Errors[domain.RoleSector] = assert.AnError
	m.Responses[domain.RoleRegulatory] = &domain.RoleResponse{Role: domain.RoleRegulatory, Confidence: 0.4}

	_, err := m.Respond(context.Background(), domain.RoleSector, "q", nil)
	assert.ErrorIs(t, err, assert.AnError)

	r, err := m.Respond(context.Background(), domain.RoleRegulatory, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.4, r.Confidence)

	r, err = m.Respond(context.Background(), domain.RoleKnowledge, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, r.Confidence)
	assert.Equal(t, []string{domain.RoleSector, domain.RoleRegulatory, domain.RoleKnowledge}, m.Calls())
}

func TestNewSource(t *testing.T) {
	for _, p := range []string{"", ProviderCatalog, ProviderMock} {
		s, err := NewSource(p, "")
		require.NoError(t, err, p)
		assert.NotNil(t, s)
	}
	_, err := NewSource(ProviderOpenAI, "")
	assert.Error(t, err)
	_, err = NewSource("oracle", "k")
	assert.Error(t, err)
}

func TestLexicalEstimator(t *testing.T) {
	var e LexicalEstimator

	plain := e.Estimate("invoice retention period", nil)
	assert.InDelta(t, 0.9, plain.Confidence, 1e-9)
	assert.Empty(t, plain.TriggeredRoles)
	assert.Empty(t, plain.RegulatoryFlags)

	hedged := e.Estimate("maybe invoice retention period, unclear", nil)
	assert.InDelta(t, 0.7, hedged.Confidence, 1e-9)
	assert.Greater(t, hedged.Entropy, plain.Entropy)

	thin := e.Estimate("invoices", nil)
	assert.InDelta(t, 0.75, thin.Confidence, 1e-9)
}

func TestLexicalEstimator_Flags(t *testing.T) {
	s := LexicalEstimator{}.Estimate("GDPR breach notification duties", []string{"EU"})
	assert.Equal(t, []string{FlagRegulatoryReview, FlagComplianceGap}, s.RegulatoryFlags)
	assert.Equal(t, []string{domain.RoleRegulatory, domain.RoleCompliance, domain.RoleSector}, s.TriggeredRoles)
	assert.GreaterOrEqual(t, s.Entropy, 0.0)
	assert.LessOrEqual(t, s.Entropy, 1.0)
}
