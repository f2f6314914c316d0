package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/taarya/taarya/internal/catalog"
	"github.com/taarya/taarya/internal/log"
	"github.com/taarya/taarya/internal/testutil"
	"github.com/taarya/taarya/internal/tools"
)

// fakeCatalog returns a fixed cone result.
type fakeCatalog struct {
	stars []catalog.Entry
	count int64
	err   error
}

func (f *fakeCatalog) ConeSearch(_ context.Context, _, _, _ float64, _ int, _ ...catalog.ConeOption) ([]catalog.Entry, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.stars, f.count, nil
}

func (f *fakeCatalog) Count(_ context.Context, _, _, _ float64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeCatalog) Lookup(_ context.Context, sourceID int64) (catalog.Entry, error) {
	if f.err != nil {
		return catalog.Entry{}, f.err
	}
	return catalog.Entry{SourceID: sourceID}, nil
}

func (f *fakeCatalog) Nearby(_ context.Context, _ int64, _ float64, _ int) ([]catalog.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stars, nil
}

// newTestAgent wires a mock model, a fake catalog tool set, and an agent.
func newTestAgent(t *testing.T, model *testutil.MockModel, cat tools.Catalog) *Agent {
	t.Helper()
	g := genkit.Init(context.Background())
	model.Register(g)

	registry, err := tools.Register(g, tools.Deps{Catalog: cat, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("tools.Register() = %v", err)
	}

	a, err := New(g, registry, Config{ModelName: "mock/test-model", MaxTurns: 5}, log.NewNop())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return a
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"user", "user", true},
		{"human", "user", true},
		{"assistant", "assistant", true},
		{"ai", "assistant", true},
		{"system", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTruncateHistoryKeepsMostRecent(t *testing.T) {
	history := make([]Message, 60)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: fmt.Sprintf("message %d", i)}
	}

	got := TruncateHistory(history)
	if len(got) != MaxHistoryMessages {
		t.Fatalf("len = %d, want %d", len(got), MaxHistoryMessages)
	}
	if got[0].Content != "message 10" {
		t.Errorf("first kept = %q, want message 10 (oldest dropped first)", got[0].Content)
	}
	if got[len(got)-1].Content != "message 59" {
		t.Errorf("last kept = %q, want message 59", got[len(got)-1].Content)
	}
}

func TestTruncateHistoryShortUnchanged(t *testing.T) {
	history := []Message{{Role: RoleUser, Content: "only"}}
	if got := TruncateHistory(history); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestUnverifiedClaims(t *testing.T) {
	outputs := []tools.Output{{
		Tool: "cone_search",
		Data: map[string]any{"count": 42, "stars": []map[string]any{{"ra": 45.001, "dec": 0.5}}},
	}}

	tests := []struct {
		name     string
		answer   string
		wantFlag []string
	}{
		{"supported claims", "There are 42 stars near RA 45.001.", nil},
		{"contradicted count", "There are 97 stars in that region.", []string{"97"}},
		{"tolerant match", "About 45.0012 degrees right ascension.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnverifiedClaims(tt.answer, outputs)
			if len(got) != len(tt.wantFlag) {
				t.Fatalf("UnverifiedClaims() = %v, want %v", got, tt.wantFlag)
			}
			for i := range got {
				if got[i] != tt.wantFlag[i] {
					t.Errorf("claim[%d] = %q, want %q", i, got[i], tt.wantFlag[i])
				}
			}
		})
	}
}

func TestUnverifiedClaimsNoOutputs(t *testing.T) {
	if got := UnverifiedClaims("The answer is 7.", nil); got != nil {
		t.Errorf("UnverifiedClaims with no outputs = %v, want nil", got)
	}
}

func TestAskRunsToolLoop(t *testing.T) {
	model := testutil.NewMockModel("fallback")
	model.RespondWithTools("near ra 45",
		[]*ai.ToolRequest{{
			Name:  tools.ConeSearchName,
			Input: map[string]any{"ra": 45.0, "dec": 0.5, "radius": 0.5, "limit": 10},
		}},
		"Found 3 stars in that region.")

	a := newTestAgent(t, model, &fakeCatalog{
		stars: []catalog.Entry{{SourceID: 1, RA: 45.0, Dec: 0.5}},
		count: 3,
	})

	resp, err := a.Ask(context.Background(), "What stars are near RA 45, Dec 0.5?", nil)
	if err != nil {
		t.Fatalf("Ask() = %v", err)
	}
	if !strings.Contains(resp.Answer, "Found 3 stars") {
		t.Errorf("answer = %q", resp.Answer)
	}
	if strings.Contains(resp.Answer, "could not be verified") {
		t.Errorf("supported answer was flagged: %q", resp.Answer)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0].Tool != tools.ConeSearchName {
		t.Errorf("tools_used = %+v", resp.ToolsUsed)
	}
	if len(resp.ToolOutputs) != 1 || resp.ToolOutputs[0].Tool != tools.ConeSearchName {
		t.Errorf("tool_outputs = %+v", resp.ToolOutputs)
	}
}

func TestAskFlagsContradictedClaim(t *testing.T) {
	model := testutil.NewMockModel("fallback")
	model.RespondWithTools("how many stars",
		[]*ai.ToolRequest{{
			Name:  tools.CountStarsName,
			Input: map[string]any{"ra": 45.0, "dec": 0.5, "radius": 1.0},
		}},
		"There are exactly 9000 stars in that region.")

	a := newTestAgent(t, model, &fakeCatalog{count: 3})

	resp, err := a.Ask(context.Background(), "How many stars are near RA 45?", nil)
	if err != nil {
		t.Fatalf("Ask() = %v", err)
	}
	if !strings.Contains(resp.Answer, "could not be verified") || !strings.Contains(resp.Answer, "9000") {
		t.Errorf("contradicted claim not flagged: %q", resp.Answer)
	}
}

func TestAskEmptyQuery(t *testing.T) {
	a := newTestAgent(t, testutil.NewMockModel("fallback"), &fakeCatalog{})

	_, err := a.Ask(context.Background(), "   ", nil)
	if !errors.Is(err, ErrPlanning) {
		t.Fatalf("Ask(empty) = %v, want ErrPlanning", err)
	}
}

func TestAskCarriesHistory(t *testing.T) {
	model := testutil.NewMockModel("general answer")
	a := newTestAgent(t, model, &fakeCatalog{})

	history := []Message{
		{Role: RoleUser, Content: "Earlier question about the Pleiades."},
		{Role: RoleAssistant, Content: "Earlier answer."},
	}
	resp, err := a.Ask(context.Background(), "And how far away is it?", history)
	if err != nil {
		t.Fatalf("Ask() = %v", err)
	}
	if resp.Answer == "" {
		t.Error("empty answer")
	}
}
