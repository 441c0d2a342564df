package reason

import (
	"testing"

	"github.com/skeinhq/skein/internal/logging"
)

func TestParseJudgments(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		got, err := ParseJudgments(`[{"pair_id":"p1","depends":true,"from":"a","to":"b","confidence":0.9,"justification":"b produces a's input"}]`)
		if err != nil {
			t.Fatalf("ParseJudgments: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
		if got[0].PairID != "p1" || !got[0].Depends || got[0].From != "a" || got[0].To != "b" {
			t.Errorf("judgment = %+v", got[0])
		}
		if got[0].Confidence != 0.9 {
			t.Errorf("Confidence = %v, want 0.9", got[0].Confidence)
		}
	})

	t.Run("fenced with prose", func(t *testing.T) {
		response := "Here are the judgments:\n```json\n[{\"pair_id\":\"p1\",\"depends\":false,\"confidence\":0.4}]\n```\nLet me know if you need more."
		got, err := ParseJudgments(response)
		if err != nil {
			t.Fatalf("ParseJudgments: %v", err)
		}
		if len(got) != 1 || got[0].Depends {
			t.Errorf("judgments = %+v", got)
		}
	})

	t.Run("no array", func(t *testing.T) {
		if _, err := ParseJudgments("I cannot decide."); err == nil {
			t.Fatal("expected error for response without JSON array")
		}
	})

	t.Run("malformed array", func(t *testing.T) {
		if _, err := ParseJudgments(`[{"pair_id": }]`); err == nil {
			t.Fatal("expected error for malformed JSON")
		}
	})
}

func TestFilterJudgments(t *testing.T) {
	pairs := []Pair{
		{ID: "p1", A: TaskBrief{ID: "impl-001"}, B: TaskBrief{ID: "test-001"}},
		{ID: "p2", A: TaskBrief{ID: "api-001"}, B: TaskBrief{ID: "ui-001"}},
	}
	judgments := []Judgment{
		{PairID: "p1", Depends: true, From: "test-001", To: "impl-001", Confidence: 0.8},
		{PairID: "p2", Depends: true, From: "ui-001", To: "db-001", Confidence: 0.7},
		{PairID: "p9", Depends: false, Confidence: 0.5},
		{PairID: "p2", Depends: false, Confidence: 1.4},
	}

	got := filterJudgments(pairs, judgments, logging.Nop())
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].PairID != "p1" || got[0].From != "test-001" {
		t.Errorf("kept judgment = %+v", got[0])
	}
	if got[1].PairID != "p2" || got[1].Confidence != 1.0 {
		t.Errorf("clamped judgment = %+v", got[1])
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1000, 500)
	tr.Add(200, 100)

	in, out := tr.Total()
	if in != 1200 || out != 600 {
		t.Errorf("Total = %d, %d, want 1200, 600", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", tr.Calls())
	}
	if cost := tr.Cost(); cost <= 0 {
		t.Errorf("Cost = %v, want positive", cost)
	}

	tr.Reset()
	in, out = tr.Total()
	if in != 0 || out != 0 || tr.Calls() != 0 {
		t.Errorf("after Reset: in=%d out=%d calls=%d", in, out, tr.Calls())
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-5-20250929")
	if got != "us.anthropic.claude-sonnet-4-5-20250929-v1:0" {
		t.Errorf("translateModelForBedrock = %q", got)
	}

	custom := translateModelForBedrock("us.anthropic.custom-model-v1:0")
	if custom != "us.anthropic.custom-model-v1:0" {
		t.Errorf("custom model rewritten to %q", custom)
	}
}
