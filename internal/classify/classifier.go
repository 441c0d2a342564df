package classify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/pkg/models"
)

// Classification is the result of classifying one task.
type Classification struct {
	// Phase is the winning lifecycle phase.
	Phase models.Phase `json:"task_type"`
	// Confidence is the winner's share of the total match score (0-1).
	Confidence float64 `json:"confidence"`
	// Reason explains why this phase was selected.
	Reason string `json:"reasoning"`
	// MatchedTerms lists the keywords and pattern matches that scored.
	MatchedTerms []string `json:"matched_terms,omitempty"`
	// Alternatives ranks the other phases that also matched.
	Alternatives []Alternative `json:"alternatives,omitempty"`
	// NeedsReview flags classifications below the review threshold.
	NeedsReview bool `json:"needs_review,omitempty"`
}

// Alternative is a non-winning phase candidate.
type Alternative struct {
	Phase      models.Phase `json:"task_type"`
	Confidence float64      `json:"confidence"`
}

// BatchItem pairs a task ID with its classification.
type BatchItem struct {
	TaskID string `json:"task_id"`
	Classification
}

// BatchResult is the output of classifying a task list.
type BatchResult struct {
	Results          []BatchItem `json:"identifications"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
}

// Classifier scores task text against the active rule set. It is safe
// for concurrent use; SetRules swaps rules atomically for hot reload.
type Classifier struct {
	mu              sync.RWMutex
	rules           *Rules
	reviewThreshold float64
	log             *logging.Logger
}

// New creates a Classifier. A nil rules argument uses the built-in
// defaults; reviewThreshold <= 0 uses 0.5.
func New(rules *Rules, reviewThreshold float64, log *logging.Logger) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	if reviewThreshold <= 0 {
		reviewThreshold = 0.5
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Classifier{
		rules:           rules,
		reviewThreshold: reviewThreshold,
		log:             log.WithComponent("classifier"),
	}
}

// SetRules replaces the active rule set. Nil is ignored.
func (c *Classifier) SetRules(r *Rules) {
	if r == nil {
		return
	}
	c.mu.Lock()
	c.rules = r
	c.mu.Unlock()
}

// Classify assigns a phase to a single task. Tasks matching no rule
// default to implementation with zero confidence and a review flag.
func (c *Classifier) Classify(task *models.Task, pctx *models.ProjectContext) Classification {
	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	text := task.Text()

	type scored struct {
		phase models.Phase
		score float64
		terms []string
	}
	var scores []scored
	var total float64

	for _, pr := range rules.phases {
		s := scored{phase: pr.phase}
		for _, kw := range pr.keywords {
			if strings.Contains(text, kw) {
				s.score += rules.keywordWeight
				s.terms = append(s.terms, kw)
			}
		}
		for _, re := range pr.patterns {
			if m := re.FindString(text); m != "" {
				s.score += rules.patternWeight
				s.terms = append(s.terms, m)
			}
		}
		s.score *= pr.weight
		if s.score > 0 && contextMatches(pctx, pr.keywords) {
			s.score *= rules.contextBoost
		}
		if s.score > 0 {
			scores = append(scores, s)
			total += s.score
		}
	}

	if len(scores) == 0 {
		return Classification{
			Phase:       models.PhaseImplementation,
			Confidence:  0,
			Reason:      "no classification rule matched; defaulting to implementation",
			NeedsReview: true,
		}
	}

	// Ties go to the earlier lifecycle phase.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].phase.Order() < scores[j].phase.Order()
	})

	top := scores[0]
	conf := round2(top.score / total)
	cls := Classification{
		Phase:        top.phase,
		Confidence:   conf,
		Reason:       fmt.Sprintf("matched: %s", strings.Join(top.terms, ", ")),
		MatchedTerms: top.terms,
		NeedsReview:  conf < c.reviewThreshold,
	}
	for _, alt := range scores[1:] {
		cls.Alternatives = append(cls.Alternatives, Alternative{
			Phase:      alt.phase,
			Confidence: round2(alt.score / total),
		})
	}
	return cls
}

// ClassifyBatch classifies every task in input order and reports total
// processing time.
func (c *Classifier) ClassifyBatch(tasks []*models.Task, pctx *models.ProjectContext) BatchResult {
	start := time.Now()
	res := BatchResult{Results: make([]BatchItem, 0, len(tasks))}
	for _, task := range tasks {
		res.Results = append(res.Results, BatchItem{
			TaskID:         task.ID,
			Classification: c.Classify(task, pctx),
		})
	}
	res.ProcessingTimeMS = time.Since(start).Milliseconds()
	return res
}

// Apply classifies every task missing a valid phase, writing Phase and
// PhaseConfidence in place. Tasks that arrive with a valid phase keep
// it. Returns the classification for each task in input order.
func (c *Classifier) Apply(tasks []*models.Task, pctx *models.ProjectContext) []Classification {
	out := make([]Classification, len(tasks))
	for i, task := range tasks {
		if task.Phase.Valid() {
			if task.PhaseConfidence == 0 {
				task.PhaseConfidence = 1.0
			}
			out[i] = Classification{
				Phase:      task.Phase,
				Confidence: task.PhaseConfidence,
				Reason:     "phase provided by caller",
			}
			continue
		}
		cls := c.Classify(task, pctx)
		task.Phase = cls.Phase
		task.PhaseConfidence = cls.Confidence
		out[i] = cls
		if cls.NeedsReview {
			c.log.Warn("low confidence classification",
				"task_id", task.ID, "phase", cls.Phase, "confidence", cls.Confidence)
		}
	}
	return out
}

// TypicalDependencies returns the phases whose tasks typically precede
// the given phase, earliest first.
func TypicalDependencies(phase models.Phase) []models.Phase {
	return models.EarlierPhases(phase)
}

func contextMatches(pctx *models.ProjectContext, keywords []string) bool {
	if pctx == nil || len(pctx.TechStack) == 0 {
		return false
	}
	for _, term := range pctx.TechStack {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(kw, term) || strings.Contains(term, kw) {
				return true
			}
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
