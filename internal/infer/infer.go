package infer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skeinhq/skein/internal/cache"
	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/logging"
	"github.com/skeinhq/skein/internal/reason"
	"github.com/skeinhq/skein/pkg/models"
)

// Options tunes the hybrid inference pass.
type Options struct {
	// Enabled turns external consultation on. Patterns always run.
	Enabled bool
	// BatchSize caps how many pairs one reasoning call carries.
	BatchSize int
	// Concurrency bounds how many batches are in flight at once.
	Concurrency int
	// BatchTimeout bounds one reasoning call.
	BatchTimeout time.Duration
	// AcceptThreshold is the minimum external confidence worth acting on.
	AcceptThreshold float64
	// PatternThreshold is the confidence at which a pattern hit settles a
	// pair without consultation.
	PatternThreshold float64
	// AgreementBonus is added when both signals clear their thresholds and
	// agree on direction.
	AgreementBonus float64
	// MinSharedKeywords is how many salient keywords a pair must share to
	// count as ambiguous.
	MinSharedKeywords int
	// TTL is how long cached judgments stay valid.
	TTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 60 * time.Second
	}
	if o.AcceptThreshold <= 0 {
		o.AcceptThreshold = 0.6
	}
	if o.PatternThreshold <= 0 {
		o.PatternThreshold = 0.8
	}
	if o.AgreementBonus == 0 {
		o.AgreementBonus = 0.15
	}
	if o.MinSharedKeywords <= 0 {
		o.MinSharedKeywords = 2
	}
	if o.TTL == 0 {
		o.TTL = 24 * time.Hour
	}
	return o
}

// Result reports what one inference pass did.
type Result struct {
	PairsEvaluated int  `json:"pairs_evaluated"`
	AmbiguousPairs int  `json:"ambiguous_pairs"`
	EdgesAdded     int  `json:"edges_added"`
	PatternEdges   int  `json:"pattern_edges"`
	AIEdges        int  `json:"ai_edges"`
	Batches        int  `json:"batches"`
	CacheHits      int  `json:"cache_hits"`
	Degraded       bool `json:"degraded"`
}

// Inferer runs the pattern library over unrelated task pairs and consults
// the external judge for the ambiguous ones.
type Inferer struct {
	lib   *PatternLibrary
	judge reason.Judge
	store cache.Store
	opts  Options
	log   *logging.Logger
}

// New builds an Inferer. A nil judge disables consultation; a nil store
// falls back to an in-memory cache.
func New(lib *PatternLibrary, judge reason.Judge, store cache.Store, opts Options, log *logging.Logger) *Inferer {
	if lib == nil {
		lib = DefaultLibrary()
	}
	if store == nil {
		store = cache.NewMemory()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Inferer{lib: lib, judge: judge, store: store, opts: opts.withDefaults(), log: log}
}

type pairState struct {
	a, b      *models.Task
	match     *Match
	ambiguous bool
	verdict   *reason.Judgment
}

// Infer evaluates every unrelated pair and adds the winning edges to the
// graph. External failures never fail the pass; affected pairs fall back to
// their pattern result and the outcome is marked degraded.
func (inf *Inferer) Infer(ctx context.Context, g *graph.Graph) (*Result, error) {
	res := &Result{}
	pairs := inf.candidatePairs(g)
	res.PairsEvaluated = len(pairs)

	for _, ps := range pairs {
		if matches := inf.lib.Evaluate(ps.a, ps.b); len(matches) > 0 {
			m := matches[0]
			ps.match = &m
		}
		strong := ps.match != nil && ps.match.Confidence >= inf.opts.PatternThreshold
		if !strong && SharedSalient(SalientKeywords(ps.a), SalientKeywords(ps.b)) >= inf.opts.MinSharedKeywords {
			ps.ambiguous = true
			res.AmbiguousPairs++
		}
	}

	if inf.opts.Enabled && inf.judge != nil {
		inf.consult(ctx, pairs, res)
	} else if inf.opts.Enabled && res.AmbiguousPairs > 0 {
		res.Degraded = true
	}

	for _, ps := range pairs {
		edge := inf.combine(ps)
		if edge == nil {
			continue
		}
		inserted, err := g.AddEdge(edge)
		if err != nil {
			inf.log.Warn("inferred edge rejected", "from", edge.From, "to", edge.To, "error", err)
			continue
		}
		if inserted {
			res.EdgesAdded++
			if edge.HasSource(models.SourcePattern) {
				res.PatternEdges++
			}
			if edge.HasSource(models.SourceAI) {
				res.AIEdges++
			}
		}
	}

	inf.log.Info("dependency inference complete",
		"pairs", res.PairsEvaluated,
		"ambiguous", res.AmbiguousPairs,
		"edges_added", res.EdgesAdded,
		"cache_hits", res.CacheHits,
		"degraded", res.Degraded)
	return res, nil
}

// candidatePairs enumerates unordered pairs with no existing path between
// them in either direction.
func (inf *Inferer) candidatePairs(g *graph.Graph) []*pairState {
	tasks := g.Tasks()
	reach := reachability(g)
	var out []*pairState
	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			a, b := tasks[i], tasks[j]
			if reach[a.ID][b.ID] || reach[b.ID][a.ID] {
				continue
			}
			out = append(out, &pairState{a: a, b: b})
		}
	}
	return out
}

// reachability memoizes each node's transitive dependency set.
func reachability(g *graph.Graph) map[string]map[string]bool {
	ids, adj := g.Adjacency()
	memo := map[string]map[string]bool{}
	var visit func(id string) map[string]bool
	visit = func(id string) map[string]bool {
		if m, ok := memo[id]; ok {
			return m
		}
		m := map[string]bool{}
		memo[id] = m
		for _, dep := range adj[id] {
			m[dep] = true
			for r := range visit(dep) {
				m[r] = true
			}
		}
		return m
	}
	for _, id := range ids {
		visit(id)
	}
	return memo
}

// consult resolves ambiguous pairs through the cache and, on miss, batched
// judge calls. Batches run concurrently under a bounded limit; a failed
// batch leaves its pairs on their pattern result.
func (inf *Inferer) consult(ctx context.Context, pairs []*pairState, res *Result) {
	var pending []*pairState
	for _, ps := range pairs {
		if !ps.ambiguous {
			continue
		}
		if v, ok := inf.cachedVerdict(ps); ok {
			ps.verdict = v
			res.CacheHits++
			continue
		}
		pending = append(pending, ps)
	}
	if len(pending) == 0 {
		return
	}

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(inf.opts.Concurrency)
	for start := 0; start < len(pending); start += inf.opts.BatchSize {
		start := start
		end := start + inf.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		res.Batches++
		eg.Go(func() error {
			bctx, cancel := context.WithTimeout(egctx, inf.opts.BatchTimeout)
			defer cancel()

			reqs := make([]reason.Pair, len(batch))
			for i, ps := range batch {
				reqs[i] = reason.Pair{ID: pairID(ps), A: brief(ps.a), B: brief(ps.b)}
			}
			judgments, err := inf.judge.JudgePairs(bctx, reqs)
			if err != nil {
				mu.Lock()
				res.Degraded = true
				mu.Unlock()
				inf.log.Warn("judgment batch failed, keeping pattern results",
					"pairs", len(batch), "error", err)
				return nil
			}

			byID := map[string]reason.Judgment{}
			for _, jd := range judgments {
				byID[jd.PairID] = jd
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ps := range batch {
				if jd, ok := byID[pairID(ps)]; ok {
					v := jd
					ps.verdict = &v
					inf.storeVerdict(ps, &v)
				}
			}
			return nil
		})
	}
	eg.Wait()
}

// combine folds the pattern hit and the external verdict for one pair into
// at most one edge.
func (inf *Inferer) combine(ps *pairState) *models.DependencyEdge {
	pat := ps.match
	ai := ps.verdict

	aiPositive := ai != nil && ai.Depends && ai.Confidence >= inf.opts.AcceptThreshold
	aiNegative := ai != nil && !ai.Depends && ai.Confidence >= inf.opts.AcceptThreshold

	if pat == nil {
		if !aiPositive {
			return nil
		}
		return &models.DependencyEdge{
			From:       ai.From,
			To:         ai.To,
			Sources:    []models.EdgeSource{models.SourceAI},
			Confidence: ai.Confidence,
			Reason:     ai.Justification,
		}
	}
	if !aiPositive && !aiNegative {
		return patternEdge(pat)
	}

	if pat.Mandatory {
		if aiPositive && sameDirection(pat, ai) {
			return inf.agreementEdge(pat, ai)
		}
		return patternEdge(pat)
	}

	if aiNegative {
		if pat.Confidence >= inf.opts.PatternThreshold {
			return patternEdge(pat)
		}
		return nil
	}

	if sameDirection(pat, ai) {
		return inf.agreementEdge(pat, ai)
	}
	if pat.Confidence >= inf.opts.PatternThreshold {
		return patternEdge(pat)
	}
	return &models.DependencyEdge{
		From:       ai.From,
		To:         ai.To,
		Sources:    []models.EdgeSource{models.SourceAI},
		Confidence: ai.Confidence,
		Reason:     ai.Justification,
	}
}

func (inf *Inferer) agreementEdge(pat *Match, ai *reason.Judgment) *models.DependencyEdge {
	conf := math.Max(pat.Confidence, ai.Confidence)
	if pat.Confidence >= inf.opts.PatternThreshold && ai.Confidence >= inf.opts.AcceptThreshold {
		conf = math.Min(conf+inf.opts.AgreementBonus, 1.0)
	}
	reasonText := pat.Pattern
	if ai.Justification != "" {
		reasonText += "; " + ai.Justification
	}
	return &models.DependencyEdge{
		From:       pat.From,
		To:         pat.To,
		Sources:    []models.EdgeSource{models.SourcePattern, models.SourceAI},
		Confidence: conf,
		Mandatory:  pat.Mandatory,
		Reason:     reasonText,
	}
}

func patternEdge(m *Match) *models.DependencyEdge {
	return &models.DependencyEdge{
		From:       m.From,
		To:         m.To,
		Sources:    []models.EdgeSource{models.SourcePattern},
		Confidence: m.Confidence,
		Mandatory:  m.Mandatory,
		Reason:     m.Pattern,
	}
}

func sameDirection(pat *Match, ai *reason.Judgment) bool {
	return pat.From == ai.From && pat.To == ai.To
}

func pairID(ps *pairState) string {
	return ps.a.ID + "|" + ps.b.ID
}

func brief(t *models.Task) reason.TaskBrief {
	return reason.TaskBrief{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Phase:       string(t.Phase),
	}
}

const (
	directionFirst  = "first_depends_on_second"
	directionSecond = "second_depends_on_first"
)

// cachedJudgment is the stored form of a verdict. Direction is expressed
// relative to text sort order so the entry survives task id changes.
type cachedJudgment struct {
	Depends       bool    `json:"depends"`
	Direction     string  `json:"direction,omitempty"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification,omitempty"`
}

// pairCacheKey hashes the pair's task text, order-normalized so either
// orientation hits the same entry. swapped reports that b's text sorts
// first.
func pairCacheKey(a, b *models.Task) (key string, swapped bool) {
	first, second := a.Text(), b.Text()
	if second < first {
		first, second = second, first
		swapped = true
	}
	sum := sha256.Sum256([]byte(first + "\x00" + second))
	return hex.EncodeToString(sum[:]), swapped
}

func (inf *Inferer) cachedVerdict(ps *pairState) (*reason.Judgment, bool) {
	key, swapped := pairCacheKey(ps.a, ps.b)
	raw, ok, err := inf.store.Get(key)
	if err != nil {
		inf.log.Warn("judgment cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cj cachedJudgment
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, false
	}

	firstID, secondID := ps.a.ID, ps.b.ID
	if swapped {
		firstID, secondID = secondID, firstID
	}
	jd := &reason.Judgment{
		PairID:        pairID(ps),
		Depends:       cj.Depends,
		Confidence:    cj.Confidence,
		Justification: cj.Justification,
	}
	if cj.Depends {
		switch cj.Direction {
		case directionFirst:
			jd.From, jd.To = firstID, secondID
		case directionSecond:
			jd.From, jd.To = secondID, firstID
		default:
			return nil, false
		}
	}
	return jd, true
}

func (inf *Inferer) storeVerdict(ps *pairState, jd *reason.Judgment) {
	key, swapped := pairCacheKey(ps.a, ps.b)
	firstID := ps.a.ID
	if swapped {
		firstID = ps.b.ID
	}
	cj := cachedJudgment{
		Depends:       jd.Depends,
		Confidence:    jd.Confidence,
		Justification: jd.Justification,
	}
	if jd.Depends {
		if jd.From == firstID {
			cj.Direction = directionFirst
		} else {
			cj.Direction = directionSecond
		}
	}
	raw, err := json.Marshal(cj)
	if err != nil {
		return
	}
	if err := inf.store.Set(key, raw, inf.opts.TTL); err != nil {
		inf.log.Warn("judgment cache write failed", "error", err)
	}
}
