package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragcore/internal/config"
	"github.com/xxxsen/ragcore/internal/model"
	appErr "github.com/xxxsen/ragcore/internal/pkg/errors"
)

const reinforceBatchLimit = 10000

// PolicyService owns the append-only policy history and the reinforcement
// step that derives new versions from feedback. Publication is single-writer;
// Current never blocks on it.
type PolicyService struct {
	store    PolicyStore
	feedback FeedbackStore
	cfg      config.PolicyConfig
	rcfg     config.ReinforceConfig

	publishMu sync.Mutex
	current   atomic.Pointer[model.PolicyVersion]
}

func NewPolicyService(store PolicyStore, feedback FeedbackStore, cfg config.PolicyConfig, rcfg config.ReinforceConfig) *PolicyService {
	return &PolicyService{
		store:    store,
		feedback: feedback,
		cfg:      cfg,
		rcfg:     rcfg,
	}
}

// Init publishes the conservative initial version if the history is empty
// and warms the current-version cache.
func (s *PolicyService) Init(ctx context.Context) error {
	latest, err := s.store.Latest(ctx)
	if err == nil {
		s.current.Store(latest)
		return nil
	}
	if !appErr.IsNotFound(err) {
		return err
	}
	initial := &model.PolicyVersion{
		TemplateID:         s.cfg.InitialTemplateID,
		ContextTokenBudget: s.cfg.InitialContextBudget,
		Ctime:              time.Now().UnixMilli(),
	}
	if err := s.store.Insert(ctx, initial); err != nil {
		return err
	}
	s.current.Store(initial)
	logutil.GetLogger(ctx).Info("initial policy published",
		zap.Int64("version", initial.Version),
		zap.String("template_id", initial.TemplateID),
		zap.Int("context_token_budget", initial.ContextTokenBudget),
	)
	return nil
}

// Current returns the latest published version.
func (s *PolicyService) Current(ctx context.Context) (*model.PolicyVersion, error) {
	if pv := s.current.Load(); pv != nil {
		return pv, nil
	}
	latest, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(latest)
	return latest, nil
}

func (s *PolicyService) GetByVersion(ctx context.Context, version int64) (*model.PolicyVersion, error) {
	return s.store.GetByVersion(ctx, version)
}

func (s *PolicyService) List(ctx context.Context, limit int) ([]model.PolicyVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

// Reinforce runs one learning step over feedback past the current version's
// watermark. It publishes at most one new version and reports whether it did.
// Insufficient or healthy feedback is a normal no-op, and the watermark makes
// repeated triggers idempotent: feedback consumed by a published version is
// never counted again.
func (s *PolicyService) Reinforce(ctx context.Context) (*model.PolicyVersion, bool, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	logger := logutil.GetLogger(ctx)

	cur, err := s.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	window, err := s.feedback.ListAfter(ctx, cur.FeedbackWatermark, reinforceBatchLimit)
	if err != nil {
		return nil, false, err
	}
	if len(window) == 0 {
		logger.Debug("reinforce: no feedback past watermark", zap.Int64("watermark", cur.FeedbackWatermark))
		return cur, false, nil
	}

	byVersion := make(map[int64]*versionStats)
	var watermark int64
	var comments []string
	for _, item := range window {
		stats, ok := byVersion[item.PolicyVersion]
		if !ok {
			stats = &versionStats{}
			byVersion[item.PolicyVersion] = stats
		}
		stats.count++
		stats.sum += int64(item.Feedback.Rating)
		if item.Feedback.Ctime > watermark {
			watermark = item.Feedback.Ctime
		}
		if item.PolicyVersion == cur.Version && item.Feedback.Comment != "" {
			comments = append(comments, item.Feedback.Comment)
		}
	}

	active := byVersion[cur.Version]
	var samples int64
	if active != nil {
		samples = active.count
	}
	if samples < int64(s.rcfg.MinSamples) {
		logger.Info("reinforce: sample below floor, declining to publish",
			zap.Int64("version", cur.Version),
			zap.Int64("samples", samples),
			zap.Int("min_samples", s.rcfg.MinSamples),
		)
		return cur, false, nil
	}
	mean := float64(active.sum) / float64(active.count)
	if mean >= s.rcfg.RatingFloor {
		logger.Info("reinforce: active policy healthy",
			zap.Int64("version", cur.Version),
			zap.Float64("mean_rating", mean),
			zap.Float64("floor", s.rcfg.RatingFloor),
		)
		return cur, false, nil
	}

	// Active version underperforms: derive a candidate that moves exactly
	// one tunable. Comments that clearly point at context size adjust the
	// budget; otherwise switch to the most promising template.
	candidate := &model.PolicyVersion{
		TemplateID:         cur.TemplateID,
		ContextTokenBudget: cur.ContextTokenBudget,
		SourceBias:         cur.SourceBias,
		FeedbackWatermark:  watermark,
		Ctime:              time.Now().UnixMilli(),
	}
	if direction := budgetDirection(comments); direction != 0 {
		candidate.ContextTokenBudget = clampBudget(
			cur.ContextTokenBudget+direction*s.cfg.BudgetStep,
			s.cfg.MinContextBudget,
			s.cfg.MaxContextBudget,
		)
	} else {
		candidate.TemplateID = s.pickTemplate(ctx, cur, byVersion)
	}
	if candidate.TemplateID == cur.TemplateID && candidate.ContextTokenBudget == cur.ContextTokenBudget {
		logger.Info("reinforce: no viable candidate, keeping current policy", zap.Int64("version", cur.Version))
		return cur, false, nil
	}

	if err := s.store.Insert(ctx, candidate); err != nil {
		return nil, false, err
	}
	s.current.Store(candidate)
	logger.Info("reinforce: new policy published",
		zap.Int64("version", candidate.Version),
		zap.Int64("derived_from", cur.Version),
		zap.Float64("mean_rating", mean),
		zap.String("template_id", candidate.TemplateID),
		zap.Int("context_token_budget", candidate.ContextTokenBudget),
		zap.Int64("feedback_watermark", candidate.FeedbackWatermark),
	)
	return candidate, true, nil
}

type versionStats struct {
	count int64
	sum   int64
}

func (v *versionStats) mean() float64 {
	if v == nil || v.count == 0 {
		return 0
	}
	return float64(v.sum) / float64(v.count)
}

// pickTemplate prefers the template with the best observed mean rating in
// the window; with no better-rated alternative it explores the next
// configured template after the current one.
func (s *PolicyService) pickTemplate(ctx context.Context, cur *model.PolicyVersion, byVersion map[int64]*versionStats) string {
	means := make(map[string]*versionStats)
	for version, stats := range byVersion {
		templateID := cur.TemplateID
		if version != cur.Version {
			pv, err := s.store.GetByVersion(ctx, version)
			if err != nil {
				continue
			}
			templateID = pv.TemplateID
		}
		agg, ok := means[templateID]
		if !ok {
			agg = &versionStats{}
			means[templateID] = agg
		}
		agg.count += stats.count
		agg.sum += stats.sum
	}

	curMean := means[cur.TemplateID].mean()
	best := ""
	bestMean := curMean
	for _, tmpl := range s.cfg.Templates {
		if tmpl == cur.TemplateID {
			continue
		}
		agg := means[tmpl]
		if agg == nil || agg.count == 0 {
			continue
		}
		if agg.mean() > bestMean {
			best = tmpl
			bestMean = agg.mean()
		}
	}
	if best != "" {
		return best
	}
	// No better-rated alternative observed: explore the next template.
	for i, tmpl := range s.cfg.Templates {
		if tmpl == cur.TemplateID {
			return s.cfg.Templates[(i+1)%len(s.cfg.Templates)]
		}
	}
	if len(s.cfg.Templates) > 0 {
		return s.cfg.Templates[0]
	}
	return cur.TemplateID
}

func budgetDirection(comments []string) int {
	shrink := 0
	grow := 0
	for _, comment := range comments {
		lower := strings.ToLower(comment)
		switch {
		case strings.Contains(lower, "too long") || strings.Contains(lower, "verbose") || strings.Contains(lower, "irrelevant") || strings.Contains(lower, "off topic"):
			shrink++
		case strings.Contains(lower, "more detail") || strings.Contains(lower, "incomplete") || strings.Contains(lower, "missing") || strings.Contains(lower, "too short"):
			grow++
		}
	}
	if shrink > grow {
		return -1
	}
	if grow > shrink {
		return 1
	}
	return 0
}

func clampBudget(budget, min, max int) int {
	if budget < min {
		return min
	}
	if budget > max {
		return max
	}
	return budget
}
