package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ccs-host/controllers"
	"ccs-host/internal/config"
	"ccs-host/internal/models"
)

// effort levels ordered lowest to highest; also the set of recognized
// model-name suffixes
var effortLevels = []string{"minimal", "low", "medium", "high", "xhigh"}

const (
	secondaryTierEffort = "high"
	tertiaryTierEffort  = "low"
	recentRecordLimit   = 50
)

/**
 * ReasoningLink rewrites effort-suffixed model names into explicit
 * reasoning fields
 * @description
 * - "<model>-<effort>" becomes model "<model>" plus reasoning.effort
 * - Without a suffix, a per-model override wins, then the model's tier:
 *   secondary maps to high, tertiary to low, everything else to the
 *   configured default
 * - GET /__ccs/reasoning reports aggregate counts and the last 50
 *   rewrite decisions; bodies are never logged or recorded
 */
type ReasoningLink struct {
	baseLink
	cfg      config.ReasoningConfig
	upstream *url.URL

	// ExtraRoutes lets the assembler mount additional side-channel
	// endpoints on the outermost listener before it starts.
	ExtraRoutes func(*gin.Engine)

	mutex  sync.Mutex
	counts map[string]int64
	recent []models.RewriteRecord
}

// NewReasoningLink creates the effort-injection link in front of upstream.
func NewReasoningLink(cfg config.ReasoningConfig, upstreamBase string) (*ReasoningLink, error) {
	upstream, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, fmt.Errorf("parse reasoning upstream '%s': %w", upstreamBase, err)
	}
	return &ReasoningLink{
		baseLink: baseLink{name: "reasoning"},
		cfg:      cfg,
		upstream: upstream,
		counts:   make(map[string]int64),
	}, nil
}

/**
 * Split an effort suffix off a model name
 * @returns {string} Bare model name
 * @returns {string} Effort carried by the suffix, empty when none
 */
func splitEffortSuffix(model string) (string, string) {
	for _, effort := range effortLevels {
		if bare, found := strings.CutSuffix(model, "-"+effort); found && bare != "" {
			return bare, effort
		}
	}
	return model, ""
}

// tierEffort resolves the effort for a model with no suffix and no
// per-model override.
func (l *ReasoningLink) tierEffort(model string) string {
	for _, m := range l.cfg.SecondaryTier {
		if m == model {
			return secondaryTierEffort
		}
	}
	for _, m := range l.cfg.TertiaryTier {
		if m == model {
			return tertiaryTierEffort
		}
	}
	return l.cfg.DefaultEffort
}

func (l *ReasoningLink) resolveEffort(model string) (string, string) {
	bare, effort := splitEffortSuffix(model)
	if effort != "" {
		return bare, effort
	}
	if override, ok := l.cfg.ModelEfforts[model]; ok && override != "" {
		return model, override
	}
	return model, l.tierEffort(model)
}

func (l *ReasoningLink) record(path, modelIn, modelOut, effort string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.counts[effort]++
	l.recent = append(l.recent, models.RewriteRecord{
		ModelIn:  modelIn,
		ModelOut: modelOut,
		Effort:   effort,
		Path:     path,
		Time:     time.Now(),
	})
	if len(l.recent) > recentRecordLimit {
		l.recent = l.recent[len(l.recent)-recentRecordLimit:]
	}
}

func (l *ReasoningLink) rewrite(path string, body map[string]interface{}) bool {
	model, ok := body["model"].(string)
	if !ok || model == "" {
		return false
	}

	bare, effort := l.resolveEffort(model)
	body["model"] = bare
	if reasoning, ok := body["reasoning"].(map[string]interface{}); ok {
		reasoning["effort"] = effort
	} else {
		body["reasoning"] = map[string]interface{}{"effort": effort}
	}

	l.record(path, model, bare, effort)
	return true
}

// Snapshot returns a copy of the rewrite activity for the side channel.
func (l *ReasoningLink) Snapshot() models.ReasoningStatus {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	counts := make(map[string]int64, len(l.counts))
	for k, v := range l.counts {
		counts[k] = v
	}
	recent := make([]models.RewriteRecord, len(l.recent))
	copy(recent, l.recent)

	return models.ReasoningStatus{
		Counts:        counts,
		Recent:        recent,
		ModelMap:      l.cfg.ModelEfforts,
		DefaultEffort: l.cfg.DefaultEffort,
	}
}

func (l *ReasoningLink) Start(ctx context.Context) (int, error) {
	fwd := newForwarder(l.upstream, http.DefaultTransport)
	fwd.rewriteRequest = l.rewrite

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/__ccs/reasoning", controllers.NewReasoningController(l).Status)
	if l.ExtraRoutes != nil {
		l.ExtraRoutes(engine)
	}
	engine.NoRoute(fwd.handle)
	return l.start(engine)
}
