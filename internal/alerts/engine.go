package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/incidentlens/incidentlens/internal/config"
	"github.com/incidentlens/incidentlens/internal/pipeline"
)

const (
	defaultCooldown = time.Hour
	maxHistoryLen   = 200
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID       string    `json:"id"`
	RuleName string    `json:"rule_name"`
	GroupKey string    `json:"group_key,omitempty"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	FiredAt  time.Time `json:"fired_at"`
}

// Engine evaluates alert rules against pipeline reports and delivers
// webhook notifications when rules fire.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently fired alerts, oldest first
	client   *http.Client
	now      func() time.Time
}

// New creates an Engine from the alert configuration. An Engine with
// empty rules is valid — Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// UpdateConfig swaps the rule and webhook sets, used on config hot
// reload. Cooldown state is kept so a reload cannot re-fire everything.
func (e *Engine) UpdateConfig(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks
}

// Evaluate tests all configured rules against rep. Alerts that fire are
// recorded and webhook delivery is triggered asynchronously. The fired
// alerts are returned for callers that want to surface them directly.
func (e *Engine) Evaluate(rep *pipeline.Report) []*Alert {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()

	var fired []*Alert
	for _, rule := range rules {
		fires, value, groupKey := evalCondition(rule.Condition, rep)
		if !fires {
			continue
		}

		e.mu.Lock()
		now := e.now()
		cooldown := rule.Cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		if now.Sub(e.lastFire[rule.Name]) <= cooldown {
			e.mu.Unlock()
			continue
		}

		sev := rule.Severity
		if sev == "" {
			sev = "warning"
		}
		a := &Alert{
			ID:       fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
			RuleName: rule.Name,
			GroupKey: groupKey,
			Severity: sev,
			Value:    value,
			Message:  message(rule, rep, value, groupKey),
			FiredAt:  now,
		}
		e.lastFire[rule.Name] = now
		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.mu.Unlock()

		slog.Warn("alert fired",
			"rule", rule.Name,
			"group_key", groupKey,
			"value", value,
			"severity", sev,
		)
		go e.deliver(&alertCopy)
		fired = append(fired, a)
	}
	return fired
}

// Recent returns copies of alerts fired within the past window, newest
// first.
func (e *Engine) Recent(window time.Duration) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-window)
	out := make([]*Alert, 0, len(e.history))
	for _, a := range e.history {
		if a.FiredAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

func message(rule config.AlertRule, rep *pipeline.Report, value float64, groupKey string) string {
	if groupKey != "" {
		return fmt.Sprintf("[%s] %s fired on key %s — %s = %.2f (run %s)",
			rule.Severity, rule.Name, groupKey, rule.Condition, value, rep.RunID)
	}
	return fmt.Sprintf("[%s] %s fired — %s = %.2f (run %s)",
		rule.Severity, rule.Name, rule.Condition, value, rep.RunID)
}
