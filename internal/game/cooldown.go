package game

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Action names used as cooldown keys.
const (
	ActionGrow      = "grow"
	ActionBatchGrow = "batch_grow"
)

// CheckCooldown is a pure function of a stored timestamp, a window and
// the current time. remaining is zero when the window has elapsed.
func CheckCooldown(last int64, window time.Duration, now time.Time) (bool, time.Duration) {
	if last == 0 {
		return false, 0
	}
	elapsed := now.Sub(time.Unix(last, 0))
	if elapsed >= window {
		return false, 0
	}
	return true, window - elapsed
}

// CooldownStore persists the last-invocation timestamp per
// (group, user, action). Entries are overwritten, never deleted; stale
// ones are harmless because they are only consulted when the same
// action recurs.
type CooldownStore struct {
	path   string
	logger *zap.Logger
	stamps map[string]map[string]map[string]int64
}

// NewCooldownStore loads the cooldown file, tolerating a missing or
// unreadable one.
func NewCooldownStore(path string, logger *zap.Logger) *CooldownStore {
	c := &CooldownStore{
		path:   path,
		logger: logger,
		stamps: make(map[string]map[string]map[string]int64),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("Failed to read cooldown file", zap.Error(err))
		}
		return c
	}
	if err := yaml.Unmarshal(data, &c.stamps); err != nil {
		logger.Error("Cooldown file unreadable, starting fresh", zap.Error(err))
		c.stamps = make(map[string]map[string]map[string]int64)
	}
	return c
}

// Last returns the stored timestamp, zero when the action never ran.
func (c *CooldownStore) Last(groupID, userID, action string) int64 {
	return c.stamps[groupID][userID][action]
}

// Record overwrites the timestamp unconditionally and persists.
func (c *CooldownStore) Record(groupID, userID, action string, now time.Time) {
	group, exists := c.stamps[groupID]
	if !exists {
		group = make(map[string]map[string]int64)
		c.stamps[groupID] = group
	}
	user, exists := group[userID]
	if !exists {
		user = make(map[string]int64)
		group[userID] = user
	}
	user[action] = now.Unix()
	c.save()
}

func (c *CooldownStore) save() {
	data, err := yaml.Marshal(c.stamps)
	if err != nil {
		c.logger.Error("Failed to marshal cooldowns", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		c.logger.Error("Failed to persist cooldowns", zap.Error(err))
	}
}

// compareWindow tracks one initiator: per-target stamps plus the
// rolling-window counter anchored at the last successful comparison.
type compareWindow struct {
	targets  map[string]int64
	count    int
	lastTime int64
}

// CompareLimiter enforces the per-pair cooldown and the rolling
// "at most N comparisons per window" cap per initiator. It is not
// persisted; a restart forgives pending cooldowns, as the original did.
type CompareLimiter struct {
	window time.Duration
	pair   time.Duration
	limit  int
	groups map[string]map[string]*compareWindow
}

// NewCompareLimiter builds a limiter with the given rolling window,
// per-pair cooldown and window cap.
func NewCompareLimiter(window, pair time.Duration, limit int) *CompareLimiter {
	return &CompareLimiter{
		window: window,
		pair:   pair,
		limit:  limit,
		groups: make(map[string]map[string]*compareWindow),
	}
}

func (l *CompareLimiter) entry(groupID, userID string) *compareWindow {
	group, exists := l.groups[groupID]
	if !exists {
		group = make(map[string]*compareWindow)
		l.groups[groupID] = group
	}
	w, exists := group[userID]
	if !exists {
		w = &compareWindow{targets: make(map[string]int64)}
		group[userID] = w
	}
	return w
}

// WindowFull reports whether the initiator has exhausted the rolling
// window. The counter resets once the window anchor has expired.
func (l *CompareLimiter) WindowFull(groupID, userID string, now time.Time) bool {
	w := l.entry(groupID, userID)
	if now.Sub(time.Unix(w.lastTime, 0)) > l.window {
		return false
	}
	return w.count >= l.limit
}

// PairReady checks the initiator→target cooldown.
func (l *CompareLimiter) PairReady(groupID, userID, targetID string, now time.Time) (bool, time.Duration) {
	w := l.entry(groupID, userID)
	on, remaining := CheckCooldown(w.targets[targetID], l.pair, now)
	return !on, remaining
}

// Mark consumes one window slot and stamps the pair. Called only once a
// comparison actually reaches the resolution stage.
func (l *CompareLimiter) Mark(groupID, userID, targetID string, now time.Time) {
	w := l.entry(groupID, userID)
	if now.Sub(time.Unix(w.lastTime, 0)) > l.window {
		w.count = 0
	}
	w.count++
	w.lastTime = now.Unix()
	w.targets[targetID] = now.Unix()
}
