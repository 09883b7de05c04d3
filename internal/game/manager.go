package game

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/niuniu-bot/config"
	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
)

// batchDraws is the number of growth draws in one batch invocation.
const batchDraws = 10

// GameManager handles the game state and operations. Every public
// method serializes on the manager's lock: the host transport delivers
// events from multiple goroutines.
type GameManager struct {
	mu        sync.Mutex
	cfg       config.Config
	store     *StateStore
	cooldowns *CooldownStore
	compares  *CompareLimiter
	economy   *Economy
	catalog   *ShopCatalog
	admins    *AdminList
	dice      roller
	now       func() time.Time
	Logger    *zap.Logger
}

// NewGameManager builds the manager and loads every persisted store
// from the configured data directory.
func NewGameManager(cfg config.Config, logger *zap.Logger) *GameManager {
	dataDir := cfg.Game.DataDir
	store := NewStateStore(filepath.Join(dataDir, "niuniu_lengths.yml"), logger)
	catalog := LoadCatalog(filepath.Join(dataDir, "niuniu_shop.yml"), logger)
	sign := NewSignStore(filepath.Join(dataDir, "sign_data.yml"), logger)

	return &GameManager{
		cfg:       cfg,
		store:     store,
		cooldowns: NewCooldownStore(filepath.Join(dataDir, "niuniu_cooldowns.yml"), logger),
		compares: NewCompareLimiter(
			time.Duration(cfg.Game.CompareWindow)*time.Second,
			time.Duration(cfg.Game.CompareCooldown)*time.Second,
			cfg.Game.CompareLimit),
		economy: NewEconomy(store, sign, catalog, logger),
		catalog: catalog,
		admins:  NewAdminList(filepath.Join(dataDir, "admins.yml"), logger),
		dice:    NewDiceRoller(),
		now:     time.Now,
		Logger:  logger,
	}
}

// Catalog exposes the merged shop catalog.
func (gm *GameManager) Catalog() []types.ShopItem {
	return gm.catalog.Items()
}

// Enabled reports the group's feature gate.
func (gm *GameManager) Enabled(groupID string) bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.store.Group(groupID).Enabled
}

// Observe refreshes the last-seen nickname of a registered user. The
// nickname is display data, never an identity key.
func (gm *GameManager) Observe(groupID, userID, nickname string) {
	if nickname == "" {
		return
	}
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record := gm.store.User(groupID, userID)
	if record != nil && record.Nickname != nickname {
		record.Nickname = nickname
		gm.store.Save()
	}
}

// activeUser enforces the shared preconditions: the group gate is on
// and the user has registered.
func (gm *GameManager) activeUser(groupID, userID string) (*types.UserRecord, error) {
	group := gm.store.Group(groupID)
	if !group.Enabled {
		return nil, ErrGroupDisabled
	}
	record := group.Users[userID]
	if record == nil {
		return nil, ErrNotRegistered
	}
	return record, nil
}

// SetEnabled flips the per-group feature gate. Only listed admins may
// toggle it.
func (gm *GameManager) SetEnabled(groupID, userID string, enabled bool) error {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if !gm.admins.IsAdmin(userID) {
		return ErrNotAdmin
	}
	gm.store.Group(groupID).Enabled = enabled
	gm.store.Save()
	return nil
}

// Register creates the user's record with a random initial length and
// hardness 1. A second call leaves the record untouched.
func (gm *GameManager) Register(groupID, userID, nickname string) (*types.RegisterOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	group := gm.store.Group(groupID)
	if !group.Enabled {
		return nil, ErrGroupDisabled
	}
	if record, exists := group.Users[userID]; exists {
		return &types.RegisterOutcome{
			Nickname: record.Nickname,
			Length:   record.Length,
			Hardness: record.Hardness,
			Already:  true,
		}, nil
	}

	record := &types.UserRecord{
		Nickname: nickname,
		Length:   gm.dice.Between(gm.cfg.Game.MinLength, gm.cfg.Game.MaxLength),
		Hardness: 1,
		Items:    make(map[string]int),
	}
	group.Users[userID] = record
	gm.store.Save()

	gm.Logger.Info("User registered",
		zap.String("group_id", groupID),
		zap.String("user_id", userID),
		zap.Int("length", record.Length))

	return &types.RegisterOutcome{
		Nickname: nickname,
		Length:   record.Length,
		Hardness: record.Hardness,
	}, nil
}

// growOnce samples the 40/30/30 outcome distribution once and applies
// the change. The single growth action applies no lower clamp; the
// batch variant clamps each draw at 1.
func (gm *GameManager) growOnce(record *types.UserRecord, clamp bool) types.GrowthOutcome {
	out := types.GrowthOutcome{}
	switch p := gm.dice.Float(); {
	case p < 0.4:
		out.Kind = types.GrowthGain
		out.Change = gm.dice.Between(gm.cfg.Game.MinGain, gm.cfg.Game.MaxGain)
	case p < 0.7:
		out.Kind = types.GrowthLoss
		out.Change = -gm.dice.Between(gm.cfg.Game.MinLoss, gm.cfg.Game.MaxLoss)
	default:
		out.Kind = types.GrowthNone
	}

	record.Length += out.Change
	if clamp && record.Length < 1 {
		record.Length = 1
	}
	out.Length = record.Length
	return out
}

// Grow resolves the single growth action. When the cooldown is still
// running, holding the bypass item consumes it and lets the action
// through; this is the only gate an item can override.
func (gm *GameManager) Grow(groupID, userID string) (*types.GrowthOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return nil, err
	}
	if record.IsRushing {
		return nil, ErrRushing
	}

	now := gm.now()
	window := time.Duration(gm.cfg.Game.GrowCooldown) * time.Second
	bypassed := false
	if on, remaining := CheckCooldown(gm.cooldowns.Last(groupID, userID, ActionGrow), window, now); on {
		name, exists := gm.catalog.NameByTag(types.EffectNoCooldown)
		if !exists || !gm.economy.Consume(groupID, userID, name) {
			return nil, &CooldownError{Remaining: remaining}
		}
		bypassed = true
	}
	gm.cooldowns.Record(groupID, userID, ActionGrow, now)

	out := gm.growOnce(record, false)
	out.Bypassed = bypassed
	gm.store.Save()
	return &out, nil
}

// BatchGrow resolves the ten-draw batch growth action under its own
// cooldown window.
func (gm *GameManager) BatchGrow(groupID, userID string) (*types.BatchGrowthOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return nil, err
	}
	if record.IsRushing {
		return nil, ErrRushing
	}

	now := gm.now()
	window := time.Duration(gm.cfg.Game.BatchGrowCooldown) * time.Second
	if on, remaining := CheckCooldown(gm.cooldowns.Last(groupID, userID, ActionBatchGrow), window, now); on {
		return nil, &CooldownError{Remaining: remaining}
	}
	gm.cooldowns.Record(groupID, userID, ActionBatchGrow, now)

	out := &types.BatchGrowthOutcome{Draws: make([]types.GrowthOutcome, 0, batchDraws)}
	for i := 0; i < batchDraws; i++ {
		out.Draws = append(out.Draws, gm.growOnce(record, true))
	}
	out.Length = record.Length
	out.Band = types.EvaluateLength(record.Length)
	gm.store.Save()
	return out, nil
}

// resolveTarget picks the comparison target: an explicit mention wins,
// otherwise a case-insensitive substring match over the group's
// nicknames. Zero or multiple matches fail.
func (gm *GameManager) resolveTarget(group *types.GroupState, userID, query string, mentions []string) (string, error) {
	if len(mentions) > 0 {
		return mentions[0], nil
	}
	if query == "" {
		return "", ErrTargetNotFound
	}

	needle := strings.ToLower(query)
	var matches []string
	for id, record := range group.Users {
		if strings.Contains(strings.ToLower(record.Nickname), needle) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrTargetNotFound
	case 1:
		return matches[0], nil
	default:
		return "", ErrAmbiguousTarget
	}
}

// Compare resolves the PvP comparison action.
func (gm *GameManager) Compare(groupID, userID, targetQuery string, mentions []string) (*types.CompareOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	group := gm.store.Group(groupID)
	if !group.Enabled {
		return nil, ErrGroupDisabled
	}
	actor := group.Users[userID]
	if actor == nil {
		return nil, ErrNotRegistered
	}
	if actor.IsRushing {
		return nil, ErrRushing
	}

	targetID, err := gm.resolveTarget(group, userID, targetQuery, mentions)
	if err != nil {
		return nil, err
	}
	if targetID == userID {
		return nil, ErrSelfCompare
	}
	target := group.Users[targetID]
	if target == nil {
		return nil, ErrTargetNotRegistered
	}

	now := gm.now()
	if gm.compares.WindowFull(groupID, userID, now) {
		return nil, ErrCompareLimit
	}
	if ready, remaining := gm.compares.PairReady(groupID, userID, targetID, now); !ready {
		return nil, &CooldownError{Remaining: remaining}
	}
	gm.compares.Mark(groupID, userID, targetID, now)

	out := &types.CompareOutcome{
		ActorName:  actor.Nickname,
		TargetName: target.Nickname,
	}

	// The steal-or-clear item short-circuits the whole standard
	// resolution. Two sequential independent draws, consumed once.
	if name, exists := gm.catalog.NameByTag(types.EffectStealOrClear); exists && gm.economy.Consume(groupID, userID, name) {
		switch {
		case gm.dice.Chance(0.5):
			out.Kind = types.CompareStealAll
			out.StolenAll = target.Length
			actor.Length += target.Length
			target.Length = 0
		case gm.dice.Chance(0.1):
			out.Kind = types.CompareSelfClear
			actor.Length = 0
		default:
			out.Kind = types.CompareNoEffect
		}
		out.ActorLength = actor.Length
		out.TargetLength = target.Length
		gm.store.Save()
		return out, nil
	}

	gm.resolveStandardCompare(groupID, userID, targetID, actor, target, out)

	if actor.Length < 1 {
		actor.Length = 1
	}
	if target.Length < 1 {
		target.Length = 1
	}
	out.ActorLength = actor.Length
	out.TargetLength = target.Length
	gm.store.Save()
	return out, nil
}

// resolveStandardCompare runs the Bernoulli draw, the bonus-effect
// chain, the hardness decay and the chained special events.
func (gm *GameManager) resolveStandardCompare(groupID, userID, targetID string, actor, target *types.UserRecord, out *types.CompareOutcome) {
	aLen, tLen := actor.Length, target.Length
	aHard, tHard := actor.Hardness, target.Hardness
	gap := aLen - tLen
	if gap < 0 {
		gap = -gap
	}
	actorShorter := aLen < tLen

	denom := abs(aLen)
	if abs(tLen) > denom {
		denom = abs(tLen)
	}
	lengthFactor := 0.0
	if denom != 0 {
		lengthFactor = float64(aLen-tLen) / float64(denom) * 0.2
	}
	hardnessFactor := float64(aHard-tHard) * 0.05
	winProb := clampFloat(0.5+lengthFactor+hardnessFactor, 0.2, 0.8)

	if gm.dice.Chance(winProb) {
		out.Kind = types.CompareWin
		out.ActorGain = gm.dice.Between(gm.cfg.Game.MinBonus, gm.cfg.Game.MaxBonus)
		out.TargetLoss = gm.dice.Between(1, 2)
		preDeduction := target.Length
		actor.Length += out.ActorGain
		target.Length -= out.TargetLoss

		if gap > 10 && actorShorter {
			if name, exists := gm.catalog.NameByTag(types.EffectBonusLoot); exists && gm.economy.Consume(groupID, userID, name) {
				out.LootExtra = preDeduction / 10
				actor.Length += out.LootExtra
				out.Notes = append(out.Notes, types.NoteBonusLoot)
			}
		}
		if gap >= 20 && aHard < tHard {
			out.UpsetExtra = gm.dice.Between(0, 5)
			actor.Length += out.UpsetExtra
			out.Notes = append(out.Notes, types.NoteUpsetBonus)
		}
		if gap > 10 && actorShorter {
			out.StealExtra = target.Length / 5
			actor.Length += out.StealExtra
			target.Length -= out.StealExtra
			out.Notes = append(out.Notes, types.NoteSteal20)
		}
		if gap <= 5 && aHard > tHard {
			out.Notes = append(out.Notes, types.NoteHardnessWin)
		}
		if out.ActorGain+out.LootExtra+out.UpsetExtra+out.StealExtra == 0 {
			out.Notes = append(out.Notes, types.NoteNoGrowth)
		}
	} else {
		out.Kind = types.CompareLoss
		out.TargetGain = gm.dice.Between(gm.cfg.Game.MinBonus, gm.cfg.Game.MaxBonus)
		target.Length += out.TargetGain

		loss := gm.dice.Between(1, 2)
		if name, exists := gm.catalog.NameByTag(types.EffectNoDeductOnFail); exists && gm.economy.Consume(groupID, userID, name) {
			out.Notes = append(out.Notes, types.NoteLossNullified)
		} else {
			out.ActorLoss = loss
			actor.Length -= loss
		}
	}

	// Hardness decay: each party independently at 30%, floor 1.
	for _, record := range []*types.UserRecord{actor, target} {
		if gm.dice.Chance(0.3) && record.Hardness > 1 {
			record.Hardness--
		}
	}

	// Chained special events: only the first matching clause fires.
	switch {
	case gap <= 5:
		if gm.dice.Chance(0.075) {
			out.Notes = append(out.Notes, types.NoteCloseMatch)
		}
	case actor.Hardness <= 2 || target.Hardness <= 2:
		if gm.dice.Chance(0.05) {
			out.Notes = append(out.Notes, types.NoteLowHardness)
			gm.halveBoth(groupID, userID, targetID, actor, target, out)
		}
	case gap < 10:
		if gm.dice.Chance(0.025) {
			gm.halveBoth(groupID, userID, targetID, actor, target, out)
		}
	}
}

// halveBoth halves both lengths by integer division. A held
// halving-prevention item restores that party's pre-halving length and
// is consumed.
func (gm *GameManager) halveBoth(groupID, actorID, targetID string, actor, target *types.UserRecord, out *types.CompareOutcome) {
	out.Notes = append(out.Notes, types.NoteBothHalved)
	name, exists := gm.catalog.NameByTag(types.EffectPreventHalving)

	preActor, preTarget := actor.Length, target.Length
	actor.Length /= 2
	target.Length /= 2
	if exists && gm.economy.Consume(groupID, actorID, name) {
		actor.Length = preActor
		out.Notes = append(out.Notes, types.NoteActorSaved)
	}
	if exists && gm.economy.Consume(groupID, targetID, name) {
		target.Length = preTarget
		out.Notes = append(out.Notes, types.NoteTargetSaved)
	}
}

// Status is the read-only self query.
func (gm *GameManager) Status(groupID, userID string) (*types.StatusOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return nil, err
	}
	return &types.StatusOutcome{
		Nickname: record.Nickname,
		Length:   record.Length,
		Hardness: record.Hardness,
		Band:     types.EvaluateLength(record.Length),
	}, nil
}

// Rank returns the strongest and weakest views over a group, each
// truncated to topN. An empty group yields ErrNoData.
func (gm *GameManager) Rank(groupID string, topN int) (*types.RankOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	group := gm.store.Group(groupID)
	if !group.Enabled {
		return nil, ErrGroupDisabled
	}
	if len(group.Users) == 0 {
		return nil, ErrNoData
	}

	entries := make([]types.RankEntry, 0, len(group.Users))
	for _, record := range group.Users {
		entries = append(entries, types.RankEntry{
			Nickname: record.Nickname,
			Length:   record.Length,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Length > entries[j].Length })

	out := &types.RankOutcome{}
	out.Strongest = append(out.Strongest, entries[:minInt(topN, len(entries))]...)
	for i := len(entries) - 1; i >= 0 && len(out.Weakest) < topN; i-- {
		out.Weakest = append(out.Weakest, entries[i])
	}
	return out, nil
}

// Buy purchases a shop item for the user.
func (gm *GameManager) Buy(groupID, userID string, itemID int) (*types.PurchaseOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if _, err := gm.activeUser(groupID, userID); err != nil {
		return nil, err
	}
	return gm.economy.Purchase(groupID, userID, itemID)
}

// Inventory lists the user's held items and total balance.
func (gm *GameManager) Inventory(groupID, userID string) (*types.InventoryOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if _, err := gm.activeUser(groupID, userID); err != nil {
		return nil, err
	}
	return gm.economy.Inventory(groupID, userID)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
