package game

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/niuniu-bot/config"
	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// scriptRoller feeds predetermined draws to the resolvers. Exhausted
// queues fall back to the most conservative value so a test only has
// to script the draws it cares about.
type scriptRoller struct {
	floats   []float64
	chances  []bool
	ints     []int
	picks    []int
	chancePs []float64
}

func (s *scriptRoller) Float() float64 {
	if len(s.floats) == 0 {
		return 0.99
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptRoller) Chance(p float64) bool {
	s.chancePs = append(s.chancePs, p)
	if len(s.chances) == 0 {
		return false
	}
	v := s.chances[0]
	s.chances = s.chances[1:]
	return v
}

func (s *scriptRoller) Between(min, max int) int {
	if len(s.ints) == 0 {
		return min
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v
}

func (s *scriptRoller) Pick(n int) int {
	if len(s.picks) == 0 {
		return 0
	}
	v := s.picks[0]
	s.picks = s.picks[1:]
	return v
}

func newTestManager(t *testing.T) *GameManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Game.DataDir = t.TempDir()
	gm := NewGameManager(cfg, zap.NewNop())
	gm.store.Group("group1").Enabled = true
	return gm
}

func fixedClock(gm *GameManager, at time.Time) {
	// Timestamps are persisted at whole-second granularity, so pin the
	// clock to a whole second to keep remaining-cooldown math exact.
	at = at.Truncate(time.Second)
	gm.now = func() time.Time { return at }
}

func writeAdmins(t *testing.T, gm *GameManager, ids []string) {
	t.Helper()
	data, err := yaml.Marshal(ids)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(gm.admins.path, data, 0644))
}

func TestRegisterIsIdempotent(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{7}}

	out, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)
	assert.False(t, out.Already)
	assert.Equal(t, 7, out.Length)
	assert.Equal(t, 1, out.Hardness)

	again, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)
	assert.True(t, again.Already)
	assert.Equal(t, 7, again.Length)
}

func TestRegisterRequiresEnabledGroup(t *testing.T) {
	gm := newTestManager(t)

	_, err := gm.Register("group2", "u1", "Alice")
	assert.ErrorIs(t, err, ErrGroupDisabled)
}

func TestGrowOutcomes(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)

	base := time.Now()

	// Gain branch
	fixedClock(gm, base)
	gm.dice = &scriptRoller{floats: []float64{0.1}, ints: []int{4}}
	out, err := gm.Grow("group1", "u1")
	require.NoError(t, err)
	assert.Equal(t, types.GrowthGain, out.Kind)
	assert.Equal(t, 4, out.Change)
	assert.Equal(t, 9, out.Length)

	// Loss branch
	fixedClock(gm, base.Add(30*time.Second))
	gm.dice = &scriptRoller{floats: []float64{0.5}, ints: []int{2}}
	out, err = gm.Grow("group1", "u1")
	require.NoError(t, err)
	assert.Equal(t, types.GrowthLoss, out.Kind)
	assert.Equal(t, -2, out.Change)
	assert.Equal(t, 7, out.Length)

	// No-effect branch
	fixedClock(gm, base.Add(60*time.Second))
	gm.dice = &scriptRoller{floats: []float64{0.8}}
	out, err = gm.Grow("group1", "u1")
	require.NoError(t, err)
	assert.Equal(t, types.GrowthNone, out.Kind)
	assert.Equal(t, 7, out.Length)
}

func TestGrowHasNoLengthFloor(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{1}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)
	fixedClock(gm, time.Now())

	gm.dice = &scriptRoller{floats: []float64{0.5}, ints: []int{2}}
	out, err := gm.Grow("group1", "u1")
	require.NoError(t, err)
	assert.Equal(t, -1, out.Length)
}

func TestGrowCooldown(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)

	base := time.Now()
	fixedClock(gm, base)
	_, err = gm.Grow("group1", "u1")
	require.NoError(t, err)

	// Immediately again: blocked with the remaining wait
	_, err = gm.Grow("group1", "u1")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 30*time.Second, cd.Remaining)

	// Exactly at the window boundary the action runs again
	fixedClock(gm, base.Add(30*time.Second))
	_, err = gm.Grow("group1", "u1")
	assert.NoError(t, err)
}

func TestGrowCooldownBypassConsumesItem(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)

	record := gm.store.User("group1", "u1")
	record.Items["致命节奏"] = 1

	base := time.Now()
	fixedClock(gm, base)
	_, err = gm.Grow("group1", "u1")
	require.NoError(t, err)

	out, err := gm.Grow("group1", "u1")
	require.NoError(t, err)
	assert.True(t, out.Bypassed)
	assert.Zero(t, record.Items["致命节奏"])

	// Item gone, third attempt blocks
	_, err = gm.Grow("group1", "u1")
	var cd *CooldownError
	assert.ErrorAs(t, err, &cd)
}

func TestBatchGrowClampsEachDraw(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{1}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)
	fixedClock(gm, time.Now())

	// Ten loss draws against a length of 1: every draw clamps back to 1
	floats := make([]float64, 10)
	ints := make([]int, 10)
	for i := range floats {
		floats[i] = 0.5
		ints[i] = 2
	}
	gm.dice = &scriptRoller{floats: floats, ints: ints}

	out, err := gm.BatchGrow("group1", "u1")
	require.NoError(t, err)
	assert.Len(t, out.Draws, 10)
	assert.Equal(t, 1, out.Length)
	assert.Equal(t, types.BandTiny, out.Band)
}

func TestBatchGrowHasOwnCooldown(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)

	base := time.Now()
	fixedClock(gm, base)
	gm.dice = &scriptRoller{}
	_, err = gm.BatchGrow("group1", "u1")
	require.NoError(t, err)

	_, err = gm.BatchGrow("group1", "u1")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 60*time.Second, cd.Remaining)

	// The single-growth action runs on its own clock
	_, err = gm.Grow("group1", "u1")
	assert.NoError(t, err)
}

func registerPair(t *testing.T, gm *GameManager, aLen, aHard, tLen, tHard int) (*types.UserRecord, *types.UserRecord) {
	t.Helper()
	gm.dice = &scriptRoller{ints: []int{aLen, tLen}}
	_, err := gm.Register("group1", "actor", "Alice")
	require.NoError(t, err)
	_, err = gm.Register("group1", "target", "Bob")
	require.NoError(t, err)

	actor := gm.store.User("group1", "actor")
	target := gm.store.User("group1", "target")
	actor.Hardness = aHard
	target.Hardness = tHard
	return actor, target
}

func TestCompareWin(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 20, 5, 20, 5)
	fixedClock(gm, time.Now())

	gm.dice = &scriptRoller{chances: []bool{true}, ints: []int{3, 2}}
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CompareWin, out.Kind)
	assert.Equal(t, 3, out.ActorGain)
	assert.Equal(t, 2, out.TargetLoss)
	assert.Equal(t, 23, actor.Length)
	assert.Equal(t, 18, target.Length)
}

func TestCompareWinProbabilityClamps(t *testing.T) {
	gm := newTestManager(t)
	registerPair(t, gm, 20, 10, 20, 1)
	fixedClock(gm, time.Now())

	// Equal lengths, hardness gap 9: raw 0.95 clamps to the 0.8 cap
	dice := &scriptRoller{}
	gm.dice = dice
	_, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)
	require.NotEmpty(t, dice.chancePs)
	assert.InDelta(t, 0.8, dice.chancePs[0], 1e-9)
}

func TestCompareWinProbabilityFloor(t *testing.T) {
	gm := newTestManager(t)
	registerPair(t, gm, 20, 1, 20, 10)
	fixedClock(gm, time.Now())

	dice := &scriptRoller{}
	gm.dice = dice
	_, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)
	require.NotEmpty(t, dice.chancePs)
	assert.InDelta(t, 0.2, dice.chancePs[0], 1e-9)
}

func TestCompareUnderdogWinBonusChain(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 10, 1, 40, 5)
	actor.Items["淬火爪刀"] = 1
	fixedClock(gm, time.Now())

	gm.dice = &scriptRoller{chances: []bool{true}, ints: []int{1, 2, 5}}
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CompareWin, out.Kind)
	// Pre-deduction loot: 10% of the target's 40
	assert.Equal(t, 4, out.LootExtra)
	assert.True(t, out.HasNote(types.NoteBonusLoot))
	assert.Zero(t, actor.Items["淬火爪刀"])
	// Hardness upset bonus
	assert.Equal(t, 5, out.UpsetExtra)
	assert.True(t, out.HasNote(types.NoteUpsetBonus))
	// 20% transfer off the target's post-deduction 38
	assert.Equal(t, 7, out.StealExtra)
	assert.True(t, out.HasNote(types.NoteSteal20))

	assert.Equal(t, 10+1+4+5+7, actor.Length)
	assert.Equal(t, 40-2-7, target.Length)
}

func TestCompareLossNullifiedByItem(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 20, 5, 20, 5)
	actor.Items["余震"] = 1
	fixedClock(gm, time.Now())

	gm.dice = &scriptRoller{chances: []bool{false}, ints: []int{1, 2}}
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CompareLoss, out.Kind)
	assert.True(t, out.HasNote(types.NoteLossNullified))
	assert.Zero(t, out.ActorLoss)
	assert.Equal(t, 20, actor.Length)
	assert.Equal(t, 21, target.Length)
	assert.Zero(t, actor.Items["余震"])
}

func TestCompareHalvingRestoredByItem(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 20, 5, 26, 5)
	target.Items["妙脆角"] = 1
	fixedClock(gm, time.Now())

	// Loss path, no decay, then the mid-gap halving event fires
	gm.dice = &scriptRoller{chances: []bool{false, false, false, true}, ints: []int{0, 1}}
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.True(t, out.HasNote(types.NoteBothHalved))
	assert.True(t, out.HasNote(types.NoteTargetSaved))
	assert.False(t, out.HasNote(types.NoteActorSaved))
	assert.Equal(t, 9, actor.Length)
	assert.Equal(t, 26, target.Length)
	assert.Zero(t, target.Items["妙脆角"])
}

func TestCompareHardnessDecayFloorsAtOne(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 20, 1, 20, 2)
	fixedClock(gm, time.Now())

	// Both decay draws fire; the actor is already at the floor
	gm.dice = &scriptRoller{chances: []bool{false, true, true}, ints: []int{0, 1}}
	_, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, actor.Hardness)
	assert.Equal(t, 1, target.Hardness)
}

func TestCompareStealOrClearIsTerminal(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 10, 5, 30, 5)
	actor.Items["夺心魔蝌蚪罐头"] = 1
	fixedClock(gm, time.Now())

	dice := &scriptRoller{chances: []bool{true}}
	gm.dice = dice
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CompareStealAll, out.Kind)
	assert.Equal(t, 30, out.StolenAll)
	assert.Equal(t, 40, actor.Length)
	// The target is drained to zero, not clamped back to 1
	assert.Equal(t, 0, target.Length)
	assert.Zero(t, actor.Items["夺心魔蝌蚪罐头"])
	// Terminal path: only the single steal draw happened
	assert.Len(t, dice.chancePs, 1)
}

func TestCompareStealOrClearSelfClear(t *testing.T) {
	gm := newTestManager(t)
	actor, target := registerPair(t, gm, 10, 5, 30, 5)
	actor.Items["夺心魔蝌蚪罐头"] = 1
	fixedClock(gm, time.Now())

	gm.dice = &scriptRoller{chances: []bool{false, true}}
	out, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CompareSelfClear, out.Kind)
	assert.Equal(t, 0, actor.Length)
	assert.Equal(t, 30, target.Length)
}

func TestCompareTargetResolution(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5, 5, 5}}
	_, err := gm.Register("group1", "u1", "Alice")
	require.NoError(t, err)
	_, err = gm.Register("group1", "u2", "Bob One")
	require.NoError(t, err)
	_, err = gm.Register("group1", "u3", "Bob Two")
	require.NoError(t, err)
	fixedClock(gm, time.Now())
	gm.dice = &scriptRoller{}

	_, err = gm.Compare("group1", "u1", "zzz", nil)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = gm.Compare("group1", "u1", "bob", nil)
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = gm.Compare("group1", "u1", "ali", nil)
	assert.ErrorIs(t, err, ErrSelfCompare)

	_, err = gm.Compare("group1", "u1", "", nil)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	// An explicit mention overrides the query text
	_, err = gm.Compare("group1", "u1", "bob", []string{"u2"})
	assert.NoError(t, err)
}

func TestComparePairCooldown(t *testing.T) {
	gm := newTestManager(t)
	registerPair(t, gm, 20, 5, 20, 5)
	base := time.Now()
	fixedClock(gm, base)
	gm.dice = &scriptRoller{}

	_, err := gm.Compare("group1", "actor", "Bob", nil)
	require.NoError(t, err)

	_, err = gm.Compare("group1", "actor", "Bob", nil)
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)

	fixedClock(gm, base.Add(600*time.Second))
	_, err = gm.Compare("group1", "actor", "Bob", nil)
	assert.NoError(t, err)
}

func TestCompareWindowLimit(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5, 5, 5, 5, 5}}
	for _, u := range []struct{ id, name string }{
		{"u1", "Alice"}, {"u2", "Bravo"}, {"u3", "Carol"}, {"u4", "Delta"}, {"u5", "Echo"},
	} {
		_, err := gm.Register("group1", u.id, u.name)
		require.NoError(t, err)
	}
	base := time.Now()
	fixedClock(gm, base)
	gm.dice = &scriptRoller{}

	for _, target := range []string{"Bravo", "Carol", "Delta"} {
		_, err := gm.Compare("group1", "u1", target, nil)
		require.NoError(t, err)
	}

	// Fourth initiation inside the window is refused
	_, err := gm.Compare("group1", "u1", "Echo", nil)
	assert.ErrorIs(t, err, ErrCompareLimit)

	// A failed initiation does not consume a slot for later
	fixedClock(gm, base.Add(601*time.Second))
	_, err = gm.Compare("group1", "u1", "Echo", nil)
	assert.NoError(t, err)
}

func TestRankOrdering(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{30, 10, 20}}
	_, err := gm.Register("group1", "a", "A")
	require.NoError(t, err)
	_, err = gm.Register("group1", "b", "B")
	require.NoError(t, err)
	_, err = gm.Register("group1", "c", "C")
	require.NoError(t, err)

	out, err := gm.Rank("group1", 5)
	require.NoError(t, err)

	strongest := []string{}
	for _, e := range out.Strongest {
		strongest = append(strongest, e.Nickname)
	}
	weakest := []string{}
	for _, e := range out.Weakest {
		weakest = append(weakest, e.Nickname)
	}
	assert.Equal(t, []string{"A", "C", "B"}, strongest)
	assert.Equal(t, []string{"B", "C", "A"}, weakest)
}

func TestRankEmptyGroup(t *testing.T) {
	gm := newTestManager(t)

	_, err := gm.Rank("group1", 5)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRankTruncates(t *testing.T) {
	gm := newTestManager(t)
	lengths := []int{1, 2, 3, 4, 5, 6, 7}
	gm.dice = &scriptRoller{ints: lengths}
	for i := range lengths {
		_, err := gm.Register("group1", string(rune('a'+i)), string(rune('A'+i)))
		require.NoError(t, err)
	}

	out, err := gm.Rank("group1", 5)
	require.NoError(t, err)
	assert.Len(t, out.Strongest, 5)
	assert.Len(t, out.Weakest, 5)
}

func TestSetEnabledRequiresAdmin(t *testing.T) {
	gm := newTestManager(t)

	err := gm.SetEnabled("group2", "someone", true)
	assert.ErrorIs(t, err, ErrNotAdmin)

	writeAdmins(t, gm, []string{"boss"})
	require.NoError(t, gm.SetEnabled("group2", "boss", true))
	assert.True(t, gm.Enabled("group2"))

	require.NoError(t, gm.SetEnabled("group2", "boss", false))
	assert.False(t, gm.Enabled("group2"))
}

func TestObserveUpdatesNickname(t *testing.T) {
	gm := newTestManager(t)
	gm.dice = &scriptRoller{ints: []int{5}}
	_, err := gm.Register("group1", "u1", "OldName")
	require.NoError(t, err)

	gm.Observe("group1", "u1", "NewName")
	assert.Equal(t, "NewName", gm.store.User("group1", "u1").Nickname)

	// Unregistered users are not created by observation
	gm.Observe("group1", "ghost", "Ghost")
	assert.Nil(t, gm.store.User("group1", "ghost"))
}

func TestErrorsAreSentinels(t *testing.T) {
	gm := newTestManager(t)

	_, err := gm.Grow("group1", "nobody")
	assert.True(t, errors.Is(err, ErrNotRegistered))

	_, err = gm.Status("group2", "nobody")
	assert.True(t, errors.Is(err, ErrGroupDisabled))
}
