package game

import (
	"time"

	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
)

// flightRoute is one flavor event of the flight faucet with its payout
// bounds.
type flightRoute struct {
	text     string
	min, max int
}

var flightRoutes = []flightRoute{
	{"短途路线", 50, 70},
	{"国际航班", 80, 100},
	{"平安抵达", 60, 80},
	{"遇到冷空气", 40, 60},
	{"顺利抵达", 70, 90},
}

// StartRush begins an idle-rush session. Growth and comparison refuse
// to run while a session is open.
func (gm *GameManager) StartRush(groupID, userID string) error {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return err
	}
	if record.IsRushing {
		return ErrAlreadyRushing
	}

	record.IsRushing = true
	record.RushStart = gm.now().Unix()
	gm.store.Save()
	return nil
}

// StopRush settles an idle-rush session. Sessions shorter than the
// minimum pay nothing; longer ones pay per elapsed minute, capped at
// the maximum duration, times a random multiplier.
func (gm *GameManager) StopRush(groupID, userID string) (*types.RushStopOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !record.IsRushing {
		return nil, ErrNotRushing
	}

	elapsed := gm.now().Unix() - record.RushStart
	record.IsRushing = false
	record.RushStart = 0

	if elapsed < int64(gm.cfg.Game.RushMinDuration) {
		gm.store.Save()
		return nil, ErrRushTooShort
	}
	if elapsed > int64(gm.cfg.Game.RushMaxDuration) {
		elapsed = int64(gm.cfg.Game.RushMaxDuration)
	}

	coins := int(elapsed/60) * gm.dice.Between(1, 2)
	record.Coins += coins
	gm.store.Save()

	gm.Logger.Info("Rush settled",
		zap.String("group_id", groupID),
		zap.String("user_id", userID),
		zap.Int64("elapsed_seconds", elapsed),
		zap.Int("coins", coins))

	return &types.RushStopOutcome{Nickname: record.Nickname, Coins: coins}, nil
}

// Flight runs the timed-flight faucet: one random flavor event with a
// route-specific payout, gated by a long per-user cooldown.
func (gm *GameManager) Flight(groupID, userID string) (*types.FlightOutcome, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	record, err := gm.activeUser(groupID, userID)
	if err != nil {
		return nil, err
	}

	now := gm.now()
	window := time.Duration(gm.cfg.Game.FlightCooldown) * time.Second
	if on, remaining := CheckCooldown(record.LastFly, window, now); on {
		return nil, &CooldownError{Remaining: remaining}
	}

	route := flightRoutes[gm.dice.Pick(len(flightRoutes))]
	coins := gm.dice.Between(route.min, route.max)
	record.Coins += coins
	record.LastFly = now.Unix()
	gm.store.Save()

	return &types.FlightOutcome{
		Nickname: record.Nickname,
		Route:    route.text,
		Coins:    coins,
	}, nil
}
