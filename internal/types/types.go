package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UserRecord is the persistent per-group, per-user game state.
// A record exists iff the user has registered in that group.
type UserRecord struct {
	Nickname  string         `yaml:"nickname"`
	Length    int            `yaml:"length"`
	Hardness  int            `yaml:"hardness"`
	Coins     int            `yaml:"coins"`
	Items     map[string]int `yaml:"items,omitempty"`
	IsRushing bool           `yaml:"is_rushing,omitempty"`
	RushStart int64          `yaml:"rush_start_time,omitempty"`
	LastFly   int64          `yaml:"last_fly_time,omitempty"`
}

// GroupState holds all registered users of one chat group plus the
// per-group feature gate.
type GroupState struct {
	Enabled bool                   `yaml:"enabled"`
	Users   map[string]*UserRecord `yaml:"users"`
}

// ItemEffect is either a map of stat deltas applied on purchase or a
// named tag consumed by the resolvers. In the catalog file the two are
// written as a mapping or a plain string respectively.
type ItemEffect struct {
	Stats map[string]int
	Tag   string
}

// UnmarshalYAML accepts both effect shapes.
func (e *ItemEffect) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&e.Tag)
	case yaml.MappingNode:
		return value.Decode(&e.Stats)
	}
	return fmt.Errorf("unsupported effect shape (line %d)", value.Line)
}

// MarshalYAML writes the effect back in its original shape.
func (e ItemEffect) MarshalYAML() (interface{}, error) {
	if e.Tag != "" {
		return e.Tag, nil
	}
	return e.Stats, nil
}

// IsZero reports whether the item carries no effect at all.
func (e ItemEffect) IsZero() bool {
	return e.Tag == "" && len(e.Stats) == 0
}

// Item types in the shop catalog.
const (
	ItemPassive = "passive"
	ItemActive  = "active"
)

// Effect tags consumed by the resolvers.
const (
	EffectPreventHalving = "prevent_halving"
	EffectBonusLoot      = "bonus_loot"
	EffectNoDeductOnFail = "no_deduct_on_fail"
	EffectNoCooldown     = "no_cooldown"
	EffectStealOrClear   = "steal_or_clear"
)

// ShopItem is one entry of the static catalog, optionally overridden by
// a merge-by-id overlay file.
type ShopItem struct {
	ID     int        `yaml:"id"`
	Name   string     `yaml:"name"`
	Type   string     `yaml:"type"`
	Price  int        `yaml:"price"`
	Desc   string     `yaml:"desc"`
	Max    int        `yaml:"max,omitempty"`
	Effect ItemEffect `yaml:"effect,omitempty"`
}

// IncomingMessage is what the transport hands to the command router.
type IncomingMessage struct {
	GroupID    string
	SenderID   string
	SenderName string
	Text       string
	Mentions   []string
}

// EvalBand is the qualitative length tier.
type EvalBand int

const (
	BandTiny EvalBand = iota
	BandShort
	BandMedium
	BandLong
	BandHuge
	BandLegend
)

// EvaluateLength maps a length onto its band. Thresholds are
// monotonically increasing; anything above the last one is legendary.
func EvaluateLength(length int) EvalBand {
	switch {
	case length <= 12:
		return BandTiny
	case length <= 24:
		return BandShort
	case length <= 36:
		return BandMedium
	case length <= 50:
		return BandLong
	case length <= 100:
		return BandHuge
	default:
		return BandLegend
	}
}

// GrowthKind tags the three branches of a growth draw.
type GrowthKind int

const (
	GrowthGain GrowthKind = iota
	GrowthLoss
	GrowthNone
)

// GrowthOutcome is the result of a single growth action (or one draw of
// the batch variant). Change is signed.
type GrowthOutcome struct {
	Kind     GrowthKind
	Change   int
	Length   int
	Bypassed bool
}

// BatchGrowthOutcome is the result of the ten-draw batch growth action.
type BatchGrowthOutcome struct {
	Draws  []GrowthOutcome
	Length int
	Band   EvalBand
}

// CompareKind tags how a comparison resolved.
type CompareKind int

const (
	CompareWin CompareKind = iota
	CompareLoss
	CompareStealAll
	CompareSelfClear
	CompareNoEffect
)

// CompareNote marks side effects appended to a comparison outcome.
type CompareNote int

const (
	NoteBonusLoot CompareNote = iota
	NoteUpsetBonus
	NoteSteal20
	NoteHardnessWin
	NoteNoGrowth
	NoteLossNullified
	NoteCloseMatch
	NoteBothHalved
	NoteLowHardness
	NoteActorSaved
	NoteTargetSaved
)

// CompareOutcome carries everything the renderer needs about one
// comparison. Amount fields are zero when the corresponding effect did
// not fire.
type CompareOutcome struct {
	Kind       CompareKind
	ActorName  string
	TargetName string

	// Standard-path amounts
	ActorGain  int
	LootExtra  int
	UpsetExtra int
	StealExtra int
	TargetLoss int
	TargetGain int
	ActorLoss  int

	// steal_or_clear amount taken from the target
	StolenAll int

	Notes []CompareNote

	ActorLength  int
	TargetLength int
}

// HasNote reports whether a note was appended to the outcome.
func (o *CompareOutcome) HasNote(n CompareNote) bool {
	for _, note := range o.Notes {
		if note == n {
			return true
		}
	}
	return false
}

// RegisterOutcome is the result of the registration action.
type RegisterOutcome struct {
	Nickname string
	Length   int
	Hardness int
	Already  bool
}

// StatusOutcome is the read-only self query.
type StatusOutcome struct {
	Nickname string
	Length   int
	Hardness int
	Band     EvalBand
}

// RankEntry is one row of a ranking view.
type RankEntry struct {
	Nickname string `json:"nickname"`
	Length   int    `json:"length"`
}

// RankOutcome holds the two truncated views over a group.
type RankOutcome struct {
	Strongest []RankEntry
	Weakest   []RankEntry
}

// PurchaseOutcome describes a successful shop purchase.
type PurchaseOutcome struct {
	Item       ShopItem
	ToInventory bool           // item landed in the inventory
	Applied     map[string]int // stat deltas applied, for active items
}

// InventoryLine is one held item with its catalog description.
type InventoryLine struct {
	Name  string
	Count int
	Desc  string
}

// InventoryOutcome lists held items plus the aggregated balance.
type InventoryOutcome struct {
	Items []InventoryLine
	Coins int
}

// RushStopOutcome is the settlement of the idle-rush faucet.
type RushStopOutcome struct {
	Nickname string
	Coins    int
}

// FlightOutcome is one run of the timed-flight faucet.
type FlightOutcome struct {
	Nickname string
	Route    string
	Coins    int
}
