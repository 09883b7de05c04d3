package game

import (
	"fmt"
	"os"

	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// signRecord mirrors the sign-in collaborator's per-user entry.
type signRecord struct {
	Coins int `yaml:"coins"`
}

// SignStore reads and writes the sign-in subsystem's currency file.
// That file is collaborator-owned, so it is re-read on every access
// instead of being cached.
type SignStore struct {
	path   string
	logger *zap.Logger
}

// NewSignStore points at the sign-in currency file.
func NewSignStore(path string, logger *zap.Logger) *SignStore {
	return &SignStore{path: path, logger: logger}
}

func (s *SignStore) read() map[string]map[string]*signRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read sign-in store", zap.Error(err))
		}
		return make(map[string]map[string]*signRecord)
	}
	records := make(map[string]map[string]*signRecord)
	if err := yaml.Unmarshal(data, &records); err != nil {
		s.logger.Error("Failed to parse sign-in store", zap.Error(err))
		return make(map[string]map[string]*signRecord)
	}
	return records
}

// Coins returns the external balance for (group, user).
func (s *SignStore) Coins(groupID, userID string) int {
	group, exists := s.read()[groupID]
	if !exists {
		return 0
	}
	record, exists := group[userID]
	if !exists {
		return 0
	}
	return record.Coins
}

// SetCoins writes the external balance back. Failures are logged and
// swallowed like every other persistence error.
func (s *SignStore) SetCoins(groupID, userID string, coins int) {
	records := s.read()
	group, exists := records[groupID]
	if !exists {
		group = make(map[string]*signRecord)
		records[groupID] = group
	}
	record, exists := group[userID]
	if !exists {
		record = &signRecord{}
		group[userID] = record
	}
	record.Coins = coins

	data, err := yaml.Marshal(records)
	if err != nil {
		s.logger.Error("Failed to marshal sign-in store", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.logger.Error("Failed to persist sign-in store", zap.Error(err))
	}
}

// Economy manages the dual-sourced currency and the item inventory.
// Callers hold the game manager's lock.
type Economy struct {
	store   *StateStore
	sign    *SignStore
	catalog *ShopCatalog
	logger  *zap.Logger
}

// NewEconomy wires the economy over the state store, the sign-in
// collaborator store and the item catalog.
func NewEconomy(store *StateStore, sign *SignStore, catalog *ShopCatalog, logger *zap.Logger) *Economy {
	return &Economy{store: store, sign: sign, catalog: catalog, logger: logger}
}

// Balance is the sum of the local balance and the sign-in balance.
func (e *Economy) Balance(groupID, userID string) int {
	local := 0
	if record := e.store.User(groupID, userID); record != nil {
		local = record.Coins
	}
	return local + e.sign.Coins(groupID, userID)
}

// SetBalance moves the total balance to newTotal, draining the local
// balance first and spilling into the sign-in store only once the local
// balance is exhausted. Credits land on the local balance.
func (e *Economy) SetBalance(groupID, userID string, newTotal int) {
	record := e.store.User(groupID, userID)
	if record == nil {
		return
	}

	spend := e.Balance(groupID, userID) - newTotal
	if record.Coins >= spend {
		record.Coins -= spend
	} else {
		remaining := spend - record.Coins
		record.Coins = 0
		e.sign.SetCoins(groupID, userID, e.sign.Coins(groupID, userID)-remaining)
	}
	e.store.Save()
}

// Credit adds coins to the local balance.
func (e *Economy) Credit(groupID, userID string, coins int) {
	record := e.store.User(groupID, userID)
	if record == nil {
		return
	}
	record.Coins += coins
	e.store.Save()
}

// Purchase validates the balance, applies the item and debits the
// price. The debit happens strictly after the effect block: a failed
// effect application never charges the user.
func (e *Economy) Purchase(groupID, userID string, itemID int) (*types.PurchaseOutcome, error) {
	item, exists := e.catalog.ByID(itemID)
	if !exists {
		return nil, ErrUnknownItem
	}
	record := e.store.User(groupID, userID)
	if record == nil {
		return nil, ErrNotRegistered
	}

	balance := e.Balance(groupID, userID)
	if balance < item.Price {
		return nil, ErrInsufficientCoins
	}

	outcome := &types.PurchaseOutcome{Item: item}
	if item.Type == types.ItemPassive || item.Effect.Tag != "" {
		// Tagged items are held and consumed later by the resolvers,
		// regardless of their declared type.
		max := item.Max
		if max == 0 && item.Type == types.ItemPassive {
			max = 3
		}
		held := record.Items[item.Name]
		if max > 0 && held >= max {
			return nil, ErrItemMaxed
		}
		record.Items[item.Name] = held + 1
		outcome.ToInventory = true
	} else {
		applied, err := applyStatDeltas(record, item.Effect.Stats)
		if err != nil {
			e.logger.Error("Purchase effect application failed",
				zap.Int("item_id", item.ID),
				zap.String("item", item.Name),
				zap.Error(err))
			return nil, ErrPurchaseFailed
		}
		outcome.Applied = applied
	}

	e.SetBalance(groupID, userID, balance-item.Price)
	e.store.Save()
	return outcome, nil
}

// applyStatDeltas mutates the record per the item's stat map. Purchase
// effects deliberately skip the hardness clamp. An unknown stat aborts
// before anything is touched.
func applyStatDeltas(record *types.UserRecord, stats map[string]int) (map[string]int, error) {
	for stat := range stats {
		switch stat {
		case "length", "hardness", "coins":
		default:
			return nil, fmt.Errorf("unknown stat %q", stat)
		}
	}

	applied := make(map[string]int, len(stats))
	for stat, delta := range stats {
		switch stat {
		case "length":
			record.Length += delta
		case "hardness":
			record.Hardness += delta
		case "coins":
			record.Coins += delta
		}
		applied[stat] = delta
	}
	return applied, nil
}

// Consume decrements a held item by one, deleting the key at zero, and
// reports whether consumption occurred.
func (e *Economy) Consume(groupID, userID, itemName string) bool {
	record := e.store.User(groupID, userID)
	if record == nil {
		return false
	}
	if record.Items[itemName] <= 0 {
		return false
	}
	record.Items[itemName]--
	if record.Items[itemName] == 0 {
		delete(record.Items, itemName)
	}
	e.store.Save()
	return true
}

// Holds reports whether the user holds at least one of the item.
func (e *Economy) Holds(groupID, userID, itemName string) bool {
	record := e.store.User(groupID, userID)
	return record != nil && record.Items[itemName] > 0
}

// Inventory lists held items with catalog descriptions, plus the
// aggregated balance.
func (e *Economy) Inventory(groupID, userID string) (*types.InventoryOutcome, error) {
	record := e.store.User(groupID, userID)
	if record == nil {
		return nil, ErrNotRegistered
	}

	outcome := &types.InventoryOutcome{Coins: e.Balance(groupID, userID)}
	for _, item := range e.catalog.Items() {
		if count := record.Items[item.Name]; count > 0 {
			outcome.Items = append(outcome.Items, types.InventoryLine{
				Name:  item.Name,
				Count: count,
				Desc:  item.Desc,
			})
		}
	}
	return outcome, nil
}
