package game

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
)

func newTestEconomy(t *testing.T) (*Economy, *StateStore, *SignStore) {
	t.Helper()
	dir := t.TempDir()
	store := NewStateStore(filepath.Join(dir, "niuniu_lengths.yml"), zap.NewNop())
	sign := NewSignStore(filepath.Join(dir, "sign_data.yml"), zap.NewNop())
	catalog := LoadCatalog(filepath.Join(dir, "niuniu_shop.yml"), zap.NewNop())
	return NewEconomy(store, sign, catalog, zap.NewNop()), store, sign
}

func addUser(store *StateStore, groupID, userID string, coins int) *types.UserRecord {
	record := &types.UserRecord{
		Nickname: userID,
		Length:   10,
		Hardness: 1,
		Coins:    coins,
		Items:    make(map[string]int),
	}
	store.Group(groupID).Users[userID] = record
	return record
}

func TestBalanceSumsBothSources(t *testing.T) {
	economy, store, sign := newTestEconomy(t)
	addUser(store, "g", "u", 5)
	sign.SetCoins("g", "u", 10)

	assert.Equal(t, 15, economy.Balance("g", "u"))
}

func TestSetBalanceDrainsLocalFirst(t *testing.T) {
	economy, store, sign := newTestEconomy(t)
	record := addUser(store, "g", "u", 5)
	sign.SetCoins("g", "u", 10)

	// Spend 8 of 15: local empties, the sign-in store covers the rest
	economy.SetBalance("g", "u", 7)
	assert.Equal(t, 0, record.Coins)
	assert.Equal(t, 7, sign.Coins("g", "u"))
	assert.Equal(t, 7, economy.Balance("g", "u"))
}

func TestSetBalanceLocalCoversSpend(t *testing.T) {
	economy, store, sign := newTestEconomy(t)
	record := addUser(store, "g", "u", 20)
	sign.SetCoins("g", "u", 10)

	economy.SetBalance("g", "u", 22)
	assert.Equal(t, 12, record.Coins)
	assert.Equal(t, 10, sign.Coins("g", "u"))
}

func TestPurchaseStatItem(t *testing.T) {
	economy, store, _ := newTestEconomy(t)
	record := addUser(store, "g", "u", 100)

	// Item 3: +20 length, -2 hardness, price 50
	out, err := economy.Purchase("g", "u", 3)
	require.NoError(t, err)
	assert.False(t, out.ToInventory)
	assert.Equal(t, 20, out.Applied["length"])
	assert.Equal(t, -2, out.Applied["hardness"])
	assert.Equal(t, 30, record.Length)
	// No clamp on purchase effects
	assert.Equal(t, -1, record.Hardness)
	assert.Equal(t, 50, record.Coins)
}

func TestPurchasePassiveItemCapped(t *testing.T) {
	economy, store, _ := newTestEconomy(t)
	record := addUser(store, "g", "u", 1000)

	for i := 0; i < 3; i++ {
		out, err := economy.Purchase("g", "u", 1)
		require.NoError(t, err)
		assert.True(t, out.ToInventory)
	}
	assert.Equal(t, 3, record.Items["妙脆角"])

	_, err := economy.Purchase("g", "u", 1)
	assert.ErrorIs(t, err, ErrItemMaxed)
	assert.Equal(t, 1000-3*70, record.Coins)
}

func TestPurchaseTaggedActiveGoesToInventory(t *testing.T) {
	economy, store, _ := newTestEconomy(t)
	record := addUser(store, "g", "u", 1000)

	// Item 9 is declared active but carries a combat tag
	out, err := economy.Purchase("g", "u", 9)
	require.NoError(t, err)
	assert.True(t, out.ToInventory)
	assert.Equal(t, 1, record.Items["夺心魔蝌蚪罐头"])
	assert.Equal(t, 10, record.Length)
}

func TestPurchaseValidation(t *testing.T) {
	economy, store, _ := newTestEconomy(t)
	addUser(store, "g", "u", 10)

	_, err := economy.Purchase("g", "u", 99)
	assert.ErrorIs(t, err, ErrUnknownItem)

	_, err = economy.Purchase("g", "ghost", 1)
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = economy.Purchase("g", "u", 1)
	assert.ErrorIs(t, err, ErrInsufficientCoins)
}

func TestPurchaseFailedEffectDoesNotCharge(t *testing.T) {
	dir := t.TempDir()
	overlay := `- id: 50
  name: 坏掉的道具
  type: active
  price: 10
  effect:
    charm: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "niuniu_shop.yml"), []byte(overlay), 0644))

	store := NewStateStore(filepath.Join(dir, "niuniu_lengths.yml"), zap.NewNop())
	sign := NewSignStore(filepath.Join(dir, "sign_data.yml"), zap.NewNop())
	catalog := LoadCatalog(filepath.Join(dir, "niuniu_shop.yml"), zap.NewNop())
	economy := NewEconomy(store, sign, catalog, zap.NewNop())
	record := addUser(store, "g", "u", 100)

	_, err := economy.Purchase("g", "u", 50)
	assert.ErrorIs(t, err, ErrPurchaseFailed)
	assert.Equal(t, 100, record.Coins)
	assert.Equal(t, 10, record.Length)
	assert.Empty(t, record.Items)
}

func TestConsume(t *testing.T) {
	economy, store, _ := newTestEconomy(t)
	record := addUser(store, "g", "u", 0)
	record.Items["余震"] = 2

	assert.True(t, economy.Consume("g", "u", "余震"))
	assert.Equal(t, 1, record.Items["余震"])
	assert.True(t, economy.Consume("g", "u", "余震"))

	// The key disappears at zero
	_, held := record.Items["余震"]
	assert.False(t, held)
	assert.False(t, economy.Consume("g", "u", "余震"))
}

func TestInventoryListsHeldItems(t *testing.T) {
	economy, store, sign := newTestEconomy(t)
	record := addUser(store, "g", "u", 5)
	sign.SetCoins("g", "u", 3)
	record.Items["妙脆角"] = 2
	record.Items["余震"] = 1

	out, err := economy.Inventory("g", "u")
	require.NoError(t, err)
	assert.Equal(t, 8, out.Coins)
	require.Len(t, out.Items, 2)
	// Catalog order: id 1 before id 6
	assert.Equal(t, "妙脆角", out.Items[0].Name)
	assert.Equal(t, 2, out.Items[0].Count)
	assert.Equal(t, "余震", out.Items[1].Name)
}
