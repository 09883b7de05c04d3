package game

import (
	"os"
	"sort"

	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultCatalog returns the built-in shop items.
func DefaultCatalog() []types.ShopItem {
	return []types.ShopItem{
		{
			ID:     1,
			Name:   "妙脆角",
			Type:   types.ItemPassive,
			Max:    3,
			Desc:   "🛡️ 防止一次长度减半（可持有3个）",
			Effect: types.ItemEffect{Tag: types.EffectPreventHalving},
			Price:  70,
		},
		{
			ID:     2,
			Name:   "巴黎世家",
			Type:   types.ItemActive,
			Desc:   "💎 立即增加3点硬度",
			Effect: types.ItemEffect{Stats: map[string]int{"hardness": 3}},
			Price:  50,
		},
		{
			ID:     3,
			Name:   "巴适得板生长素",
			Type:   types.ItemActive,
			Desc:   "📏 立即增加20cm长度，但会减少2点硬度",
			Effect: types.ItemEffect{Stats: map[string]int{"length": 20, "hardness": -2}},
			Price:  50,
		},
		{
			ID:     4,
			Name:   "淬火爪刀",
			Type:   types.ItemActive,
			Desc:   "🔥 触发掠夺时，额外掠夺10%长度",
			Effect: types.ItemEffect{Tag: types.EffectBonusLoot},
			Price:  70,
		},
		{
			ID:     5,
			Name:   "不灭之握",
			Type:   types.ItemActive,
			Desc:   "直接增加30cm长度",
			Effect: types.ItemEffect{Stats: map[string]int{"length": 30}},
			Price:  70,
		},
		{
			ID:     6,
			Name:   "余震",
			Type:   types.ItemPassive,
			Max:    2,
			Desc:   "被比划时，如果失败，不扣长度",
			Effect: types.ItemEffect{Tag: types.EffectNoDeductOnFail},
			Price:  100,
		},
		{
			ID:     7,
			Name:   "致命节奏",
			Type:   types.ItemPassive,
			Max:    1,
			Desc:   "打胶冷却中仍可打胶一次",
			Effect: types.ItemEffect{Tag: types.EffectNoCooldown},
			Price:  350,
		},
		{
			ID:     8,
			Name:   "阿姆斯特朗旋风喷射炮",
			Type:   types.ItemActive,
			Desc:   "💥 长度直接+1m，硬度+10",
			Effect: types.ItemEffect{Stats: map[string]int{"length": 100, "hardness": 10}},
			Price:  500,
		},
		{
			ID:     9,
			Name:   "夺心魔蝌蚪罐头",
			Type:   types.ItemActive,
			Desc:   "在比划时，有50%的概率夺取对方全部长度，10%的概率清空自己的长度，40%的概率无效",
			Effect: types.ItemEffect{Tag: types.EffectStealOrClear},
			Price:  500,
		},
	}
}

// ShopCatalog is the merged item catalog, loaded once at startup.
type ShopCatalog struct {
	items []types.ShopItem
}

// LoadCatalog merges the default catalog with an optional overlay file.
// Overlay fields replace base fields per matching id; unmatched overlay
// ids are appended. An unreadable overlay falls back to the defaults.
func LoadCatalog(path string, logger *zap.Logger) *ShopCatalog {
	items := DefaultCatalog()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("Failed to read shop overlay", zap.Error(err))
		}
		return &ShopCatalog{items: items}
	}

	var overlay []yaml.Node
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		logger.Error("Failed to parse shop overlay", zap.Error(err))
		return &ShopCatalog{items: items}
	}

	index := make(map[int]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}

	for _, node := range overlay {
		var key struct {
			ID int `yaml:"id"`
		}
		if err := node.Decode(&key); err != nil || key.ID == 0 {
			logger.Warn("Skipping overlay entry without id", zap.Error(err))
			continue
		}
		if i, exists := index[key.ID]; exists {
			// Decoding onto the existing struct only touches the
			// fields present in the overlay entry.
			if err := node.Decode(&items[i]); err != nil {
				logger.Warn("Skipping malformed overlay entry",
					zap.Int("item_id", key.ID),
					zap.Error(err))
			}
			continue
		}
		var item types.ShopItem
		if err := node.Decode(&item); err != nil {
			logger.Warn("Skipping malformed overlay entry",
				zap.Int("item_id", key.ID),
				zap.Error(err))
			continue
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &ShopCatalog{items: items}
}

// Items returns the catalog in id order.
func (c *ShopCatalog) Items() []types.ShopItem {
	return c.items
}

// ByID looks an item up by its numeric id.
func (c *ShopCatalog) ByID(id int) (types.ShopItem, bool) {
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return types.ShopItem{}, false
}

// ByName looks an item up by display name.
func (c *ShopCatalog) ByName(name string) (types.ShopItem, bool) {
	for _, item := range c.items {
		if item.Name == name {
			return item, true
		}
	}
	return types.ShopItem{}, false
}

// NameByTag resolves the display name of the item carrying an effect
// tag. Resolvers consume tagged items from the inventory by name.
func (c *ShopCatalog) NameByTag(tag string) (string, bool) {
	for _, item := range c.items {
		if item.Effect.Tag == tag {
			return item.Name, true
		}
	}
	return "", false
}
