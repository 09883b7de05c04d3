package game

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// defaultTexts holds the built-in reply template sets, keyed by
// "<scope>.<code>". A template is picked uniformly at random from its
// set; {placeholders} are substituted by the render helper.
func defaultTexts() map[string][]string {
	return map[string][]string{
		"register.success": {"{nickname}，注册成功！你的牛牛初始长度为{length}cm，硬度为{hardness}。"},
		"register.already": {"{nickname}，你已经注册过牛牛啦！"},

		"grow.increase": {
			"{nickname} 一顿猛冲，牛牛长了{change}cm！",
			"{nickname} 手法娴熟，牛牛增加了{change}cm！",
		},
		"grow.decrease": {
			"{nickname} 用力过猛，牛牛缩短了{change}cm……",
			"{nickname} 姿势不对，牛牛减少了{change}cm！",
		},
		"grow.no_effect": {
			"{nickname} 打了个寂寞，牛牛没有任何变化。",
			"{nickname} 的牛牛毫无反应。",
		},
		"grow.bypass":   {"（消耗了一个{item}）"},
		"grow.cooldown": {"{nickname}，牛牛还在贤者时间，{remaining}后再来吧。"},

		"batch.result":   {"{nickname} 疯狂打胶{count}次！净变化{total}cm，当前牛牛长度为{length_str}。\n{evaluation}"},
		"batch.cooldown": {"{nickname}，刚疯狂完，{remaining}后再来吧。"},

		"evaluation.tiny":   {"精致小巧，方便携带。"},
		"evaluation.short":  {"中规中矩，再接再厉。"},
		"evaluation.medium": {"初具规模，颇有气势。"},
		"evaluation.long":   {"威风凛凛，群里一霸。"},
		"evaluation.huge":   {"惊为天人，叹为观止。"},
		"evaluation.legend": {"已经突破天际，成为传说。"},

		"status.info": {"{nickname}，你的牛牛长度为{length_str}，硬度为{hardness}。{evaluation}"},

		"compare.win":        {"{nickname} 在和 {target_nickname} 的比划中获胜啦！"},
		"compare.lose":       {"{nickname} 在和 {target_nickname} 的比划中落败了。"},
		"compare.steal_all":  {"💀 {nickname} 打开了罐头……夺取了 {target_nickname} 全部 {stolen}cm 长度！"},
		"compare.self_clear": {"💀 {nickname} 打开了罐头……罐头炸了，自己的长度被清空了！"},
		"compare.no_effect":  {"{nickname} 打开了罐头……什么也没有发生。"},

		"compare.note.bonus_loot":     {"🔥 淬火爪刀触发，额外掠夺了{loot}cm！"},
		"compare.note.upset_bonus":    {"🎲 以柔克刚，额外获得{upset}cm！"},
		"compare.note.steal20":        {"⚔️ 以小博大，夺取了对方{steal}cm！"},
		"compare.note.hardness_win":   {"💎 硬度占优，赢得漂亮！"},
		"compare.note.no_growth":      {"不过长度一点都没涨。"},
		"compare.note.loss_nullified": {"🛡️ 余震生效，败北也没有掉长度！"},
		"compare.note.close_match":    {"两根牛牛纠缠在了一起，难舍难分。"},
		"compare.note.both_halved":    {"💥 两根牛牛狠狠撞在一起，双双折半！"},
		"compare.note.low_hardness":   {"牛牛太软了，出事了——"},
		"compare.note.actor_saved":    {"🛡️ {nickname} 的妙脆角碎了，长度保住了！"},
		"compare.note.target_saved":   {"🛡️ {target_nickname} 的妙脆角碎了，长度保住了！"},

		"compare.no_target":             {"{nickname}，你没有指定要比划的对象哦！"},
		"compare.ambiguous":             {"{nickname}，找到多个匹配的用户，请使用 @ 精确指定对手。"},
		"compare.self":                  {"{nickname}，你不能和自己比划。"},
		"compare.target_not_registered": {"{nickname}，对方还没有注册牛牛呢！"},
		"compare.limit":                 {"{nickname}，你在 10 分钟内邀请人数过多，暂时不能再发起比划啦！"},
		"compare.cooldown":              {"{nickname}，你和该对手的比划冷却时间还没到呢，请稍后再试。"},

		"rank.header": {"本群牛牛长度排行榜："},
		"rank.bottom": {"本群牛牛长度倒数榜："},

		"shop.header":     {"🛒 牛牛商城（使用 牛牛购买+编号）"},
		"shop.buy_usage":  {"❌ 格式：牛牛购买 商品编号\n例：牛牛购买 1"},
		"shop.bought":     {"✅ 购买成功"},
		"shop.got_item":   {"📦 获得 {item}x1"},
		"shop.stat_up":    {"✨ {stat}增加了{value}"},
		"shop.stat_down":  {"✨ {stat}减少了{value}"},
		"items.header":    {"📦 你的道具背包："},
		"items.empty":     {"🛍️ 你的背包里还没有道具哦~"},
		"items.line":      {"🔹 {item}x{count} - {desc}"},
		"items.coins":     {"💰 你的金币：{coins}"},

		"rush.start":     {"💪 {nickname} 芜湖！开冲！你暂时无法主动打胶或者比划！输入\"停止开冲\"来结束并结算金币。"},
		"rush.stop":      {"🎉 {nickname} 总算冲够了！你获得了 {coins} 金币！"},
		"rush.too_short": {"❌ {nickname} 没有冲够10分钟，没有奖励！"},
		"rush.already":   {"⏳ {nickname} 你已经在冲了"},
		"rush.none":      {"❌ {nickname} 你当前没有在冲"},
		"rush.busy":      {"⏳ {nickname} 你正在冲，不能做这件事！"},

		"flight.done":     {"🎉 {nickname} {route}！你获得了 {coins} 金币！"},
		"flight.cooldown": {"✈️ 油箱空了，{nickname} {minutes}分钟后可再起飞"},

		"toggle.on":  {"牛牛插件已开启。"},
		"toggle.off": {"牛牛插件已关闭，除了牛牛菜单，其他功能不可用。"},

		"error.disabled":       {"❌ 插件未启用"},
		"error.not_registered": {"❌ {nickname}，请先发送\"注册牛牛\""},
		"error.not_admin":      {"❌ 只有管理员才能使用这个指令"},
		"error.unknown_item":   {"❌ 无效的商品编号"},
		"error.no_coins":       {"❌ 金币不足，无法购买"},
		"error.item_maxed":     {"⚠️ 已达到最大持有量"},
		"error.purchase":       {"⚠️ 购买过程中出现错误，请稍后再试"},
		"error.no_data":        {"本群还没有人注册牛牛呢。"},
		"error.unknown":        {"⚠️ 出错了，请稍后再试"},
		"error.cooldown":       {"{nickname}，冷却中，{remaining}后再试。"},

		"menu": {"牛牛插件菜单：\n1. 注册牛牛：注册你的牛牛\n2. 打胶：尝试增加牛牛长度\n3. 疯狂打胶：连续打胶十次\n4. 我的牛牛：查看自己牛牛的长度和硬度\n5. 比划比划 [对手名称/@对手]：和其他用户比划牛牛长度\n6. 牛牛排行：查看本群牛牛长度排行榜\n7. 牛牛商城：查看可购买的道具\n8. 牛牛购买+编号：购买道具\n9. 我的道具：查看持有的道具和金币\n10. 开冲/停止开冲：挂机赚金币\n11. 起飞：搭乘航班赚金币\n12. 牛牛开/牛牛关：开启或关闭牛牛插件"},
	}
}

// Renderer turns outcome variants into reply text. Flavor lines come
// from template sets that an operator can override per key from a YAML
// texts file.
type Renderer struct {
	texts map[string][]string
	dice  roller
}

// NewRenderer loads the texts overlay and merges it over the defaults
// by key. Overlay values may be a single string or a list of strings.
func NewRenderer(path string, logger *zap.Logger) *Renderer {
	texts := defaultTexts()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("Failed to read texts file", zap.Error(err))
		}
		return &Renderer{texts: texts, dice: NewDiceRoller()}
	}

	overlay := make(map[string]yaml.Node)
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		logger.Error("Failed to parse texts file", zap.Error(err))
		return &Renderer{texts: texts, dice: NewDiceRoller()}
	}
	for key, node := range overlay {
		var list []string
		if err := node.Decode(&list); err == nil {
			texts[key] = list
			continue
		}
		var single string
		if err := node.Decode(&single); err == nil {
			texts[key] = []string{single}
			continue
		}
		logger.Warn("Skipping malformed texts entry", zap.String("key", key))
	}
	return &Renderer{texts: texts, dice: NewDiceRoller()}
}

// render picks one template from the key's set and substitutes the
// placeholders.
func (r *Renderer) render(key string, vars map[string]string) string {
	set := r.texts[key]
	if len(set) == 0 {
		return ""
	}
	tpl := set[0]
	if len(set) > 1 {
		tpl = set[r.dice.Pick(len(set))]
	}
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// formatLength renders lengths of a meter and above in meters.
func formatLength(length int) string {
	if length >= 100 {
		return fmt.Sprintf("%.2fm", float64(length)/100)
	}
	return fmt.Sprintf("%dcm", length)
}

func formatRemaining(remaining int) string {
	minutes := remaining/60 + 1
	return fmt.Sprintf("%d分钟", minutes)
}

var bandKeys = map[types.EvalBand]string{
	types.BandTiny:   "evaluation.tiny",
	types.BandShort:  "evaluation.short",
	types.BandMedium: "evaluation.medium",
	types.BandLong:   "evaluation.long",
	types.BandHuge:   "evaluation.huge",
	types.BandLegend: "evaluation.legend",
}

// RenderRegister renders the registration result.
func (r *Renderer) RenderRegister(out *types.RegisterOutcome) string {
	if out.Already {
		return r.render("register.already", map[string]string{"nickname": out.Nickname})
	}
	return r.render("register.success", map[string]string{
		"nickname": out.Nickname,
		"length":   fmt.Sprintf("%d", out.Length),
		"hardness": fmt.Sprintf("%d", out.Hardness),
	})
}

// RenderGrowth renders a single growth result with the trailing
// length readout.
func (r *Renderer) RenderGrowth(nickname string, out *types.GrowthOutcome) string {
	vars := map[string]string{"nickname": nickname}
	var key string
	switch out.Kind {
	case types.GrowthGain:
		key = "grow.increase"
		vars["change"] = fmt.Sprintf("%d", out.Change)
	case types.GrowthLoss:
		key = "grow.decrease"
		vars["change"] = fmt.Sprintf("%d", -out.Change)
	default:
		key = "grow.no_effect"
	}
	message := r.render(key, vars) + "，当前牛牛长度为" + formatLength(out.Length)
	if out.Bypassed {
		message += r.render("grow.bypass", map[string]string{"item": "致命节奏"})
	}
	return message
}

// RenderBatchGrowth summarizes the ten draws and appends the band
// evaluation.
func (r *Renderer) RenderBatchGrowth(nickname string, out *types.BatchGrowthOutcome) string {
	total := 0
	for _, draw := range out.Draws {
		total += draw.Change
	}
	return r.render("batch.result", map[string]string{
		"nickname":   nickname,
		"count":      fmt.Sprintf("%d", len(out.Draws)),
		"total":      fmt.Sprintf("%+d", total),
		"length_str": formatLength(out.Length),
		"evaluation": r.render(bandKeys[out.Band], nil),
	})
}

// RenderStatus renders the self query with the band evaluation.
func (r *Renderer) RenderStatus(out *types.StatusOutcome) string {
	return r.render("status.info", map[string]string{
		"nickname":   out.Nickname,
		"length_str": formatLength(out.Length),
		"hardness":   fmt.Sprintf("%d", out.Hardness),
		"evaluation": r.render(bandKeys[out.Band], nil),
	})
}

var noteKeys = map[types.CompareNote]string{
	types.NoteBonusLoot:     "compare.note.bonus_loot",
	types.NoteUpsetBonus:    "compare.note.upset_bonus",
	types.NoteSteal20:       "compare.note.steal20",
	types.NoteHardnessWin:   "compare.note.hardness_win",
	types.NoteNoGrowth:      "compare.note.no_growth",
	types.NoteLossNullified: "compare.note.loss_nullified",
	types.NoteCloseMatch:    "compare.note.close_match",
	types.NoteBothHalved:    "compare.note.both_halved",
	types.NoteLowHardness:   "compare.note.low_hardness",
	types.NoteActorSaved:    "compare.note.actor_saved",
	types.NoteTargetSaved:   "compare.note.target_saved",
}

// RenderCompare renders a comparison outcome: the headline for the
// kind, one line per note, and the closing length readout.
func (r *Renderer) RenderCompare(out *types.CompareOutcome) string {
	vars := map[string]string{
		"nickname":        out.ActorName,
		"target_nickname": out.TargetName,
		"stolen":          fmt.Sprintf("%d", out.StolenAll),
		"loot":            fmt.Sprintf("%d", out.LootExtra),
		"upset":           fmt.Sprintf("%d", out.UpsetExtra),
		"steal":           fmt.Sprintf("%d", out.StealExtra),
	}

	var lines []string
	switch out.Kind {
	case types.CompareWin:
		headline := r.render("compare.win", vars)
		gained := out.ActorGain + out.LootExtra + out.UpsetExtra + out.StealExtra
		if gained > 0 {
			headline += fmt.Sprintf(" 你的长度增加%dcm", gained)
		}
		lines = append(lines, headline)
	case types.CompareLoss:
		lines = append(lines, r.render("compare.lose", vars))
	case types.CompareStealAll:
		lines = append(lines, r.render("compare.steal_all", vars))
	case types.CompareSelfClear:
		lines = append(lines, r.render("compare.self_clear", vars))
	default:
		lines = append(lines, r.render("compare.no_effect", vars))
	}

	for _, note := range out.Notes {
		if line := r.render(noteKeys[note], vars); line != "" {
			lines = append(lines, line)
		}
	}

	lines = append(lines, fmt.Sprintf("当前长度：%s %s | %s %s",
		out.ActorName, formatLength(out.ActorLength),
		out.TargetName, formatLength(out.TargetLength)))
	return strings.Join(lines, "\n")
}

// RenderRank renders the two ranking views.
func (r *Renderer) RenderRank(out *types.RankOutcome) string {
	var b strings.Builder
	b.WriteString(r.render("rank.header", nil))
	for i, entry := range out.Strongest {
		b.WriteString(fmt.Sprintf("\n%d. %s：%s", i+1, entry.Nickname, formatLength(entry.Length)))
	}
	b.WriteString("\n")
	b.WriteString(r.render("rank.bottom", nil))
	for i, entry := range out.Weakest {
		b.WriteString(fmt.Sprintf("\n%d. %s：%s", i+1, entry.Nickname, formatLength(entry.Length)))
	}
	return b.String()
}

// RenderShop renders the purchasable catalog.
func (r *Renderer) RenderShop(items []types.ShopItem) string {
	lines := []string{r.render("shop.header", nil)}
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%d. %s - %s (价格: %d 金币)", item.ID, item.Name, item.Desc, item.Price))
	}
	return strings.Join(lines, "\n")
}

// RenderPurchase renders a successful purchase, listing either the
// inventory grant or the applied stat deltas.
func (r *Renderer) RenderPurchase(out *types.PurchaseOutcome) string {
	lines := []string{r.render("shop.bought", nil)}
	if out.ToInventory {
		lines = append(lines, r.render("shop.got_item", map[string]string{"item": out.Item.Name}))
	}
	for _, stat := range []string{"length", "hardness", "coins"} {
		delta, applied := out.Applied[stat]
		if !applied {
			continue
		}
		key := "shop.stat_up"
		if delta < 0 {
			key = "shop.stat_down"
			delta = -delta
		}
		lines = append(lines, r.render(key, map[string]string{
			"stat":  stat,
			"value": fmt.Sprintf("%d", delta),
		}))
	}
	return strings.Join(lines, "\n")
}

// RenderInventory renders the item backpack plus the coin total.
func (r *Renderer) RenderInventory(out *types.InventoryOutcome) string {
	lines := []string{r.render("items.header", nil)}
	if len(out.Items) == 0 {
		lines = append(lines, r.render("items.empty", nil))
	}
	for _, line := range out.Items {
		lines = append(lines, r.render("items.line", map[string]string{
			"item":  line.Name,
			"count": fmt.Sprintf("%d", line.Count),
			"desc":  line.Desc,
		}))
	}
	lines = append(lines, r.render("items.coins", map[string]string{"coins": fmt.Sprintf("%d", out.Coins)}))
	return strings.Join(lines, "\n")
}

// RenderRushStart renders the rush session opener.
func (r *Renderer) RenderRushStart(nickname string) string {
	return r.render("rush.start", map[string]string{"nickname": nickname})
}

// RenderRushStop renders the rush settlement.
func (r *Renderer) RenderRushStop(out *types.RushStopOutcome) string {
	return r.render("rush.stop", map[string]string{
		"nickname": out.Nickname,
		"coins":    fmt.Sprintf("%d", out.Coins),
	})
}

// RenderFlight renders the flight payout.
func (r *Renderer) RenderFlight(out *types.FlightOutcome) string {
	return r.render("flight.done", map[string]string{
		"nickname": out.Nickname,
		"route":    out.Route,
		"coins":    fmt.Sprintf("%d", out.Coins),
	})
}

// RenderToggle renders the plugin toggle acknowledgement.
func (r *Renderer) RenderToggle(enabled bool) string {
	if enabled {
		return r.render("toggle.on", nil)
	}
	return r.render("toggle.off", nil)
}

// RenderMenu renders the command menu.
func (r *Renderer) RenderMenu() string {
	return r.render("menu", nil)
}

// RenderBuyUsage renders the malformed-purchase hint.
func (r *Renderer) RenderBuyUsage() string {
	return r.render("shop.buy_usage", nil)
}

// RenderError maps a resolver error to reply text. scope selects the
// per-command text group; a scope-specific key wins over the shared
// error key.
func (r *Renderer) RenderError(scope string, err error, nickname string) string {
	vars := map[string]string{"nickname": nickname}

	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		vars["remaining"] = formatRemaining(int(cooldown.Remaining.Seconds()))
		vars["minutes"] = fmt.Sprintf("%d", int(cooldown.Remaining.Minutes())+1)
		return r.scoped(scope, "cooldown", vars)
	}

	switch {
	case errors.Is(err, ErrGroupDisabled):
		return r.render("error.disabled", vars)
	case errors.Is(err, ErrNotRegistered):
		return r.render("error.not_registered", vars)
	case errors.Is(err, ErrTargetNotRegistered):
		return r.render("compare.target_not_registered", vars)
	case errors.Is(err, ErrTargetNotFound):
		return r.render("compare.no_target", vars)
	case errors.Is(err, ErrAmbiguousTarget):
		return r.render("compare.ambiguous", vars)
	case errors.Is(err, ErrSelfCompare):
		return r.render("compare.self", vars)
	case errors.Is(err, ErrCompareLimit):
		return r.render("compare.limit", vars)
	case errors.Is(err, ErrRushing):
		return r.render("rush.busy", vars)
	case errors.Is(err, ErrAlreadyRushing):
		return r.render("rush.already", vars)
	case errors.Is(err, ErrNotRushing):
		return r.render("rush.none", vars)
	case errors.Is(err, ErrRushTooShort):
		return r.render("rush.too_short", vars)
	case errors.Is(err, ErrNotAdmin):
		return r.render("error.not_admin", vars)
	case errors.Is(err, ErrUnknownItem):
		return r.render("error.unknown_item", vars)
	case errors.Is(err, ErrInsufficientCoins):
		return r.render("error.no_coins", vars)
	case errors.Is(err, ErrItemMaxed):
		return r.render("error.item_maxed", vars)
	case errors.Is(err, ErrPurchaseFailed):
		return r.render("error.purchase", vars)
	case errors.Is(err, ErrNoData):
		return r.render("error.no_data", vars)
	default:
		return r.render("error.unknown", vars)
	}
}

// scoped resolves "<scope>.<code>" before the shared "error.<code>".
func (r *Renderer) scoped(scope, code string, vars map[string]string) string {
	if scope != "" {
		if text := r.render(scope+"."+code, vars); text != "" {
			return text
		}
	}
	return r.render("error."+code, vars)
}
