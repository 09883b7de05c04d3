package router

import (
	"strconv"
	"strings"

	"github.com/user/niuniu-bot/internal/game"
	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
)

// CommandKind enumerates the closed set of game commands.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdDisable
	CmdEnable
	CmdMenu
	CmdRegister
	CmdBatchGrow
	CmdGrow
	CmdStatus
	CmdCompare
	CmdRank
	CmdShop
	CmdBuy
	CmdItems
	CmdRushStop
	CmdRushStart
	CmdFlight
)

// Command is one parsed inbound command with its argument, if any.
type Command struct {
	Kind CommandKind
	Arg  string
}

// parseEntry binds a literal to a command. Order matters: longer
// literals that share a prefix with shorter ones come first.
type parseEntry struct {
	literal string
	kind    CommandKind
	prefix  bool
}

var parseTable = []parseEntry{
	{"牛牛关", CmdDisable, false},
	{"牛牛开", CmdEnable, false},
	{"牛牛菜单", CmdMenu, false},
	{"注册牛牛", CmdRegister, false},
	{"疯狂打胶", CmdBatchGrow, false},
	{"打胶", CmdGrow, false},
	{"我的牛牛", CmdStatus, false},
	{"比划比划", CmdCompare, true},
	{"牛牛排行", CmdRank, false},
	{"牛牛商城", CmdShop, false},
	{"牛牛购买", CmdBuy, true},
	{"我的道具", CmdItems, false},
	{"停止开冲", CmdRushStop, false},
	{"开冲", CmdRushStart, false},
	{"起飞", CmdFlight, false},
}

// Parse maps trimmed message text onto the command set. Unrecognized
// text yields CmdNone.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	for _, entry := range parseTable {
		if entry.prefix {
			if strings.HasPrefix(text, entry.literal) {
				arg := strings.TrimSpace(strings.TrimPrefix(text, entry.literal))
				return Command{Kind: entry.kind, Arg: arg}
			}
			continue
		}
		if text == entry.literal {
			return Command{Kind: entry.kind}
		}
	}
	return Command{Kind: CmdNone}
}

// Router dispatches parsed commands to the game manager and renders
// every outcome, including failures, into reply text.
type Router struct {
	game     *game.GameManager
	renderer *game.Renderer
	logger   *zap.Logger
}

// NewRouter wires the router over the game manager and renderer.
func NewRouter(gm *game.GameManager, renderer *game.Renderer, logger *zap.Logger) *Router {
	return &Router{game: gm, renderer: renderer, logger: logger}
}

// HandleCommand processes one inbound group message and returns the
// reply text. Non-commands return the empty string.
func (r *Router) HandleCommand(msg types.IncomingMessage) string {
	cmd := Parse(msg.Text)
	if cmd.Kind == CmdNone {
		return ""
	}

	r.game.Observe(msg.GroupID, msg.SenderID, msg.SenderName)
	r.logger.Debug("Handling command",
		zap.String("group_id", msg.GroupID),
		zap.String("sender_id", msg.SenderID),
		zap.String("text", msg.Text))

	switch cmd.Kind {
	case CmdEnable, CmdDisable:
		enabled := cmd.Kind == CmdEnable
		if err := r.game.SetEnabled(msg.GroupID, msg.SenderID, enabled); err != nil {
			return r.renderer.RenderError("toggle", err, msg.SenderName)
		}
		return r.renderer.RenderToggle(enabled)

	case CmdMenu:
		return r.renderer.RenderMenu()

	case CmdRegister:
		out, err := r.game.Register(msg.GroupID, msg.SenderID, msg.SenderName)
		if err != nil {
			return r.renderer.RenderError("register", err, msg.SenderName)
		}
		return r.renderer.RenderRegister(out)

	case CmdGrow:
		out, err := r.game.Grow(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("grow", err, msg.SenderName)
		}
		return r.renderer.RenderGrowth(msg.SenderName, out)

	case CmdBatchGrow:
		out, err := r.game.BatchGrow(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("batch", err, msg.SenderName)
		}
		return r.renderer.RenderBatchGrowth(msg.SenderName, out)

	case CmdStatus:
		out, err := r.game.Status(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("status", err, msg.SenderName)
		}
		return r.renderer.RenderStatus(out)

	case CmdCompare:
		out, err := r.game.Compare(msg.GroupID, msg.SenderID, cmd.Arg, msg.Mentions)
		if err != nil {
			return r.renderer.RenderError("compare", err, msg.SenderName)
		}
		return r.renderer.RenderCompare(out)

	case CmdRank:
		out, err := r.game.Rank(msg.GroupID, 5)
		if err != nil {
			return r.renderer.RenderError("rank", err, msg.SenderName)
		}
		return r.renderer.RenderRank(out)

	case CmdShop:
		if !r.game.Enabled(msg.GroupID) {
			return r.renderer.RenderError("shop", game.ErrGroupDisabled, msg.SenderName)
		}
		return r.renderer.RenderShop(r.game.Catalog())

	case CmdBuy:
		itemID, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return r.renderer.RenderBuyUsage()
		}
		out, err := r.game.Buy(msg.GroupID, msg.SenderID, itemID)
		if err != nil {
			return r.renderer.RenderError("shop", err, msg.SenderName)
		}
		return r.renderer.RenderPurchase(out)

	case CmdItems:
		out, err := r.game.Inventory(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("items", err, msg.SenderName)
		}
		return r.renderer.RenderInventory(out)

	case CmdRushStart:
		if err := r.game.StartRush(msg.GroupID, msg.SenderID); err != nil {
			return r.renderer.RenderError("rush", err, msg.SenderName)
		}
		return r.renderer.RenderRushStart(msg.SenderName)

	case CmdRushStop:
		out, err := r.game.StopRush(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("rush", err, msg.SenderName)
		}
		return r.renderer.RenderRushStop(out)

	case CmdFlight:
		out, err := r.game.Flight(msg.GroupID, msg.SenderID)
		if err != nil {
			return r.renderer.RenderError("flight", err, msg.SenderName)
		}
		return r.renderer.RenderFlight(out)
	}
	return ""
}
