package interfaces

import "github.com/user/niuniu-bot/internal/types"

// CommandHandler turns one inbound group message into a reply. An
// empty reply means the message is not a game command and the
// transport stays silent.
type CommandHandler interface {
	HandleCommand(msg types.IncomingMessage) string
}
