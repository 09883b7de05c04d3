package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/niuniu-bot/config"
	"github.com/user/niuniu-bot/internal/interfaces"
	"github.com/user/niuniu-bot/internal/types"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ClientManager handles WhatsApp client connections
type ClientManager struct {
	clients map[string]*ClientInfo
	handler interfaces.CommandHandler
	config  config.Config
	logger  *zap.Logger
	mutex   sync.RWMutex
}

// ClientInfo holds information about a WhatsApp client connection
type ClientInfo struct {
	UUID        string
	PhoneNumber string
	Client      *whatsmeow.Client
	Store       *store.Device
}

// NewClientManager creates a new WhatsApp client manager
func NewClientManager(handler interfaces.CommandHandler, cfg config.Config, logger *zap.Logger) *ClientManager {
	cm := &ClientManager{
		clients: make(map[string]*ClientInfo),
		handler: handler,
		config:  cfg,
		logger:  logger,
	}

	// Restore existing sessions
	cm.restoreExistingSessions()

	return cm
}

// restoreExistingSessions attempts to restore all existing WhatsApp sessions
func (cm *ClientManager) restoreExistingSessions() {
	// Create store directory if it doesn't exist
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		cm.logger.Error("Failed to create store directory", zap.Error(err))
		return
	}

	// Look for all database files in the store directory
	pattern := filepath.Join(cm.config.WhatsApp.StoreDir, "store_*.db")
	files, err := filepath.Glob(pattern)
	if err != nil {
		cm.logger.Error("Failed to scan for existing sessions", zap.Error(err))
		return
	}

	// Map to store the most recent session file for each phone number
	latestSessions := make(map[string]struct {
		file      string
		sessionID string
		modTime   time.Time
	})

	// Find the most recent session file for each phone number
	for _, file := range files {
		base := filepath.Base(file)
		parts := strings.Split(strings.TrimSuffix(base, ".db"), "_")
		if len(parts) < 3 {
			continue
		}
		phoneNumber := parts[1]
		sessionID := parts[2]

		// Get file modification time
		fileInfo, err := os.Stat(file)
		if err != nil {
			cm.logger.Error("Failed to get file info",
				zap.String("file", file),
				zap.Error(err))
			continue
		}

		// Update if this is the most recent file for this phone number
		if current, exists := latestSessions[phoneNumber]; !exists || fileInfo.ModTime().After(current.modTime) {
			latestSessions[phoneNumber] = struct {
				file      string
				sessionID string
				modTime   time.Time
			}{
				file:      file,
				sessionID: sessionID,
				modTime:   fileInfo.ModTime(),
			}
		}
	}

	// Clean up old session files and restore the most recent ones
	for phoneNumber, latest := range latestSessions {
		// Remove old session files for this phone number
		for _, file := range files {
			if strings.Contains(file, "store_"+phoneNumber+"_") && file != latest.file {
				if err := os.Remove(file); err != nil {
					cm.logger.Error("Failed to remove old session file",
						zap.String("file", file),
						zap.Error(err))
				} else {
					cm.logger.Info("Removed old session file",
						zap.String("file", file))
				}
			}
		}

		// Initialize database and store
		dbPath := fmt.Sprintf("file:%s/%s?_foreign_keys=on", cm.config.WhatsApp.StoreDir, filepath.Base(latest.file))
		dbLog := waLog.Stdout("Database", "INFO", true)
		container, err := sqlstore.New("sqlite3", dbPath, dbLog)
		if err != nil {
			cm.logger.Error("Failed to initialize database",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			continue
		}

		// Get device store
		deviceStore, err := container.GetFirstDevice()
		if err != nil {
			cm.logger.Info("No valid session found in database",
				zap.String("phoneNumber", phoneNumber))
			continue
		}

		// Create client
		clientLog := waLog.Stdout("Client", "INFO", true)
		client := whatsmeow.NewClient(deviceStore, clientLog)

		// Set up event handler
		client.AddEventHandler(cm.handleWhatsAppEvent)

		// Store client info
		cm.mutex.Lock()
		cm.clients[phoneNumber] = &ClientInfo{
			UUID:        latest.sessionID,
			PhoneNumber: phoneNumber,
			Client:      client,
			Store:       deviceStore,
		}
		cm.mutex.Unlock()

		// Connect if we have a valid session
		if client.Store.ID != nil {
			go func(phone string, cli *whatsmeow.Client) {
				if err := cli.Connect(); err != nil {
					cm.logger.Error("Failed to connect restored client",
						zap.String("phoneNumber", phone),
						zap.Error(err))
					return
				}
				cm.logger.Info("Successfully connected restored client",
					zap.String("phoneNumber", phone))
			}(phoneNumber, client)
		} else {
			cm.logger.Info("Session requires QR code login",
				zap.String("phoneNumber", phoneNumber))
		}
	}
}

// SetupClient initializes a new WhatsApp client
func (cm *ClientManager) SetupClient(sessionID, phoneNumber string) (*whatsmeow.Client, error) {
	// Create store directory if it doesn't exist
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// Create database path
	dbPath := fmt.Sprintf("file:%s/store_%s_%s.db?_foreign_keys=on", cm.config.WhatsApp.StoreDir, phoneNumber, sessionID)

	// Initialize database
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New("sqlite3", dbPath, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Get device store
	deviceStore, err := container.GetFirstDevice()
	if err != nil {
		deviceStore = container.NewDevice()
	}

	// Set device properties
	store.DeviceProps.RequireFullSync = proto.Bool(true)
	store.DeviceProps.Os = proto.String(cm.config.WhatsApp.ClientName)

	// Create client
	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	// Set up event handler
	client.AddEventHandler(cm.handleWhatsAppEvent)

	// Store client info
	cm.mutex.Lock()
	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}
	cm.mutex.Unlock()

	return client, nil
}

// GetClient retrieves a WhatsApp client by phone number
func (cm *ClientManager) GetClient(phoneNumber string) (*whatsmeow.Client, bool) {
	cm.mutex.RLock()
	clientInfo, exists := cm.clients[phoneNumber]
	cm.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	// If client exists but not connected, try to connect
	if !clientInfo.Client.IsConnected() && clientInfo.Store.ID != nil {
		if err := clientInfo.Client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			return nil, false
		}
		cm.logger.Info("Successfully reconnected client",
			zap.String("phoneNumber", phoneNumber))
	}

	return clientInfo.Client, true
}

// GetQRChannel sets up a QR code channel for client authentication
func (cm *ClientManager) GetQRChannel(phoneNumber string) (<-chan whatsmeow.QRChannelItem, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	// If client exists, disconnect and remove it
	if clientInfo, exists := cm.clients[phoneNumber]; exists {
		clientInfo.Client.Disconnect()
		delete(cm.clients, phoneNumber)
	}

	// Generate a new session ID
	sessionID := uuid.New().String()

	// Create database path
	dbPath := fmt.Sprintf("file:%s/store_%s_%s.db?_foreign_keys=on", cm.config.WhatsApp.StoreDir, phoneNumber, sessionID)

	// Initialize database
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New("sqlite3", dbPath, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Create new device store
	deviceStore := container.NewDevice()

	// Set device properties
	store.DeviceProps.RequireFullSync = proto.Bool(true)
	store.DeviceProps.Os = proto.String(cm.config.WhatsApp.ClientName)

	// Create client
	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	// Set up event handler
	client.AddEventHandler(cm.handleWhatsAppEvent)

	// Get QR channel before storing or connecting
	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get QR channel: %w", err)
	}

	// Store client info
	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}

	// Connect in a goroutine
	go func() {
		if err := client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			return
		}

		cm.logger.Info("Client connected successfully",
			zap.String("phoneNumber", phoneNumber))
	}()

	return qrChan, nil
}

// Connect establishes a connection to WhatsApp
func (cm *ClientManager) Connect(phoneNumber string) error {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	return client.Connect()
}

// Disconnect closes a specific WhatsApp connection
func (cm *ClientManager) Disconnect(phoneNumber string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	clientInfo, exists := cm.clients[phoneNumber]
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	clientInfo.Client.Disconnect()
	delete(cm.clients, phoneNumber)
	return nil
}

// DisconnectAll closes all WhatsApp connections
func (cm *ClientManager) DisconnectAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for phoneNumber, clientInfo := range cm.clients {
		if clientInfo.Client != nil {
			clientInfo.Client.Disconnect()
			cm.logger.Info("Disconnected client", zap.String("phoneNumber", phoneNumber))
		}
	}

	cm.clients = make(map[string]*ClientInfo)
}

// IsLoggedIn checks if a client is logged in
func (cm *ClientManager) IsLoggedIn(phoneNumber string) (bool, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return false, fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	return client.IsLoggedIn(), nil
}

// SendTextMessage sends a text message to a WhatsApp chat
func (cm *ClientManager) SendTextMessage(phoneNumber, recipient, message string) (string, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return "", fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	// Parse recipient JID
	recipientJID, err := parseJID(recipient)
	if err != nil {
		return "", err
	}

	// Create message
	msg := &waProto.Message{
		Conversation: proto.String(message),
	}

	// Send message
	response, err := client.SendMessage(context.Background(), recipientJID, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return response.ID, nil
}

// handleWhatsAppEvent processes incoming WhatsApp events
func (cm *ClientManager) handleWhatsAppEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		cm.handleIncomingMessage(v)
	case *events.Connected:
		cm.logger.Info("WhatsApp client connected")
	case *events.Disconnected:
		cm.logger.Info("WhatsApp client disconnected")
	case *events.LoggedOut:
		cm.logger.Info("WhatsApp client logged out")
	}
}

// handleIncomingMessage processes incoming WhatsApp messages. Only
// group messages are considered; the command handler decides whether
// the text is a game command at all.
func (cm *ClientManager) handleIncomingMessage(message *events.Message) {
	// Skip messages sent by this bot
	if message.Info.MessageSource.IsFromMe {
		return
	}

	// The game only exists inside groups
	if message.Info.Chat.Server != waTypes.GroupServer {
		return
	}

	content, mentions := extractContent(message)
	if content == "" {
		return
	}

	senderName := message.Info.PushName
	if senderName == "" {
		senderName = message.Info.Sender.User
	}

	cm.logger.Debug("Received group message",
		zap.String("content", content),
		zap.String("sender", message.Info.Sender.User),
		zap.String("group", message.Info.Chat.User))

	response := cm.handler.HandleCommand(types.IncomingMessage{
		GroupID:    message.Info.Chat.String(),
		SenderID:   message.Info.Sender.User,
		SenderName: senderName,
		Text:       content,
		Mentions:   mentions,
	})
	if response == "" {
		return
	}

	// Get the first client from the manager (our bot's client)
	cm.mutex.RLock()
	var client *whatsmeow.Client
	for _, clientInfo := range cm.clients {
		client = clientInfo.Client
		break
	}
	cm.mutex.RUnlock()

	if client == nil {
		cm.logger.Error("No client available to send response")
		return
	}

	// Reply into the originating group
	msg := &waProto.Message{
		Conversation: proto.String(response),
	}

	_, err := client.SendMessage(context.Background(), message.Info.Chat, msg)
	if err != nil {
		cm.logger.Error("Failed to send response",
			zap.String("group", message.Info.Chat.User),
			zap.Error(err))
	}
}

// extractContent pulls the text body and the mentioned user ids out of
// a message. Extended text messages carry mentions in their context
// info.
func extractContent(message *events.Message) (string, []string) {
	content := message.Message.GetConversation()
	var mentions []string

	if ext := message.Message.GetExtendedTextMessage(); ext != nil {
		if content == "" {
			content = ext.GetText()
		}
		if ctx := ext.GetContextInfo(); ctx != nil {
			for _, jid := range ctx.GetMentionedJid() {
				parsed, err := waTypes.ParseJID(jid)
				if err != nil {
					continue
				}
				mentions = append(mentions, parsed.User)
			}
		}
	}

	return strings.TrimSpace(content), mentions
}

// parseJID converts a string to a WhatsApp JID
func parseJID(jidString string) (waTypes.JID, error) {
	if !strings.ContainsRune(jidString, '@') {
		// Assume this is a phone number, add WhatsApp suffix
		jidString = jidString + "@s.whatsapp.net"
	}

	return waTypes.ParseJID(jidString)
}

// SendMessage implements the game side's message sender
func (cm *ClientManager) SendMessage(phoneNumber, recipient, message string) (string, error) {
	return cm.SendTextMessage(phoneNumber, recipient, message)
}
