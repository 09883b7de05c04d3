package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/user/niuniu-bot/config"
	"github.com/user/niuniu-bot/internal/game"
	"github.com/user/niuniu-bot/internal/router"
	"github.com/user/niuniu-bot/internal/whatsapp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Set up logger
	logger := setupLogger()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize game manager and renderer
	gameManager := game.NewGameManager(cfg, logger)
	renderer := game.NewRenderer(filepath.Join(cfg.Game.DataDir, "niuniu_game_texts.yml"), logger)

	// Wire the command router over them
	commandRouter := router.NewRouter(gameManager, renderer, logger)

	// Initialize WhatsApp client manager
	clientManager := whatsapp.NewClientManager(commandRouter, cfg, logger)

	// Initialize QR code manager
	qrManager := whatsapp.NewQRCodeManager(clientManager, cfg, logger)

	// Initialize session manager
	sessionManager := whatsapp.NewSessionManager(cfg.WhatsApp.StoreDir, logger)

	// Set up HTTP server for QR code generation and session handling
	server := setupHTTPServer(cfg, clientManager, qrManager, sessionManager, gameManager, logger)

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	waitForShutdown(clientManager, logger)
}

func setupLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

func setupHTTPServer(cfg config.Config, clientManager *whatsapp.ClientManager, qrManager *whatsapp.QRCodeManager, sessionManager *whatsapp.SessionManager, gameManager *game.GameManager, logger *zap.Logger) *http.Server {
	// Create router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Set up routes
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("OK"))
	})

	// Serve static files
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, "./assets/templates/qr.html")
	})

	// Serve QR code images
	r.Get("/qrcodes/*", func(w http.ResponseWriter, req *http.Request) {
		http.StripPrefix("/qrcodes/", http.FileServer(http.Dir("./assets/qrcodes"))).ServeHTTP(w, req)
	})

	// QR code generation endpoint
	r.Post("/qr", func(w http.ResponseWriter, req *http.Request) {
		// Parse request
		var body struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		// Generate session ID
		sessionID := uuid.New().String()

		// Generate QR code
		qrCode, err := qrManager.GenerateQRCode(sessionID, body.PhoneNumber)
		if err != nil {
			logger.Error("Failed to generate QR code",
				zap.String("phone_number", body.PhoneNumber),
				zap.Error(err))
			http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
			return
		}

		// Return QR code data
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"qr_code": qrCode,
		})
	})

	// Session management endpoints
	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		sessions, err := sessionManager.ListSessions()
		if err != nil {
			logger.Error("Failed to list sessions", zap.Error(err))
			http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	})

	r.Delete("/sessions/{phone_number}/{session_id}", func(w http.ResponseWriter, req *http.Request) {
		phoneNumber := chi.URLParam(req, "phone_number")
		sessionID := chi.URLParam(req, "session_id")

		// Disconnect client if connected
		if client, exists := clientManager.GetClient(phoneNumber); exists {
			client.Disconnect()
		}

		// Delete session
		if err := sessionManager.DeleteSession(phoneNumber, sessionID); err != nil {
			logger.Error("Failed to delete session",
				zap.String("phone_number", phoneNumber),
				zap.String("session_id", sessionID),
				zap.Error(err))
			http.Error(w, "Failed to delete session", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	// Read-only group ranking endpoint
	r.Get("/groups/{group_id}/rank", func(w http.ResponseWriter, req *http.Request) {
		groupID := chi.URLParam(req, "group_id")

		rank, err := gameManager.Rank(groupID, 5)
		if err != nil {
			http.Error(w, "No ranking available", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"strongest": rank.Strongest,
			"weakest":   rank.Weakest,
		})
	})

	// Create HTTP server
	return &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
}

func waitForShutdown(clientManager *whatsapp.ClientManager, logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform cleanup
	clientManager.DisconnectAll()
	logger.Info("Shutting down")
}
