package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all configuration for the application
type Config struct {
	// WhatsApp configuration
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Server configuration
	Server ServerConfig `json:"server"`
}

// WhatsAppConfig holds WhatsApp specific configuration
type WhatsAppConfig struct {
	// Path to store WhatsApp session data
	StoreDir string `json:"store_dir"`

	// Client device name
	ClientName string `json:"client_name"`
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Directory holding the persisted game stores
	DataDir string `json:"data_dir"`

	// Initial length range assigned on registration
	MinLength int `json:"min_length"`
	MaxLength int `json:"max_length"`

	// Growth action deltas
	MinGain int `json:"min_gain"`
	MaxGain int `json:"max_gain"`
	MinLoss int `json:"min_loss"`
	MaxLoss int `json:"max_loss"`

	// Compare win bonus range
	MinBonus int `json:"min_bonus"`
	MaxBonus int `json:"max_bonus"`

	// Cooldown windows in seconds
	GrowCooldown      int `json:"grow_cooldown"`
	BatchGrowCooldown int `json:"batch_grow_cooldown"`
	CompareCooldown   int `json:"compare_cooldown"`
	FlightCooldown    int `json:"flight_cooldown"`

	// Rolling compare limit: at most CompareLimit per CompareWindow seconds
	CompareWindow int `json:"compare_window"`
	CompareLimit  int `json:"compare_limit"`

	// Rush faucet bounds in seconds
	RushMinDuration int `json:"rush_min_duration"`
	RushMaxDuration int `json:"rush_max_duration"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		WhatsApp: WhatsAppConfig{
			StoreDir:   "./whatsapp-store",
			ClientName: "NIUNIU BOT",
		},
		Game: GameConfig{
			DataDir:           "./data",
			MinLength:         1,
			MaxLength:         10,
			MinGain:           2,
			MaxGain:           6,
			MinLoss:           1,
			MaxLoss:           2,
			MinBonus:          0,
			MaxBonus:          3,
			GrowCooldown:      30,
			BatchGrowCooldown: 60,
			CompareCooldown:   600,
			FlightCooldown:    14400,
			CompareWindow:     600,
			CompareLimit:      3,
			RushMinDuration:   600,
			RushMaxDuration:   1800,
		},
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default config file
		file, err := os.Create(path)
		if err != nil {
			return config, err
		}
		defer file.Close()

		encoder := json.NewEncoder(file)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(config); err != nil {
			return config, err
		}

		return config, nil
	}

	// Read config file
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, err
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return err
	}

	return nil
}
