package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	MsgConfigMissingToken    = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID  = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigMissingLavalink = "LAVALINK_HOST is not set in .env file"
	MsgConfigUnknownPlatform = "unknown search platform prefix: %s"

	// Environment Variables
	EnvDiscordToken     = "DISCORD_TOKEN"
	EnvGuildID          = "GUILD_ID"
	EnvSilent           = "SILENT"
	EnvOwnerIDs         = "OWNER_IDS"
	EnvLavalinkHost     = "LAVALINK_HOST"
	EnvLavalinkPort     = "LAVALINK_PORT"
	EnvLavalinkPassword = "LAVALINK_PASSWORD"
	EnvLavalinkSecure   = "LAVALINK_SECURE"
	EnvSpotifyClientID  = "SPOTIFY_CLIENT_ID"
	EnvSpotifySecret    = "SPOTIFY_CLIENT_SECRET"
	EnvSearchPlatforms  = "SEARCH_PLATFORMS"
	EnvDefaultVolume    = "DEFAULT_VOLUME"
	EnvMaxVolume        = "MAX_VOLUME"
	EnvWebAddr          = "WEB_ADDR"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool

	// Lavalink node
	LavalinkHost     string
	LavalinkPort     string
	LavalinkPassword string
	LavalinkSecure   bool

	// Spotify catalog credentials
	SpotifyClientID     string
	SpotifyClientSecret string

	// Playback
	SearchPlatforms []string
	DefaultVolume   int
	MaxVolume       int
	LeaveTimeout    time.Duration

	// Status dashboard
	WebAddr string
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv(EnvDiscordToken)
	dbPath := filepath.Join(".", GetProjectName()+".db")

	silent, _ := strconv.ParseBool(os.Getenv(EnvSilent))
	secure, _ := strconv.ParseBool(os.Getenv(EnvLavalinkSecure))

	ownerIDsStr := os.Getenv(EnvOwnerIDs)
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	platforms := DefaultPlatformOrder()
	if raw := os.Getenv(EnvSearchPlatforms); raw != "" {
		platforms = nil
		for _, p := range strings.Split(raw, ",") {
			platforms = append(platforms, strings.TrimSpace(p))
		}
	}

	cfg := &Config{
		Token:               token,
		GuildID:             os.Getenv(EnvGuildID),
		DatabasePath:        dbPath,
		OwnerIDs:            ownerIDs,
		Silent:              silent,
		LavalinkHost:        os.Getenv(EnvLavalinkHost),
		LavalinkPort:        os.Getenv(EnvLavalinkPort),
		LavalinkPassword:    os.Getenv(EnvLavalinkPassword),
		LavalinkSecure:      secure,
		SpotifyClientID:     os.Getenv(EnvSpotifyClientID),
		SpotifyClientSecret: os.Getenv(EnvSpotifySecret),
		SearchPlatforms:     platforms,
		DefaultVolume:       50,
		MaxVolume:           100,
		LeaveTimeout:        2 * time.Minute,
		WebAddr:             os.Getenv(EnvWebAddr),
	}

	if cfg.LavalinkPort == "" {
		cfg.LavalinkPort = "2333"
	}
	if v, err := strconv.Atoi(os.Getenv(EnvDefaultVolume)); err == nil && v > 0 {
		cfg.DefaultVolume = v
	}
	if v, err := strconv.Atoi(os.Getenv(EnvMaxVolume)); err == nil && v > 0 {
		cfg.MaxVolume = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	if c.LavalinkHost == "" {
		return fmt.Errorf(MsgConfigMissingLavalink)
	}
	for _, p := range c.SearchPlatforms {
		if LookupPlatform(p) == nil {
			return fmt.Errorf(MsgConfigUnknownPlatform, p)
		}
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "aori"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
