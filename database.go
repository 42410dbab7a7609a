package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// ============================================================================
// Database
// ============================================================================

const (
	MsgDatabasePragmaError = "failed to apply pragma %q: %w"
	MsgDatabaseTableError  = "failed to create table: %w"
	MsgDatabaseInitSuccess = "Database initialized"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			volume INTEGER DEFAULT 50,
			twenty_four_seven INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// BotConfig helpers are used by the loader for command hash tracking.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// ============================================================================
// Guild Settings
// ============================================================================

type GuildSettings struct {
	GuildID         snowflake.ID
	Volume          int
	TwentyFourSeven bool
}

// GetGuildSettings returns stored settings for a guild, falling back to
// configured defaults when no row exists.
func GetGuildSettings(ctx context.Context, guildID snowflake.ID) (*GuildSettings, error) {
	settings := &GuildSettings{
		GuildID: guildID,
		Volume:  GlobalConfig.DefaultVolume,
	}

	var volume, tfs int
	err := DB.QueryRowContext(ctx,
		"SELECT volume, twenty_four_seven FROM guild_settings WHERE guild_id = ?",
		guildID.String()).Scan(&volume, &tfs)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	settings.Volume = volume
	settings.TwentyFourSeven = tfs == 1
	return settings, nil
}

func SetGuildVolume(ctx context.Context, guildID snowflake.ID, volume int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, volume) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET volume = excluded.volume, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), volume)
	return err
}

func SetGuildTwentyFourSeven(ctx context.Context, guildID snowflake.ID, enabled bool) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, twenty_four_seven) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET twenty_four_seven = excluded.twenty_four_seven, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), boolToInt(enabled))
	return err
}

func GetTwentyFourSevenGuilds(ctx context.Context) ([]snowflake.ID, error) {
	rows, err := DB.QueryContext(ctx,
		"SELECT guild_id FROM guild_settings WHERE twenty_four_seven = 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []snowflake.ID
	for rows.Next() {
		var gStr string
		if err := rows.Scan(&gStr); err != nil {
			return nil, fmt.Errorf("failed to scan guild settings: %w", err)
		}
		gID, err := snowflake.Parse(gStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse guild ID '%s' in guild settings: %w", gStr, err)
		}
		guilds = append(guilds, gID)
	}
	return guilds, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
