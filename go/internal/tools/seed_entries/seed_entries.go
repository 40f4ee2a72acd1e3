package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/lastcoin/go/internal/dbconfig"
)

// Entry mirrors the JSON layout of an entries file.
type Entry struct {
	GameID   string          `json:"game_id"`
	PlayerID string          `json:"player_id"`
	Status   string          `json:"status"`
	Cosmetic json.RawMessage `json:"cosmetic,omitempty"`
}

// Usage: seed_entries <entries.json>
//
// A confirmed status fires the entry notification, so a running server
// seats the player as soon as the row lands.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: seed_entries <entries.json>")
		os.Exit(2)
	}

	// 1) Load the JSON file
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total   = len(entries)
		written int
		errs    int
	)
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = "confirmed"
		}
		var cosmetic any
		if len(e.Cosmetic) > 0 {
			cosmetic = string(e.Cosmetic)
		}
		_, err := pool.Exec(ctx, `
            INSERT INTO flip_entries (game_id, player_id, status, cosmetic, confirmed_at)
            VALUES ($1, $2, $3, $4::jsonb, CASE WHEN $3::text = 'confirmed' THEN NOW() END)
            ON CONFLICT (game_id, player_id) DO UPDATE
              SET status = EXCLUDED.status,
                  cosmetic = COALESCE(EXCLUDED.cosmetic, flip_entries.cosmetic),
                  confirmed_at = COALESCE(flip_entries.confirmed_at, EXCLUDED.confirmed_at)
            WHERE flip_entries.joined_at IS NULL
        `, e.GameID, e.PlayerID, status, cosmetic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error writing entry %s/%s: %v\n", e.GameID, e.PlayerID, err)
			errs++
			continue
		}
		written++
	}

	fmt.Printf("Seed complete: %d total, %d written, %d errors\n", total, written, errs)
}
