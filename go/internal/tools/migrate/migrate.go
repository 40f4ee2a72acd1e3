package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/lastcoin/go/internal/dbconfig"
	"github.com/mcdev12/lastcoin/go/internal/flip/repository/schema"
)

func main() {
	ctx := context.Background()

	// 1) Collect the embedded migrations in file order
	files, err := fs.Glob(schema.Migrations, "*.sql")
	if err != nil {
		fmt.Fprintf(os.Stderr, "list migrations: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Apply each file; every statement is idempotent
	for _, name := range files {
		sql, err := fs.ReadFile(schema.Migrations, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			fmt.Fprintf(os.Stderr, "apply %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("applied %s\n", name)
	}

	fmt.Printf("%d migrations applied to %s\n", len(files), cfg.Database)
}
