// Command harvester-migrate applies the harvest schema migrations with
// goose. It is the only component that writes DDL; the harvester and the
// control API assume the schema already exists.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

type migrateOptions struct {
	DSN           string
	Dir           string
	Direction     string
	TargetVersion int64
	StatusOnly    bool
}

func main() {
	opts := parseFlags()

	if opts.DSN == "" {
		log.Fatal("no connection string: set -dsn or DATABASE_URL")
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	switch {
	case opts.StatusOnly:
		err = goose.Status(db, opts.Dir)
	case opts.Direction == "up":
		if opts.TargetVersion > 0 {
			err = goose.UpTo(db, opts.Dir, opts.TargetVersion)
		} else {
			err = goose.Up(db, opts.Dir)
		}
	case opts.Direction == "down":
		if opts.TargetVersion > 0 {
			err = goose.DownTo(db, opts.Dir, opts.TargetVersion)
		} else {
			err = goose.Down(db, opts.Dir)
		}
	default:
		err = fmt.Errorf("unsupported direction %q (expected up or down)", opts.Direction)
	}

	if err != nil {
		log.Fatalf("migration command failed: %v", err)
	}
}

func parseFlags() migrateOptions {
	var opts migrateOptions
	flag.StringVar(&opts.DSN, "dsn", getEnvOrDefault("DATABASE_URL", ""), "Postgres connection string")
	flag.StringVar(&opts.Dir, "dir", "migrations/sql", "Directory holding the goose migration files")
	flag.StringVar(&opts.Direction, "direction", "up", "Migration direction (up|down)")
	flag.Int64Var(&opts.TargetVersion, "version", 0, "Optional target version (0 means latest/previous)")
	flag.BoolVar(&opts.StatusOnly, "status", false, "Report current migration status and exit")
	flag.Parse()

	opts.Direction = strings.ToLower(strings.TrimSpace(opts.Direction))
	return opts
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
