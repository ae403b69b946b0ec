// Command migrate manages the connector database schema.
//
// Migrations are embedded in the binary; -path switches to a directory on disk,
// which is also where "create" writes new pairs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aurum/backend/internal/infrastructure/config"
	"github.com/aurum/backend/internal/infrastructure/logger"
	"github.com/aurum/backend/internal/infrastructure/migration"
	"github.com/aurum/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage")

// invocation carries what a command needs. Migrator is nil for commands that
// do not touch the database.
type invocation struct {
	args     []string
	dir      string
	log      *zap.Logger
	migrator *migration.Migrator
}

type command struct {
	usage   string
	summary string
	minArgs int
	offline bool
	run     func(in *invocation) error
}

var commands = map[string]command{
	"up":   {usage: "up", summary: "Apply all pending migrations", run: func(in *invocation) error { return in.migrator.Up() }},
	"down": {usage: "down", summary: "Roll back all migrations", run: func(in *invocation) error { return in.migrator.Down() }},
	"step": {usage: "step <n>", summary: "Apply n migrations (negative rolls back)", minArgs: 1, run: func(in *invocation) error {
		n, err := strconv.Atoi(in.args[0])
		if err != nil {
			return fmt.Errorf("%w: step count %q is not an integer", errUsage, in.args[0])
		}
		return in.migrator.Steps(n)
	}},
	"goto": {usage: "goto <version>", summary: "Migrate to a specific version", minArgs: 1, run: func(in *invocation) error {
		v, err := strconv.ParseUint(in.args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: version %q is not a number", errUsage, in.args[0])
		}
		return in.migrator.GoTo(uint(v))
	}},
	"version": {usage: "version", summary: "Show the applied version", run: func(in *invocation) error {
		v, dirty, err := in.migrator.Version()
		if err != nil {
			return err
		}
		in.log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
	"force": {usage: "force <version>", summary: "Mark a version applied without running it", minArgs: 1, run: func(in *invocation) error {
		v, err := strconv.Atoi(in.args[0])
		if err != nil {
			return fmt.Errorf("%w: version %q is not a number", errUsage, in.args[0])
		}
		return in.migrator.Force(v)
	}},
	"drop": {usage: "drop -confirm", summary: "Drop all database objects", run: func(in *invocation) error {
		if !slices.Contains(in.args, "-confirm") && !slices.Contains(in.args, "--confirm") {
			return fmt.Errorf("%w: drop requires -confirm", errUsage)
		}
		return in.migrator.Drop()
	}},
	"create": {usage: "create <name> [desc]", summary: "Write a new migration pair under -path", minArgs: 1, offline: true, run: func(in *invocation) error {
		dir := in.dir
		if dir == "" {
			dir = "migrations"
		}
		mf, err := migration.CreateMigration(dir, in.args[0], strings.Join(in.args[1:], " "))
		if err != nil {
			return err
		}
		in.log.Info("Migration created", zap.String("version", mf.Version), zap.String("up", mf.UpPath), zap.String("down", mf.DownPath))
		return nil
	}},
	"list": {usage: "list", summary: "List migrations and check up/down pairing", offline: true, run: func(in *invocation) error {
		src := source(in.dir)
		names, err := migration.ListMigrations(src)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return migration.ValidatePairs(src)
	}},
}

func main() {
	dir := flag.String("path", "", "migrations directory (default: embedded)")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	name := flag.Arg(0)
	if err := dispatch(name, flag.Args()[1:], *dir, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			usage()
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", name), zap.Error(err))
	}
}

func dispatch(name string, args []string, dir string, log *zap.Logger) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if len(args) < cmd.minArgs {
		return fmt.Errorf("%w: migrate %s", errUsage, cmd.usage)
	}

	in := &invocation{args: args, dir: dir, log: log}
	if cmd.offline {
		return cmd.run(in)
	}

	m, err := connect(dir, log)
	if err != nil {
		return err
	}
	defer m.Close()
	in.migrator = m
	return cmd.run(in)
}

// connect opens the configured database and wraps it in a migrator, which
// takes ownership of the connection.
func connect(dir string, log *zap.Logger) (*migration.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reach database %s: %w", cfg.Database.Host, err)
	}

	var m *migration.Migrator
	if dir == "" {
		m, err = migration.NewFromFS(db, migrations.FS, log)
	} else if abs, absErr := filepath.Abs(dir); absErr != nil {
		err = absErr
	} else {
		log.Info("Reading migrations from disk", zap.String("path", abs))
		m, err = migration.New(db, abs, log)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func usage() {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString("Connector schema migration tool\n\nUsage:\n  migrate [flags] <command> [arguments]\n\nCommands:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %-22s %s\n", commands[n].usage, commands[n].summary)
	}
	b.WriteString("\nFlags:\n")
	fmt.Fprint(os.Stderr, b.String())
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "\nDatabase settings come from config.toml and AURUM_DATABASE_* variables.")
}
