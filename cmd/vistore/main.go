// Package main provides a CLI tool for inspecting and administering stored
// instances.
//
// Usage:
//
//	vistore schema [--db <url>]
//	vistore get <instance_id> --def <definition> [--ver <version>] [--db <url>]
//	vistore list --def <definition> [--ver <version>] [--db <url>]
//	vistore put [instance_id] <payload> --def <definition> [--ver <version>] [--expect <version>]
//	vistore remove <instance_id> --def <definition> [--ver <version>]
//	vistore migrate-all --def <definition> [--ver <version>] --to-def <definition> [--to-ver <version>]
//	vistore migrate <instance_id>... --def <definition> [--ver <version>] --to-def <definition> [--to-ver <version>]
//
// Tracing is exported over OTLP/gRPC when OTEL_EXPORTER_OTLP_ENDPOINT is set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/i2y/vistore"
	otelhooks "github.com/i2y/vistore/hooks/otel"
)

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	db         string
	def        string
	ver        string
	versioned  bool
	timeout    time.Duration
	verbose    bool
	toDef      string
	toVer      string
	toVersion  bool
	expect     int64
	hasExpect  bool
	autoSchema bool
}

func (f *cliFlags) register(fs *flag.FlagSet, migrate bool) {
	fs.StringVar(&f.db, "db", "vistore.db", "Database path/URL")
	fs.StringVar(&f.def, "def", "", "Definition id")
	fs.Func("ver", "Definition version (omit for unversioned)", func(s string) error {
		f.ver, f.versioned = s, true
		return nil
	})
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "Per-operation query timeout")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&f.autoSchema, "auto-schema", false, "Apply the bundled schema before running the command")
	if migrate {
		fs.StringVar(&f.toDef, "to-def", "", "Target definition id")
		fs.Func("to-ver", "Target definition version (omit for unversioned)", func(s string) error {
			f.toVer, f.toVersion = s, true
			return nil
		})
	}
}

func (f *cliFlags) definition() vistore.Definition {
	if f.versioned {
		return vistore.Versioned(f.def, f.ver)
	}
	return vistore.Unversioned(f.def)
}

func (f *cliFlags) target() vistore.Definition {
	if f.toVersion {
		return vistore.Versioned(f.toDef, f.toVer)
	}
	return vistore.Unversioned(f.toDef)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	cmdArgs := os.Args[2:]

	var flags cliFlags
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	flags.register(fs, cmd == "migrate-all" || cmd == "migrate")
	if cmd == "put" {
		fs.Func("expect", "Expected current version; enables the locked update", func(s string) error {
			_, err := fmt.Sscanf(s, "%d", &flags.expect)
			flags.hasExpect = true
			return err
		})
	}
	_ = fs.Parse(cmdArgs)
	args := fs.Args()

	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx := context.Background()
	tp, err := setupTracing(ctx)
	if err != nil {
		slog.Warn("failed to setup tracing", "error", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Warn("failed to shut down tracer", "error", err)
			}
		}()
	}

	var runErr error
	switch cmd {
	case "schema":
		runErr = cmdSchema(ctx, &flags)

	case "get":
		if len(args) < 1 {
			fmt.Println("Error: instance_id is required")
			fmt.Println("Usage: vistore get <instance_id> --def <definition> [--ver <version>]")
			os.Exit(1)
		}
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			return cmdGet(ctx, s, args[0])
		})

	case "list":
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			return cmdList(ctx, s)
		})

	case "put":
		var id, payload string
		switch len(args) {
		case 1:
			id, payload = uuid.NewString(), args[0]
		case 2:
			id, payload = args[0], args[1]
		default:
			fmt.Println("Error: payload is required")
			fmt.Println("Usage: vistore put [instance_id] <payload> --def <definition> [--expect <version>]")
			os.Exit(1)
		}
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			return cmdPut(ctx, s, &flags, id, payload)
		})

	case "remove":
		if len(args) < 1 {
			fmt.Println("Error: instance_id is required")
			os.Exit(1)
		}
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			return cmdRemove(ctx, s, args[0])
		})

	case "migrate-all":
		if flags.toDef == "" {
			fmt.Println("Error: --to-def is required")
			os.Exit(1)
		}
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			n, err := s.MigrateAll(ctx, flags.target())
			if err != nil {
				return err
			}
			fmt.Printf("Migrated %d instance(s) from %s to %s\n", n, s.Definition(), flags.target())
			return nil
		})

	case "migrate":
		if flags.toDef == "" || len(args) == 0 {
			fmt.Println("Error: --to-def and at least one instance_id are required")
			os.Exit(1)
		}
		runErr = withStore(ctx, &flags, tp, func(s *vistore.Store[*vistore.RawInstance]) error {
			if err := s.MigrateInstances(ctx, flags.target(), args...); err != nil {
				return err
			}
			fmt.Printf("Migrated listed instance(s) from %s to %s\n", s.Definition(), flags.target())
			return nil
		})

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Printf("Error: %v\n", runErr)
		if tp != nil {
			_ = tp.Shutdown(ctx)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("vistore CLI - Inspect and administer stored instances")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vistore <command> [arguments] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  schema                          Apply the bundled schema migrations")
	fmt.Println("  get <instance_id>               Show an instance")
	fmt.Println("  list                            List instances of a definition")
	fmt.Println("  put [instance_id] <payload>     Create or overwrite an instance")
	fmt.Println("  remove <instance_id>            Remove an instance")
	fmt.Println("  migrate-all                     Move every instance to another definition")
	fmt.Println("  migrate <instance_id>...        Move the listed instances to another definition")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --db <url>          Database path/URL (default: vistore.db)")
	fmt.Println("  --def <id>          Definition id")
	fmt.Println("  --ver <version>     Definition version (omit for unversioned)")
	fmt.Println("  --to-def <id>       Target definition id (migrate commands)")
	fmt.Println("  --to-ver <version>  Target definition version (migrate commands)")
	fmt.Println("  --expect <version>  Expected version for a locked update (put)")
	fmt.Println("  --timeout <dur>     Per-operation query timeout (default: 10s)")
	fmt.Println("  --auto-schema       Apply the bundled schema first")
	fmt.Println()
	fmt.Println("Migrations are not coordinated with running writers; stop traffic to the")
	fmt.Println("definition before running migrate-all or migrate.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  vistore schema --db postgres://localhost/app")
	fmt.Println("  vistore put abc-123 '{\"step\":1}' --def orders --ver 1.0")
	fmt.Println("  vistore put abc-123 '{\"step\":2}' --def orders --ver 1.0 --expect 0")
	fmt.Println("  vistore migrate-all --def orders --ver 1.0 --to-def orders-v2 --to-ver 2.0")
}

// setupTracing configures an OTLP exporter when an endpoint is configured.
func setupTracing(ctx context.Context) (*sdktrace.TracerProvider, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return nil, nil // No tracing configured
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "vistore-cli"
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func openDatabase(ctx context.Context, flags *cliFlags) (*vistore.Database, error) {
	db, err := vistore.OpenDatabase(ctx, flags.db, vistore.WithAutoMigrate(flags.autoSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func withStore(ctx context.Context, flags *cliFlags, tp *sdktrace.TracerProvider, fn func(*vistore.Store[*vistore.RawInstance]) error) error {
	if flags.def == "" {
		return errors.New("--def is required")
	}

	db, err := openDatabase(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := []vistore.Option{
		vistore.WithQueryTimeout(flags.timeout),
		vistore.WithLogger(slog.Default()),
	}
	if tp != nil {
		opts = append(opts, vistore.WithHooks(otelhooks.NewOTelHooks(tp)))
	}

	return fn(vistore.NewStore[*vistore.RawInstance](db, flags.definition(), vistore.RawMarshaller{}, opts...))
}

// cmdSchema applies the bundled migrations.
func cmdSchema(ctx context.Context, flags *cliFlags) error {
	db, err := vistore.OpenDatabase(ctx, flags.db, vistore.WithAutoMigrate(false))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Printf("Applied %s\n", v)
	}
	return nil
}

// cmdGet prints one instance.
func cmdGet(ctx context.Context, s *vistore.Store[*vistore.RawInstance], id string) error {
	inst, found, err := s.Find(ctx, id, vistore.ReadOnly)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("instance not found: %s", id)
	}

	payload, err := inst.Payload(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== Instance ===")
	fmt.Printf("Instance ID:  %s\n", id)
	fmt.Printf("Definition:   %s\n", s.Definition())
	fmt.Printf("Version:      %d\n", inst.Version())
	fmt.Println()
	fmt.Println("--- Payload ---")
	fmt.Println(string(payload))
	return nil
}

// cmdList prints every instance of the definition.
func cmdList(ctx context.Context, s *vistore.Store[*vistore.RawInstance]) error {
	it, err := s.Stream(ctx, vistore.ReadOnly)
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	fmt.Printf("%-40s %-8s %s\n", "INSTANCE", "VERSION", "BYTES")
	count := 0
	for it.Next() {
		inst := it.Instance()
		payload, err := inst.Payload(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%-40s %-8d %d\n", it.InstanceID(), inst.Version(), len(payload))
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Printf("\n%d instance(s) under %s\n", count, s.Definition())
	return nil
}

// cmdPut creates the instance, or overwrites it when it already exists.
// With --expect the overwrite is a locked update.
func cmdPut(ctx context.Context, s *vistore.Store[*vistore.RawInstance], flags *cliFlags, id, payload string) error {
	if flags.hasExpect {
		if err := s.UpdateWithLock(ctx, id, []byte(payload), flags.expect); err != nil {
			if vistore.IsOptimisticLockConflict(err) {
				return fmt.Errorf("instance %s is not at version %d (or does not exist)", id, flags.expect)
			}
			return err
		}
		fmt.Printf("Updated %s to version %d\n", id, flags.expect+1)
		return nil
	}

	err := s.Create(ctx, id, vistore.NewRawInstance([]byte(payload)))
	if err == nil {
		fmt.Printf("Created %s\n", id)
		return nil
	}
	if !vistore.IsDuplicateKey(err) {
		return err
	}

	ok, err := s.Update(ctx, id, vistore.NewRawInstance([]byte(payload)))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("instance disappeared while overwriting")
	}
	fmt.Printf("Overwrote %s\n", id)
	return nil
}

// cmdRemove deletes one instance.
func cmdRemove(ctx context.Context, s *vistore.Store[*vistore.RawInstance], id string) error {
	removed, err := s.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("instance not found: %s", id)
	}
	fmt.Printf("Removed %s\n", id)
	return nil
}
