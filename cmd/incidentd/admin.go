package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/sst-platform/incidentd/internal/adapter/postgres"
	"github.com/sst-platform/incidentd/internal/config"
	"github.com/sst-platform/incidentd/internal/domain/event"
	"github.com/sst-platform/incidentd/internal/domain/user"
	"github.com/sst-platform/incidentd/internal/realtime"
	"github.com/sst-platform/incidentd/internal/service"
)

// Seed account created by "admin seed".
const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123" //nolint:gosec // documented development credential
	seedAdminFullName = "Administrator"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "seed":
		return runAdminSeed(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: incidentd admin <command> [options]

Commands:
  create-user      Create a new user
  list-users       List all users
  seed             Create the admin account and demo incidents
  migrate          Show or change the schema version (status, up, down)
  help             Show this help message

Examples:
  incidentd admin create-user --username dispatcher --name "Night Shift" --staff
  incidentd admin list-users
  incidentd admin seed
  incidentd admin migrate down --steps 1
`)
}

type adminDeps struct {
	cfg     *config.Config
	store   *postgres.Store
	auth    *service.AuthService
	cleanup func()
}

func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	return &adminDeps{
		cfg:     cfg,
		store:   store,
		auth:    service.NewAuthService(store, &cfg.Auth),
		cleanup: pool.Close,
	}, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "login name (required)")
	name := fs.String("name", "", "full name")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	staff := fs.Bool("staff", false, "mark the account as staff")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		return fmt.Errorf("--username is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	req := &user.CreateRequest{Username: *username, Password: pass, IsStaff: *staff}
	if *name != "" {
		req.FullName = name
	}
	u, err := deps.auth.Register(ctx, req)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%d, staff=%t)\n", u.Username, u.ID, u.IsStaff)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	users, err := deps.auth.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tFULL_NAME\tACTIVE\tSTAFF\tCREATED")
	for i := range users {
		fullName := ""
		if users[i].FullName != nil {
			fullName = *users[i].FullName
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\n",
			users[i].ID, users[i].Username, fullName, users[i].IsActive, users[i].IsStaff,
			event.FormatTimestamp(users[i].CreatedAt))
	}
	return w.Flush()
}

// runAdminSeed applies migrations, then creates the admin account and the
// demo incidents. Existing data is left untouched.
func runAdminSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if err := postgres.RunMigrations(ctx, deps.cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	fullName := seedAdminFullName
	created, err := deps.auth.SeedAdmin(ctx, seedAdminUsername, seedAdminPassword, &fullName)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(os.Stderr, "Created admin user %q\n", seedAdminUsername)
	} else {
		fmt.Fprintf(os.Stderr, "Admin user %q already exists\n", seedAdminUsername)
	}

	// No stream subscribers exist in the CLI process; the hub only satisfies
	// the publish path.
	incidents := service.NewIncidentService(deps.store, realtime.NewBroadcaster())
	n, err := incidents.SeedDemo(ctx)
	if err != nil {
		return err
	}
	if err := incidents.WaitPublishes(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Seeded %d demo incidents\n", n)
	return nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate requires one of: status, up, down")
	}
	action := args[0]

	fs := flag.NewFlagSet("migrate "+action, flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch action {
	case "status":
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
