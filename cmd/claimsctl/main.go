package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Dan9191/claims-service/internal/config"
	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/repository"
	"github.com/Dan9191/claims-service/internal/repository/mongostore"
	"github.com/Dan9191/claims-service/internal/service"
)

const usage = "Usage: claimsctl create-user -name <name> -email <email> -role <patient|insurer> [-password <password>] [-driver <postgres|sqlite|mongo>] [-db <dsn>]"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] != "create-user" {
		fmt.Fprintln(stdout, usage)
		return fmt.Errorf("unknown command")
	}

	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	role := fs.String("role", string(models.RoleInsurer), "Role: patient or insurer")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	driver := fs.String("driver", envOr("STORE_DRIVER", config.DriverPostgres), "Store driver")
	dsn := fs.String("db", "", "SQL DSN or Mongo URI (defaults to DB_CONN / MONGO_URI)")

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	if *name == "" || *email == "" {
		fmt.Fprintln(stdout, usage)
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: name, email")
	}
	parsedRole, err := models.ParseRole(*role)
	if err != nil {
		return err
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, closeDB, err := openStore(ctx, *driver, *dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeDB()

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(logrus.WarnLevel)

	svc := service.NewService(db, nil, nil, nil, logger)
	user, err := svc.CreateUser(ctx, *name, *email, password, parsedRole)
	if err != nil {
		var se *service.Error
		if errors.As(err, &se) && se.Kind == service.KindValidation {
			return fmt.Errorf("user %s: %s", models.NormalizeEmail(*email), strings.ToLower(se.Message))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s (role %s)\n", user.Email, user.ID, user.Role)
	return nil
}

func openStore(ctx context.Context, driver, dsn string) (service.Store, func() error, error) {
	switch driver {
	case config.DriverMongo:
		if dsn == "" {
			dsn = envOr("MONGO_URI", "mongodb://localhost:27017")
		}
		s, err := mongostore.Connect(ctx, dsn, envOr("MONGO_DATABASE", "claims"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverPostgres, config.DriverSQLite:
		if dsn == "" {
			dsn = os.Getenv("DB_CONN")
		}
		if dsn == "" {
			return nil, nil, fmt.Errorf("no database given, set -db or DB_CONN")
		}
		r, err := repository.Open(ctx, driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
