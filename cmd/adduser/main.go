// Command adduser creates accounts, or resets their password, directly in
// the database.
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

	"finboard/internal/auth"
	"finboard/internal/models"
	"finboard/internal/storage"

	"github.com/caarlos0/env/v8"
	"golang.org/x/term"
)

type options struct {
	Username string
	Password string
	Role     models.Role
	Nickname string
	Email    string
	Reset    bool
	DBPath   string `env:"DB_PATH" envDefault:"finboard.db"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseOptions reads the flags. The database comes from -db, then DB_PATH,
// then the server's default.
func parseOptions(args []string, stdout, stderr io.Writer) (options, error) {
	var o options
	if err := env.Parse(&o); err != nil {
		return o, err
	}

	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Username, "user", "", "Username")
	fs.StringVar(&o.Password, "password", "", "Password (optional, will prompt if omitted)")
	role := fs.String("role", string(models.RoleUser), "Role: user or admin")
	fs.StringVar(&o.Nickname, "nickname", "", "Name shown in the page header")
	fs.StringVar(&o.Email, "email", "", "Email address")
	fs.BoolVar(&o.Reset, "reset", false, "Set a new password for an existing user")
	fs.StringVar(&o.DBPath, "db", o.DBPath, "Path to database file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.Username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-role user|admin] [-reset] [-db <db_path>]")
		fs.PrintDefaults()
		return o, errors.New("missing required flags: user")
	}
	o.Role = models.Role(*role)
	if !o.Role.Valid() {
		return o, fmt.Errorf("unknown role %q", *role)
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseOptions(args, stdout, stderr)
	if err != nil {
		return err
	}

	if o.Password == "" {
		fmt.Fprint(stdout, "Password: ")
		o.Password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(o.Password) == "" {
		return errors.New("password cannot be empty")
	}
	hash, err := auth.HashPassword(o.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	db, err := storage.NewDB(o.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	ctx := context.Background()

	if o.Reset {
		err := db.SetPassword(ctx, o.Username, hash)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %s does not exist", o.Username)
		}
		if err != nil {
			return fmt.Errorf("failed to reset password: %w", err)
		}
		fmt.Fprintf(stdout, "Password for %s has been reset\n", o.Username)
		return nil
	}

	user, err := db.CreateUser(ctx, models.User{
		Username:     o.Username,
		Email:        o.Email,
		Nickname:     o.Nickname,
		Role:         o.Role,
		PasswordHash: hash,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("user %s already exists", o.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Fprintf(stdout, "User %s (%s) created successfully with ID %d\n", user.Username, user.Role, user.ID)
	return nil
}

// readPassword reads without echo from a terminal, or one line otherwise.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
