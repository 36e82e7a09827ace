// Package authctl implements the administrative command line: creating and
// removing accounts directly against the configured storage.
package authctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

const minPasswordLen = 8

// Hasher turns a plaintext password into a storable digest.
type Hasher interface {
	Hash(password string) (string, error)
}

type App struct {
	repos  repomanager.RepositoryManager
	hasher Hasher
	out    io.Writer
}

func NewApp(repos repomanager.RepositoryManager, h Hasher, out io.Writer) *App {
	return &App{repos: repos, hasher: h, out: out}
}

const usage = `usage: authctl [-c config.json] [-d dsn] <command> [flags]

commands:
  useradd -email EMAIL -name NAME [-role user|admin] [-verified]
  userdel -email EMAIL
`

var commands = map[string]struct{}{"useradd": {}, "userdel": {}, "help": {}}

// CommandArgs drops the leading configuration flags (-c, -d and friends)
// from args and returns the command with its own flags.
func CommandArgs(args []string) []string {
	for i, arg := range args {
		if _, ok := commands[arg]; ok {
			return args[i:]
		}
	}
	return nil
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "useradd":
		return a.userAdd(ctx, args[1:])
	case "userdel":
		return a.userDel(ctx, args[1:])
	case "help", "-h", "-help":
		fmt.Fprint(a.out, usage)
		return nil
	}
	fmt.Fprintf(a.out, "unknown command %q\n\n%s", args[0], usage)
	return ErrUsage
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) userAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("useradd")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(models.RoleUser), "role (user|admin)")
	verified := fs.Bool("verified", false, "mark the email as verified")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || strings.TrimSpace(*name) == "" {
		fmt.Fprintln(a.out, "-email and -name are required")
		return ErrUsage
	}
	r := models.Role(*role)
	if r != models.RoleUser && r != models.RoleAdmin {
		fmt.Fprintf(a.out, "unknown role %q\n", *role)
		return ErrUsage
	}

	password, err := a.promptNewPassword()
	if err != nil {
		return err
	}
	digest, err := a.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	users := a.repos.Users(a.repos.DB())
	user, err := users.Create(ctx, &models.User{
		Name:         strings.TrimSpace(*name),
		Email:        addr,
		PasswordHash: digest,
		Role:         r,
	})
	if err != nil {
		if errors.Is(err, common.ErrorDuplicateKey) {
			return fmt.Errorf("%s is already registered", addr)
		}
		return fmt.Errorf("create user: %w", err)
	}
	if *verified {
		if err := users.SetVerified(ctx, user.ID); err != nil {
			return fmt.Errorf("verify user: %w", err)
		}
	}

	fmt.Fprintf(a.out, "created %s (%s, id=%s)\n", user.Email, user.Role, user.ID)
	return nil
}

func (a *App) userDel(ctx context.Context, args []string) error {
	fs := a.flagSet("userdel")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" {
		fmt.Fprintln(a.out, "-email is required")
		return ErrUsage
	}

	users := a.repos.Users(a.repos.DB())
	user, err := users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no account for %s", addr)
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	// Action tokens may live outside the database.
	if _, err := a.repos.ActionTokens(a.repos.DB()).DeleteByUser(ctx, user.ID); err != nil {
		return fmt.Errorf("revoke action tokens: %w", err)
	}
	if err := users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	fmt.Fprintf(a.out, "deleted %s\n", addr)
	return nil
}

func (a *App) promptNewPassword() (string, error) {
	first, err := a.getPassword("Enter password: ")
	if err != nil {
		return "", err
	}
	if len(first) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters long", minPasswordLen)
	}
	second, err := a.getPassword("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func (a *App) getPassword(prompt string) (string, error) {
	if _, err := fmt.Fprint(a.out, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}
