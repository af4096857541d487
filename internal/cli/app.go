// Package cli is the interactive operator console for the identity core:
// account registration, password login, token redemption, and the password
// flows, driven from a terminal against the live store.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adventuresafari/identity/internal/config"
	"github.com/adventuresafari/identity/internal/logging"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/services"
)

// IdentityAPI is the slice of the identity service the console drives.
type IdentityAPI interface {
	ResolveAssertion(ctx context.Context, a services.Assertion) (*models.User, services.LinkOutcome, error)
	ConsumeVerificationToken(ctx context.Context, token string, purpose services.TokenPurpose) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// LoginAPI is the slice of the login service the console drives.
type LoginAPI interface {
	AuthenticatePassword(ctx context.Context, email, password string) (*models.User, error)
}

// App holds the console session: wired services plus the bearer token of the
// currently logged-in user, if any.
type App struct {
	config   *config.Config
	identity IdentityAPI
	login    LoginAPI
	logger   logging.Logger

	reader *bufio.Reader
	out    io.Writer

	bearerToken string
	userEmail   string
}

// NewApp wires a console over the given services, reading from stdin.
func NewApp(cfg *config.Config, identity IdentityAPI, login LoginAPI, logger logging.Logger) *App {
	return &App{
		config:   cfg,
		identity: identity,
		login:    login,
		logger:   logger.With("component", "cli"),
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
}

func (a *App) isLoggedIn() bool {
	return a.bearerToken != ""
}

func (a *App) getStatus() string {
	if a.userEmail == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userEmail)
}

// Run starts the command loop. It returns on EOF, "exit", or context
// cancellation between commands.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "identity console (type 'help' for commands)")
	scanner := bufio.NewScanner(a.reader)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Fprintf(a.out, "id %s> ", a.getStatus())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			a.printHelp()
		case "register":
			a.report(a.Register(ctx))
		case "login":
			a.report(a.Login(ctx))
		case "logout":
			a.Logout()
		case "verify":
			a.report(a.Verify(ctx, args))
		case "link":
			a.report(a.Link(ctx, args))
		case "resend":
			a.report(a.Resend(ctx))
		case "forgot":
			a.report(a.Forgot(ctx))
		case "reset":
			a.report(a.Reset(ctx, args))
		case "me":
			a.report(a.Me(ctx))
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}

func (a *App) printHelp() {
	if a.isLoggedIn() {
		fmt.Fprintln(a.out, "Available commands: me, logout, exit")
		return
	}
	fmt.Fprintln(a.out, "Available commands: register, login, verify <token>, link <token>, resend, forgot, reset <token>, exit")
}

// report prints a command error to the console; handlers stay silent on
// their own failures so the loop owns all error output.
func (a *App) report(err error) {
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err.Error())
	}
}

func (a *App) printUser(u *models.User) {
	fmt.Fprintf(a.out, "id: %s\nname: %s\nemail: %s (verified: %v)\nmethods: %s\n",
		u.ID, u.Name, u.Email, u.IsEmailVerified, models.JoinAuthMethods(u.AuthMethods))
}
