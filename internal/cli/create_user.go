package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

type CreateUserCommand struct {
	Username string
	Email    string
	Role     string
	Password string

	// readPassword prompts for a password without echoing it.
	readPassword func(prompt string) (string, error)
}

func NewCreateUserCommand() *cobra.Command {
	return newCreateUserCommand(&CreateUserCommand{readPassword: readPassword})
}

func newCreateUserCommand(c *CreateUserCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account (admin, librarian or member)",
		Example: `  librarian create-user --username root --email root@example.com --role admin
  librarian create-user --username ann --email ann@example.com --role librarian --password '...'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&c.Username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&c.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&c.Role, "role", string(entities.UserRoleMember), "One of admin, librarian, member")
	cmd.Flags().StringVar(&c.Password, "password", "", "Password; prompted for when omitted")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *CreateUserCommand) Run(out io.Writer) error {
	role := entities.UserRole(strings.ToLower(c.Role))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}

	password := c.Password
	if password == "" {
		var err error
		if password, err = c.promptPassword(); err != nil {
			return err
		}
	}

	cfg := config.NewConfig()
	lib, err := entrypoint.OpenLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	user, err := auth.NewService(lib.DB.DB, cfg.Auth).CreateUser(c.Username, c.Email, password, role)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "Created %s %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}

func (c *CreateUserCommand) promptPassword() (string, error) {
	password, err := c.readPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	confirmation, err := c.readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password != confirmation {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
