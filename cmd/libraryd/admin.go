package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bookstore/services/library/internal/config"
	"github.com/bookstore/services/library/internal/db"
	"github.com/bookstore/services/library/internal/repo"
	"github.com/bookstore/services/library/internal/service"
	"github.com/bookstore/services/library/pkg/logger"
)

func newCreateAdminCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an admin account",
		Long:  "Register an admin account. The password is prompted for without echo, or read from stdin when it is not a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			cfg := config.Load()
			log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
			defer log.Sync()

			database, err := openDatabase(cfg, log)
			if err != nil {
				return err
			}
			defer database.Close()

			users := repo.NewUserRepository(database, log)
			issues := repo.NewIssueRepository(database, log)
			members := service.NewMemberService(users, issues, log)

			created, err := members.Add(context.Background(), []service.NewUser{
				{Email: email, Password: password, Role: db.RoleAdmin},
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %d\n", created[0].Email, created[0].ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword reads without echo from a terminal, otherwise the first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return validPassword(string(bytePassword))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return validPassword(line)
}

func validPassword(raw string) (string, error) {
	password := strings.TrimSpace(raw)
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
