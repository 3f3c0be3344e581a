package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/speaklexi/backend/internal/auth"
	"github.com/speaklexi/backend/internal/mailer"
	"github.com/speaklexi/backend/internal/models"
	"github.com/speaklexi/backend/internal/pkg/hasher"
	"github.com/speaklexi/backend/internal/service"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts",
	Long: `Account administration commands.

Examples:
  lexictl accounts create --role teacher --email profe@example.com \
    --given-name Laura --surname1 Díaz --language Inglés
  lexictl accounts purge-expired
  lexictl accounts purge 2f1c...`,
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pre-verified account",
	Long: `Create an account of any role. The account skips email verification.

The password is read from SPEAKLEXI_NEW_PASSWORD when --password is not
given.`,
	RunE: runAccountsCreate,
}

var accountsPurgeExpiredCmd = &cobra.Command{
	Use:   "purge-expired",
	Short: "Purge accounts whose deactivation grace period has ended",
	RunE:  runAccountsPurgeExpired,
}

var accountsPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Permanently remove a deactivated account",
	Long: `Permanently remove a deactivated account and all its data.

WARNING: this cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsPurge,
}

func init() {
	accountsCreateCmd.Flags().String("role", string(models.RoleTeacher), "account role (student, teacher, admin)")
	accountsCreateCmd.Flags().String("email", "", "email address")
	accountsCreateCmd.Flags().String("given-name", "", "given name")
	accountsCreateCmd.Flags().String("surname1", "", "first surname")
	accountsCreateCmd.Flags().String("surname2", "", "second surname")
	accountsCreateCmd.Flags().String("password", "", "initial password")
	accountsCreateCmd.Flags().String("language", "Inglés", "learning or teaching language")
	accountsCreateCmd.Flags().String("level", "", "CEFR level (A1..C2)")
	_ = accountsCreateCmd.MarkFlagRequired("email")
	_ = accountsCreateCmd.MarkFlagRequired("given-name")
	_ = accountsCreateCmd.MarkFlagRequired("surname1")

	accountsCmd.AddCommand(accountsCreateCmd)
	accountsCmd.AddCommand(accountsPurgeExpiredCmd)
	accountsCmd.AddCommand(accountsPurgeCmd)

	rootCmd.AddCommand(accountsCmd)
}

func (e *env) accountService() service.AccountService {
	return service.NewAccountService(
		e.store,
		hasher.NewBcrypt(e.cfg.Accounts.BcryptCost),
		mailer.New(e.cfg.Mail, e.logger),
		auth.NewTokens(e.cfg.Auth),
		e.cfg.Accounts,
		e.logger,
	)
}

func runAccountsCreate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	role, _ := flags.GetString("role")
	if !models.Role(role).Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	req := service.RegisterRequest{Role: models.Role(role), PreVerified: true}
	req.Email, _ = flags.GetString("email")
	req.GivenName, _ = flags.GetString("given-name")
	req.Surname1, _ = flags.GetString("surname1")
	req.Surname2, _ = flags.GetString("surname2")
	req.Language, _ = flags.GetString("language")
	req.Level, _ = flags.GetString("level")
	req.Password, _ = flags.GetString("password")
	if req.Password == "" {
		req.Password = os.Getenv("SPEAKLEXI_NEW_PASSWORD")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.accountService().Register(context.Background(), req)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(result.Account)
	}
	fmt.Printf("Created %s account %s (%s)\n", result.Account.Role, result.Account.Email, result.Account.ID)
	fmt.Printf("Public ID: %s\n", result.Account.PublicID)
	return nil
}

func runAccountsPurgeExpired(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	purged, err := e.accountService().PurgeExpired(context.Background())
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(map[string]int{"purged": purged})
	}
	fmt.Printf("Purged %d account(s)\n", purged)
	return nil
}

func runAccountsPurge(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("invalid account id: %w", err)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.accountService().Purge(context.Background(), id); err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(map[string]string{"purged": id.String()})
	}
	fmt.Printf("Purged account %s\n", id)
	return nil
}
