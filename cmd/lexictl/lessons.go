package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/speaklexi/backend/internal/models"
	"github.com/speaklexi/backend/internal/seed"
	"github.com/speaklexi/backend/internal/service"
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Manage lesson content",
}

var lessonsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import lessons and activities from a YAML seed file",
	Long: `Create the lessons in a YAML seed file as the given author.

Each lesson is created as a draft, its activities are added in order, and
lessons marked "publish: true" are published. The import stops at the
first error; lessons created before it are kept.

Examples:
  lexictl lessons import catalog.yaml --author profe@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runLessonsImport,
}

func init() {
	lessonsImportCmd.Flags().String("author", "", "email of the teacher or admin who owns the lessons")
	_ = lessonsImportCmd.MarkFlagRequired("author")

	lessonsCmd.AddCommand(lessonsImportCmd)
	rootCmd.AddCommand(lessonsCmd)
}

func runLessonsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	catalog, err := seed.Parse(f)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	email, _ := cmd.Flags().GetString("author")
	author, err := e.store.Repos().Accounts.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if author == nil {
		return fmt.Errorf("no account with email %s", email)
	}

	lessons := service.NewLessonService(e.store, e.logger)
	result, err := seed.Import(ctx, lessons, service.Actor{AccountID: author.ID, Role: author.Role}, catalog)
	if err != nil {
		printError(err)
	}

	if jsonOut {
		if perr := printJSON(result); perr != nil {
			return perr
		}
		return err
	}
	fmt.Printf("Imported %d lesson(s), %d activities, published %d\n", result.Lessons, result.Activities, result.Published)
	return err
}
