/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/trektide/apiserver/config"
	"github.com/trektide/apiserver/internal/db"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/internal/store"
	"github.com/trektide/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

var (
	seedDir   string
	seedPurge bool
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load development fixtures into the database",
	Long: `Loads tour and account fixtures from JSON files into the
configured database and ensures all indexes exist. Usage:

	apiserver seed --dir ./seed-data

Pass --purge to empty the collections before importing.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		client, database, err := db.Open(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() {
			_ = client.Disconnect(ctx)
		}()

		if err := db.EnsureIndexes(ctx, database); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}

		if seedPurge {
			for _, name := range []string{"tours", "reviews", "bookings", "accounts"} {
				if _, err := database.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
					return fmt.Errorf("purge %s: %w", name, err)
				}
			}
		}

		tourRepo := store.NewTourRepository(database)
		accountRepo := store.NewAccountRepository(database)

		var tours []types.Tour
		if err := readFixture(filepath.Join(seedDir, "tours.json"), &tours); err != nil {
			return err
		}
		for _, tour := range tours {
			tour.Slug = services.Slugify(tour.Name)
			if _, err := tourRepo.Create(ctx, tour); err != nil {
				return fmt.Errorf("seed tour %q: %w", tour.Name, err)
			}
		}

		var accounts []seedAccount
		if err := readFixture(filepath.Join(seedDir, "accounts.json"), &accounts); err != nil {
			return err
		}
		for _, entry := range accounts {
			hashed, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			account := entry.Account
			account.PasswordHash = string(hashed)
			if account.Role == "" {
				account.Role = types.RoleUser
			}
			if _, err := accountRepo.Create(ctx, account); err != nil {
				return fmt.Errorf("seed account %q: %w", account.Email, err)
			}
		}

		fmt.Printf("seeded %d tours and %d accounts\n", len(tours), len(accounts))
		return nil
	},
}

// seedAccount is an account fixture with a plaintext password that gets
// hashed on import.
type seedAccount struct {
	types.Account
	Password string `json:"password"`
}

func readFixture(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedDir, "dir", "./seed-data", "directory containing fixture JSON files")
	seedCmd.Flags().BoolVar(&seedPurge, "purge", false, "delete existing documents before importing")
}
