package cmd

import (
	"fmt"
	"log"
	"strings"

	"wavecast/config"
	"wavecast/core/auth"
	"wavecast/db"
	"wavecast/model"
	"wavecast/repository"

	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the initial admin account",
	Long: `Create the initial admin account from ADMIN_EMAIL and ADMIN_PASSWORD.
Idempotent: an existing account with that email is promoted to admin and
reactivated instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
			return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
		}

		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(&model.User{}); err != nil {
			return err
		}

		userRepo := repository.NewGormUserRepository(db.GormDB)

		existing, err := userRepo.FindByEmail(cfg.AdminEmail)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := userRepo.UpdateRole(existing.ID, model.RoleAdmin); err != nil {
				return err
			}
			if err := userRepo.SetActive(existing.ID, true); err != nil {
				return err
			}
			log.Printf("Existing account %s promoted to admin (ID %d).", existing.Email, existing.ID)
			return nil
		}

		hashed, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			return err
		}

		admin := &model.User{
			Email:        strings.ToLower(cfg.AdminEmail),
			PasswordHash: hashed,
			Role:         model.RoleAdmin,
			Active:       true,
			Preferences:  model.Preferences{Language: "en", FontSize: "medium", Notifications: true},
		}
		if err := userRepo.Create(admin); err != nil {
			return err
		}

		log.Printf("Admin account %s created with ID %d.", admin.Email, admin.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}
