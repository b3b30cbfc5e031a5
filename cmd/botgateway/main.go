package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reanhealth/botgateway/internal/config"
	"github.com/reanhealth/botgateway/internal/db"
	"github.com/reanhealth/botgateway/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:   "botgateway",
		Short: "Multi-tenant chat bot gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	})

	root.AddCommand(migrateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCommand() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	databaseURL := func() (string, error) {
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		return cfg.Postgres.URL(), nil
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return db.MigrateUp(url)
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return db.MigrateDown(url)
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			v, dirty, err := db.MigrateVersion(url)
			if err != nil {
				return err
			}
			fmt.Printf("version=%d dirty=%v\n", v, dirty)
			return nil
		},
	})

	return migrate
}
