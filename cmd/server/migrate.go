package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Lounge/internal/config"
	"github.com/dkeye/Lounge/internal/store/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down [steps]|version]",
	Short: "Apply or inspect Postgres schema migrations",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return errors.New("migrate: storage.driver must be postgres")
	}
	url := cfg.Storage.DatabaseURL

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "up":
		return migrations.Up(url)
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil || steps <= 0 {
				return fmt.Errorf("migrate down: bad steps %q", args[1])
			}
		}
		return migrations.Down(url, steps)
	case "version":
		v, dirty, err := migrations.Version(url)
		if err != nil {
			return err
		}
		log.Info().Str("module", "migrate").Uint("version", v).Bool("dirty", dirty).Msg("schema version")
		return nil
	}
	return fmt.Errorf("migrate: unknown action %q", action)
}
