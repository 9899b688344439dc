package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"quiz-ladder-service/internal/config"
	"quiz-ladder-service/internal/infra/postgres"
)

// NewResetCmd bulk-clears the answer and hint ledgers. Players stay
// registered and restart from scratch on their next message. An external
// scheduler invokes this for periodic resets.
func NewResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear all recorded answers and hint usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			db := openBun(cfg.Postgres.URL)
			defer db.Close()

			store := postgres.NewStore(db)
			if err := store.ResetProgress(cmd.Context()); err != nil {
				return err
			}
			log.Printf("progress ledgers cleared")
			return nil
		},
	}
}
