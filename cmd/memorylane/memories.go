package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List saved memories for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromViper()

			owner, _ := cmd.Flags().GetString("owner")
			if owner == "" {
				owner = viper.GetString("owner")
			}
			if owner == "" {
				return fmt.Errorf("missing owner (set via --owner or %s_OWNER)", envPrefix)
			}
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListMemories(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No memories saved.")
				return nil
			}
			for _, rec := range records {
				line := rec.Title
				if rec.Date != "" {
					line += " (" + rec.Date + ")"
				}
				if rec.Place != "" {
					line += " - " + rec.Place
				}
				fmt.Printf("%s  %s\n", rec.ID, line)
			}
			return nil
		},
	}

	cmd.Flags().String("owner", "", "Owner id to list memories for.")
	cmd.Flags().Int("limit", 50, "Maximum number of memories to list.")

	return cmd
}
