package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit entries",
		Run:   runTail,
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of entries")
	RootCmd.AddCommand(cmd)
}

func runTail(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg, newLogger())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.Tail(cmd.Context(), limit)
	if err != nil {
		exitErr("tail", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}
