package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored memory items",
		Run:   runQuery,
	}

	cmd.Flags().StringP("scope", "s", "", "Filter by scope")
	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().StringP("key", "k", "", "Filter by exact key")
	cmd.Flags().String("trace", "", "Filter by trace id")
	cmd.Flags().StringP("tag", "t", "", "Filter by tag")
	cmd.Flags().String("contains", "", "Filter by text substring")
	cmd.Flags().Bool("include-expired", false, "Include expired items")
	cmd.Flags().IntP("limit", "n", 20, "Maximum results")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")
	key, _ := cmd.Flags().GetString("key")
	trace, _ := cmd.Flags().GetString("trace")
	tag, _ := cmd.Flags().GetString("tag")
	contains, _ := cmd.Flags().GetString("contains")
	includeExpired, _ := cmd.Flags().GetBool("include-expired")
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

	items, err := s.Query(cmd.Context(), store.QueryParams{
		Scope:          model.Scope(scope),
		Kind:           kind,
		Key:            key,
		TraceID:        trace,
		Tag:            tag,
		TextContains:   contains,
		IncludeExpired: includeExpired,
		Limit:          limit,
	})
	if err != nil {
		exitErr("query", err)
	}

	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
}
