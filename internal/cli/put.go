package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [text]",
		Short: "Store a memory item",
		Long:  "Store a memory item. Text can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("scope", "s", "operational", "Scope: canonical, operational, semantic")
	cmd.Flags().String("kind", "note", "Kind tag")
	cmd.Flags().StringP("key", "k", "", "Lookup key")
	cmd.Flags().String("data", "", "Structured JSON payload")
	cmd.Flags().String("source", "user", "Origin identifier")
	cmd.Flags().Float64("confidence", 0.8, "Confidence")
	cmd.Flags().Int("ttl", 0, "TTL in seconds (0 = no expiry)")
	cmd.Flags().String("trace", "", "Trace id (generated when empty)")
	cmd.Flags().String("approval", "", "Approval reference (canonical scope)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("refs", "", "Comma-separated referenced item ids")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")
	key, _ := cmd.Flags().GetString("key")
	data, _ := cmd.Flags().GetString("data")
	source, _ := cmd.Flags().GetString("source")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	ttl, _ := cmd.Flags().GetInt("ttl")
	trace, _ := cmd.Flags().GetString("trace")
	approvalRef, _ := cmd.Flags().GetString("approval")
	tagsStr, _ := cmd.Flags().GetString("tags")
	refsStr, _ := cmd.Flags().GetString("refs")

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}
	if strings.TrimSpace(text) == "" {
		exitErr("put", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg, newLogger())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if trace == "" {
		trace = s.NewTraceID()
	}

	item, err := s.Put(cmd.Context(), store.Draft{
		Scope:       model.Scope(scope),
		Kind:        kind,
		Key:         key,
		Text:        strings.TrimSpace(text),
		Data:        json.RawMessage(data),
		Source:      source,
		Confidence:  confidence,
		TTLSeconds:  ttl,
		TraceID:     trace,
		ApprovalRef: approvalRef,
		Tags:        splitList(tagsStr),
		Refs:        splitList(refsStr),
	})
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.Marshal(item)
	fmt.Println(string(b))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
