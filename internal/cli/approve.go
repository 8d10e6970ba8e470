package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/approval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Mint a single-use approval reference for a canonical write",
		Long: "Mint a single-use approval reference binding a specific canonical\n" +
			"payload (scope, kind, key, text). Pass the resulting reference to\n" +
			"`put --approval` with the same payload fields.",
		Run: runApprove,
	}

	cmd.Flags().String("kind", "note", "Kind of the payload being approved")
	cmd.Flags().StringP("key", "k", "", "Key of the payload being approved")
	cmd.Flags().String("text", "", "Text of the payload being approved (required)")
	cmd.Flags().Int("ttl", 0, "Approval TTL in seconds (0 = config default)")

	RootCmd.AddCommand(cmd)
}

func runApprove(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	key, _ := cmd.Flags().GetString("key")
	text, _ := cmd.Flags().GetString("text")
	ttl, _ := cmd.Flags().GetInt("ttl")

	if text == "" {
		exitErr("approve", fmt.Errorf("--text is required"))
	}

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if cfg.Approval.SigningSecret == "" {
		exitErr("approve", fmt.Errorf("no signing secret configured (set approval.signing_secret or REDMEM_APPROVAL_SECRET)"))
	}
	if ttl <= 0 {
		ttl = cfg.Approval.TTLSeconds
	}

	digest := approval.PayloadDigest("canonical", kind, key, text)
	ref, err := approval.Issue(cfg.Approval.SigningSecret, digest, time.Duration(ttl)*time.Second)
	if err != nil {
		exitErr("approve", err)
	}

	b, _ := json.MarshalIndent(map[string]any{
		"approval_ref":   ref,
		"payload_digest": digest,
		"ttl_seconds":    ttl,
	}, "", "  ")
	fmt.Println(string(b))
}
