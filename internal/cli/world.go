package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/world"
)

func init() {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current world state",
		Run:   runSnapshot,
	}
	RootCmd.AddCommand(snapshotCmd)

	transitionCmd := &cobra.Command{
		Use:   "transition <to-state>",
		Short: "Apply a world-state transition",
		Args:  cobra.ExactArgs(1),
		Run:   runTransition,
	}
	transitionCmd.Flags().StringP("reason", "r", "", "Reason for the transition (required)")
	transitionCmd.Flags().String("actor", "operator", "Actor applying the transition")
	transitionCmd.Flags().String("trace", "", "Trace id (generated when empty)")
	RootCmd.AddCommand(transitionCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger()
	s, err := openStore(cfg, logger)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snap, err := s.WorldSnapshot(cmd.Context())
	if err != nil {
		exitErr("snapshot", err)
	}

	machine := world.NewMachine(s, world.DefaultEdges(), logger)
	allowed, execReason, _ := machine.CanExecute(cmd.Context())

	out := map[string]any{
		"state":          snap.State,
		"reason":         snap.Reason,
		"updated_at":     snap.UpdatedAt,
		"updated_by":     snap.UpdatedBy,
		"version":        snap.Version,
		"can_execute":    allowed,
		"execute_reason": execReason,
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func runTransition(cmd *cobra.Command, args []string) {
	reason, _ := cmd.Flags().GetString("reason")
	actor, _ := cmd.Flags().GetString("actor")
	trace, _ := cmd.Flags().GetString("trace")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger()
	s, err := openStore(cfg, logger)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if trace == "" {
		trace = s.NewTraceID()
	}

	machine := world.NewMachine(s, world.DefaultEdges(), logger)
	ev, err := machine.Transition(cmd.Context(), model.WorldState(args[0]), reason, actor, trace)
	if err != nil {
		exitErr("transition", err)
	}

	b, _ := json.MarshalIndent(ev, "", "  ")
	fmt.Println(string(b))
}
