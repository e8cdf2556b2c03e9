package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	capabilitiesCmd = &cobra.Command{
		Use:   "capabilities",
		Short: "Show or unlock an organisation's capabilities",
	}

	capabilitiesShowCmd = &cobra.Command{
		Use:   "show <organisation-id>",
		Short: "Print the effective capability map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrg(args[0])
			if err != nil {
				return err
			}
			caps, err := state.svc.Capabilities.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), caps)
		},
	}

	capabilitiesUnlockCmd = &cobra.Command{
		Use:   "unlock <organisation-id>",
		Short: "Evaluate unlock rules and enable what the organisation qualifies for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrg(args[0])
			if err != nil {
				return err
			}
			unlocked, err := state.svc.Capabilities.Unlock(cmd.Context(), id, nil)
			if err != nil {
				return err
			}
			if len(unlocked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to unlock")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), unlocked)
		},
	}
)

func init() {
	capabilitiesCmd.AddCommand(capabilitiesShowCmd, capabilitiesUnlockCmd)
}

func parseOrg(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid organisation id %q", s)
	}
	return id, nil
}
