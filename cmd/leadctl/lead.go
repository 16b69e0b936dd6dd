package main

import (
	"dealerdesk_backend/internal/email"
	"dealerdesk_backend/internal/responder"
	"dealerdesk_backend/internal/textgen"

	"github.com/spf13/cobra"
)

func newLeadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Lead operations",
	}
	cmd.AddCommand(newLeadRespondCmd())
	return cmd
}

func newLeadRespondCmd() *cobra.Command {
	var dealership string

	cmd := &cobra.Command{
		Use:   "respond <lead-id>",
		Short: "Generate, deliver and record the first reply to a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, tenantID, err := parseIDs(args[0], dealership)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			gen, err := textgen.New(ctx, e.cfg)
			if err != nil {
				return err
			}
			sender, err := email.NewSender(e.cfg)
			if err != nil {
				return err
			}

			result := responder.NewOrchestratorFromDeps(e.pool, gen, sender, e.log).
				Process(ctx, tenantID, leadID, responder.Options{})
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&dealership, "dealership", "d", "", "dealership id owning the lead")
	_ = cmd.MarkFlagRequired("dealership")
	return cmd
}
