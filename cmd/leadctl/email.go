package main

import (
	"fmt"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/internal/scheduler"
	"dealerdesk_backend/internal/textgen"

	"github.com/spf13/cobra"
)

func newEmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Inbound email operations",
	}
	cmd.AddCommand(newEmailReprocessCmd())
	return cmd
}

func newEmailReprocessCmd() *cobra.Command {
	var dealership string
	var inline bool

	cmd := &cobra.Command{
		Use:   "reprocess <email-id>",
		Short: "Reset an email to pending and run it through the pipeline again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emailID, tenantID, err := parseIDs(args[0], dealership)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			queue, err := scheduler.NewClient(e.cfg)
			if err != nil {
				return fmt.Errorf("task queue: %w", err)
			}
			defer func() { _ = queue.Close() }()

			bus := events.NewInMemoryBus(e.log)
			bridge := scheduler.NewBridge(queue, e.log)
			if inline {
				bridge.SubscribeReplies(bus)
			} else {
				bridge.Subscribe(bus)
			}

			resp, err := inbound.NewReprocessor(e.pool, inbound.NewRepository(), bus, e.log).Reprocess(ctx, tenantID, emailID)
			if err != nil {
				return err
			}
			if !inline {
				bus.Wait()
				return printJSON(cmd.OutOrStdout(), resp)
			}

			gen, err := textgen.New(ctx, e.cfg)
			if err != nil {
				return err
			}
			spam, err := inbound.LoadSpamPolicy(e.cfg.GetSpamPolicyFile())
			if err != nil {
				return err
			}
			result, err := inbound.NewPipelineFromDeps(e.pool, gen, spam, bus, e.cfg.GetDefaultPhoneRegion(), e.log).
				Process(ctx, tenantID, emailID)
			bus.Wait()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&dealership, "dealership", "d", "", "dealership id owning the email")
	cmd.Flags().BoolVar(&inline, "inline", false, "run the pipeline in this process; the reply to a new lead is still queued")
	_ = cmd.MarkFlagRequired("dealership")
	return cmd
}
