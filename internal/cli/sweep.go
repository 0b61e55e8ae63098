package cli

import (
	"context"
	"log"

	"competition-engine/internal/app"
	"competition-engine/internal/config"

	"github.com/spf13/cobra"
)

// NewSweepCmd runs one termination/reconciliation pass over every active
// competition and exits. Meant for external cron; the server runs the same
// pass on its internal schedule.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate termination and reconcile visibility for all active competitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			service, cleanup, err := buildService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			sweepPass(cmd.Context(), service)
			return nil
		},
	}
}

// sweepPass fails soft per competition: a failed evaluation just waits for
// the next pass.
func sweepPass(ctx context.Context, service *app.CompetitionService) {
	comps, err := service.ListActiveCompetitions(ctx)
	if err != nil {
		log.Printf("sweep: list competitions: %v", err)
		return
	}
	for _, comp := range comps {
		decision, err := service.EvaluateTermination(ctx, comp.ID)
		if err != nil {
			log.Printf("sweep: evaluate %s: %v", comp.ID, err)
			continue
		}
		if decision.Terminated {
			log.Printf("sweep: competition %s terminated: %s", comp.ID, decision.Reason)
		}
		if _, err := service.ReconcileCompetition(ctx, comp.ID); err != nil {
			log.Printf("sweep: reconcile %s: %v", comp.ID, err)
		}
	}
}
