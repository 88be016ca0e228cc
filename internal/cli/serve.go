package cli

import (
	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/domain"
	"github.com/grovekit/grove/internal/orchestrator"
	"github.com/grovekit/grove/internal/signal"
)

// AddServeCommand registers the serve command on the root command.
func AddServeCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the grove daemon",
		Long: `Starts the orchestrator, brings up every project's auxiliary process,
and runs until interrupted. Chat adapters embed the same orchestrator;
serve is the standalone daemon form.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}

			// Reinitialize with the configured level now that we have it.
			logger := InitLogger(cfg.LogLevel, flags.Verbose, flags.Quiet)

			handler := signal.NewHandler(cmd.Context())
			defer handler.Stop()

			orch := orchestrator.New(cfg, logger,
				orchestrator.WithResultHandler(func(r domain.JobResult) {
					evt := logger.Info()
					if r.State != domain.JobStateCompleted {
						evt = logger.Warn().Str("error", r.Err)
					}
					evt.
						Str("job_id", r.ID).
						Str("project", r.Project).
						Str("kind", r.Kind.String()).
						Str("state", string(r.State)).
						Msg("job finished")
				}),
			)

			started := orch.StartAll(handler.Context())
			logger.Info().
				Int("projects", len(cfg.Projects)).
				Int("aux_processes", started).
				Msg("grove daemon up")

			<-handler.Interrupted()
			logger.Info().Msg("interrupt received, shutting down")
			orch.Shutdown()
			return nil
		},
	}
	root.AddCommand(cmd)
}
