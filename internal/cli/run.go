package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/domain"
	"github.com/grovekit/grove/internal/orchestrator"
	"github.com/grovekit/grove/internal/signal"
)

// AddRunCommand registers the run command on the root command.
func AddRunCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "run <project> <command> [argument...]",
		Short: "Run one job and print its summary",
		Long: fmt.Sprintf(`Submits a single job and waits for it to finish. The command must be
one of: %s.

A first interrupt cancels the job; the summary (or failure cause) is
printed once the job reaches a terminal state.`, kindList()),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			logger := GetLogger()

			kind, err := domain.ParseCommandKind(args[1])
			if err != nil {
				return err
			}

			handler := signal.NewHandler(cmd.Context())
			defer handler.Stop()

			results := make(chan domain.JobResult, 1)
			orch := orchestrator.New(cfg, logger,
				orchestrator.WithResultHandler(func(r domain.JobResult) {
					results <- r
				}),
			)
			defer orch.Shutdown()

			handle, err := orch.Submit(domain.JobRequest{
				Project:  args[0],
				Kind:     kind,
				Argument: strings.Join(args[2:], " "),
			})
			if err != nil {
				return err
			}
			logger.Info().Str("job_id", handle.ID).Msg("job submitted, waiting")

			var result domain.JobResult
			select {
			case result = <-results:
			case <-handler.Interrupted():
				logger.Warn().Str("job_id", handle.ID).Msg("interrupt received, cancelling job")
				orch.Cancel(handle.ID)
				result = <-results
			}

			switch result.State {
			case domain.JobStateCompleted:
				fmt.Fprintln(cmd.OutOrStdout(), result.Summary)
				return nil
			default:
				return fmt.Errorf("job %s %s: %s", result.ID, result.State, result.Err)
			}
		},
	}
	root.AddCommand(cmd)
}

func kindList() string {
	kinds := domain.CommandKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}
