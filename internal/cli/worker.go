package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт команду "worker" с подкомандами.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the Bourreau worker",
	}

	cmd.AddCommand(
		newWorkerStatusCmd(clientFn, outputFn),
		newWorkerWakeCmd(clientFn, outputFn),
		newWorkerStopCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker state and task counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := clientFn().WorkerStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(w)
				return nil
			}

			out.Table(
				[]string{"RESOURCE", "NAME", "PID", "MODE", "SLEEP UNTIL", "STOPPING"},
				[][]string{{
					w.ResourceID,
					w.Name,
					strconv.Itoa(w.PID),
					w.Mode,
					displayTime(w.SleepUntil),
					strconv.FormatBool(w.StopRequested),
				}},
			)

			if len(w.Tasks) == 0 {
				return nil
			}

			statuses := make([]string, 0, len(w.Tasks))
			for s := range w.Tasks {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				rows = append(rows, []string{s, strconv.Itoa(w.Tasks[s])})
			}

			out.Blank()
			out.Table([]string{"STATUS", "TASKS"}, rows)
			return nil
		},
	}
}

func newWorkerWakeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "wake",
		Short: "Interrupt the worker's sleep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := clientFn().Wake(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(r)
				return nil
			}

			if r.Woke {
				out.Success("Worker woken up")
			} else {
				out.Success("Worker was not sleeping")
			}
			return nil
		},
	}
}

func newWorkerStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the worker to stop after the current task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := clientFn().Stop(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(r)
				return nil
			}

			out.Success("Stop requested")
			return nil
		},
	}
}
