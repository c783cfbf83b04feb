package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт команду "task" с подкомандами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect tasks of the worker's resource",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (actionable ones when no status is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(cmd.Context(), ListTasksOpts{
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "TYPE", "STATUS", "JOB", "UPDATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Name, t.Type, t.Status, orDash(t.ClusterJobID), displayTime(t.UpdatedAt)}
			}

			outputFn().Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", `Filter by status, e.g. "New" or "On CPU"`)
	cmd.Flags().IntVar(&limit, "limit", 0, "Max number of tasks")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show task details and its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := clientFn().GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(t)
				return nil
			}

			out.Fields(
				Field{"ID", t.ID},
				Field{"Name", t.Name},
				Field{"Type", t.Type},
				Field{"Status", t.Status},
				Field{"User", t.UserID},
				Field{"Job", t.ClusterJobID},
				Field{"Work dir", t.WorkDir},
				Field{"Created", displayTime(t.CreatedAt)},
				Field{"Updated", displayTime(t.UpdatedAt)},
			)

			if len(t.Log) > 0 {
				out.Blank()
				rows := make([][]string, len(t.Log))
				for i, e := range t.Log {
					rows[i] = []string{displayTime(e.Time), e.Text}
				}
				out.Table([]string{"TIME", "LOG"}, rows)
			}
			return nil
		},
	}
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		req    SubmitTaskRequest
		params []string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a New task on the worker's resource",
		Example: `  bourreau task submit --name smoke --type diagnostics --user <uuid> --param duration_sec=5
  bourreau task submit --name ls --type shell --user <uuid> --param command="ls -la"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Params = parsed

			task, err := clientFn().SubmitTask(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			if out.JSONMode() {
				out.JSON(task)
				return nil
			}
			out.Success(fmt.Sprintf("Task %s submitted (%s)", task.ID, task.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Task name (required)")
	cmd.Flags().StringVar(&req.Type, "type", "", `Program: "shell" or "diagnostics" (required)`)
	cmd.Flags().StringVar(&req.UserID, "user", "", "Owner user UUID (required)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Program parameter key=value, repeatable; JSON values are decoded")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// parseParams разбирает key=value. Значение, которое читается как JSON
// (число, bool, объект), передаётся типизированным, иначе строкой.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", pair)
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}
