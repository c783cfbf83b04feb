package cli

import (
	"github.com/spf13/cobra"
)

// NewMessageCmd создаёт команду "message" с подкомандами.
func NewMessageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Inspect notifications sent to task owners",
	}

	cmd.AddCommand(newMessageListCmd(clientFn, outputFn))

	return cmd
}

func newMessageListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List latest notifications of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := clientFn().ListMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"TIME", "TYPE", "HEADER", "REFERENCE"}
			rows := make([][]string, len(msgs))
			for i, m := range msgs {
				rows[i] = []string{displayTime(m.CreatedAt), m.Type, m.Header, orDash(m.Reference)}
			}

			outputFn().Print(headers, rows, msgs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Max number of messages")

	return cmd
}
