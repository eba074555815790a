package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/proxymail/internal/api/apierr"
)

func playerPath(identity string) string {
	return "/api/v1/players/" + url.PathEscape(identity)
}

func newSendCmd() *cobra.Command {
	var fromName, fromID string

	cmd := &cobra.Command{
		Use:   "send <recipient> <message...>",
		Short: "Send a message to a user by name",
		Long: `Send a message to a user by name. The name is matched exactly first and
then case-insensitively. Without --from-id the message is sent as the console.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"sender_name": fromName,
				"sender_id":   fromID,
				"recipient":   args[0],
				"body":        strings.Join(args[1:], " "),
			}
			var result Message

			if err := client.Post("/api/v1/messages", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromName, "from-name", "", "Sender username")
	cmd.Flags().StringVar(&fromID, "from-id", "", "Sender identity (UUID)")

	return cmd
}

func newBroadcastCmd() *cobra.Command {
	var fromName, fromID string

	cmd := &cobra.Command{
		Use:   "broadcast <message...>",
		Short: "Send a message to every known user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"sender_name": fromName,
				"sender_id":   fromID,
				"body":        strings.Join(args, " "),
			}
			var result BroadcastResult

			if err := client.Post("/api/v1/messages/broadcast", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromName, "from-name", "", "Sender username")
	cmd.Flags().StringVar(&fromID, "from-id", "", "Sender identity (UUID)")

	return cmd
}

func newInboxCmd() *cobra.Command {
	var (
		all   bool
		start int
	)

	cmd := &cobra.Command{
		Use:   "inbox <identity>",
		Short: "List a player's mail and mark it read",
		Long: `List a player's unread mail, oldest first. With --all, list every message,
newest first. Listed messages are marked read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if all {
				query.Set("all", "true")
			}
			if start > 0 {
				query.Set("start", strconv.Itoa(start))
			}
			path := playerPath(args[0]) + "/messages"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			var result Page
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include read messages")
	cmd.Flags().IntVar(&start, "start", 0, "Position of the first message to show")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identity> <all|read|message-id>",
		Short: "Delete a player's mail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			path := playerPath(args[0]) + "/messages"

			switch args[1] {
			case "all", "read":
				if args[1] == "read" {
					path += "?read_only=true"
				}
				var result DeletedResult
				if err := client.Delete(path, &result); err != nil {
					return err
				}
				out.Print(result)
			default:
				id, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("expected all, read or a message id, got %q", args[1])
				}
				err = client.Delete(path+"/"+strconv.FormatUint(id, 10), nil)
				if IsAPIError(err, apierr.CodeMessageNotFound) {
					return fmt.Errorf("no message #%d in this mailbox: %w", id, err)
				}
				if err != nil {
					return err
				}
				out.PrintMessage(fmt.Sprintf("Message #%d deleted", id))
			}
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "session <identity>",
		Short: "Record a player joining and show their unread count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"username": name}
			var result SessionResult

			if err := client.Post(playerPath(args[0])+"/session", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Current username (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
