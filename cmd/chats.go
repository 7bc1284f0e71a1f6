package main

import (
	"fmt"
	"strings"

	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/render"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		list, err := svc.ListThreads(cmd.Context())
		if err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("filter")
		unread, _ := cmd.Flags().GetBool("unread")
		list = chat.FilterThreads(list, chat.ThreadFilter{Query: query, UnreadOnly: unread})
		render.Threads(cmd.OutOrStdout(), list, cfg.Location)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Find or create the conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		id, err := svc.StartConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Show a conversation and mark incoming messages read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		c, err := svc.OpenChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("search")
		render.Chat(cmd.OutOrStdout(), c, svc.Me(), chat.Search{Open: query != "", Query: query}, cfg.Location)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>...",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		m, err := svc.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Message(*m, svc.Me(), cfg.Location))
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <text>...",
	Short: "Replace the body of one of your messages",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		return svc.EditMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		return svc.DeleteMessage(cmd.Context(), args[0])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Show a conversation and follow new messages until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newService(ctx)
		if err != nil {
			return err
		}
		c, err := svc.OpenChat(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		render.Chat(out, c, svc.Me(), chat.Search{}, cfg.Location)

		feed, err := svc.Watch(ctx, c.ID)
		if err != nil {
			return err
		}
		defer feed.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ch, ok := <-feed.Changes():
				if !ok {
					if err := feed.Err(); err != nil {
						return errors.Wrap(err, "live updates stopped")
					}
					return nil
				}
				c.Apply(ch)
				prefix := ""
				if ch.Type == chat.ChangeUpdate {
					prefix = "~ "
				}
				fmt.Fprintln(out, prefix+render.Message(ch.Message, svc.Me(), cfg.Location))
				if ch.Type == chat.ChangeInsert && ch.Message.SenderID != svc.Me() {
					if err := svc.MarkDeliveredRead(ctx, c.ID); err != nil {
						jww.WARN.Printf("[cli] mark %s read: %v", c.ID, err)
					}
				}
			}
		}
	},
}

var usersCmd = &cobra.Command{
	Use:   "users <query>",
	Short: "Search other users by username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		ps, err := svc.SearchProfiles(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		render.Profiles(cmd.OutOrStdout(), ps)
		return nil
	},
}

func init() {
	chatsCmd.Flags().StringP("filter", "f", "", "Keep chats whose name or last message contains this text")
	chatsCmd.Flags().Bool("unread", false, "Only chats with unread messages")
	openCmd.Flags().String("search", "", "Only messages containing this text")

	rootCmd.AddCommand(chatsCmd, startCmd, openCmd, sendCmd, editCmd,
		deleteCmd, watchCmd, usersCmd)
}
