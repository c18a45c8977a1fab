package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mail-triage/internal/app"
	"github.com/nhle/mail-triage/internal/gateway"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

var (
	listOpts  listOptions
	listLimit int

	replyBody    string
	replyTo      []string
	replyCc      []string
	replyAttach  []string
	draftText    string
	draftSuggest bool

	composeTo      []string
	composeCc      []string
	composeSubject string
	composeBody    string
	composeAttach  []string
	composeDraft   bool
)

// listOptions selects the folder and narrowing of `list`.
type listOptions struct {
	Type     string
	Thread   string
	All      bool
	Drafts   bool
	Archived bool
	Trashed  bool
}

// filter maps the options onto a store filter. Only one folder flag may
// be set.
func (o listOptions) filter() (store.MessageFilter, error) {
	folders := 0
	for _, set := range []bool{o.All, o.Drafts, o.Archived, o.Trashed} {
		if set {
			folders++
		}
	}
	if folders > 1 {
		return store.MessageFilter{}, fmt.Errorf("--all, --drafts, --archived and --trashed are exclusive")
	}

	filter := store.InboxFilter()
	switch {
	case o.All:
		filter = store.MessageFilter{}
	case o.Drafts:
		filter = store.DraftsFilter()
	case o.Archived:
		filter = store.ArchiveFilter()
	case o.Trashed:
		filter = store.MessageFilter{Trashed: true}
	}
	if o.Type != "" {
		t := model.MessageType(o.Type)
		if !t.Valid() {
			return store.MessageFilter{}, fmt.Errorf("unknown message type %q", o.Type)
		}
		filter.Types = []model.MessageType{t}
		filter.ExcludeTypes = nil
	}
	if o.Thread != "" {
		thread := o.Thread
		filter.ThreadID = &thread
	}
	return filter, nil
}

// listCmd prints the inbox view.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listOpts.filter()
		if err != nil {
			return err
		}
		filter.Limit = listLimit

		return withApp(cmd.Context(), func(a *app.App) error {
			msgs, err := a.Store.ListMessages(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("No messages.")
				return nil
			}

			fmt.Printf("%-6s %-2s %-16s %-3s %-28s %s\n", "ID", "", "TYPE", "PRI", "FROM", "SUBJECT")
			for _, m := range msgs {
				unread := ""
				if !m.IsRead {
					unread = "*"
				}
				fmt.Printf("%-6d %-2s %-16s %-3d %-28s %s\n",
					m.ID, unread, m.Type, m.Priority, clip(m.Sender, 28), m.Subject)
			}
			total, err := a.Store.CountMessages(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d of %d message(s)\n", len(msgs), total)
			return nil
		})
	},
}

// showCmd prints one message with recipients, labels and summary.
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			m, err := a.Store.GetMessage(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Subject:  %s\n", m.Subject)
			fmt.Printf("From:     %s\n", m.Sender)
			for _, r := range m.Recipients {
				fmt.Printf("%-9s %s\n", strings.ToUpper(r.Kind[:1])+r.Kind[1:]+":", r.Address)
			}
			fmt.Printf("Date:     %s\n", formatTime(m.ReceivedAt))
			fmt.Printf("Thread:   %s\n", m.ThreadID)
			fmt.Printf("Type:     %s (%s), priority %d\n", m.Type, m.TypeOrigin, m.Priority)
			if len(m.Labels) > 0 {
				fmt.Printf("Labels:   %s\n", strings.Join(m.Labels, ", "))
			}
			if m.Summary != nil {
				fmt.Printf("Summary:  %s\n", *m.Summary)
			}
			fmt.Println()
			fmt.Println(m.Body)
			if m.Draft != nil && *m.Draft != "" {
				fmt.Println()
				fmt.Println("--- draft ---")
				fmt.Println(*m.Draft)
			}
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a message read",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.SetRead(cmd.Context(), id, true)
	}),
}

var unreadCmd = &cobra.Command{
	Use:   "unread <id>",
	Short: "Mark a message unread",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.SetRead(cmd.Context(), id, false)
	}),
}

var spamCmd = &cobra.Command{
	Use:   "spam <id>",
	Short: "Move a message to spam",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.MoveToSpam(cmd.Context(), id)
	}),
}

var inboxCmd = &cobra.Command{
	Use:   "inbox <id>",
	Short: "Move a message back to the inbox",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.MoveToInbox(cmd.Context(), id)
	}),
}

var typeCmd = &cobra.Command{
	Use:   "type <id> <response-needed|read-only|junk|junk-uncertain>",
	Short: "Set a message's triage type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := model.MessageType(args[1])
		if !t.Triage() {
			return fmt.Errorf("unknown triage type %q", args[1])
		}
		return messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
			return g.SetType(cmd.Context(), id, t)
		})(cmd, args)
	},
}

// replyCmd sends a reply on the message's thread.
var replyCmd = &cobra.Command{
	Use:   "reply <id>",
	Short: "Reply to a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		req := gateway.ReplyRequest{Body: replyBody, To: replyTo, Cc: replyCc}
		for _, path := range replyAttach {
			att, err := readAttachment(path)
			if err != nil {
				return err
			}
			req.Attachments = append(req.Attachments, att)
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			sent, err := a.Gateway.SendReply(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			fmt.Printf("Reply stored as message %d on thread %s.\n", sent.ID, sent.ThreadID)
			return nil
		})
	},
}

// draftCmd saves draft text, optionally written by the classifier.
var draftCmd = &cobra.Command{
	Use:   "draft <id>",
	Short: "Save a reply draft for a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if draftText == "" && !draftSuggest {
			return fmt.Errorf("pass --text or --suggest")
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			text := draftText
			if draftSuggest {
				text, err = a.Analyzer.SuggestReply(cmd.Context(), id)
				if err != nil {
					return err
				}
			}
			if err := a.Gateway.SaveDraft(cmd.Context(), id, text); err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a message out of the inbox",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.Archive(cmd.Context(), id)
	}),
}

var trashCmd = &cobra.Command{
	Use:   "trash <id>",
	Short: "Move a message to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.Trash(cmd.Context(), id)
	}),
}

var deleteDraftCmd = &cobra.Command{
	Use:   "delete-draft <id>",
	Short: "Discard the draft saved on a message",
	Args:  cobra.ExactArgs(1),
	RunE: messageAction(func(cmd *cobra.Command, g *gateway.Gateway, id int64) error {
		return g.DeleteDraft(cmd.Context(), id)
	}),
}

// composeCmd sends, or with --draft saves, a new message.
var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Write a new message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := gateway.ComposeRequest{
			To:      composeTo,
			Cc:      composeCc,
			Subject: composeSubject,
			Body:    composeBody,
		}
		for _, path := range composeAttach {
			att, err := readAttachment(path)
			if err != nil {
				return err
			}
			req.Attachments = append(req.Attachments, att)
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			if composeDraft {
				msg, err := a.Gateway.ComposeDraft(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Printf("Draft stored as message %d.\n", msg.ID)
				return nil
			}
			msg, err := a.Gateway.Compose(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Message stored as %d on thread %s.\n", msg.ID, msg.ThreadID)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&listOpts.Type, "type", "", "only this message type")
	listCmd.Flags().StringVar(&listOpts.Thread, "thread", "", "only this thread")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum rows")
	listCmd.Flags().BoolVar(&listOpts.All, "all", false, "include sent, draft and archived rows")
	listCmd.Flags().BoolVar(&listOpts.Drafts, "drafts", false, "only rows carrying a draft")
	listCmd.Flags().BoolVar(&listOpts.Archived, "archived", false, "only archived rows")
	listCmd.Flags().BoolVar(&listOpts.Trashed, "trashed", false, "only trashed rows")

	replyCmd.Flags().StringVarP(&replyBody, "body", "b", "", "reply text")
	replyCmd.Flags().StringSliceVar(&replyTo, "to", nil, "recipients (default: original sender)")
	replyCmd.Flags().StringSliceVar(&replyCc, "cc", nil, "cc recipients")
	replyCmd.Flags().StringSliceVar(&replyAttach, "attach", nil, "files to attach")
	_ = replyCmd.MarkFlagRequired("body")

	draftCmd.Flags().StringVarP(&draftText, "text", "t", "", "draft text")
	draftCmd.Flags().BoolVar(&draftSuggest, "suggest", false, "let the classifier write the draft")

	composeCmd.Flags().StringSliceVar(&composeTo, "to", nil, "recipients")
	composeCmd.Flags().StringSliceVar(&composeCc, "cc", nil, "cc recipients")
	composeCmd.Flags().StringVarP(&composeSubject, "subject", "s", "", "subject line")
	composeCmd.Flags().StringVarP(&composeBody, "body", "b", "", "message text")
	composeCmd.Flags().StringSliceVar(&composeAttach, "attach", nil, "files to attach")
	composeCmd.Flags().BoolVar(&composeDraft, "draft", false, "save as a draft instead of sending")
	_ = composeCmd.MarkFlagRequired("to")
	_ = composeCmd.MarkFlagRequired("body")
}

// messageAction adapts a single-id gateway call to a cobra RunE.
func messageAction(fn func(*cobra.Command, *gateway.Gateway, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := fn(cmd, a.Gateway, id); err != nil {
				return err
			}
			fmt.Printf("Message %d updated.\n", id)
			return nil
		})
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}

func readAttachment(path string) (mailbox.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mailbox.Attachment{}, fmt.Errorf("reading attachment %s: %w", path, err)
	}
	return mailbox.Attachment{
		Filename: filepath.Base(path),
		Data:     data,
	}, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
