package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/pkg/app"
)

func sessionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved chat sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				sessions := rt.Chat.SessionList()
				current := rt.Chat.CurrentSessionID()
				return g.emit(cmd.OutOrStdout(), map[string]any{"sessions": sessions, "current": current}, func() string {
					return renderer(cmd.OutOrStdout(), rt).Sessions(sessions, current)
				})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a session transcript (the active one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				id := rt.Chat.CurrentSessionID()
				if len(args) == 1 {
					id = args[0]
				}
				sess, ok := rt.Chat.Session(id)
				if !ok {
					return fmt.Errorf("%w: %q", chat.ErrSessionNotFound, id)
				}
				return g.emit(cmd.OutOrStdout(), sess, func() string {
					r := renderer(cmd.OutOrStdout(), rt)
					return r.SessionHeader(sess) + "\n\n" + r.Transcript(chat.Projection{
						SessionID: sess.ID,
						Messages:  sess.Messages,
						Context:   sess.Context,
					})
				})
			})
		},
	}

	var title string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a session and make it active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				id := rt.Chat.CreateSession(title)
				sess, _ := rt.Chat.Session(id)
				return g.emit(cmd.OutOrStdout(), sess, func() string {
					return fmt.Sprintf("Created %s (%s)", sess.ID, sess.Title)
				})
			})
		},
	}
	newCmd.Flags().StringVarP(&title, "title", "t", "", "Session title")

	switchCmd := &cobra.Command{
		Use:   "switch <id>",
		Short: "Make a session active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				if err := rt.Chat.SwitchSession(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active session: %s\n", args[0])
				return nil
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a session title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				if err := rt.Chat.UpdateSessionTitle(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
				return nil
			})
		},
	}

	var yes bool
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, true, func(rt *app.Runtime) error {
				sess, ok := rt.Chat.Session(args[0])
				if !ok {
					return fmt.Errorf("%w: %q", chat.ErrSessionNotFound, args[0])
				}
				if !yes {
					confirmed, err := confirm(fmt.Sprintf("Delete %q (%d messages)?", sess.Title, len(sess.Messages)))
					if err != nil || !confirmed {
						return err
					}
				}
				if err := rt.Chat.DeleteSession(sess.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", sess.ID)
				return nil
			})
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(list, show, newCmd, switchCmd, rename, del)
	return cmd
}

// confirm asks a yes/no question on the terminal.
func confirm(question string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}
