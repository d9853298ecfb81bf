package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/recall/internal/chat"
	"github.com/flemzord/recall/internal/prefs"
	"github.com/flemzord/recall/internal/tui"
	"github.com/flemzord/recall/pkg/app"
)

const replHelp = `Commands:
  /new [title]     start a new session
  /switch <id>     make another session active
  /delete <id>     delete a session
  /title <text>    rename the active session
  /list            list sessions
  /context         show memories behind the last reply
  /help            show this help
  /quit            leave`

const revealPoll = 20 * time.Millisecond

func chatCmd(g *globals) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with your memories (interactive unless a message is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd, false, func(rt *app.Runtime) error {
				if session != "" {
					if err := rt.Chat.SwitchSession(session); err != nil {
						return err
					}
				}
				r := &repl{
					ctrl: rt.Controller,
					tui:  renderer(cmd.OutOrStdout(), rt),
					out:  cmd.OutOrStdout(),
				}
				if len(args) > 0 {
					return r.send(cmd.Context(), strings.Join(args, " "))
				}
				return r.run(cmd.Context(), cmd.InOrStdin())
			})
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session to activate first")
	return cmd
}

// repl is the line-oriented chat loop.
type repl struct {
	ctrl *chat.Controller
	tui  *tui.Renderer
	out  io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	store := r.ctrl.Store()
	if sess, ok := store.CurrentSession(); ok {
		fmt.Fprintln(r.out, r.tui.SessionHeader(sess))
		fmt.Fprintln(r.out, r.tui.Transcript(store.Projection()))
	}
	fmt.Fprintln(r.out, "Type a message, or /help.")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		if r.handle(ctx, sc.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle processes one input line and reports whether the loop should end.
func (r *repl) handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := r.send(ctx, line); err != nil {
			r.fail(err)
		}
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	store := r.ctrl.Store()

	var err error
	switch name {
	case "quit", "exit", "q":
		return true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "new":
		id := store.CreateSession(arg)
		r.info("Started session " + id)
	case "switch":
		if err = needArg(name, arg); err == nil {
			if err = store.SwitchSession(arg); err == nil {
				sess, _ := store.CurrentSession()
				fmt.Fprintln(r.out, r.tui.SessionHeader(sess))
				fmt.Fprintln(r.out, r.tui.Transcript(store.Projection()))
			}
		}
	case "delete":
		if err = needArg(name, arg); err == nil {
			if err = store.DeleteSession(arg); err == nil {
				r.info("Deleted session " + arg)
			}
		}
	case "title":
		if id := store.CurrentSessionID(); id == "" {
			err = errors.New("no active session")
		} else if err = store.UpdateSessionTitle(id, arg); err == nil {
			r.info("Renamed session")
		}
	case "list":
		fmt.Fprintln(r.out, r.tui.Sessions(store.SessionList(), store.CurrentSessionID()))
	case "context":
		fmt.Fprintln(r.out, r.tui.Context(store.Projection().Context))
	default:
		err = fmt.Errorf("unknown command /%s (try /help)", name)
	}
	if err != nil {
		r.fail(err)
	}
	return false
}

// send runs one turn and streams the revealed reply to the terminal.
func (r *repl) send(ctx context.Context, text string) error {
	reveal, err := r.ctrl.SendMessage(ctx, text)
	if err != nil {
		return err
	}
	if reveal == nil {
		r.info("Reply saved to the session that asked for it")
		return nil
	}

	fmt.Fprint(r.out, "assistant: ")
	printed := 0
	flush := func() {
		content := reveal.Content()
		if len(content) > printed {
			fmt.Fprint(r.out, content[printed:])
			printed = len(content)
		}
	}
	ticker := time.NewTicker(revealPoll)
	defer ticker.Stop()
	for {
		select {
		case <-reveal.Done():
			flush()
			fmt.Fprintln(r.out)
			return nil
		case <-ctx.Done():
			reveal.Cancel()
			fmt.Fprintln(r.out)
			return ctx.Err()
		case <-ticker.C:
			flush()
		}
	}
}

func (r *repl) info(text string) {
	fmt.Fprintln(r.out, r.tui.Notice(prefs.LevelInfo, text))
}

func (r *repl) fail(err error) {
	fmt.Fprintln(r.out, r.tui.Notice(prefs.LevelError, err.Error()))
}

func needArg(cmd, arg string) error {
	if arg == "" {
		return fmt.Errorf("/%s needs an argument", cmd)
	}
	return nil
}
