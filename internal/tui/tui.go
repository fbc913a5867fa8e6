// Package tui is the interactive chat console: a line-oriented REPL that
// streams agent turns and asks before running plans.
package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/telebiz/agentcore/internal/agent"
	"github.com/telebiz/agentcore/internal/render"
	"github.com/telebiz/agentcore/internal/store"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")). // Orange
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	agentErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	planStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("226")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// errQuit ends the loop.
var errQuit = errors.New("quit")

// Options configures a Console.
type Options struct {
	// Skills lets unknown slash words pass through as skill invocations.
	Skills store.SkillStore
	// Pretty enables styling; off for pipes.
	Pretty bool
	// Width of separators, 0 for the default.
	Width int
}

// Console drives one session from a line reader.
type Console struct {
	session *agent.Session
	in      *bufio.Reader
	out     io.Writer
	render  *render.Renderer
	skills  store.SkillStore
	pretty  bool
	width   int
}

// NewConsole creates a console reading lines from in.
func NewConsole(session *agent.Session, in io.Reader, out io.Writer, opts Options) *Console {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	return &Console{
		session: session,
		in:      bufio.NewReader(in),
		out:     out,
		render:  render.New(opts.Pretty),
		skills:  opts.Skills,
		pretty:  opts.Pretty,
		width:   opts.Width,
	}
}

// Run starts a console on the process terminal. Styling follows whether
// stdout is a terminal.
func Run(ctx context.Context, session *agent.Session, skills store.SkillStore) error {
	opts := Options{Skills: skills}
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		opts.Pretty = true
		if w, _, err := term.GetSize(fd); err == nil {
			opts.Width = w
		}
	}
	return NewConsole(session, os.Stdin, os.Stdout, opts).Loop(ctx)
}

func (c *Console) style(s lipgloss.Style, text string) string {
	if !c.pretty {
		return text
	}
	return s.Render(text)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Loop reads and handles lines until EOF, /quit or ctx is done.
func (c *Console) Loop(ctx context.Context) error {
	c.banner()
	for ctx.Err() == nil {
		c.printf("%s ", c.style(promptStyle, fmt.Sprintf("[%s] ›", c.session.Mode())))
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			c.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isSlashCommand(line) {
			handled, err := c.executeSlashCommand(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.printf("%s\n", c.style(agentErrorStyle, "Error: "+err.Error()))
			}
			if handled {
				continue
			}
		}

		if err := c.send(ctx, line); err != nil {
			c.printf("%s\n", c.style(agentErrorStyle, "Error: "+err.Error()))
		}
	}
	return ctx.Err()
}

func (c *Console) banner() {
	c.printf("%s\n", c.style(promptStyle, "telebiz agent"))
	c.printf("%s\n", c.style(dimStyle, fmt.Sprintf("provider %s, mode %s. Type /help for commands.",
		c.session.Provider().ID(), c.session.Mode())))
	c.separator()
}

func (c *Console) separator() {
	c.printf("%s\n", c.style(dimStyle, strings.Repeat("─", min(c.width, 80))))
}

// send runs one turn and renders it, answering confirmations inline.
func (c *Console) send(ctx context.Context, text string) error {
	events, err := c.session.Send(ctx, text)
	if err != nil {
		return err
	}
	var st streamState
	for ev := range events {
		c.handleEvent(&st, ev)
	}
	if st.midLine {
		c.printf("\n")
	}
	return nil
}
