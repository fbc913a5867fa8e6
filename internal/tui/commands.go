package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/tool"
)

// SlashCommand represents a slash command handler
type SlashCommand struct {
	Name        string
	Description string
	Handler     func(ctx context.Context, c *Console, args string) error
}

// builtinCommands returns all available slash commands
func builtinCommands() map[string]SlashCommand {
	return map[string]SlashCommand{
		"help":    {"help", "Show available commands", cmdHelp},
		"mode":    {"mode", "Show or change the mode (ask, plan, agent)", cmdMode},
		"new":     {"new", "Start a new conversation", cmdNew},
		"list":    {"list", "List conversations", cmdList},
		"switch":  {"switch", "Switch to a conversation by id", cmdSwitch},
		"delete":  {"delete", "Delete a conversation by id", cmdDelete},
		"bundles": {"bundles", "List tool bundles, or show one", cmdBundles},
		"history": {"history", "Show executions of this session", cmdHistory},
		"undo":    {"undo", "Revert the last execution", cmdUndo},
		"quit":    {"quit", "Leave the console", cmdQuit},
	}
}

// isSlashCommand checks if input starts with /
func isSlashCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// executeSlashCommand runs a console command. It reports false when the
// line is not a console command and should go to the agent, which is how
// /skill-name invocations reach it.
func (c *Console) executeSlashCommand(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input[1:], " ", 2)
	name := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	cmds := builtinCommands()
	if cmd, ok := cmds[name]; ok {
		return true, cmd.Handler(ctx, c, args)
	}
	if c.isSkill(ctx, name) {
		return false, nil
	}

	known := make([]string, 0, len(cmds))
	for n := range cmds {
		known = append(known, n)
	}
	sort.Strings(known)
	msg := fmt.Sprintf("Unknown command: /%s.", name)
	if s := tool.Suggest(name, known); len(s) > 0 {
		msg += " Did you mean /" + strings.Join(s, ", /") + "?"
	} else {
		msg += " Type /help for available commands."
	}
	c.printf("%s\n", msg)
	return true, nil
}

func (c *Console) isSkill(ctx context.Context, name string) bool {
	if c.skills == nil {
		return false
	}
	skills, err := c.skills.ListSkills(ctx)
	if err != nil {
		return false
	}
	for _, s := range skills {
		if strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

// Command handlers

func cmdHelp(_ context.Context, c *Console, _ string) error {
	cmds := builtinCommands()
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, n := range names {
		fmt.Fprintf(&sb, "  /%-8s %s\n", n, cmds[n].Description)
	}
	sb.WriteString("\nAny other /name invokes the skill of that name.\n")
	c.printf("%s", sb.String())
	return nil
}

func cmdMode(_ context.Context, c *Console, args string) error {
	if args == "" {
		c.printf("mode: %s\n", c.session.Mode())
		return nil
	}
	if err := c.session.SetMode(domain.Mode(strings.ToLower(args))); err != nil {
		return err
	}
	c.printf("mode set to %s\n", c.session.Mode())
	return nil
}

func cmdNew(ctx context.Context, c *Console, _ string) error {
	conv, err := c.session.Conversations().Create(ctx, c.session.Provider().ID())
	if err != nil {
		return err
	}
	c.printf("new conversation %s\n", conv.ID)
	return nil
}

func cmdList(ctx context.Context, c *Console, _ string) error {
	convs, err := c.session.Conversations().List(ctx)
	if err != nil {
		return err
	}
	c.printf("%s", strings.TrimRight(c.render.Conversations(convs, c.session.Conversations().CurrentID()), "\n")+"\n")
	return nil
}

func cmdSwitch(ctx context.Context, c *Console, args string) error {
	if args == "" {
		return fmt.Errorf("usage: /switch <id>")
	}
	if err := c.session.Conversations().Switch(ctx, args); err != nil {
		return err
	}
	c.printf("switched to %s\n", args)
	return nil
}

func cmdDelete(ctx context.Context, c *Console, args string) error {
	if args == "" {
		return fmt.Errorf("usage: /delete <id>")
	}
	if err := c.session.DeleteConversation(ctx, args); err != nil {
		return err
	}
	c.printf("deleted %s\n", args)
	return nil
}

func cmdBundles(_ context.Context, c *Console, args string) error {
	bundles := c.session.Bundles()
	if args == "" {
		c.printf("%s", c.render.Bundles(bundles))
		return nil
	}
	for _, b := range bundles {
		if b.Name == extratool.Name(strings.ToLower(args)) {
			c.printf("%s", c.render.Bundle(b))
			return nil
		}
	}
	return fmt.Errorf("unknown bundle %q", args)
}

func cmdHistory(_ context.Context, c *Console, _ string) error {
	c.printf("%s", strings.TrimRight(c.render.Executions(c.session.Executions()), "\n")+"\n")
	return nil
}

func cmdUndo(ctx context.Context, c *Console, _ string) error {
	msg, results, err := c.session.UndoLast(ctx)
	for _, r := range results {
		icon := "✓"
		if !r.Result.Success {
			icon = "✗"
		}
		c.printf("  %s %s\n", icon, r.Action.ToolName)
	}
	if msg != nil {
		c.printf("%s\n", c.style(okStyle, msg.Content))
	}
	return err
}

func cmdQuit(context.Context, *Console, string) error {
	return errQuit
}
