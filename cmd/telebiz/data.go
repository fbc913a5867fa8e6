package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telebiz/agentcore/internal/conversation"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/graph"
	"github.com/telebiz/agentcore/internal/render"
	"github.com/telebiz/agentcore/internal/store"
	"github.com/telebiz/agentcore/internal/tool"
)

func bundlesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundles [name]",
		Short: "List tool bundles or show one",
		Long: `Show the extra tool bundles the agent can load on demand:

crm        deals, contacts and notes in the linked CRM
notion     pages and blocks in Notion
reminders  reminders and the task inbox
bulk       operations over many chats
skills     user-authored instructions`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			policy, err := tool.NewPolicy(cfg.DisabledTools)
			if err != nil {
				exitOnError(err)
			}
			reg := extratool.NewRegistry(extratool.Deps{}, policy)
			r := render.New(pretty)

			if len(args) == 0 {
				fmt.Print(r.Bundles(reg.ListBundles()))
				return
			}
			b, ok := reg.GetBundle(extratool.Name(strings.ToLower(args[0])))
			if !ok {
				names := make([]string, len(extratool.Names))
				for i, n := range extratool.Names {
					names[i] = string(n)
				}
				exitOnError(fmt.Errorf("unknown bundle %q (want %s)", args[0], strings.Join(names, ", ")))
			}
			fmt.Print(r.Bundle(b))
		},
	}
}

// --- skills ---

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "skills",
		Aliases: []string{"skill", "sk"},
		Short:   "Skill management commands",
		Long: `Manage user-authored skills by type:

knowledge  always added to the system prompt
tool       added when a request matches its context
onDemand   added when a message contains /name`,
	}
	cmd.AddCommand(skillListCmd(), skillAddCmd(), skillDeleteCmd())
	return cmd
}

func skillListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List skills",
		Run: func(cmd *cobra.Command, args []string) {
			st := openStorage()
			defer st.Close()

			list, err := st.ListSkills(context.Background())
			if err != nil {
				exitOnError(err)
			}
			fmt.Print(render.New(pretty).Skills(list))
			fmt.Println()
		},
	}
}

func skillAddCmd() *cobra.Command {
	var skillType, context_, file string

	cmd := &cobra.Command{
		Use:   "add <name> [content...]",
		Short: "Add a skill",
		Long: `Add a skill. Content comes from the remaining arguments or --file.

Examples:
  telebiz skills add tone "Answer in two sentences at most." --type knowledge
  telebiz skills add followup --type onDemand --file followup.md`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			content := strings.Join(args[1:], " ")
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					exitOnError(err)
				}
				content = string(data)
			}
			if strings.TrimSpace(content) == "" {
				exitOnError(errors.New("skill content is empty"))
			}
			t := domain.SkillType(skillType)
			if !t.Valid() {
				exitOnError(fmt.Errorf("unknown skill type %q (want knowledge, tool or onDemand)", skillType))
			}
			if context_ == "" {
				context_ = args[0]
			}

			now := time.Now()
			sk := &domain.Skill{
				ID:        uuid.NewString(),
				Name:      extratool.SkillSlug(args[0]),
				Type:      t,
				Context:   context_,
				Content:   content,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}

			st := openStorage()
			defer st.Close()
			if err := st.SaveSkill(context.Background(), sk); err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					exitOnError(fmt.Errorf("a skill named %q already exists", sk.Name))
				}
				exitOnError(err)
			}
			fmt.Printf("Added skill /%s (%s)\n", sk.Name, sk.Type)
		},
	}
	cmd.Flags().StringVarP(&skillType, "type", "t", string(domain.SkillOnDemand), "Skill type: knowledge, tool or onDemand")
	cmd.Flags().StringVarP(&context_, "context", "c", "", "When the skill applies (default: the name)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from file")
	return cmd
}

func skillDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name|id>",
		Aliases: []string{"delete"},
		Short:   "Delete a skill",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			st := openStorage()
			defer st.Close()

			list, err := st.ListSkills(ctx)
			if err != nil {
				exitOnError(err)
			}
			want := strings.TrimPrefix(args[0], "/")
			for _, sk := range list {
				if sk.ID == want || strings.EqualFold(sk.Name, want) {
					if err := st.DeleteSkill(ctx, sk.ID); err != nil {
						exitOnError(err)
					}
					fmt.Printf("Deleted skill /%s\n", sk.Name)
					return
				}
			}
			exitOnError(fmt.Errorf("no skill named %q", want))
		},
	}
}

// --- conversations ---

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Conversation management commands",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			st := openStorage()
			defer st.Close()

			convs, err := conversation.New(ctx, st)
			if err != nil {
				exitOnError(err)
			}
			all, err := convs.List(ctx)
			if err != nil {
				exitOnError(err)
			}
			fmt.Println(strings.TrimRight(render.New(pretty).Conversations(all, convs.CurrentID()), "\n"))
		},
	}

	rm := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a conversation and its messages",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			st := openStorage()
			defer st.Close()

			convs, err := conversation.New(ctx, st)
			if err != nil {
				exitOnError(err)
			}
			if err := convs.Delete(ctx, args[0]); err != nil {
				exitOnError(err)
			}
			fmt.Printf("Deleted conversation %s\n", args[0])
		},
	}

	cmd.AddCommand(list, rm)
	return cmd
}

// --- history ---

func historyCmd() *cobra.Command {
	var limit int
	var stats bool

	cmd := &cobra.Command{
		Use:   "history <chatId>",
		Short: "Show executions that touched a chat",
		Long: `Query the audit graph for the agent executions that affected a chat.

Needs a neo4j compatible graph (NEO4J_URI or neo4j.uri in the config).`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gcfg := graph.FromConfig(cfg.Neo4j)
			if !gcfg.Enabled() {
				exitOnError(errors.New("no audit graph configured (set NEO4J_URI)"))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db := graph.ConnectWithRetry(ctx, gcfg, 1)
			if db == nil {
				exitOnError(fmt.Errorf("audit graph unreachable at %s", gcfg.URI))
			}
			audit := graph.NewAudit(db)
			defer audit.Close()

			entries, err := audit.ChatHistory(ctx, args[0], limit)
			if err != nil {
				exitOnError(err)
			}
			out := render.NewHistory()
			out.Entries(args[0], entries)
			if stats {
				out.Line()
				out.Stats(audit.Stats())
			}
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum executions to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "Show audit cache statistics")
	return cmd
}
