// Package app assembles the agent from configuration: storage, tool
// registries, engines, provider, sinks and the reminder sweeper. The CLI
// commands and the HTTP server share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/telebiz/agentcore/internal/agent"
	"github.com/telebiz/agentcore/internal/chattool"
	"github.com/telebiz/agentcore/internal/config"
	"github.com/telebiz/agentcore/internal/conversation"
	"github.com/telebiz/agentcore/internal/dispatch"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/execution"
	"github.com/telebiz/agentcore/internal/extratool"
	"github.com/telebiz/agentcore/internal/graph"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/mcp"
	"github.com/telebiz/agentcore/internal/metrics"
	"github.com/telebiz/agentcore/internal/plan"
	"github.com/telebiz/agentcore/internal/provider"
	"github.com/telebiz/agentcore/internal/ratelimit"
	"github.com/telebiz/agentcore/internal/scheduler"
	"github.com/telebiz/agentcore/internal/storage"
	"github.com/telebiz/agentcore/internal/tool"
)

// Option overrides a collaborator.
type Option func(*options)

type options struct {
	provider  provider.Provider
	messenger integrations.Messenger
	crm       integrations.CRM
	notion    integrations.Notion
	limiter   *ratelimit.Limiter
	graph     graph.Driver
}

// WithProvider uses p instead of the configured provider.
func WithProvider(p provider.Provider) Option { return func(o *options) { o.provider = p } }

// WithMessenger wires the messenger account the chat tools act on.
func WithMessenger(m integrations.Messenger) Option { return func(o *options) { o.messenger = m } }

// WithCRM wires the CRM bundle backend.
func WithCRM(c integrations.CRM) Option { return func(o *options) { o.crm = c } }

// WithNotion wires the Notion bundle backend.
func WithNotion(n integrations.Notion) Option { return func(o *options) { o.notion = n } }

// WithLimiter replaces the process-wide rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option { return func(o *options) { o.limiter = l } }

// WithGraph uses d for the audit trail instead of dialing cfg.Neo4j.
func WithGraph(d graph.Driver) Option { return func(o *options) { o.graph = d } }

// App is a fully wired agent.
type App struct {
	Config  *config.Config
	Storage *storage.Storage
	Extras  *extratool.Registry
	Session *agent.Session
	Sweeper *scheduler.Sweeper
	Audit   *graph.Audit // nil without a graph
	Metrics *metrics.Metrics
	MCP     *mcp.Bridge

	log *logging.Logger
}

// New wires everything. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil {
		o.limiter = ratelimit.Global()
	}

	policy, err := tool.NewPolicy(cfg.DisabledTools)
	if err != nil {
		return nil, fmt.Errorf("disabled tools: %w", err)
	}

	st, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &App{
		Config:  cfg,
		Storage: st,
		Metrics: metrics.Global(),
		log:     logging.New("app"),
	}

	if err := a.wire(ctx, o, policy); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, o options, policy *tool.Policy) error {
	cfg, st := a.Config, a.Storage

	a.Extras = extratool.NewRegistry(extratool.Deps{
		CRM:       o.crm,
		Notion:    o.notion,
		Reminders: st,
		Tasks:     st,
		Messenger: o.messenger,
		Skills:    st,
	}, policy)

	convs, err := conversation.New(ctx, st)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	core := chattool.NewSet(chattool.Deps{
		Messenger: o.messenger,
		Tasks:     st,
		Bundles:   a.Extras,
	})
	tools := dispatch.New(core, a.Extras, policy)
	plans := plan.NewEngine(tools)
	a.MCP = mcp.New(tools, o.limiter)

	prov := o.provider
	if prov == nil {
		if prov, err = provider.Default.FromConfig(cfg); err != nil {
			return err
		}
	}

	sinks := []agent.ExecutionSink{a.Metrics}
	if audit := a.openAudit(ctx, o.graph); audit != nil {
		a.Audit = audit
		sinks = append(sinks, audit)
	}

	a.Session, err = agent.New(agent.Config{
		UserID:       cfg.UserID,
		Mode:         domain.Mode(cfg.Mode),
		Model:        cfg.Model,
		AllOrNothing: cfg.AllOrNothing,
	}, agent.Deps{
		Provider:      prov,
		Conversations: convs,
		Plans:         plans,
		Executor:      execution.New(plans, tools, o.limiter),
		Tools:         tools,
		Skills:        st,
		Executions:    st,
		Sinks:         sinks,
	})
	if err != nil {
		return err
	}

	a.Sweeper, err = scheduler.New(st, st, cfg.ReminderSweep)
	return err
}

func (a *App) openAudit(ctx context.Context, d graph.Driver) *graph.Audit {
	if d != nil {
		return graph.NewAudit(d)
	}
	gcfg := graph.FromConfig(a.Config.Neo4j)
	if !gcfg.Enabled() {
		return nil
	}
	db := graph.ConnectWithRetry(ctx, gcfg, 3)
	if db == nil {
		return nil
	}
	return graph.NewAudit(db)
}

// StartSweeper runs the reminder sweeper until ctx is done.
func (a *App) StartSweeper(ctx context.Context) {
	a.Sweeper.Start(ctx)
}

// SetProvider switches the session to another configured provider.
func (a *App) SetProvider(id domain.ProviderID) error {
	p, err := provider.Default.Create(id,
		provider.WithAPIKey(a.Config.APIKeys[string(id)]),
		provider.WithBaseURL(a.Config.BaseURLs[string(id)]))
	if err != nil {
		return err
	}
	a.Session.SetProvider(p)
	return nil
}

// Close stops the sweeper and closes the graph and storage.
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	var errs []error
	if a.Audit != nil {
		errs = append(errs, a.Audit.Close())
	}
	errs = append(errs, a.Storage.Close())
	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("app_close_failed", nil, err)
	}
	return err
}
