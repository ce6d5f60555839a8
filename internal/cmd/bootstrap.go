package cmd

import (
	"context"
	"fmt"

	"github.com/opencode-kanban/okb/internal/agentdriver"
	"github.com/opencode-kanban/okb/internal/config"
	"github.com/opencode-kanban/okb/internal/gitdriver"
	"github.com/opencode-kanban/okb/internal/logging"
	"github.com/opencode-kanban/okb/internal/muxdriver"
	"github.com/opencode-kanban/okb/internal/orchestrator"
	"github.com/opencode-kanban/okb/internal/store"
	"github.com/opencode-kanban/okb/internal/util"
)

// runtime bundles the resources a single one-shot CLI invocation needs: an
// open project Store and a running Orchestrator worker (spec §6, "consumes
// Orchestrator operations one-shot").
type runtime struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	cancel context.CancelFunc
	done   chan struct{}
}

// bootstrap loads config, opens the named project's Store, wires the three
// external drivers, and starts the Orchestrator's worker loop in the
// background so the caller's single command can submit to it.
func bootstrap(project string) (*runtime, error) {
	if project == "" {
		return nil, usageErrorf("--project is required")
	}

	cfg, err := config.Load(util.ExpandHome(configPath))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(context.Background(), cfg.ProjectDBPath(project))
	if err != nil {
		return nil, fmt.Errorf("opening project %q: %w", project, err)
	}

	log := logging.Default()
	git := gitdriver.New()
	mux := muxdriver.New(cfg.MuxSocket)
	agent := agentdriver.New(mux, cfg.AgentBin)
	orch := orchestrator.New(st, git, mux, agent, cfg.WorktreeBaseDir, log)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(workerCtx)
	}()

	return &runtime{store: st, orch: orch, cancel: cancel, done: done}, nil
}

// close stops the Orchestrator worker and releases the Store's database
// connection. Safe to defer immediately after a successful bootstrap.
func (r *runtime) close() {
	r.cancel()
	<-r.done
	_ = r.store.Close()
}
