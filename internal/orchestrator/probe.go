package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"github.com/opencode-kanban/okb/internal/statusprobe"
	"github.com/opencode-kanban/okb/internal/store"
)

// RunProbeLoop runs the status observation loop until ctx is cancelled
// (spec §4.G.5). Each cycle: list live tasks, visit them in randomized
// order to avoid synchronized spikes, classify each via StatusProbe, and
// submit the result through the same serialized intent queue user
// intents use, so a more recent user write always wins (spec §5).
func (o *Orchestrator) RunProbeLoop(ctx context.Context) {
	rnd := rand.New(rand.NewSource(1))
	for {
		sampledAt := time.Now().UTC().Format(time.RFC3339Nano)

		tasks, err := o.snapshotLiveTasks(ctx)
		if err != nil {
			o.log.Warn("probe loop: listing live tasks failed", "error", err)
		} else {
			rnd.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
			for _, t := range tasks {
				o.probeOne(ctx, t, sampledAt)
			}
		}

		interval := jitter(statusInterval(len(tasks)), rnd)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (o *Orchestrator) snapshotLiveTasks(ctx context.Context) ([]store.Task, error) {
	var tasks []store.Task
	var opErr error
	err := o.submit(ctx, func() {
		tasks, opErr = o.store.ListLiveTasks()
	})
	if err != nil {
		return nil, err
	}
	return tasks, opErr
}

func (o *Orchestrator) probeOne(ctx context.Context, t store.Task, sampledAt string) {
	status, err := statusprobe.Classify(o.mux, t.TmuxSessionName)
	if err != nil {
		o.log.Warn("probe failed", "task", t.ID, "session", t.TmuxSessionName, "error", err)
		return
	}

	_ = o.submit(ctx, func() {
		if err := o.store.UpdateTaskStatus(t.ID, status, store.SourceProbe, "", sampledAt); err != nil {
			o.log.Warn("probe write failed", "task", t.ID, "error", err)
		}
	})
}
