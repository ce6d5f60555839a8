package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opencode-kanban/okb/internal/orchestrator"
	"github.com/opencode-kanban/okb/internal/store"
	"github.com/opencode-kanban/okb/internal/style"
	"github.com/opencode-kanban/okb/internal/util"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (a branch bound to a worktree and agent session)",
}

func init() {
	taskCmd.AddCommand(taskListCmd, taskCreateCmd, taskMoveCmd, taskArchiveCmd, taskShowCmd)

	taskCreateCmd.Flags().StringVar(&taskCreateRepo, "repo", "", "path to the git repository (required)")
	taskCreateCmd.Flags().StringVar(&taskCreateBranch, "branch", "", "branch name to create (required)")
	taskCreateCmd.Flags().StringVar(&taskCreateBase, "base", "", "base ref (default: repo's detected default branch)")
	taskCreateCmd.Flags().StringVar(&taskCreateTitle, "title", "", "display title (default: branch name)")
	taskCreateCmd.Flags().StringVar(&taskCreateCategoryID, "category-id", "", "target category id")
	taskCreateCmd.Flags().StringVar(&taskCreateCategorySlug, "category-slug", "", "target category slug")
	taskCreateCmd.Flags().BoolVar(&taskCreateSwitch, "switch", false, "switch the multiplexer client to the new session once created")

	taskListCmd.Flags().StringVar(&taskListCategoryID, "category-id", "", "filter by category id")
	taskListCmd.Flags().StringVar(&taskListCategorySlug, "category-slug", "", "filter by category slug")

	taskMoveCmd.Flags().StringVar(&taskMoveCategoryID, "category-id", "", "destination category id (required)")
	taskMoveCmd.Flags().IntVar(&taskMovePosition, "position", 0, "destination position within the category")
}

// taskSummary is the JSON/table projection of a store.Task.
type taskSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	RepoID       string `json:"repo_id"`
	Branch       string `json:"branch"`
	CategoryID   string `json:"category_id"`
	Position     int    `json:"position"`
	Status       string `json:"status"`
	SessionName  string `json:"tmux_session_name,omitempty"`
	WorktreePath string `json:"worktree_path,omitempty"`
	Archived     bool   `json:"archived"`
}

func newTaskSummary(t store.Task) taskSummary {
	return taskSummary{
		ID:           t.ID,
		Title:        t.Title,
		RepoID:       t.RepoID,
		Branch:       t.Branch,
		CategoryID:   t.CategoryID,
		Position:     t.Position,
		Status:       string(t.TmuxStatus),
		SessionName:  t.TmuxSessionName,
		WorktreePath: t.WorktreePath,
		Archived:     t.Archived,
	}
}

func renderStatus(status string) string {
	s := style.Dim
	switch store.TaskStatus(status) {
	case store.StatusRunning:
		s = style.StatusRunning
	case store.StatusWaiting:
		s = style.StatusWaiting
	case store.StatusIdle:
		s = style.StatusIdle
	case store.StatusDead:
		s = style.StatusDead
	case store.StatusBroken, store.StatusUnavailable:
		s = style.StatusBroken
	}
	return s.Render(status)
}

type taskListResult struct {
	Tasks []taskSummary `json:"tasks"`
}

func (r taskListResult) Render() string {
	tbl := style.NewTable(
		style.Column{Name: "ID", Width: 14},
		style.Column{Name: "TITLE", Width: 24},
		style.Column{Name: "BRANCH", Width: 20},
		style.Column{Name: "STATUS", Width: 10},
		style.Column{Name: "SESSION", Width: 28},
	)
	for _, t := range r.Tasks {
		tbl.AddRow(t.ID, t.Title, t.Branch, renderStatus(t.Status), t.SessionName)
	}
	tbl.SetMaxWidth(style.TerminalWidth(100))
	return tbl.Render()
}

var (
	taskListCategoryID   string
	taskListCategorySlug string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered to one category",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "task.list", nil, err)
			return nil
		}
		defer rt.close()

		board, err := rt.orch.Snapshot(cmd.Context())
		if err != nil {
			emit(cmd, "task.list", nil, err)
			return nil
		}

		var categoryID string
		if taskListCategoryID != "" || taskListCategorySlug != "" {
			id, err := resolveCategoryFilter(board, taskListCategoryID, taskListCategorySlug)
			if err != nil {
				emit(cmd, "task.list", nil, err)
				return nil
			}
			categoryID = id
		}

		result := taskListResult{}
		for _, t := range board.Tasks {
			if categoryID != "" && t.CategoryID != categoryID {
				continue
			}
			result.Tasks = append(result.Tasks, newTaskSummary(t))
		}
		emit(cmd, "task.list", result, nil)
		return nil
	},
}

func resolveCategoryFilter(board store.Board, id, slug string) (string, error) {
	if id != "" && slug != "" {
		return "", &orchestrator.TaxonomyError{
			Kind: orchestrator.KindConflict,
			Step: "task.list",
			Err:  orchestrator.ErrCategorySelectorConflict,
		}
	}
	for _, c := range board.Categories {
		if id != "" && c.ID == id {
			return c.ID, nil
		}
		if slug != "" && c.Slug == slug {
			return c.ID, nil
		}
	}
	return "", usageErrorf("no category matches id=%q slug=%q", id, slug)
}

var (
	taskCreateRepo          string
	taskCreateBranch        string
	taskCreateBase          string
	taskCreateTitle         string
	taskCreateCategoryID    string
	taskCreateCategorySlug  string
	taskCreateSwitch        bool
)

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task: a branch, worktree, multiplexer session, and agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskCreateRepo == "" || taskCreateBranch == "" {
			err := usageErrorf("--repo and --branch are required")
			emit(cmd, "task.create", nil, err)
			return nil
		}

		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "task.create", nil, err)
			return nil
		}
		defer rt.close()

		task, err := rt.orch.CreateTask(cmd.Context(), orchestrator.CreateInput{
			RepoPath:       util.ExpandHome(taskCreateRepo),
			Branch:         taskCreateBranch,
			BaseRef:        taskCreateBase,
			Title:          taskCreateTitle,
			CategoryID:     taskCreateCategoryID,
			CategorySlug:   taskCreateCategorySlug,
			SwitchOnCreate: taskCreateSwitch,
		})
		if err != nil {
			emit(cmd, "task.create", nil, err)
			return nil
		}
		emit(cmd, "task.create", newTaskSummary(task), nil)
		return nil
	},
}

var (
	taskMoveCategoryID string
	taskMovePosition   int
)

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id>",
	Short: "Move a task to a category and position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if taskMoveCategoryID == "" {
			err := usageErrorf("--category-id is required")
			emit(cmd, "task.move", nil, err)
			return nil
		}

		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "task.move", nil, err)
			return nil
		}
		defer rt.close()

		if err := rt.orch.MoveTask(cmd.Context(), args[0], taskMoveCategoryID, taskMovePosition); err != nil {
			emit(cmd, "task.move", nil, err)
			return nil
		}
		emit(cmd, "task.move", map[string]string{"task_id": args[0]}, nil)
		return nil
	},
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive <task-id>",
	Short: "Archive a task (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "task.archive", nil, err)
			return nil
		}
		defer rt.close()

		changed, err := rt.orch.ArchiveTask(cmd.Context(), args[0])
		if err != nil {
			emit(cmd, "task.archive", nil, err)
			return nil
		}
		emit(cmd, "task.archive", map[string]any{"task_id": args[0], "changed": changed}, nil)
		return nil
	},
}

type taskDetail struct {
	taskSummary
	StatusError       string `json:"status_error,omitempty"`
	OpencodeSessionID string `json:"opencode_session_id,omitempty"`
}

func (d taskDetail) Render() string {
	var sb []byte
	write := func(label, value string) {
		sb = append(sb, []byte(fmt.Sprintf("%s %s\n", style.Bold.Render(label+":"), value))...)
	}
	write("ID", d.ID)
	write("Title", d.Title)
	write("Branch", d.Branch)
	write("Category", d.CategoryID)
	write("Position", strconv.Itoa(d.Position))
	write("Status", renderStatus(d.Status))
	write("Session", d.SessionName)
	write("Worktree", d.WorktreePath)
	if d.StatusError != "" {
		write("Status error", d.StatusError)
	}
	if d.OpencodeSessionID != "" {
		write("Agent session", d.OpencodeSessionID)
	}
	write("Archived", strconv.FormatBool(d.Archived))
	return string(sb)
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a single task's full state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "task.show", nil, err)
			return nil
		}
		defer rt.close()

		board, err := rt.orch.Snapshot(cmd.Context())
		if err != nil {
			emit(cmd, "task.show", nil, err)
			return nil
		}
		for _, t := range board.Tasks {
			if t.ID == args[0] {
				detail := taskDetail{
					taskSummary:       newTaskSummary(t),
					StatusError:       t.StatusError,
					OpencodeSessionID: t.OpencodeSessionID,
				}
				emit(cmd, "task.show", detail, nil)
				return nil
			}
		}
		notFound := &orchestrator.TaxonomyError{
			Kind: orchestrator.KindNotFound,
			Step: "task.show",
			Err:  fmt.Errorf("task %s not found", args[0]),
		}
		emit(cmd, "task.show", nil, notFound)
		return nil
	},
}
