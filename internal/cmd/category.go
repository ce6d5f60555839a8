package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-kanban/okb/internal/store"
	"github.com/opencode-kanban/okb/internal/style"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage board categories (columns)",
}

func init() {
	categoryCmd.AddCommand(categoryListCmd, categoryCreateCmd, categoryUpdateCmd, categoryDeleteCmd)
}

type categorySummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Position int    `json:"position"`
}

func newCategorySummary(c store.Category) categorySummary {
	return categorySummary{ID: c.ID, Name: c.Name, Slug: c.Slug, Position: c.Position}
}

type categoryListResult struct {
	Categories []categorySummary `json:"categories"`
}

func (r categoryListResult) Render() string {
	tbl := style.NewTable(
		style.Column{Name: "ID", Width: 14},
		style.Column{Name: "NAME", Width: 24},
		style.Column{Name: "SLUG", Width: 16},
		style.Column{Name: "POSITION", Width: 8, Align: style.AlignRight},
	)
	for _, c := range r.Categories {
		tbl.AddRow(c.ID, c.Name, c.Slug, fmt.Sprintf("%d", c.Position))
	}
	tbl.SetMaxWidth(style.TerminalWidth(100))
	return tbl.Render()
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "category.list", nil, err)
			return nil
		}
		defer rt.close()

		board, err := rt.orch.Snapshot(cmd.Context())
		if err != nil {
			emit(cmd, "category.list", nil, err)
			return nil
		}

		result := categoryListResult{}
		for _, c := range board.Categories {
			result.Categories = append(result.Categories, newCategorySummary(c))
		}
		emit(cmd, "category.list", result, nil)
		return nil
	},
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "category.create", nil, err)
			return nil
		}
		defer rt.close()

		c, err := rt.orch.CreateCategory(cmd.Context(), args[0])
		if err != nil {
			emit(cmd, "category.create", nil, err)
			return nil
		}
		emit(cmd, "category.create", newCategorySummary(c), nil)
		return nil
	},
}

var categoryUpdateCmd = &cobra.Command{
	Use:   "update <category-id> <name>",
	Short: "Rename a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "category.update", nil, err)
			return nil
		}
		defer rt.close()

		if err := rt.orch.UpdateCategoryName(cmd.Context(), args[0], args[1]); err != nil {
			emit(cmd, "category.update", nil, err)
			return nil
		}
		emit(cmd, "category.update", map[string]string{"category_id": args[0], "name": args[1]}, nil)
		return nil
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category-id>",
	Short: "Delete an empty, non-last category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(projectName)
		if err != nil {
			emit(cmd, "category.delete", nil, err)
			return nil
		}
		defer rt.close()

		if err := rt.orch.DeleteCategory(cmd.Context(), args[0]); err != nil {
			emit(cmd, "category.delete", nil, err)
			return nil
		}
		emit(cmd, "category.delete", map[string]string{"category_id": args[0]}, nil)
		return nil
	},
}
