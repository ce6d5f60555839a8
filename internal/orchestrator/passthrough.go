package orchestrator

import (
	"context"
	"fmt"

	"github.com/opencode-kanban/okb/internal/constants"
	"github.com/opencode-kanban/okb/internal/namecodec"
	"github.com/opencode-kanban/okb/internal/store"
)

var errCategoryNameLength = fmt.Errorf("category name must be 1-%d characters", constants.MaxCategoryNameLen)

func categorySlug(name string) string {
	return namecodec.Slug(name)
}

func mapCategoryDeleteErr(err error) error {
	if store.IsConflict(err) {
		return taxonomy(KindConflict, "delete_category", err)
	}
	if store.IsNotFound(err) {
		return taxonomy(KindNotFound, "delete_category", err)
	}
	return taxonomy(KindInvariant, "delete_category", err)
}

// MoveTask relocates task to (categoryID, position), renumbering both
// categories transactionally (spec §4.G.6).
func (o *Orchestrator) MoveTask(ctx context.Context, taskID, categoryID string, position int) error {
	var opErr error
	err := o.submit(ctx, func() {
		if err := o.store.MoveTask(taskID, categoryID, position); err != nil {
			if store.IsNotFound(err) {
				opErr = taxonomy(KindNotFound, "move_task", err)
			} else {
				opErr = taxonomy(KindIo, "move_task", err)
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// ReorderWithinCategory applies a new full ordering for categoryID.
func (o *Orchestrator) ReorderWithinCategory(ctx context.Context, categoryID string, orderedIDs []string) error {
	var opErr error
	err := o.submit(ctx, func() {
		if err := o.store.ReorderWithinCategory(categoryID, orderedIDs); err != nil {
			opErr = taxonomy(KindInvariant, "reorder", err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// ArchiveTask sets archived=true, idempotently (spec §4.G.6, §8 property 8).
func (o *Orchestrator) ArchiveTask(ctx context.Context, taskID string) (bool, error) {
	var changed bool
	var opErr error
	err := o.submit(ctx, func() {
		changed, opErr = o.store.ArchiveTask(taskID)
		if opErr != nil {
			opErr = taxonomy(KindNotFound, "archive_task", opErr)
		}
	})
	if err != nil {
		return false, err
	}
	return changed, opErr
}

// CreateCategory validates the display-name length invariant (spec §8
// property 10) before inserting.
func (o *Orchestrator) CreateCategory(ctx context.Context, name string) (store.Category, error) {
	if len(name) == 0 || len(name) > constants.MaxCategoryNameLen {
		return store.Category{}, taxonomy(KindUsage, "create_category", errCategoryNameLength)
	}
	slug := categorySlug(name)
	if slug == "" {
		return store.Category{}, taxonomy(KindUsage, "create_category", fmt.Errorf("category name %q has no letters or digits to derive a slug from", name))
	}

	var result store.Category
	var opErr error
	err := o.submit(ctx, func() {
		result, opErr = o.store.CreateCategory(name, slug)
		if opErr != nil {
			opErr = taxonomy(KindConflict, "create_category", opErr)
		}
	})
	if err != nil {
		return store.Category{}, err
	}
	return result, opErr
}

// UpdateCategoryName renames a category, re-validating the length
// invariant (spec §8 property 10).
func (o *Orchestrator) UpdateCategoryName(ctx context.Context, categoryID, name string) error {
	if len(name) == 0 || len(name) > constants.MaxCategoryNameLen {
		return taxonomy(KindUsage, "update_category", errCategoryNameLength)
	}
	var opErr error
	err := o.submit(ctx, func() {
		if serr := o.store.UpdateCategoryName(categoryID, name); serr != nil {
			if store.IsNotFound(serr) {
				opErr = taxonomy(KindNotFound, "update_category", serr)
			} else {
				opErr = taxonomy(KindIo, "update_category", serr)
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// DeleteCategory removes an empty, non-last category (spec §4.G.6).
func (o *Orchestrator) DeleteCategory(ctx context.Context, categoryID string) error {
	var opErr error
	err := o.submit(ctx, func() {
		if serr := o.store.DeleteCategory(categoryID); serr != nil {
			opErr = mapCategoryDeleteErr(serr)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Snapshot returns the full board view (spec §4.A).
func (o *Orchestrator) Snapshot(ctx context.Context) (store.Board, error) {
	var board store.Board
	var opErr error
	err := o.submit(ctx, func() {
		board, opErr = o.store.Snapshot()
		if opErr != nil {
			opErr = taxonomy(KindIo, "snapshot", opErr)
		}
	})
	if err != nil {
		return store.Board{}, err
	}
	return board, opErr
}
