package tasks

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sadopc/done/internal/hierarchy"
	"github.com/sadopc/done/internal/model"
)

// AddSubtask appends a pending subtask to the sibling group (todoID,
// parentID). A nil parentID adds a top-level subtask.
func (s *Service) AddSubtask(ctx context.Context, todoID string, parentID *string, title string) (model.Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Subtask{}, ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return model.Subtask{}, err
	}
	defer s.mu.Unlock()

	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	sub := model.Subtask{
		ID:       s.engine.NewID(),
		TodoID:   todoID,
		ParentID: parentID,
		Title:    title,
	}
	sub.SetStatus(model.SubtaskPending)
	if err := hierarchy.ValidateSubtask(s.cache, sub); err != nil {
		return model.Subtask{}, err
	}
	sub.Order = hierarchy.NextSiblingOrder(s.cache, todoID, parentID)

	if err := s.commit(ctx, model.ChangeSet{Subtasks: []model.Subtask{sub}}); err != nil {
		return model.Subtask{}, err
	}
	return sub, nil
}

// UpdateSubtask stores sub as given after checking the hierarchy rules. It
// does not cascade; use ToggleSubtask for status changes that should. A
// subtask cannot change items here; MoveSubtask carries its children along.
func (s *Service) UpdateSubtask(ctx context.Context, sub model.Subtask) error {
	if strings.TrimSpace(sub.Title) == "" {
		return ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur, ok := s.cache.Subtask(sub.ID)
	if !ok {
		return model.NotFoundError{Kind: "subtask", ID: sub.ID}
	}
	if sub.TodoID != cur.TodoID {
		return ErrItemChange
	}
	if sub.ParentID != nil && *sub.ParentID == "" {
		sub.ParentID = nil
	}
	sub.Normalize()
	if err := hierarchy.ValidateSubtask(s.cache, sub); err != nil {
		return err
	}
	if sub.Status == model.SubtaskInProgress {
		if it, _ := s.cache.Item(sub.TodoID); !it.IsSubtaskProcessEnabled {
			return ErrInvalidStatus
		}
	}
	return s.commit(ctx, model.ChangeSet{Subtasks: []model.Subtask{sub}})
}

// RenameSubtask changes only the title, so a status change that landed
// since the caller read the subtask is kept.
func (s *Service) RenameSubtask(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	sub, ok := s.cache.Subtask(id)
	if !ok {
		return model.NotFoundError{Kind: "subtask", ID: id}
	}
	if sub.Title == title {
		return nil
	}
	sub.Title = title
	return s.commit(ctx, model.ChangeSet{Subtasks: []model.Subtask{sub}})
}

// DeleteSubtask removes a subtask and its children.
func (s *Service) DeleteSubtask(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cs, err := s.engine.DeleteSubtask(s.cache, id)
	if err != nil {
		return err
	}
	return s.commit(ctx, cs)
}

// ToggleSubtask advances a subtask to its next status and cascades the
// change through its parent or children.
func (s *Service) ToggleSubtask(ctx context.Context, id string) (model.Subtask, error) {
	if err := s.lock(); err != nil {
		return model.Subtask{}, err
	}
	defer s.mu.Unlock()

	cs, err := s.engine.Toggle(s.cache, id)
	if err != nil {
		return model.Subtask{}, err
	}
	if err := s.commit(ctx, cs); err != nil {
		return model.Subtask{}, err
	}
	sub, _ := s.cache.Subtask(id)
	return sub, nil
}

// ReorderSubtasks takes the order of each listed subtask from the list.
func (s *Service) ReorderSubtasks(ctx context.Context, subs []model.Subtask) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cs, err := s.engine.Reorder(s.cache, subs)
	if err != nil {
		return err
	}
	return s.commit(ctx, cs)
}

// MoveSubtask moves a subtask with its children to another item, where it
// becomes a top-level subtask at the end.
func (s *Service) MoveSubtask(ctx context.Context, id, targetItemID string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cs, err := s.engine.Reparent(s.cache, id, targetItemID)
	if err != nil {
		return err
	}
	return s.commit(ctx, cs)
}

// ConvertItemToSubtask folds an item into target and returns the id of the
// subtask that replaced it.
func (s *Service) ConvertItemToSubtask(ctx context.Context, itemID, targetItemID string) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	cs, newID, err := s.engine.ConvertItemToSubtask(s.cache, itemID, targetItemID)
	if err == nil {
		err = s.commit(ctx, cs)
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if _, err := s.settings.Unpin(ctx, itemID); err != nil {
		s.log.Warn("unpin converted item", zap.Error(err))
	}
	return newID, nil
}

// ConvertSubtaskToItem promotes a subtask to an item and returns the new
// item id.
func (s *Service) ConvertSubtaskToItem(ctx context.Context, subtaskID string) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	cs, newID, err := s.engine.ConvertSubtaskToItem(s.cache, subtaskID)
	if err != nil {
		return "", err
	}
	if err := s.commit(ctx, cs); err != nil {
		return "", err
	}
	return newID, nil
}
