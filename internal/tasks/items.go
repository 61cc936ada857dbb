package tasks

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/done/internal/dateparse"
	"github.com/sadopc/done/internal/model"
)

type ItemInput struct {
	Title       string
	Description string
	Priority    model.Priority
	Deadline    *time.Time
	Recurrence  model.Recurrence
	CategoryID  *string

	// ProcessEnabled overrides the isThreeStepEnabled setting for the new
	// item.
	ProcessEnabled *bool
}

func (s *Service) AddItem(ctx context.Context, in ItemInput) (model.Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Item{}, ErrEmptyTitle
	}
	process := false
	if in.ProcessEnabled != nil {
		process = *in.ProcessEnabled
	} else if on, err := s.settings.ThreeStepEnabled(ctx); err == nil {
		process = on
	}

	if err := s.lock(); err != nil {
		return model.Item{}, err
	}
	defer s.mu.Unlock()

	now := s.engine.Now()
	it := model.Item{
		ID:                      s.engine.NewID(),
		Title:                   title,
		Description:             in.Description,
		Status:                  model.ItemPending,
		Priority:                in.Priority,
		Deadline:                in.Deadline,
		Recurrence:              in.Recurrence,
		CategoryID:              in.CategoryID,
		IsSubtaskProcessEnabled: process,
		Order:                   s.nextItemOrder(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if it.Priority == "" {
		it.Priority = model.PriorityMedium
	}
	if err := s.commit(ctx, model.ChangeSet{Items: []model.Item{it}}); err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// QuickAdd creates an item from one line of text, taking the deadline from
// phrases like "tomorrow at 5pm".
func (s *Service) QuickAdd(ctx context.Context, text string, categoryID *string) (model.Item, error) {
	in := ItemInput{Title: text, CategoryID: categoryID}
	if res, ok := dateparse.Parse(text, time.Now()); ok && res.Title != "" {
		deadline := res.Deadline.UTC()
		in.Title = res.Title
		in.Deadline = &deadline
	}
	return s.AddItem(ctx, in)
}

// UpdateItem replaces an existing item. Completing a recurring item here
// schedules its successor just like ToggleItem.
func (s *Service) UpdateItem(ctx context.Context, it model.Item) error {
	if strings.TrimSpace(it.Title) == "" {
		return ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur, ok := s.cache.Item(it.ID)
	if !ok {
		return model.NotFoundError{Kind: "item", ID: it.ID}
	}
	if it.Status != model.ItemCompleted {
		it.Status = model.ItemPending
	}
	it.CreatedAt = cur.CreatedAt
	it.UpdatedAt = s.engine.Now()
	it.LegacyCategory = ""

	cs := model.ChangeSet{Items: []model.Item{it}}
	if it.IsSubtaskProcessEnabled != cur.IsSubtaskProcessEnabled && !it.IsSubtaskProcessEnabled {
		// In-progress is only reachable in process mode.
		for _, sub := range s.cache.SubtasksOf(it.ID) {
			if sub.Status == model.SubtaskInProgress {
				sub.SetStatus(model.SubtaskPending)
				cs.Subtasks = append(cs.Subtasks, sub)
			}
		}
	}
	if !cur.Completed() && it.Completed() {
		s.addSuccessor(&cs, it)
	}
	return s.commit(ctx, cs)
}

// ToggleItem flips an item between pending and completed.
func (s *Service) ToggleItem(ctx context.Context, id string) (model.Item, error) {
	if err := s.lock(); err != nil {
		return model.Item{}, err
	}
	defer s.mu.Unlock()

	it, ok := s.cache.Item(id)
	if !ok {
		return model.Item{}, model.NotFoundError{Kind: "item", ID: id}
	}
	if it.Completed() {
		it.Status = model.ItemPending
	} else {
		it.Status = model.ItemCompleted
	}
	it.UpdatedAt = s.engine.Now()

	cs := model.ChangeSet{Items: []model.Item{it}}
	if it.Completed() {
		s.addSuccessor(&cs, it)
	}
	if err := s.commit(ctx, cs); err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// DeleteItem removes an item with its subtasks and comments and unpins it.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	cs, err := s.engine.DeleteItem(s.cache, id)
	if err == nil {
		err = s.commit(ctx, cs)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := s.settings.Unpin(ctx, id); err != nil {
		s.log.Warn("unpin deleted item", zap.Error(err))
	}
	return nil
}

// ReorderItems sets the order of the listed items to their position in ids.
func (s *Service) ReorderItems(ctx context.Context, ids []string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	var cs model.ChangeSet
	now := s.engine.Now()
	for i, id := range ids {
		it, ok := s.cache.Item(id)
		if !ok {
			return model.NotFoundError{Kind: "item", ID: id}
		}
		if it.Order == i {
			continue
		}
		it.Order = i
		it.UpdatedAt = now
		cs.Items = append(cs.Items, it)
	}
	return s.commit(ctx, cs)
}

func (s *Service) nextItemOrder() int {
	next := 0
	for _, it := range s.cache.Items() {
		if it.Order >= next {
			next = it.Order + 1
		}
	}
	return next
}
