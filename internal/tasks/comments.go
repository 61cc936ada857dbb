package tasks

import (
	"context"
	"strings"

	"github.com/sadopc/done/internal/model"
)

func (s *Service) AddComment(ctx context.Context, todoID, text string) (model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Comment{}, ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return model.Comment{}, err
	}
	defer s.mu.Unlock()

	if _, ok := s.cache.Item(todoID); !ok {
		return model.Comment{}, model.NotFoundError{Kind: "item", ID: todoID}
	}
	c := model.Comment{
		ID:        s.engine.NewID(),
		TodoID:    todoID,
		Text:      text,
		CreatedAt: s.engine.Now(),
		UserID:    s.userID,
	}
	if err := s.commit(ctx, model.ChangeSet{Comments: []model.Comment{c}}); err != nil {
		return model.Comment{}, err
	}
	return c, nil
}

func (s *Service) DeleteComment(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.cache.Comment(id); !ok {
		return model.NotFoundError{Kind: "comment", ID: id}
	}
	return s.commit(ctx, model.ChangeSet{DeletedComments: []string{id}})
}
