package tasks

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sadopc/done/internal/model"
)

const defaultColor = "#6366f1"

var defaultProjects = []struct {
	key, title, color, icon string
}{
	{"work", "Work", "#3b82f6", "briefcase"},
	{"lifestyle", "Lifestyle", "#10b981", "leaf"},
	{"personal", "Personal", "#f59e0b", "user"},
	{"hobby", "Hobby", "#ec4899", "palette"},
}

// projectNamespace seeds the deterministic ids of synthesized projects, so
// two devices initializing the same account create the same documents.
var projectNamespace = uuid.MustParse("6f9b0c52-7d1e-4f43-9a8e-2b5d3f1c0a77")

func defaultProjectID(key string) string {
	return uuid.NewSHA1(projectNamespace, []byte(key)).String()
}

type ProjectInput struct {
	Title       string
	Color       string
	Icon        string
	Description string
}

func (s *Service) AddProject(ctx context.Context, in ProjectInput) (model.Project, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Project{}, ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return model.Project{}, err
	}
	defer s.mu.Unlock()

	p := model.Project{
		ID:          s.engine.NewID(),
		Title:       title,
		Color:       in.Color,
		Icon:        in.Icon,
		Description: in.Description,
		Order:       s.nextProjectOrder(),
		CreatedAt:   s.engine.Now(),
	}
	if p.Color == "" {
		p.Color = defaultColor
	}
	if err := s.commit(ctx, model.ChangeSet{Projects: []model.Project{p}}); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// UpdateProject replaces the editable fields of an existing project.
func (s *Service) UpdateProject(ctx context.Context, p model.Project) error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cur, ok := s.cache.Project(p.ID)
	if !ok {
		return model.NotFoundError{Kind: "project", ID: p.ID}
	}
	p.CreatedAt = cur.CreatedAt
	p.IsDefault = cur.IsDefault
	return s.commit(ctx, model.ChangeSet{Projects: []model.Project{p}})
}

// DeleteProject removes a project. Its items stay and lose their category.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	cs, err := s.engine.DeleteProject(s.cache, id)
	if err != nil {
		return err
	}
	return s.commit(ctx, cs)
}

// ReorderProjects sets the sidebar order to the order of ids.
func (s *Service) ReorderProjects(ctx context.Context, ids []string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	var cs model.ChangeSet
	for i, id := range ids {
		p, ok := s.cache.Project(id)
		if !ok {
			return model.NotFoundError{Kind: "project", ID: id}
		}
		if p.Order == i {
			continue
		}
		p.Order = i
		cs.Projects = append(cs.Projects, p)
	}
	return s.commit(ctx, cs)
}

// ProjectByTitle finds a project by case-insensitive title.
func (s *Service) ProjectByTitle(title string) (model.Project, bool) {
	for _, p := range s.cache.Projects() {
		if strings.EqualFold(p.Title, strings.TrimSpace(title)) {
			return p, true
		}
	}
	return model.Project{}, false
}

func (s *Service) nextProjectOrder() int {
	next := 0
	for _, p := range s.cache.Projects() {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}
