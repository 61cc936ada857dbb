package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sadopc/done/internal/model"
)

// minPrefix is the shortest id prefix accepted on the command line.
const minPrefix = 4

var errAmbiguous = errors.New("ambiguous id")

type target struct {
	item    *model.Item
	subtask *model.Subtask
}

// resolve finds the item or subtask whose id starts with prefix.
func resolve(c *model.Cache, prefix string) (target, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < minPrefix {
		return target{}, fmt.Errorf("id %q is too short, use at least %d characters", prefix, minPrefix)
	}

	var matches []target
	for _, it := range c.Items() {
		if strings.HasPrefix(it.ID, prefix) {
			matches = append(matches, target{item: &it})
		}
		for _, sub := range c.SubtasksOf(it.ID) {
			if strings.HasPrefix(sub.ID, prefix) {
				matches = append(matches, target{subtask: &sub})
			}
		}
	}

	switch len(matches) {
	case 0:
		return target{}, model.NotFoundError{Kind: "task", ID: prefix}
	case 1:
		return matches[0], nil
	default:
		return target{}, fmt.Errorf("%w: %q matches %d tasks", errAmbiguous, prefix, len(matches))
	}
}

// resolveItem is resolve restricted to items.
func resolveItem(c *model.Cache, prefix string) (model.Item, error) {
	t, err := resolve(c, prefix)
	if err != nil {
		return model.Item{}, err
	}
	if t.item == nil {
		return model.Item{}, fmt.Errorf("%s is a subtask, not a task", prefix)
	}
	return *t.item, nil
}

// resolveProject matches a project by id prefix or by title.
func resolveProject(c *model.Cache, ref string) (model.Project, error) {
	ref = strings.TrimSpace(ref)
	var matches []model.Project
	for _, p := range c.Projects() {
		if strings.EqualFold(p.Title, ref) {
			return p, nil
		}
		if len(ref) >= minPrefix && strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return model.Project{}, model.NotFoundError{Kind: "project", ID: ref}
	case 1:
		return matches[0], nil
	default:
		return model.Project{}, fmt.Errorf("%w: %q matches %d projects", errAmbiguous, ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
