package tasks

import (
	"time"

	"github.com/sadopc/done/internal/model"
)

// NextOccurrence advances t by one recurrence period.
func NextOccurrence(t time.Time, r model.Recurrence) time.Time {
	switch r {
	case model.RecurrenceDaily:
		return t.AddDate(0, 0, 1)
	case model.RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case model.RecurrenceMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t
	}
}

// addSuccessor appends the next occurrence of a just-completed recurring
// item to cs. The successor keeps the recurrence rule, its deadline moves
// one period past the old deadline (or past now), and the subtasks are
// copied as pending.
func (s *Service) addSuccessor(cs *model.ChangeSet, done model.Item) {
	if done.Recurrence == model.RecurrenceNone {
		return
	}
	now := s.engine.Now()
	base := now
	if done.Deadline != nil {
		base = *done.Deadline
	}
	deadline := NextOccurrence(base, done.Recurrence)

	next := done
	next.ID = s.engine.NewID()
	next.Status = model.ItemPending
	next.Deadline = &deadline
	next.Order = s.nextItemOrder()
	next.CreatedAt = now
	next.UpdatedAt = now
	cs.Items = append(cs.Items, next)

	ids := make(map[string]string)
	subs := s.cache.SubtasksOf(done.ID)
	for _, sub := range subs {
		ids[sub.ID] = s.engine.NewID()
	}
	for _, sub := range subs {
		cp := sub
		cp.ID = ids[sub.ID]
		cp.TodoID = next.ID
		if !sub.IsTopLevel() {
			if parent, ok := ids[*sub.ParentID]; ok {
				cp.ParentID = model.StringPtr(parent)
			} else {
				cp.ParentID = nil
			}
		}
		cp.SetStatus(model.SubtaskPending)
		cs.Subtasks = append(cs.Subtasks, cp)
	}
}
