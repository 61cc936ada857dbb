package model

// ChangeSet is a batch of whole-record upserts and deletions across entity
// types. It is the unit that is applied to the Cache, written to the store in
// one transaction and pushed to the remote store.
//
// An id never appears both as an upsert and as a deletion of the same kind.
type ChangeSet struct {
	Projects []Project
	Items    []Item
	Subtasks []Subtask
	Comments []Comment

	DeletedProjects []string
	DeletedItems    []string
	DeletedSubtasks []string
	DeletedComments []string
}

func (cs ChangeSet) Empty() bool {
	return len(cs.Projects) == 0 && len(cs.Items) == 0 && len(cs.Subtasks) == 0 && len(cs.Comments) == 0 &&
		len(cs.DeletedProjects) == 0 && len(cs.DeletedItems) == 0 &&
		len(cs.DeletedSubtasks) == 0 && len(cs.DeletedComments) == 0
}

// Snapshot is the full content of one user's store.
type Snapshot struct {
	Projects []Project
	Items    []Item
	Subtasks []Subtask
	Comments []Comment
}
