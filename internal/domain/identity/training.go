package identity

import (
	"sort"

	"github.com/rollcall-hub/rollcall/internal/domain/journal"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

type pairKey struct {
	identifier shared.DeviceID
	student    shared.StudentID
}

// BuildTrainingSet derives training examples from journal entries. Only
// confirmed assignments count as evidence; rejections and revocations do not
// contribute negative weight. The result is ordered deterministically so
// retraining from the same log always produces the same model.
func BuildTrainingSet(entries []journal.Entry) []TrainingExample {
	type acc struct {
		sessions      map[shared.SessionID]struct{}
		lastConfirmed journal.Entry
	}
	pairs := make(map[pairKey]*acc)

	for _, e := range entries {
		if e.Kind != shared.EventAssignmentConfirmed {
			continue
		}
		var p journal.AssignmentPayload
		if err := e.Decode(&p); err != nil {
			continue
		}
		if p.StudentID.IsZero() || !p.Identifier.IsValid() {
			continue
		}
		key := pairKey{identifier: p.Identifier, student: p.StudentID}
		a := pairs[key]
		if a == nil {
			a = &acc{sessions: make(map[shared.SessionID]struct{})}
			pairs[key] = a
		}
		a.sessions[e.Session] = struct{}{}
		if e.At.After(a.lastConfirmed.At) {
			a.lastConfirmed = e
		}
	}

	examples := make([]TrainingExample, 0, len(pairs))
	for key, a := range pairs {
		examples = append(examples, TrainingExample{
			Identifier:    key.identifier,
			StudentID:     key.student,
			Sessions:      len(a.sessions),
			LastConfirmed: a.lastConfirmed.At,
		})
	}
	sort.Slice(examples, func(i, j int) bool {
		if examples[i].Identifier != examples[j].Identifier {
			return examples[i].Identifier < examples[j].Identifier
		}
		return examples[i].StudentID < examples[j].StudentID
	})
	return examples
}
