package session

import (
	"context"

	"github.com/andrewcoll/yessql/commands"
)

// journal is the ordered sequence of pending index commands, drained into
// the session's transaction at commit time.
type journal struct {
	pending []commands.IndexCommand
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(cmd commands.IndexCommand) {
	j.pending = append(j.pending, cmd)
}

// drain executes every pending command in append order. Failure of any
// command aborts the drain; already-executed commands are not undone and
// the session propagates the error, so the caller is expected to Cancel
// before Dispose on error.
func (j *journal) drain(ctx context.Context, tx any) error {
	for i, cmd := range j.pending {
		if err := cmd.Execute(ctx, tx); err != nil {
			j.pending = j.pending[i:]
			return err
		}
	}
	j.pending = nil
	return nil
}
