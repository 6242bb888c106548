package track

import (
	"sort"
	"time"

	"github.com/your-org/procwatch/internal/model"
)

// Process is one live entry in the table.
type Process struct {
	Pid       int32     `json:"pid"`
	Tgid      int32     `json:"tgid"`
	ParentPid int32     `json:"parent_pid"`
	Started   time.Time `json:"started"`

	// Execed is set once the process has replaced the forked image.
	Execed bool `json:"execed"`
}

// Table maintains a map of live processes from lifecycle events. Like
// the session feeding it, a Table has a single owner and does no
// internal locking.
//
// The table only knows about processes whose fork was observed; exec
// and exit events for unknown pids are ignored rather than synthesized
// into entries, since the kernel sends no backfill for processes that
// predate the subscription.
type Table struct {
	procs map[int32]Process
	now   func() time.Time
}

func NewTable() *Table {
	return &Table{
		procs: make(map[int32]Process),
		now:   time.Now,
	}
}

// Apply folds one event into the table.
func (t *Table) Apply(ev model.Event) {
	switch e := ev.(type) {
	case model.Fork:
		t.procs[e.ChildPid] = Process{
			Pid:       e.ChildPid,
			Tgid:      e.ChildTgid,
			ParentPid: e.ParentPid,
			Started:   t.now(),
		}
	case model.Exec:
		p, ok := t.procs[e.ProcessPid]
		if !ok {
			return
		}
		p.Execed = true
		t.procs[e.ProcessPid] = p
	case model.Exit:
		delete(t.procs, e.ProcessPid)
	}
}

func (t *Table) Len() int {
	return len(t.procs)
}

// Snapshot returns the live entries ordered by pid.
func (t *Table) Snapshot() []Process {
	out := make([]Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pid < out[j].Pid })
	return out
}
