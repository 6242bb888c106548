package procmon

import (
	"testing"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/your-org/procwatch/internal/model"
)

// stubMonitor builds a Monitor whose receive step replays the given
// batches one per call and then reports empty reads forever. calls
// counts receive attempts.
func stubMonitor(calls *int, batches ...[]byte) *Monitor {
	m := &Monitor{fd: -1, id: 1, log: zap.NewNop(), buf: make([]byte, 8192)}
	m.recv = func(buf []byte) (int, error) {
		*calls++
		if len(batches) == 0 {
			return 0, nil
		}
		b := batches[0]
		batches = batches[1:]
		return copy(buf, b), nil
	}
	return m
}

func TestPollSingleFork(t *testing.T) {
	var calls int
	m := stubMonitor(&calls, eventFrame(procEventFork, 1, 1, 100, 100))

	ev := m.Poll()
	fork, ok := ev.(model.Fork)
	if !ok {
		t.Fatalf("expected Fork, got %#v", ev)
	}
	want := model.Fork{ChildPid: 100, ChildTgid: 100, ParentPid: 1, ParentTgid: 1}
	if fork != want {
		t.Fatalf("fork = %+v, want %+v", fork, want)
	}
	if len(m.queue) != 0 {
		t.Fatalf("queue not drained: %d records left", len(m.queue))
	}
}

func TestPollDrainsBatchInOrder(t *testing.T) {
	batch := append(
		eventFrame(procEventFork, 1, 1, 100, 100),
		eventFrame(procEventExit, 100, 100, 0, 0, 1, 1)...,
	)
	var calls int
	m := stubMonitor(&calls, batch)

	if _, ok := m.Poll().(model.Fork); !ok {
		t.Fatalf("first poll: expected Fork")
	}
	if calls != 1 {
		t.Fatalf("first poll: %d receives, want 1", calls)
	}
	if _, ok := m.Poll().(model.Exit); !ok {
		t.Fatalf("second poll: expected Exit")
	}
	if calls != 1 {
		t.Fatalf("second poll must come from the queue, got %d receives", calls)
	}
	if ev := m.Poll(); ev != nil {
		t.Fatalf("third poll: expected nil, got %#v", ev)
	}
	if calls != 2 {
		t.Fatalf("third poll must trigger a fresh receive, got %d receives", calls)
	}
}

func TestPollSkipsForeignFrames(t *testing.T) {
	foreign := frame(uint16(unix.NLMSG_DONE), envelope(3, 7, procEvent(procEventFork, 1, 1, 2, 2)))
	batch := append(foreign, eventFrame(procEventExec, 55, 55)...)
	var calls int
	m := stubMonitor(&calls, batch)

	ev := m.Poll()
	exec, ok := ev.(model.Exec)
	if !ok {
		t.Fatalf("expected Exec, got %#v", ev)
	}
	if exec.ProcessPid != 55 || exec.ProcessTgid != 55 {
		t.Fatalf("exec = %+v", exec)
	}
	if len(m.queue) != 0 {
		t.Fatalf("foreign frame was queued")
	}
}

func TestPollZeroLengthReceive(t *testing.T) {
	var calls int
	m := stubMonitor(&calls)

	if ev := m.Poll(); ev != nil {
		t.Fatalf("expected nil on empty read, got %#v", ev)
	}
	if ev := m.Poll(); ev != nil {
		t.Fatalf("expected nil on second empty read, got %#v", ev)
	}
	// Empty reads do not terminate the session: every poll retried.
	if calls != 2 {
		t.Fatalf("expected 2 receive attempts, got %d", calls)
	}
}

func TestPollSwallowsReceiveError(t *testing.T) {
	var calls int
	m := &Monitor{fd: -1, id: 1, log: zap.NewNop(), buf: make([]byte, 8192)}
	m.recv = func(buf []byte) (int, error) {
		calls++
		if calls == 1 {
			return 0, unix.ENOBUFS
		}
		return copy(buf, eventFrame(procEventExec, 7, 7)), nil
	}

	if ev := m.Poll(); ev != nil {
		t.Fatalf("expected nil on receive error, got %#v", ev)
	}
	// The error is absorbed; the next poll tries again and succeeds.
	if _, ok := m.Poll().(model.Exec); !ok {
		t.Fatalf("expected Exec after transient error")
	}
}

func TestCloseReleasesOnce(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[1])

	m := &Monitor{fd: fds[0], id: 1, log: zap.NewNop()}
	if err := m.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
