package model

type EventType string

const (
	EventFork     EventType = "fork"
	EventExec     EventType = "exec"
	EventExit     EventType = "exit"
	EventCoredump EventType = "coredump"
)

// Event is one process lifecycle notification from the kernel. Each
// variant carries the full field set the kernel reports for it; Pid
// returns the single "subject" pid (the child for a fork) for callers
// that only care about which process the event is about.
type Event interface {
	Type() EventType
	Pid() int32
}

// Fork reports a new child of an existing process.
type Fork struct {
	ChildPid   int32 `json:"child_pid"`
	ChildTgid  int32 `json:"child_tgid"`
	ParentPid  int32 `json:"parent_pid"`
	ParentTgid int32 `json:"parent_tgid"`
}

func (Fork) Type() EventType { return EventFork }
func (e Fork) Pid() int32    { return e.ChildPid }

// Exec reports that a process replaced its image.
type Exec struct {
	ProcessPid  int32 `json:"process_pid"`
	ProcessTgid int32 `json:"process_tgid"`
}

func (Exec) Type() EventType { return EventExec }
func (e Exec) Pid() int32    { return e.ProcessPid }

// Exit reports process termination, including how it died.
type Exit struct {
	ProcessPid  int32  `json:"process_pid"`
	ProcessTgid int32  `json:"process_tgid"`
	ExitCode    uint32 `json:"exit_code"`
	ExitSignal  uint32 `json:"exit_signal"`
	ParentPid   int32  `json:"parent_pid"`
	ParentTgid  int32  `json:"parent_tgid"`
}

func (Exit) Type() EventType { return EventExit }
func (e Exit) Pid() int32    { return e.ProcessPid }

// Coredump reports that a process is dumping core.
type Coredump struct {
	ProcessPid  int32 `json:"process_pid"`
	ProcessTgid int32 `json:"process_tgid"`
	ParentPid   int32 `json:"parent_pid"`
	ParentTgid  int32 `json:"parent_tgid"`
}

func (Coredump) Type() EventType { return EventCoredump }
func (e Coredump) Pid() int32    { return e.ProcessPid }
