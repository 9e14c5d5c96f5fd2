package domain

// Role tags the author of a message.
type Role string

const (
	RoleAI     Role = "ai"
	RoleHuman  Role = "human"
	RoleSystem Role = "system"
)

// Message is a single utterance recorded in the run history.
// Messages are values; once appended to a State they are never modified.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewAIMessage builds a message authored by the agent.
func NewAIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content}
}

// NewHumanMessage builds a message authored by the caller.
func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// State is the snapshot of a run. It is replaced, never edited in place:
// use Merge to derive the next state.
type State struct {
	// TaskID identifies the task the run works on. Opaque to the executor.
	TaskID string `json:"task_id"`

	// Messages is the ordered, append-only history of the run.
	Messages []Message `json:"messages"`
}

// NewState creates an empty state for the given task.
func NewState(taskID string) *State {
	return &State{
		TaskID:   taskID,
		Messages: []Message{},
	}
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() *State {
	if s == nil {
		return nil
	}
	cp := &State{
		TaskID:   s.TaskID,
		Messages: make([]Message, len(s.Messages)),
	}
	copy(cp.Messages, s.Messages)
	return cp
}

// Last returns the most recent message, if any.
func (s *State) Last() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Delta is what a step returns: only the new messages, never the full state.
type Delta struct {
	Messages []Message `json:"messages"`
}

// Empty reports whether the delta carries no messages.
func (d Delta) Empty() bool {
	return len(d.Messages) == 0
}

// AppendMessages is the reducer for the message channel: old followed by new.
// It always allocates, so neither argument is aliased by the result.
func AppendMessages(old, update []Message) []Message {
	out := make([]Message, 0, len(old)+len(update))
	out = append(out, old...)
	out = append(out, update...)
	return out
}

// Merge applies a delta to a state and returns the resulting state.
// The input state is left untouched.
func Merge(s *State, d Delta) *State {
	next := &State{}
	if s != nil {
		next.TaskID = s.TaskID
		next.Messages = AppendMessages(s.Messages, d.Messages)
		return next
	}
	next.Messages = AppendMessages(nil, d.Messages)
	return next
}
