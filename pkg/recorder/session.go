package recorder

import (
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
)

// State is the lifecycle state of a RecordingSession.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a session state transition.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

var validTransitions = map[State][]State{
	StateIdle:      {StateRecording},
	StateRecording: {StateStopped},
}

// Session is one recording cycle. Fragments are append-only while
// recording; stopping concatenates them into an immutable artifact.
type Session struct {
	mu        sync.Mutex
	state     State
	mimeType  string
	fragments [][]byte
	startedAt time.Time
	artifact  *audio.Artifact
	listeners []StateListener
}

// NewSession creates an idle session whose artifact will carry mimeType.
func NewSession(mimeType string, listeners ...StateListener) *Session {
	return &Session{
		state:     StateIdle,
		mimeType:  mimeType,
		listeners: listeners,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin moves the session to RECORDING.
func (s *Session) Begin(mimeType string) error {
	s.mu.Lock()
	if mimeType != "" {
		s.mimeType = mimeType
	}
	change, err := s.transitionLocked(StateRecording, "capture opened")
	if err == nil {
		s.fragments = nil
		s.startedAt = change.Timestamp
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(change)
	return nil
}

// Append adds a fragment. It is ignored unless the session is recording.
func (s *Session) Append(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return false
	}
	frag := make([]byte, len(data))
	copy(frag, data)
	s.fragments = append(s.fragments, frag)
	return true
}

// Finish moves the session to STOPPED and produces its artifact.
func (s *Session) Finish() (*audio.Artifact, error) {
	s.mu.Lock()
	change, err := s.transitionLocked(StateStopped, "capture stopped")
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.artifact = audio.Concat(s.fragments, s.mimeType, s.startedAt, change.Timestamp.Sub(s.startedAt))
	s.fragments = nil
	artifact := s.artifact
	s.mu.Unlock()
	s.notify(change)
	return artifact, nil
}

// Artifact returns the settled artifact, or nil before Finish.
func (s *Session) Artifact() *audio.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// FragmentCount reports how many fragments are buffered.
func (s *Session) FragmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fragments)
}

func (s *Session) transitionLocked(to State, reason string) (StateChange, error) {
	allowed := false
	for _, next := range validTransitions[s.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return StateChange{}, &InvalidTransitionError{From: s.state, To: to}
	}
	change := StateChange{
		FromState: s.state,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	s.state = to
	return change, nil
}

// notify runs without the lock so listeners may query the session.
func (s *Session) notify(change StateChange) {
	for _, l := range s.listeners {
		if l != nil {
			l.OnStateChange(change)
		}
	}
}
