package types

import "context"

// ElectionEvent is a signal emitted by a leader election primitive.
type ElectionEvent int

const (
	// ElectionEventNone indicates no event has been observed yet.
	ElectionEventNone ElectionEvent = iota

	// ElectionEventOffered indicates the candidate joined the election.
	ElectionEventOffered

	// ElectionEventElectedComplete indicates the candidate became the leader.
	ElectionEventElectedComplete

	// ElectionEventReadyComplete indicates the candidate is a ready follower of a known leader.
	ElectionEventReadyComplete

	// ElectionEventFailed indicates the election primitive hit an error.
	ElectionEventFailed

	// ElectionEventStopped indicates the candidate left the election.
	ElectionEventStopped
)

// String returns the string representation of the event.
func (e ElectionEvent) String() string {
	switch e {
	case ElectionEventNone:
		return "None"
	case ElectionEventOffered:
		return "Offered"
	case ElectionEventElectedComplete:
		return "ElectedComplete"
	case ElectionEventReadyComplete:
		return "ReadyComplete"
	case ElectionEventFailed:
		return "Failed"
	case ElectionEventStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Healthy reports whether the event means the candidate completed either the
// elected or the ready phase.
func (e ElectionEvent) Healthy() bool {
	return e == ElectionEventElectedComplete || e == ElectionEventReadyComplete
}

// ElectionListener receives election events for one handle.
type ElectionListener func(event ElectionEvent)

// ElectionHandle is one candidate's participation in a leader election.
//
// A handle is single-use: once stopped, a new handle must be created to
// participate again.
type ElectionHandle interface {
	// Start joins the election.
	Start(ctx context.Context) error

	// Stop leaves the election, releasing leadership if held.
	Stop(ctx context.Context) error

	// LeaderIdentity returns the identity declared by the current leader.
	//
	// Returns:
	//   - string: Leader identity, empty if there is no leader
	//   - error: Coordination error
	LeaderIdentity(ctx context.Context) (string, error)

	// AddListener registers an event listener.
	//
	// Returns:
	//   - func(): Function removing the listener
	AddListener(listener ElectionListener) func()
}
