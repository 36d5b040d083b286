package session

// State tracks where a widget session is in its lifecycle.
type State int

const (
	// StateUninitialized: the embed page mounted, widget script not yet loaded.
	StateUninitialized State = iota
	// StateAwaitingCredential: script ready, no valid credential yet.
	StateAwaitingCredential
	// StateActive: credential minted, conversation usable.
	StateActive
	// StateResetting: transient state while a reset tears the session down.
	StateResetting
	// StateScriptUnavailable: the widget script never loaded. Terminal.
	StateScriptUnavailable
	// StateCredentialError: credential minting failed. Terminal; only an
	// explicit new user action starts over.
	StateCredentialError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingCredential:
		return "awaiting_credential"
	case StateActive:
		return "active"
	case StateResetting:
		return "resetting"
	case StateScriptUnavailable:
		return "script_unavailable"
	case StateCredentialError:
		return "credential_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session cannot progress further.
func (s State) Terminal() bool {
	return s == StateScriptUnavailable || s == StateCredentialError
}
