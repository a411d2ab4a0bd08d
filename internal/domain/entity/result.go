package entity

type Outcome string

const (
	OutcomeAuthenticated     Outcome = "authenticated"
	OutcomeChallengeDetected Outcome = "challenge_detected"
	OutcomeFailed            Outcome = "failed"
)

type ChallengeKind string

const (
	ChallengeTwoFactor          ChallengeKind = "two_factor"
	ChallengeSuspiciousActivity ChallengeKind = "suspicious_activity"
)

const ReasonUnrecognizedState = "unrecognized state"

// EvidenceRef points at a DiagnosticsEntry by ID.
type EvidenceRef string

// AuthAttemptResult is a tagged variant: exactly one of Session (authenticated),
// Challenge (challenge_detected) or Reason (failed) is meaningful for a given Outcome.
type AuthAttemptResult struct {
	Outcome   Outcome       `json:"outcome"`
	Session   *SessionState `json:"-"`
	Challenge ChallengeKind `json:"challenge,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Evidence  EvidenceRef   `json:"evidence,omitempty"`
	// Fatal marks failures that must not be retried, such as provisioning errors.
	Fatal bool `json:"fatal,omitempty"`
}

func Authenticated(session *SessionState, evidence EvidenceRef) AuthAttemptResult {
	return AuthAttemptResult{Outcome: OutcomeAuthenticated, Session: session, Evidence: evidence}
}

func ChallengeDetected(kind ChallengeKind, evidence EvidenceRef) AuthAttemptResult {
	return AuthAttemptResult{Outcome: OutcomeChallengeDetected, Challenge: kind, Evidence: evidence}
}

func Failed(reason string, evidence EvidenceRef) AuthAttemptResult {
	return AuthAttemptResult{Outcome: OutcomeFailed, Reason: reason, Evidence: evidence}
}

func (r AuthAttemptResult) IsAuthenticated() bool { return r.Outcome == OutcomeAuthenticated }
func (r AuthAttemptResult) IsChallenge() bool     { return r.Outcome == OutcomeChallengeDetected }
func (r AuthAttemptResult) IsFailed() bool        { return r.Outcome == OutcomeFailed }

func (r AuthAttemptResult) String() string {
	switch r.Outcome {
	case OutcomeChallengeDetected:
		return "ChallengeDetected(" + string(r.Challenge) + ", " + string(r.Evidence) + ")"
	case OutcomeFailed:
		return "Failed(" + r.Reason + ", " + string(r.Evidence) + ")"
	default:
		return "Authenticated(" + string(r.Evidence) + ")"
	}
}
