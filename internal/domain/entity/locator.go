package entity

import "fmt"

type FieldName string

const (
	FieldUsername           FieldName = "username_input"
	FieldNextButton         FieldName = "next_button"
	FieldEmailInput         FieldName = "email_challenge_input"
	FieldEmailNext          FieldName = "email_challenge_next"
	FieldPassword           FieldName = "password_input"
	FieldSubmitButton       FieldName = "submit_button"
	FieldLandmark           FieldName = "authenticated_landmark"
	FieldTwoFactorInput     FieldName = "two_factor_input"
	FieldSuspiciousActivity FieldName = "suspicious_activity_marker"
)

type StrategyKind string

const (
	StrategyAttribute  StrategyKind = "attribute"
	StrategyRoleText   StrategyKind = "role_text"
	StrategyPositional StrategyKind = "positional"
)

// Strategy is one way of locating a field. Attribute uses CSS alone, RoleText
// matches elements carrying Role (explicit role attribute or implicit tag) whose
// text matches Text, Positional picks the Index-th visible match of CSS.
type Strategy struct {
	Kind  StrategyKind `json:"kind"`
	CSS   string       `json:"css,omitempty"`
	Role  string       `json:"role,omitempty"`
	Text  string       `json:"text,omitempty"`
	Index int          `json:"index,omitempty"`
}

func (s Strategy) String() string {
	switch s.Kind {
	case StrategyRoleText:
		return fmt.Sprintf("role_text(%s ~ %q)", s.Role, s.Text)
	case StrategyPositional:
		return fmt.Sprintf("positional(%s #%d)", s.CSS, s.Index)
	default:
		return fmt.Sprintf("attribute(%s)", s.CSS)
	}
}

func AttributeStrategy(css string) Strategy {
	return Strategy{Kind: StrategyAttribute, CSS: css}
}

func RoleTextStrategy(role, text string) Strategy {
	return Strategy{Kind: StrategyRoleText, Role: role, Text: text}
}

func PositionalStrategy(css string, index int) Strategy {
	return Strategy{Kind: StrategyPositional, CSS: css, Index: index}
}

// FieldLocator maps a semantic field name to an ordered list of strategies.
type FieldLocator struct {
	Field      FieldName  `json:"field"`
	Strategies []Strategy `json:"strategies"`
}

type StrategyOutcome string

const (
	OutcomeNoMatch   StrategyOutcome = "no_match"
	OutcomeAmbiguous StrategyOutcome = "ambiguous"
	OutcomeInvalid   StrategyOutcome = "invalid"
	OutcomeMatched   StrategyOutcome = "matched"
)

type StrategyAttempt struct {
	Strategy Strategy
	Outcome  StrategyOutcome
	Visible  int
}
