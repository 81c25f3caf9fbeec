package domain

// LocalChatTitle is the title used when a private session operates on itself.
const LocalChatTitle = "Local chat"

// Reason is a stable, localizable code for a refused resolution.
type Reason string

const (
	ReasonOnlyInGroups         Reason = "only_in_groups"
	ReasonNotInChat            Reason = "not_in_chat"
	ReasonMustBeAdmin          Reason = "must_be_admin"
	ReasonConnectionNotAllowed Reason = "connection_not_allowed"
)

// AllReasons lists every refusal reason.
var AllReasons = []Reason{
	ReasonOnlyInGroups,
	ReasonNotInChat,
	ReasonMustBeAdmin,
	ReasonConnectionNotAllowed,
}

// Source tells how a target was resolved.
type Source string

const (
	SourceChat       Source = "chat"       // the message's own group
	SourceLocal      Source = "local"      // the private chat itself
	SourceConnection Source = "connection" // a stored connection, freshly validated
	SourceCache      Source = "cache"      // a memoized connection resolution
)

// Target is the chat a command should act on.
type Target struct {
	ChatID              int64  `json:"chatId"`
	ChatTitle           string `json:"chatTitle"`
	IsPrivateConnection bool   `json:"isPrivateConnection"`
	Source              Source `json:"source"`
}

// Requirements are the conditions a command places on its target.
type Requirements struct {
	RequireAdmin     bool `json:"requireAdmin,omitempty"`
	RequireGroupOnly bool `json:"requireGroupOnly,omitempty"`
}

// Outcome is the result of a resolution: a Target when Reason is empty,
// otherwise a refusal.
type Outcome struct {
	Target Target `json:"target"`
	Reason Reason `json:"reason,omitempty"`
}

// Resolved wraps a successful target.
func Resolved(t Target) Outcome { return Outcome{Target: t} }

// Refused wraps a refusal reason.
func Refused(r Reason) Outcome { return Outcome{Reason: r} }

// OK reports whether the outcome is a successful resolution.
func (o Outcome) OK() bool { return o.Reason == "" }
