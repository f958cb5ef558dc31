package model

import (
	"strings"
	"time"
)

type AlertKind string

const (
	AlertAlt   AlertKind = "alt"
	AlertTPS   AlertKind = "tps"
	AlertChunk AlertKind = "chunk"
	AlertLag   AlertKind = "lag"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Action struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	ResolvesFindingID string `json:"resolves_finding_id"`
}

// Alert is what a detector hands to the cooldown controller.
type Alert struct {
	Key         string    `json:"key"`
	Kind        AlertKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	FindingID   string    `json:"finding_id,omitempty"`
	ServerID    string    `json:"server_id,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
}

// Notification is the rendered record handed to the notification sink.
type Notification struct {
	Key           string    `json:"key"`
	Kind          AlertKind `json:"kind"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Severity      Severity  `json:"severity"`
	SeverityColor int       `json:"severity_color"`
	Fields        []Field   `json:"fields"`
	Actions       []Action  `json:"actions"`
	FindingID     string    `json:"finding_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Decision is what a moderator chose for a finding.
type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionDeny    Decision = "deny"
	DecisionResolve Decision = "resolve"
)

const (
	actionAltConfirm = "alt_confirm_"
	actionAltDeny    = "alt_deny_"
	actionLagResolve = "lag_resolve_"
)

func AltActions(groupID string) []Action {
	return []Action{
		{ID: actionAltConfirm + groupID, Label: "Confirm Alt", ResolvesFindingID: groupID},
		{ID: actionAltDeny + groupID, Label: "False Positive", ResolvesFindingID: groupID},
	}
}

func LagActions(findingID string) []Action {
	return []Action{{ID: actionLagResolve + findingID, Label: "Mark Resolved", ResolvesFindingID: findingID}}
}

// ParseActionID splits a rendered action id into its decision and finding id.
func ParseActionID(id string) (Decision, string, bool) {
	for prefix, d := range map[string]Decision{
		actionAltConfirm: DecisionConfirm,
		actionAltDeny:    DecisionDeny,
		actionLagResolve: DecisionResolve,
	} {
		if rest, ok := strings.CutPrefix(id, prefix); ok && rest != "" {
			return d, rest, true
		}
	}
	return "", "", false
}
