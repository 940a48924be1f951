package filters

import (
	"encoding/json"
	"strings"
	"time"
)

// Status marks whether a filter is in use. Deleting a filter only flips it to
// StatusInactive; rows are never removed.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Filter is a saved task-list query with its display and visibility settings.
type Filter struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Criteria    Criteria   `json:"criteria"`
	Variables   []Variable `json:"variables"`
	Properties  Properties `json:"properties"`
	Roles       []string   `json:"roles"`
	Users       []string   `json:"users"`
	Status      Status     `json:"status"`
	Tenant      string     `json:"tenant"`
	Created     time.Time  `json:"created"`
	Modified    *time.Time `json:"modified"`
	CreatedBy   string     `json:"createdBy"`
	ModifiedBy  string     `json:"modifiedBy"`
}

// IsActive reports whether the filter has not been soft deleted.
func (f Filter) IsActive() bool {
	return f.Status == StatusActive
}

// Criteria selects the tasks a filter shows. Keys other than the known ones
// are kept as-is so clients can round-trip engine specific criteria.
type Criteria struct {
	CandidateGroup       string `json:"candidateGroup,omitempty" validate:"max=255"`
	IncludeAssignedTasks bool   `json:"includeAssignedTasks"`
	Condition            string `json:"condition,omitempty" validate:"omitempty,oneof=ALL ANY"`

	Extra map[string]json.RawMessage `json:"-"`
}

var criteriaKnownKeys = map[string]struct{}{
	"candidateGroup":       {},
	"includeAssignedTasks": {},
	"condition":            {},
}

// UnmarshalJSON decodes the known criteria keys and keeps the rest in Extra.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	type plain Criteria
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if isKnownCriteriaKey(k) {
			delete(all, k)
		}
	}
	*c = Criteria(known)
	c.Extra = nil
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// isKnownCriteriaKey matches the way encoding/json binds field names, which
// ignores case.
func isKnownCriteriaKey(key string) bool {
	for known := range criteriaKnownKeys {
		if strings.EqualFold(key, known) {
			return true
		}
	}
	return false
}

// MarshalJSON merges Extra back alongside the known keys.
func (c Criteria) MarshalJSON() ([]byte, error) {
	type plain Criteria
	base, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(c.Extra)+len(criteriaKnownKeys))
	for k, v := range c.Extra {
		merged[k] = v
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Variable is a task variable shown as a column in the task list.
type Variable struct {
	Name  string `json:"name" validate:"required,max=255"`
	Label string `json:"label" validate:"required,max=255"`
}

// Properties holds display preferences for the filter.
type Properties struct {
	ShowUndefinedVariable bool `json:"showUndefinedVariable"`
	Priority              int  `json:"priority"`
	Refresh               bool `json:"refresh"`
}

// FilterInput carries the client-editable fields of a filter.
type FilterInput struct {
	Name        string     `json:"name" validate:"required,max=250"`
	Description string     `json:"description" validate:"max=4000"`
	Criteria    Criteria   `json:"criteria"`
	Variables   []Variable `json:"variables" validate:"dive"`
	Properties  Properties `json:"properties"`
	Roles       []string   `json:"roles" validate:"dive,required,max=255"`
	Users       []string   `json:"users" validate:"dive,required,max=255"`
}

// Event is published after a filter changes.
type Event struct {
	Action   string
	FilterID int64
	Actor    string
	Tenant   string
	At       time.Time
}

// Event actions.
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionDeactivated = "deactivated"
)
