// Package audit records the command-execution history behind every C7
// Project Coordinator command (setup/start/stop/abort/terminate/purge/
// results) and execution-cycle transition, with a bounded in-memory ring
// that prunes its oldest 10% once the maxSize given to NewInMemoryLogger is
// reached.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audited activity.
type EventType string

const (
	// EventTypeCommand is a C7 project command (setup/start/stop/...).
	EventTypeCommand EventType = "command"
	// EventTypeConfiguration is a setup configuration change (new serial_version).
	EventTypeConfiguration EventType = "configuration"
	// EventTypeCycle is an execution cycle state transition.
	EventTypeCycle EventType = "cycle"
	// EventTypeError is an error event.
	EventTypeError EventType = "error"
)

// EventAction represents the action taken.
type EventAction string

const (
	ActionSetup     EventAction = "setup"
	ActionStart     EventAction = "start"
	ActionStop      EventAction = "stop"
	ActionAbort     EventAction = "abort"
	ActionTerminate EventAction = "terminate"
	ActionPurge     EventAction = "purge"
	ActionExport    EventAction = "export"
	ActionImport    EventAction = "import"
	ActionReport    EventAction = "report"
	// ActionValidate marks a validation failure (configuration errors, etc.)
	ActionValidate EventAction = "validate"
)

// EventSeverity represents the severity of an event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          EventType         `json:"type"`
	Action        EventAction       `json:"action"`
	Severity      EventSeverity     `json:"severity"`
	ResourceID    string            `json:"resource_id"`   // project code or cycle id
	ResourceType  string            `json:"resource_type"` // "project" or "cycle"
	Actor         string            `json:"actor"`
	Description   string            `json:"description"`
	OldValue      interface{}       `json:"old_value,omitempty"`
	NewValue      interface{}       `json:"new_value,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Duration      time.Duration     `json:"duration,omitempty"`
	Success       bool              `json:"success"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

// AuditFilter defines criteria for filtering audit events.
type AuditFilter struct {
	Types        []EventType     `json:"types,omitempty"`
	Actions      []EventAction   `json:"actions,omitempty"`
	Severities   []EventSeverity `json:"severities,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	Actor        string          `json:"actor,omitempty"`
	StartTime    *time.Time      `json:"start_time,omitempty"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	SuccessOnly  bool            `json:"success_only,omitempty"`
	FailedOnly   bool            `json:"failed_only,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// AuditSummary provides statistics about audit events.
type AuditSummary struct {
	TotalEvents      int               `json:"total_events"`
	EventsByType     map[EventType]int `json:"events_by_type"`
	EventsByAction   map[EventAction]int `json:"events_by_action"`
	SuccessCount     int               `json:"success_count"`
	FailureCount     int               `json:"failure_count"`
	FirstEvent       *time.Time        `json:"first_event,omitempty"`
	LastEvent        *time.Time        `json:"last_event,omitempty"`
	TopProjects      []ResourceStat    `json:"top_projects,omitempty"`
}

// ResourceStat provides per-resource event counts.
type ResourceStat struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	EventCount   int    `json:"event_count"`
}

// AuditExport is the exportable format of audit logs.
type AuditExport struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Events     []AuditEvent  `json:"events"`
	Summary    *AuditSummary `json:"summary,omitempty"`
}

// Logger is the interface for the command-history audit trail.
type Logger interface {
	Log(event *AuditEvent) error
	LogCommand(projectCode, actor, description string, action EventAction, success bool, metadata map[string]string) (*AuditEvent, error)
	LogConfiguration(projectCode, actor string, oldVersion, newVersion string) (*AuditEvent, error)
	LogCycleTransition(cycleID int64, actor string, from, to string, success bool) (*AuditEvent, error)
	LogError(resourceID, actor, errorMessage string, metadata map[string]string) (*AuditEvent, error)
	Get(id string) (*AuditEvent, bool)
	List() []AuditEvent
	Query(filter *AuditFilter) []AuditEvent
	GetSummary() *AuditSummary
	Export() (*AuditExport, error)
	Import(export *AuditExport) error
	ToJSON() ([]byte, error)
	FromJSON(data []byte) error
	Clear()
	Prune(before time.Time) int
}

// InMemoryLogger is an in-memory implementation of Logger.
type InMemoryLogger struct {
	mu      sync.RWMutex
	events  map[string]*AuditEvent
	maxSize int
}

// NewInMemoryLogger creates a logger bounded to maxSize events
// (non-positive values fall back to 1000, per the spec's command_history
// sizing decision).
func NewInMemoryLogger(maxSize int) *InMemoryLogger {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryLogger{
		events:  make(map[string]*AuditEvent),
		maxSize: maxSize,
	}
}

func (l *InMemoryLogger) generateID() string {
	return uuid.New().String()
}

// Log records an audit event, pruning the oldest 10% once maxSize is hit.
func (l *InMemoryLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	if event.ID == "" {
		event.ID = l.generateID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if len(l.events) >= l.maxSize {
		l.pruneOldest(l.maxSize / 10)
	}

	l.events[event.ID] = event
	return nil
}

func (l *InMemoryLogger) pruneOldest(n int) {
	if n <= 0 || len(l.events) == 0 {
		return
	}

	events := make([]*AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	toRemove := n
	if toRemove > len(events) {
		toRemove = len(events)
	}
	for i := 0; i < toRemove; i++ {
		delete(l.events, events[i].ID)
	}
}

// LogCommand records one C7 command invocation (setup/start/stop/abort/
// terminate/purge/results) against a project.
func (l *InMemoryLogger) LogCommand(projectCode, actor, description string, action EventAction, success bool, metadata map[string]string) (*AuditEvent, error) {
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}

	event := &AuditEvent{
		Type:         EventTypeCommand,
		Action:       action,
		Severity:     severity,
		ResourceID:   projectCode,
		ResourceType: "project",
		Actor:        actor,
		Description:  description,
		Metadata:     metadata,
		Success:      success,
	}

	if err := l.Log(event); err != nil {
		return nil, err
	}
	return event, nil
}

// LogConfiguration records a setup that changed serial_version.
func (l *InMemoryLogger) LogConfiguration(projectCode, actor string, oldVersion, newVersion string) (*AuditEvent, error) {
	event := &AuditEvent{
		Type:         EventTypeConfiguration,
		Action:       ActionSetup,
		Severity:     SeverityInfo,
		ResourceID:   projectCode,
		ResourceType: "project",
		Actor:        actor,
		Description:  fmt.Sprintf("serial_version changed for %s", projectCode),
		OldValue:     oldVersion,
		NewValue:     newVersion,
		Success:      true,
	}

	if err := l.Log(event); err != nil {
		return nil, err
	}
	return event, nil
}

// LogCycleTransition records an execution cycle's state change.
func (l *InMemoryLogger) LogCycleTransition(cycleID int64, actor string, from, to string, success bool) (*AuditEvent, error) {
	severity := SeverityInfo
	if !success {
		severity = SeverityError
	}

	event := &AuditEvent{
		Type:         EventTypeCycle,
		Action:       EventAction(to),
		Severity:     severity,
		ResourceID:   fmt.Sprintf("%d", cycleID),
		ResourceType: "cycle",
		Actor:        actor,
		Description:  fmt.Sprintf("cycle %d: %s -> %s", cycleID, from, to),
		Success:      success,
	}

	if err := l.Log(event); err != nil {
		return nil, err
	}
	return event, nil
}

// LogError records an error event.
func (l *InMemoryLogger) LogError(resourceID, actor, errorMessage string, metadata map[string]string) (*AuditEvent, error) {
	event := &AuditEvent{
		Type:         EventTypeError,
		Action:       ActionValidate,
		Severity:     SeverityError,
		ResourceID:   resourceID,
		ResourceType: "project",
		Actor:        actor,
		Description:  "error occurred",
		Metadata:     metadata,
		Success:      false,
		ErrorMessage: errorMessage,
	}

	if err := l.Log(event); err != nil {
		return nil, err
	}
	return event, nil
}

// Get retrieves an event by ID.
func (l *InMemoryLogger) Get(id string) (*AuditEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	event, exists := l.events[id]
	return event, exists
}

// List returns all events, newest first.
func (l *InMemoryLogger) List() []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result
}

// Query filters events based on criteria.
func (l *InMemoryLogger) Query(filter *AuditFilter) []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if filter == nil {
		return l.List()
	}

	var result []AuditEvent
	for _, e := range l.events {
		if l.matchesFilter(e, filter) {
			result = append(result, *e)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []AuditEvent{}
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result
}

func (l *InMemoryLogger) matchesFilter(event *AuditEvent, filter *AuditFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Actions) > 0 {
		found := false
		for _, a := range filter.Actions {
			if event.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Severities) > 0 {
		found := false
		for _, s := range filter.Severities {
			if event.Severity == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.ResourceID != "" && event.ResourceID != filter.ResourceID {
		return false
	}
	if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
		return false
	}
	if filter.Actor != "" && event.Actor != filter.Actor {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.SuccessOnly && !event.Success {
		return false
	}
	if filter.FailedOnly && event.Success {
		return false
	}

	return true
}

// GetSummary returns statistics about audit events.
func (l *InMemoryLogger) GetSummary() *AuditSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := &AuditSummary{
		EventsByType:   make(map[EventType]int),
		EventsByAction: make(map[EventAction]int),
	}

	projectCounts := make(map[string]int)
	projectTypes := make(map[string]string)

	for _, e := range l.events {
		summary.TotalEvents++
		summary.EventsByType[e.Type]++
		summary.EventsByAction[e.Action]++

		if e.Success {
			summary.SuccessCount++
		} else {
			summary.FailureCount++
		}

		if e.ResourceID != "" {
			projectCounts[e.ResourceID]++
			projectTypes[e.ResourceID] = e.ResourceType
		}

		if summary.FirstEvent == nil || e.Timestamp.Before(*summary.FirstEvent) {
			t := e.Timestamp
			summary.FirstEvent = &t
		}
		if summary.LastEvent == nil || e.Timestamp.After(*summary.LastEvent) {
			t := e.Timestamp
			summary.LastEvent = &t
		}
	}

	for id, count := range projectCounts {
		summary.TopProjects = append(summary.TopProjects, ResourceStat{
			ResourceID:   id,
			ResourceType: projectTypes[id],
			EventCount:   count,
		})
	}
	sort.Slice(summary.TopProjects, func(i, j int) bool {
		return summary.TopProjects[i].EventCount > summary.TopProjects[j].EventCount
	})
	if len(summary.TopProjects) > 10 {
		summary.TopProjects = summary.TopProjects[:10]
	}

	return summary
}

// Export exports audit logs.
func (l *InMemoryLogger) Export() (*AuditExport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return &AuditExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Events:     events,
		Summary:    l.GetSummary(),
	}, nil
}

// Import imports audit logs, replacing current contents.
func (l *InMemoryLogger) Import(export *AuditExport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if export == nil {
		return fmt.Errorf("export cannot be nil")
	}

	l.events = make(map[string]*AuditEvent)
	for i := range export.Events {
		e := export.Events[i]
		l.events[e.ID] = &e
	}

	return nil
}

// ToJSON serializes to JSON.
func (l *InMemoryLogger) ToJSON() ([]byte, error) {
	export, err := l.Export()
	if err != nil {
		return nil, err
	}
	return json.Marshal(export)
}

// FromJSON deserializes from JSON.
func (l *InMemoryLogger) FromJSON(data []byte) error {
	var export AuditExport
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("failed to unmarshal audit log: %w", err)
	}
	return l.Import(&export)
}

// Clear removes all events.
func (l *InMemoryLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = make(map[string]*AuditEvent)
}

// Prune removes events older than before, returning the count removed.
func (l *InMemoryLogger) Prune(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for id, e := range l.events {
		if e.Timestamp.Before(before) {
			delete(l.events, id)
			count++
		}
	}
	return count
}
