package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the status of an asynchronous plan build.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task represents an asynchronous plan build. Result holds the finished
// plan steps once the build completes.
type Task struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Manager tracks asynchronous plan builds in memory. Finished tasks are
// kept until Prune removes them, so callers can poll after completion.
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex
}

// NewManager creates a new task manager.
func NewManager() *Manager {
	return &Manager{
		tasks: make(map[string]*Task),
	}
}

// NewTask creates a new task, stores it, and returns it.
func (m *Manager) NewTask() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	task := &Task{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.tasks[task.ID] = task
	return task
}

// GetTask retrieves a snapshot of a task by its ID. A copy is returned so
// callers never share memory with the goroutine driving the build.
func (m *Manager) GetTask(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task with ID '%s' not found", id)
	}
	snapshot := *task
	return &snapshot, nil
}

// UpdateStatus updates the status of a task.
func (m *Manager) UpdateStatus(id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return fmt.Errorf("task with ID '%s' not found", id)
	}
	task.Status = status
	return nil
}

// SetResult sets the successful result of a task and marks it as completed.
func (m *Manager) SetResult(id string, result interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return fmt.Errorf("task with ID '%s' not found", id)
	}
	task.Result = result
	task.Status = StatusCompleted
	task.Error = ""
	return nil
}

// SetError sets the error message for a failed task and marks it as failed.
func (m *Manager) SetError(id string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return fmt.Errorf("task with ID '%s' not found", id)
	}
	task.Error = err.Error()
	task.Status = StatusFailed
	return nil
}

// Prune drops finished tasks older than maxAge and returns how many were
// removed. Pending and processing tasks are never pruned.
func (m *Manager) Prune(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, t := range m.tasks {
		if t.Status != StatusCompleted && t.Status != StatusFailed {
			continue
		}
		if t.CreatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
