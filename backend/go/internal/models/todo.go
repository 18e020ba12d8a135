package models

import (
	"strings"
	"time"
)

// TaskPriority 是任务优先级。
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// ParsePriority 解析优先级，未知值返回 medium。
func ParsePriority(s string) TaskPriority {
	switch TaskPriority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Task 是待办清单中的一项。
type Task struct {
	ID        string       `bson:"id" json:"id"`
	Title     string       `bson:"title" json:"title"`
	Priority  TaskPriority `bson:"priority" json:"priority"`
	Completed bool         `bson:"completed" json:"completed"`
	Category  string       `bson:"category,omitempty" json:"category,omitempty"`
	DueDate   *time.Time   `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
}

// TodoList 是一个用户的待办清单。
type TodoList struct {
	ID        string    `bson:"-" json:"id"`
	OwnerID   string    `bson:"ownerId" json:"ownerId"`
	Name      string    `bson:"name" json:"name"`
	Emoji     string    `bson:"emoji,omitempty" json:"emoji,omitempty"`
	Tasks     []Task    `bson:"tasks" json:"tasks"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CompletedCount 返回已完成任务数。
func (l *TodoList) CompletedCount() int {
	n := 0
	for _, t := range l.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// FindTask 按ID查找任务。
func (l *TodoList) FindTask(taskID string) *Task {
	for i := range l.Tasks {
		if l.Tasks[i].ID == taskID {
			return &l.Tasks[i]
		}
	}
	return nil
}

// NewTodoList 是创建清单的参数。
type NewTodoList struct {
	Name  string
	Emoji string
	Tasks []Task
}
