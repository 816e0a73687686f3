package marketplace

import (
	"time"

	"github.com/sudo-init-do/skillhub/internal/user"
)

type TaskStatus string

const (
	TaskPosted     TaskStatus = "posted"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPosted, TaskAssigned, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

type Location struct {
	Address string `json:"address" validate:"max=200"`
	City    string `json:"city" validate:"max=100"`
	State   string `json:"state" validate:"max=100"`
	ZipCode string `json:"zip_code" validate:"max=20"`
}

// Task is a unit of work posted by a customer. TaskerID is nil exactly while
// the task is posted.
type Task struct {
	ID                  string     `json:"id"`
	CustomerID          string     `json:"customer_id"`
	TaskerID            *string    `json:"tasker_id"`
	CategoryID          string     `json:"category_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Budget              *float64   `json:"budget"`
	Location            Location   `json:"location"`
	TaskSize            string     `json:"task_size"`
	Urgency             string     `json:"urgency"`
	EstimatedHours      *float64   `json:"estimated_hours"`
	SpecialInstructions string     `json:"special_instructions"`
	Status              TaskStatus `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at"`
}

// IsParticipant reports whether userID is the customer or the assigned tasker.
func (t Task) IsParticipant(userID string) bool {
	return t.CustomerID == userID || t.IsAssignedTo(userID)
}

func (t Task) IsAssignedTo(userID string) bool {
	return t.TaskerID != nil && *t.TaskerID == userID
}

// Application is a tasker's bid on a posted task.
type Application struct {
	ID                string            `json:"id"`
	TaskID            string            `json:"task_id"`
	TaskerID          string            `json:"tasker_id"`
	Message           string            `json:"message"`
	ProposedRate      *float64          `json:"proposed_rate"`
	EstimatedDuration string            `json:"estimated_duration"`
	Status            ApplicationStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type Message struct {
	ID          string      `json:"id"`
	TaskID      string      `json:"task_id"`
	SenderID    string      `json:"sender_id"`
	ReceiverID  string      `json:"receiver_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
	ReadAt      *time.Time  `json:"read_at"`
}

// TaskSummary is a task as listed, with its application count and parties.
type TaskSummary struct {
	Task
	ApplicationsCount int                 `json:"applications_count"`
	CustomerProfile   *user.PublicProfile `json:"customer_profile"`
	TaskerProfile     *user.PublicProfile `json:"tasker_profile"`
}

// TaskDetail adds the full application list to a summary.
type TaskDetail struct {
	TaskSummary
	Applications []ApplicationView `json:"applications"`
}

type ApplicationView struct {
	Application
	TaskerProfile *user.ApplicantProfile `json:"tasker_profile"`
}

type MessageView struct {
	Message
	SenderProfile *user.PublicProfile `json:"sender_profile"`
}
