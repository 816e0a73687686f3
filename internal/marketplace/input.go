package marketplace

// Request bodies. Handlers bind them strictly, so unknown fields are refused
// before anything reaches the service.

type CreateTaskRequest struct {
	CategoryID          string   `json:"category_id" validate:"required,max=64"`
	Title               string   `json:"title" validate:"required,min=3,max=200"`
	Description         string   `json:"description" validate:"required,max=5000"`
	Budget              *float64 `json:"budget" validate:"omitnil,gte=0"`
	Location            Location `json:"location"`
	TaskSize            string   `json:"task_size" validate:"omitempty,oneof=small medium large"`
	Urgency             string   `json:"urgency" validate:"omitempty,oneof=flexible within_week urgent"`
	EstimatedHours      *float64 `json:"estimated_hours" validate:"omitnil,gt=0,lte=1000"`
	SpecialInstructions string   `json:"special_instructions" validate:"max=2000"`
}

type UpdateTaskRequest struct {
	CategoryID          *string     `json:"category_id" validate:"omitnil,min=1,max=64"`
	Title               *string     `json:"title" validate:"omitnil,min=3,max=200"`
	Description         *string     `json:"description" validate:"omitnil,min=1,max=5000"`
	Budget              *float64    `json:"budget" validate:"omitnil,gte=0"`
	Location            *Location   `json:"location"`
	TaskSize            *string     `json:"task_size" validate:"omitnil,oneof=small medium large"`
	Urgency             *string     `json:"urgency" validate:"omitnil,oneof=flexible within_week urgent"`
	EstimatedHours      *float64    `json:"estimated_hours" validate:"omitnil,gt=0,lte=1000"`
	SpecialInstructions *string     `json:"special_instructions" validate:"omitnil,max=2000"`
	Status              *TaskStatus `json:"status" validate:"omitnil,oneof=posted assigned in_progress completed cancelled"`
}

func (r UpdateTaskRequest) hasFieldEdits() bool {
	return r.CategoryID != nil || r.Title != nil || r.Description != nil || r.Budget != nil ||
		r.Location != nil || r.TaskSize != nil || r.Urgency != nil || r.EstimatedHours != nil ||
		r.SpecialInstructions != nil
}

type TaskFilter struct {
	CategoryID string
	Status     string
}

type ApplyRequest struct {
	Message           string   `json:"message" validate:"max=2000"`
	ProposedRate      *float64 `json:"proposed_rate" validate:"omitnil,gte=0"`
	EstimatedDuration string   `json:"estimated_duration" validate:"max=100"`
}

type UpdateApplicationRequest struct {
	Status            *ApplicationStatus `json:"status" validate:"omitnil,oneof=accepted rejected"`
	Message           *string            `json:"message" validate:"omitnil,max=2000"`
	ProposedRate      *float64           `json:"proposed_rate" validate:"omitnil,gte=0"`
	EstimatedDuration *string            `json:"estimated_duration" validate:"omitnil,max=100"`
}

func (r UpdateApplicationRequest) hasFieldEdits() bool {
	return r.Message != nil || r.ProposedRate != nil || r.EstimatedDuration != nil
}

type SendMessageRequest struct {
	Content     string      `json:"content" validate:"required,max=4000"`
	MessageType MessageType `json:"message_type" validate:"omitempty,oneof=text image system"`
}
