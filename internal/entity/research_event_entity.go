package entity

import (
	"time"

	"homehub-be/internal/constant"

	"github.com/google/uuid"
)

type ResearchRunEvent struct {
	Id            uuid.UUID
	ResearchRunId uuid.UUID
	Stage         string
	Status        constant.ResearchEventStatus
	SubQuestion   *string
	Message       string
	Payload       map[string]interface{}
	CreatedAt     time.Time
}
