package specification

import (
	"homehub-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByResearchRunID scopes child rows to one run
type ByResearchRunID struct {
	RunID uuid.UUID
}

func (s ByResearchRunID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("research_run_id = ?", s.RunID)
}

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

type ByHouseholdID struct {
	HouseholdID uuid.UUID
}

func (s ByHouseholdID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("household_id = ?", s.HouseholdID)
}

type ByCreatedByID struct {
	UserID uuid.UUID
}

func (s ByCreatedByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_by_id = ?", s.UserID)
}

type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

type BySubQuestion struct {
	SubQuestion string
}

func (s BySubQuestion) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("sub_question = ?", s.SubQuestion)
}

// VisibleTo mirrors contract.RunScope.Allows as a query.
func VisibleTo(scope contract.RunScope) Specification {
	switch {
	case scope.All:
		return All{}
	case scope.HouseholdId != uuid.Nil:
		return ByHouseholdID{HouseholdID: scope.HouseholdId}
	default:
		return All{ByHouseholdID{HouseholdID: uuid.Nil}, ByCreatedByID{UserID: scope.UserId}}
	}
}

type ByNormalizedURL struct {
	URL string
}

func (s ByNormalizedURL) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("normalized_url = ?", s.URL)
}
