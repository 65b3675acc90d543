package specification

import "gorm.io/gorm"

// Specification narrows a gorm query. Repositories compose them instead of
// building WHERE clauses inline.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Apply runs specs over db in order.
func Apply(db *gorm.DB, specs ...Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// All combines specs into one, so optional groups can be passed around as a value.
type All []Specification

func (s All) Apply(db *gorm.DB) *gorm.DB {
	return Apply(db, s...)
}
