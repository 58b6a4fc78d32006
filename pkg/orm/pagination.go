package orm

import "gorm.io/gorm"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate 页码从 1 开始；limit 为空用默认值，超过上限截断
func Paginate(db *gorm.DB, page, limit int) *gorm.DB {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return db.Offset((page - 1) * limit).Limit(limit)
}
