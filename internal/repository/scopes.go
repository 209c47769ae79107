package repository

import "gorm.io/gorm"

// paginate limits a listing to one page. A non-positive size returns every row.
func paginate(page, size int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if size <= 0 {
			return tx
		}
		if page <= 0 {
			page = 1
		}
		return tx.Offset((page - 1) * size).Limit(size)
	}
}

func newestFirst(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at DESC").Order("id DESC")
}
