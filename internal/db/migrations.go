package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	// Order matters: issued_books references both users and books.
	if err := db.AutoMigrate(&User{}, &Book{}, &IssuedRecord{}); err != nil {
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := createIndexes(db.DB); err != nil {
			return err
		}
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Case-insensitive substring search on title and author
		`CREATE INDEX IF NOT EXISTS idx_books_title_lower ON books (LOWER(title))`,
		`CREATE INDEX IF NOT EXISTS idx_books_author_lower ON books (LOWER(author))`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
