package db

import (
	"time"

	"gorm.io/gorm"
)

// Role values stored on users.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User is a library account. Password holds a bcrypt hash and is never serialized.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email" json:"email"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role      string    `gorm:"type:varchar(32);not null;default:'member'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Book is a catalog entry. Quantity is the number of copies currently on the shelf.
type Book struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_books_title_author,priority:1" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_books_title_author,priority:2" json:"author"`
	Quantity  int       `gorm:"not null;default:0;check:chk_books_quantity,quantity >= 0" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// IssuedRecord is an open loan of Qty copies of a book to a user.
type IssuedRecord struct {
	IssueID  uint      `gorm:"column:issue_id;primaryKey" json:"issue_id"`
	BookID   uint      `gorm:"column:book_id;not null;index:idx_issued_books_book" json:"book_id"`
	UserID   uint      `gorm:"column:user_id;not null;index:idx_issued_books_user" json:"user_id"`
	Qty      int       `gorm:"column:qty;not null;check:chk_issued_books_qty,qty > 0" json:"qty"`
	IssuedAt time.Time `gorm:"column:issued_at;not null" json:"issued_at"`

	Book *Book `gorm:"foreignKey:BookID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for IssuedRecord model
func (IssuedRecord) TableName() string {
	return "issued_books"
}

// BeforeCreate stamps the issue time
func (r *IssuedRecord) BeforeCreate(tx *gorm.DB) error {
	if r.IssuedAt.IsZero() {
		r.IssuedAt = time.Now().UTC()
	}
	return nil
}
