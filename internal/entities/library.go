package entities

import "time"

type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"index;size:255;not null" json:"title"`
	Author          string    `gorm:"index;size:255;not null" json:"author"`
	ISBN            string    `gorm:"uniqueIndex;size:13;not null" json:"isbn"`
	PublicationDate time.Time `json:"publication_date"`
	Available       bool      `gorm:"not null;index" json:"available"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Borrower struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User        *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Name        string    `gorm:"index;size:255;not null" json:"name"`
	PhoneNumber string    `gorm:"size:15" json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Borrowing is a single loan. It is OPEN while ReturnDate is nil and CLOSED
// once ReturnDate is set; a closed loan is never reopened. The book and
// borrower references are cleared rather than cascaded when either side is
// deleted so that loan history survives.
type Borrowing struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BorrowerID *uint      `gorm:"index" json:"borrower_id"`
	Borrower   *Borrower  `gorm:"foreignKey:BorrowerID;constraint:OnDelete:SET NULL" json:"borrower,omitempty"`
	BookID     *uint      `gorm:"index" json:"book_id"`
	Book       *Book      `gorm:"foreignKey:BookID;constraint:OnDelete:SET NULL" json:"book,omitempty"`
	BorrowDate time.Time  `gorm:"index;not null" json:"borrow_date"`
	ReturnDate *time.Time `gorm:"index" json:"return_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (b *Borrowing) IsOpen() bool {
	return b.ReturnDate == nil
}
