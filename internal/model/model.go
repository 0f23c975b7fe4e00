package model

import "time"

type Author struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Books []Book `json:"books" db:"-"`
}

// Book is the canonical catalog entry. AuthorID references Author and is
// serialised as "author" the way the catalog API has always exposed it.
type Book struct {
	ID              int64  `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	PublicationYear int    `json:"publication_year" db:"publication_year"`
	AuthorID        int64  `json:"author" db:"author_id"`
	PublishedDate   *Date  `json:"published_date" db:"published_date"`
	ISBN            string `json:"isbn" db:"isbn"`
	Pages           *int   `json:"pages" db:"pages"`
}

type Post struct {
	ID            int64     `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Content       string    `json:"content" db:"content"`
	PublishedDate time.Time `json:"published_date" db:"published_date"`
	AuthorID      int64     `json:"author" db:"author_id"`
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	DateJoined   time.Time `json:"date_joined" db:"date_joined"`
}

type Profile struct {
	ID     int64   `json:"id" db:"id"`
	UserID int64   `json:"user" db:"user_id"`
	Bio    string  `json:"bio" db:"bio"`
	Avatar *string `json:"avatar" db:"avatar"`
}
