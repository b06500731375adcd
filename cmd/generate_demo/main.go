// Command generate_demo creates a demo database with staff, borrowers and a
// small catalog of public domain books, some of them out on loan.
// Usage: go run cmd/generate_demo/main.go [-db path/to/demo.db]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

const (
	defaultDemoDatabasePath = "./demo/demo.db"
	demoPassword            = "librarian-demo"
)

type demoAccount struct {
	Username string
	Role     entities.UserRole
	// Borrower name; empty for accounts without a borrower record
	Borrower string
	Phone    string
}

type demoLoan struct {
	Username string
	ISBN     string
	Returned bool
}

func main() {
	dbPath := flag.String("db", defaultDemoDatabasePath, "path to the demo database file")
	flag.Parse()

	log.Printf("Generating demo database at %s...", *dbPath)

	// Delete existing demo database to start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing demo database: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("Failed to create demo directory: %v", err)
	}

	db, err := database.NewSQLite(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	authService := auth.NewService(db.DB, config.Auth{BcryptCost: 10})
	policy := library.NewPolicy(capabilities.NewRepository(db.DB))
	catalog := library.NewCatalog(db.DB)
	registry := library.NewRegistry(db.DB)
	ledger := library.NewLedger(db.DB, policy)

	principals := make(map[string]library.Principal)
	for _, account := range demoAccounts() {
		user, err := authService.CreateUser(account.Username, account.Username+"@demo.example.com", demoPassword, account.Role)
		if err != nil {
			log.Fatalf("Failed to create user %s: %v", account.Username, err)
		}
		principals[account.Username] = library.PrincipalFromUser(user)
		log.Printf("User: %s (%s)", user.Username, user.Role)

		if account.Borrower == "" {
			continue
		}
		if _, err := registry.CreateBorrower(ctx, library.BorrowerInput{UserID: user.ID, Name: account.Borrower, PhoneNumber: account.Phone}); err != nil {
			log.Fatalf("Failed to register borrower %s: %v", account.Borrower, err)
		}
	}

	books := make(map[string]*entities.Book)
	for _, in := range publicDomainBooks() {
		book, err := catalog.CreateBook(ctx, in)
		if err != nil {
			log.Printf("Failed to save book %s: %v", in.Title, err)
			continue
		}
		books[book.ISBN] = book
		log.Printf("Saved: %s by %s", book.Title, book.Author)
	}

	// Loans go through the ledger so the availability flags stay consistent
	librarian := principals["librarian"]
	for _, loan := range demoLoans() {
		book, ok := books[loan.ISBN]
		if !ok {
			continue
		}
		borrowing, err := ledger.BorrowBook(ctx, librarian, book.ID, loan.Username)
		if err != nil {
			log.Printf("Failed to lend %s to %s: %v", book.Title, loan.Username, err)
			continue
		}
		if loan.Returned {
			if _, err := ledger.ReturnBook(ctx, principals[loan.Username], borrowing.ID); err != nil {
				log.Printf("Failed to return %s: %v", book.Title, err)
			}
		}
	}

	log.Printf("Demo database generated successfully! Every account uses the password %q", demoPassword)
}

func demoAccounts() []demoAccount {
	return []demoAccount{
		{Username: "admin", Role: entities.UserRoleAdmin},
		{Username: "librarian", Role: entities.UserRoleLibrarian},
		{Username: "alice", Role: entities.UserRoleMember, Borrower: "Alice Liddell", Phone: "555-0101"},
		{Username: "bob", Role: entities.UserRoleMember, Borrower: "Bob Cratchit", Phone: "555-0102"},
		{Username: "emma", Role: entities.UserRoleMember, Borrower: "Emma Woodhouse", Phone: "555-0103"},
		{Username: "visitor", Role: entities.UserRoleMember},
	}
}

func publicDomainBooks() []library.BookInput {
	date := func(year int, month time.Month, day int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return []library.BookInput{
		{Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "9780141439518", PublicationDate: date(1813, time.January, 28)},
		{Title: "Emma", Author: "Jane Austen", ISBN: "9780141439587", PublicationDate: date(1815, time.December, 23)},
		{Title: "Frankenstein", Author: "Mary Shelley", ISBN: "9780141439471", PublicationDate: date(1818, time.January, 1)},
		{Title: "Moby-Dick", Author: "Herman Melville", ISBN: "9780142437247", PublicationDate: date(1851, time.October, 18)},
		{Title: "A Christmas Carol", Author: "Charles Dickens", ISBN: "9780141324524", PublicationDate: date(1843, time.December, 19)},
		{Title: "Alice's Adventures in Wonderland", Author: "Lewis Carroll", ISBN: "9780141439761", PublicationDate: date(1865, time.November, 26)},
		{Title: "The Adventures of Sherlock Holmes", Author: "Arthur Conan Doyle", ISBN: "9780140439076", PublicationDate: date(1892, time.October, 14)},
		{Title: "Dracula", Author: "Bram Stoker", ISBN: "9780141439846", PublicationDate: date(1897, time.May, 26)},
		{Title: "The Time Machine", Author: "H. G. Wells", ISBN: "9780141439976", PublicationDate: date(1895, time.May, 7)},
		{Title: "Meditations", Author: "Marcus Aurelius", ISBN: "9780140449334", PublicationDate: date(180, time.January, 1)},
	}
}

func demoLoans() []demoLoan {
	return []demoLoan{
		{Username: "alice", ISBN: "9780141439761"},
		{Username: "alice", ISBN: "9780141439846", Returned: true},
		{Username: "bob", ISBN: "9780141324524"},
		{Username: "bob", ISBN: "9780142437247", Returned: true},
		{Username: "emma", ISBN: "9780141439587"},
		{Username: "emma", ISBN: "9780141439518", Returned: true},
	}
}
