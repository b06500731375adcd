package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

func useTempDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "librarian.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", path)
	t.Setenv("AUTH_BCRYPT_COST", "4")
	return path
}

func TestCreateUserCommand(t *testing.T) {
	path := useTempDatabase(t)

	var out bytes.Buffer
	cmd := NewCreateUserCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--username", "ann", "--email", "ann@example.com", "--role", "Librarian", "--password", "correct horse battery"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `Created librarian "ann"`)

	db, err := database.NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	var user entities.User
	require.NoError(t, db.DB.Where("username = ?", "ann").First(&user).Error)
	assert.Equal(t, entities.UserRoleLibrarian, user.Role)
	assert.NotEmpty(t, user.PasswordHash)
}

func TestCreateUserCommand_PromptsForPassword(t *testing.T) {
	useTempDatabase(t)

	prompts := 0
	c := &CreateUserCommand{readPassword: func(prompt string) (string, error) {
		prompts++
		return "correct horse battery", nil
	}}
	cmd := newCreateUserCommand(c)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--username", "root", "--email", "root@example.com", "--role", "admin"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, 2, prompts)
}

func TestCreateUserCommand_Errors(t *testing.T) {
	useTempDatabase(t)

	t.Run("unknown role", func(t *testing.T) {
		cmd := NewCreateUserCommand()
		cmd.SetArgs([]string{"--username", "x", "--email", "x@example.com", "--role", "janitor", "--password", "correct horse battery"})
		assert.ErrorContains(t, cmd.Execute(), "unknown role")
	})

	t.Run("mismatched confirmation", func(t *testing.T) {
		answers := []string{"correct horse battery", "something else entirely"}
		c := &CreateUserCommand{readPassword: func(string) (string, error) {
			answer := answers[0]
			answers = answers[1:]
			return answer, nil
		}}
		cmd := newCreateUserCommand(c)
		cmd.SetArgs([]string{"--username", "y", "--email", "y@example.com"})
		assert.ErrorContains(t, cmd.Execute(), "passwords do not match")
	})

	t.Run("prompt failure", func(t *testing.T) {
		c := &CreateUserCommand{readPassword: func(string) (string, error) {
			return "", errors.New("not a terminal")
		}}
		cmd := newCreateUserCommand(c)
		cmd.SetArgs([]string{"--username", "z", "--email", "z@example.com"})
		assert.ErrorContains(t, cmd.Execute(), "not a terminal")
	})

	t.Run("missing username", func(t *testing.T) {
		cmd := NewCreateUserCommand()
		cmd.SetArgs([]string{"--email", "w@example.com"})
		assert.Error(t, cmd.Execute())
	})
}

type reconcileFixture struct {
	db     *database.Database
	ledger *library.Ledger
	audit  *audit.Service
	book   *entities.Book
}

func setupReconcile(t *testing.T) *reconcileFixture {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy := library.NewPolicy(capabilities.NewRepository(db.DB))
	book, err := library.NewCatalog(db.DB).CreateBook(context.Background(), library.BookInput{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            "9780441013593",
		PublicationDate: time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	return &reconcileFixture{
		db:     db,
		ledger: library.NewLedger(db.DB, policy),
		audit:  audit.NewService(auditRepo.NewRepository(db.DB)),
		book:   book,
	}
}

func (f *reconcileFixture) breakFlag(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.DB.Model(&entities.Book{}).Where("id = ?", f.book.ID).Update("available", false).Error)
}

func TestReconcileCommand_NoDrift(t *testing.T) {
	f := setupReconcile(t)

	var out bytes.Buffer
	err := (&ReconcileCommand{}).Run(context.Background(), f.ledger, nil, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "All availability flags match")
}

func TestReconcileCommand_CheckThenRepair(t *testing.T) {
	f := setupReconcile(t)
	f.breakFlag(t)

	var out bytes.Buffer
	require.NoError(t, (&ReconcileCommand{}).Run(context.Background(), f.ledger, f.audit, &out))
	assert.Contains(t, out.String(), "Dune")
	assert.Contains(t, out.String(), "1 book(s) out of sync")

	out.Reset()
	require.NoError(t, (&ReconcileCommand{Repair: true}).Run(context.Background(), f.ledger, f.audit, &out))
	assert.Contains(t, out.String(), "Repaired 1 book(s).")

	drift, err := f.ledger.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)

	f.audit.Wait()
	events, total, err := f.audit.GetEvents(auditRepo.EventFilter{EventType: entities.AuditEventMaintenance})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, events, 2)
}

func TestReconcileCommand_WritesReport(t *testing.T) {
	f := setupReconcile(t)
	f.breakFlag(t)
	dir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, (&ReconcileCommand{Repair: true, ReportDir: dir}).Run(context.Background(), f.ledger, nil, &out))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "availability_repair-")
	assert.Contains(t, out.String(), "Report: "+entries[0].Name())
}

type failingLedger struct{}

func (failingLedger) CheckAvailability(context.Context) ([]library.AvailabilityDrift, error) {
	return nil, errors.New("database is locked")
}

func (failingLedger) RepairAvailability(context.Context) ([]library.AvailabilityDrift, error) {
	return nil, errors.New("database is locked")
}

func TestReconcileCommand_Failure(t *testing.T) {
	err := (&ReconcileCommand{}).Run(context.Background(), failingLedger{}, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "database is locked")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Dune", truncate("Dune", 40))
	assert.Equal(t, "Chil…", truncate("Children of Dune", 5))
}
