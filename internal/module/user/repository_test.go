package user

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simp-lee/usersvc/internal/domain"
)

// setupTestDB creates an in-memory SQLite database with the User table.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedUsers inserts n active users with strictly increasing creation times.
func seedUsers(t *testing.T, store domain.UserStore, n int) []domain.User {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := make([]domain.User, 0, n)
	for i := 1; i <= n; i++ {
		u := &domain.User{
			BaseModel: domain.BaseModel{CreatedAt: base.Add(time.Duration(i) * time.Second)},
			Name:      fmt.Sprintf("user-%02d", i),
			Email:     fmt.Sprintf("user%02d@example.com", i),
			Status:    true,
		}
		if err := store.Create(context.Background(), u); err != nil {
			t.Fatalf("Create user %d: %v", i, err)
		}
		users = append(users, *u)
	}
	return users
}

func TestCreateAndFindFirst(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	user := &domain.User{Name: "Alice", Email: "alice@example.com", Status: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		t.Fatalf("expected a UUID id after Create, got %q", user.ID)
	}

	got, err := repo.FindFirst(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if got == nil {
		t.Fatal("FindFirst returned nil for an existing user")
	}
	if got.Name != "Alice" || got.Email != "alice@example.com" || !got.Status {
		t.Errorf("got %+v; want Name=Alice, Email=alice@example.com, Status=true", got)
	}
}

func TestCreate_KeepsExplicitID(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	user := &domain.User{BaseModel: domain.BaseModel{ID: "fixed-id"}, Name: "Bob", Email: "bob@example.com"}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.ID != "fixed-id" {
		t.Errorf("ID = %q; want fixed-id", user.ID)
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	u1 := &domain.User{BaseModel: domain.BaseModel{ID: "dup"}, Name: "Alice", Email: "a@example.com"}
	if err := repo.Create(ctx, u1); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	u2 := &domain.User{BaseModel: domain.BaseModel{ID: "dup"}, Name: "Bob", Email: "b@example.com"}
	if err := repo.Create(ctx, u2); !domain.IsAlreadyExists(err) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFindFirst_MissingReturnsNil(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	got, err := repo.FindFirst(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindFirst: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil user, got %+v", got)
	}
}

func TestFindMany_PagesInCreationOrder(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	seedUsers(t, repo, 25)

	first, err := repo.FindMany(ctx, 0, 10)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(first) != 10 {
		t.Fatalf("len = %d; want 10", len(first))
	}
	if first[0].Name != "user-01" || first[9].Name != "user-10" {
		t.Errorf("first page = %s..%s; want user-01..user-10", first[0].Name, first[9].Name)
	}

	last, err := repo.FindMany(ctx, 20, 10)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(last) != 5 {
		t.Fatalf("len = %d; want 5", len(last))
	}
	if last[0].Name != "user-21" {
		t.Errorf("last page starts at %s; want user-21", last[0].Name)
	}
}

func TestFindMany_Empty(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	users, err := repo.FindMany(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("FindMany: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected no users, got %d", len(users))
	}
}

func TestCount_IncludesInactive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	users := seedUsers(t, repo, 3)

	if _, err := repo.Update(ctx, users[0].ID, map[string]any{"status": false}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 3 {
		t.Errorf("Count = %d; want 3", total)
	}
}

func TestUpdate_AppliesFieldsAndReloads(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	user := &domain.User{Name: "Alice", Email: "alice@example.com", Status: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Update(ctx, user.ID, map[string]any{"name": "Alice Updated"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Alice Updated" {
		t.Errorf("Name = %q; want Alice Updated", got.Name)
	}
	if got.Email != "alice@example.com" || !got.Status {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.ID != user.ID {
		t.Errorf("ID = %q; want %q", got.ID, user.ID)
	}
}

func TestUpdate_FalseStatusIsWritten(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	users := seedUsers(t, repo, 1)

	got, err := repo.Update(ctx, users[0].ID, map[string]any{"status": false})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status {
		t.Error("expected status false after update")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	_, err := repo.Update(context.Background(), "missing", map[string]any{"status": false})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	appErr, _ := domain.AsAppError(err)
	if appErr.Message != "record to update not found" {
		t.Errorf("Message = %q; want %q", appErr.Message, "record to update not found")
	}
}

func TestUpdate_SameValueTwice(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	users := seedUsers(t, repo, 1)

	for _, fields := range []map[string]any{
		{"status": false},
		{"name": users[0].Name},
	} {
		for i := 1; i <= 2; i++ {
			got, err := repo.Update(ctx, users[0].ID, fields)
			if err != nil {
				t.Fatalf("Update(%v) #%d: %v", fields, i, err)
			}
			if got.Status || got.Name != users[0].Name {
				t.Errorf("Update(%v) #%d = %+v", fields, i, got)
			}
		}
	}
}

func TestDirectoryRemove_OnStore(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	users := seedUsers(t, repo, 1)
	dir := NewDirectory(repo, nil, nil)

	for i := 1; i <= 2; i++ {
		got, err := dir.Remove(ctx, users[0].ID)
		if err != nil {
			t.Fatalf("Remove #%d: %v", i, err)
		}
		if got.Status {
			t.Errorf("Remove #%d: status should be false", i)
		}
	}

	stored, err := dir.FindOne(ctx, users[0].ID)
	if err != nil {
		t.Fatalf("FindOne after remove: %v", err)
	}
	if stored.Status {
		t.Error("soft-deleted user should keep status false")
	}

	_, err = dir.Remove(ctx, "missing")
	if !domain.IsNotFound(err) {
		t.Fatalf("Remove(missing) = %v; want not found", err)
	}
	if appErr, _ := domain.AsAppError(err); appErr.Message != "record to update not found" {
		t.Errorf("Message = %q; want the store message", appErr.Message)
	}
}

func TestRepository_ClosedDatabase(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	_, err := repo.Count(context.Background())
	if !domain.IsInternal(err) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"record not found", gorm.ErrRecordNotFound, domain.IsNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, domain.IsAlreadyExists},
		{"unique constraint message", fmt.Errorf("UNIQUE constraint failed: users.id"), domain.IsAlreadyExists},
		{"other", fmt.Errorf("disk I/O error"), domain.IsInternal},
		{"domain error passes through", domain.UserNotFound("x"), domain.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !tt.check(got) {
				t.Errorf("mapError(%v) = %v", tt.err, got)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}
}
