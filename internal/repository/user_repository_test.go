package repository

import (
	"sync"
	"testing"

	"github.com/aimd54/sales-quest/internal/models"
)

func TestUserRepository_CreateOrUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	user := &models.User{ExternalID: "sub-1", Username: "alice", Email: "alice@example.com", Team: "north"}
	if err := repo.CreateOrUpdate(user); err != nil {
		t.Fatalf("CreateOrUpdate() error = %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	again := &models.User{ExternalID: "sub-1", Username: "alice", Email: "alice@corp.example", Team: "south"}
	if err := repo.CreateOrUpdate(again); err != nil {
		t.Fatalf("CreateOrUpdate() second call error = %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("expected same ID %d, got %d", user.ID, again.ID)
	}

	stored, err := repo.GetByExternalID("sub-1")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if stored.Team != "south" || stored.Email != "alice@corp.example" {
		t.Errorf("profile not refreshed: %+v", stored)
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestUserRepository_UpsertAfterLostInsertRace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	// Another request created the row after our lookup missed it.
	first := createTestUser(t, db, "alice", "north")

	late := &models.User{ExternalID: first.ExternalID, Username: "alice", Email: "alice@example.com", Team: "south"}
	if err := repo.upsert(late); err != nil {
		t.Fatalf("upsert() error = %v", err)
	}
	if late.ID != first.ID {
		t.Errorf("expected existing ID %d, got %d", first.ID, late.ID)
	}
	if late.Team != "south" {
		t.Errorf("expected team refreshed to south, got %s", late.Team)
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestUserRepository_CreateOrUpdateConcurrentFirstLogin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	const workers = 8
	ids := make([]uint, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := &models.User{ExternalID: "sub-new", Username: "newbie", Team: "north"}
			errs[i] = repo.CreateOrUpdate(user)
			ids[i] = user.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: CreateOrUpdate() error = %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got ID %d, want %d", i, ids[i], ids[0])
		}
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestUserRepository_ListAndGetByIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	a := createTestUser(t, db, "alice", "north")
	b := createTestUser(t, db, "bob", "south")
	createTestUser(t, db, "carol", "north")

	north, err := repo.List("north")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(north) != 2 {
		t.Errorf("expected 2 users in north, got %d", len(north))
	}

	all, err := repo.List("")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 users, got %d", len(all))
	}

	byID, err := repo.GetByIDs([]uint{a.ID, b.ID, 999})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(byID) != 2 || byID[b.ID].Username != "bob" {
		t.Errorf("unexpected GetByIDs result: %+v", byID)
	}
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	if _, err := repo.GetByID(42); err == nil {
		t.Error("expected error for missing user")
	}
}
