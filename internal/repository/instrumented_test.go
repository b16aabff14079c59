package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
	"github.com/classattest/attest-backend/internal/repository/memstore"
)

func TestInstrumentedPassesThroughToInnerRepository(t *testing.T) {
	inner := memstore.New()
	repo := repository.NewInstrumented(inner)
	ctx := context.Background()

	student, err := repo.Students().EnsureExists(ctx, "stu-1")
	if err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if student.StudentID != "stu-1" {
		t.Fatalf("expected the wrapped call to reach the inner repository, got %+v", student)
	}

	a := &model.Attendance{
		ID:          "att-1",
		StudentID:   "stu-1",
		ClassID:     "class-1",
		SessionDate: "2026-01-10",
		DeviceID:    "dev-1",
		Status:      model.StatusProvisional,
		CheckInTime: time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := repo.Attendance().Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Attendance().Get(ctx, "att-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.StatusProvisional {
		t.Fatalf("expected the record created through the decorator to be readable back, got %+v", got)
	}
}

func TestInstrumentedPropagatesErrors(t *testing.T) {
	inner := memstore.New()
	repo := repository.NewInstrumented(inner)

	if _, err := repo.Attendance().Get(context.Background(), "missing"); err != repository.ErrNotFound {
		t.Fatalf("expected ErrNotFound to propagate through the decorator, got %v", err)
	}
}
