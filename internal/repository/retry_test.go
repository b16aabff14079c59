package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
	"github.com/classattest/attest-backend/internal/repository/memstore"
)

var errFlaky = errors.New("connection reset")

// flakyRepo delegates to memstore but fails the first N student lookups
// with errFlaky.
type flakyRepo struct {
	repository.Repository
	remaining int
	calls     int
}

func (f *flakyRepo) Students() repository.StudentRepository {
	return &flakyStudents{inner: f.Repository.Students(), f: f}
}

type flakyStudents struct {
	repository.StudentRepository
	inner repository.StudentRepository
	f     *flakyRepo
}

func (s *flakyStudents) GetByStudentID(ctx context.Context, studentID string) (*model.Student, error) {
	s.f.calls++
	if s.f.remaining > 0 {
		s.f.remaining--
		return nil, errFlaky
	}
	return s.inner.GetByStudentID(ctx, studentID)
}

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestRetryingRetriesOnceOnTransientError(t *testing.T) {
	inner := memstore.New()
	if _, err := inner.Students().EnsureExists(context.Background(), "stu-1"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	flaky := &flakyRepo{Repository: inner, remaining: 1}
	repo := repository.NewRetrying(flaky, isFlaky, time.Second, time.Millisecond)

	got, err := repo.Students().GetByStudentID(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("expected the retry to recover from one transient failure, got %v", err)
	}
	if got.StudentID != "stu-1" {
		t.Fatalf("expected the retried call to reach the inner repository, got %+v", got)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", flaky.calls)
	}
}

func TestRetryingGivesUpAfterSecondTransientFailure(t *testing.T) {
	inner := memstore.New()
	flaky := &flakyRepo{Repository: inner, remaining: 2}
	repo := repository.NewRetrying(flaky, isFlaky, time.Second, time.Millisecond)

	if _, err := repo.Students().GetByStudentID(context.Background(), "stu-1"); !errors.Is(err, errFlaky) {
		t.Fatalf("expected the second transient failure to surface, got %v", err)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected no third attempt, got %d calls", flaky.calls)
	}
}

func TestRetryingDoesNotRetryDomainErrors(t *testing.T) {
	inner := memstore.New()
	flaky := &flakyRepo{Repository: inner}
	repo := repository.NewRetrying(flaky, isFlaky, time.Second, time.Millisecond)

	if _, err := repo.Students().GetByStudentID(context.Background(), "missing"); err != repository.ErrNotFound {
		t.Fatalf("expected ErrNotFound to pass through unretried, got %v", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("expected a single attempt for a non-transient error, got %d", flaky.calls)
	}
}
