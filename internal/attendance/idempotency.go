package attendance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// hashRequest produces a stable digest of a request body so a replayed
// event_id can be compared against the one that was first processed.
func hashRequest(req interface{}) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// idempotencyReplay is what a lookup yields: either a replayed response
// to return verbatim, a conflict, or a clean miss meaning the caller
// should proceed and persist via storeIdempotency.
type idempotencyReplay struct {
	Found    bool
	Conflict bool
	Response json.RawMessage
	Status   int
}

func checkIdempotency(ctx context.Context, repo repository.IdempotencyRepository, eventID string, scope model.IdempotencyScope, requestHash string) (idempotencyReplay, error) {
	existing, err := repo.Get(ctx, eventID, scope)
	if errors.Is(err, repository.ErrNotFound) {
		return idempotencyReplay{}, nil
	}
	if err != nil {
		return idempotencyReplay{}, err
	}
	if existing.RequestHash != requestHash {
		return idempotencyReplay{Conflict: true}, nil
	}
	return idempotencyReplay{Found: true, Response: existing.StoredResponse, Status: existing.StatusCode}, nil
}

func storeIdempotency(ctx context.Context, repo repository.IdempotencyRepository, eventID string, scope model.IdempotencyScope, requestHash string, response interface{}, statusCode int, now time.Time) error {
	b, err := json.Marshal(response)
	if err != nil {
		return err
	}
	key := &model.IdempotencyKey{
		EventID:        eventID,
		Scope:          scope,
		RequestHash:    requestHash,
		StoredResponse: b,
		StatusCode:     statusCode,
		CreatedAt:      now,
	}
	if err := repo.Put(ctx, key); err != nil && !errors.Is(err, repository.ErrConflict) {
		return err
	}
	return nil
}
