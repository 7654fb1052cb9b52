// internal/workers/communication/mail-deliver/repository.go
package maildeliver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"request-workers/internal/common/docstore"
	"request-workers/internal/models"
)

const claimQuery = `SELECT id, data FROM documents
WHERE collection = $1
  AND (
    data->'delivery' IS NULL
    OR data->'delivery'->>'state' = 'PENDING'
    OR (data->'delivery'->>'state' = 'ERROR' AND COALESCE((data->'delivery'->>'attempts')::int, 0) < $2)
    OR (data->'delivery'->>'state' = 'PROCESSING' AND updated_at < $3)
  )
ORDER BY created_at
LIMIT $4
FOR UPDATE SKIP LOCKED`

const markQuery = `UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`

type Repository interface {
	ClaimBatch(ctx context.Context, limit, maxAttempts int, leaseTimeout time.Duration) ([]ClaimedMail, error)
	LookupEmail(ctx context.Context, uid string) (string, error)
	SaveDelivery(ctx context.Context, id string, delivery models.Delivery) error
}

type PostgresRepository struct {
	store *docstore.Store
}

func NewRepository(store *docstore.Store) *PostgresRepository {
	return &PostgresRepository{store: store}
}

// ClaimBatch selects deliverable mail jobs and marks them PROCESSING in one
// transaction. Rows locked by another poller are skipped.
func (r *PostgresRepository) ClaimBatch(ctx context.Context, limit, maxAttempts int, leaseTimeout time.Duration) ([]ClaimedMail, error) {
	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	claimed, err := selectClaimable(ctx, tx, limit, maxAttempts, time.Now().UTC().Add(-leaseTimeout))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range claimed {
		delivery := models.Delivery{
			State:     models.DeliveryProcessing,
			Attempts:  claimed[i].attempts(),
			StartTime: &now,
		}
		raw, err := json.Marshal(map[string]interface{}{"delivery": delivery})
		if err != nil {
			return nil, fmt.Errorf("encode claim for %s: %w", claimed[i].ID, err)
		}
		if _, err := tx.ExecContext(ctx, markQuery, models.MailCollection, claimed[i].ID, raw); err != nil {
			return nil, fmt.Errorf("claim %s: %w", claimed[i].ID, err)
		}
		claimed[i].Job.Delivery = &delivery
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func selectClaimable(ctx context.Context, tx *sql.Tx, limit, maxAttempts int, staleBefore time.Time) ([]ClaimedMail, error) {
	rows, err := tx.QueryContext(ctx, claimQuery, models.MailCollection, maxAttempts, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("select mail jobs: %w", err)
	}
	defer rows.Close()

	var claimed []ClaimedMail
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan mail job: %w", err)
		}
		var job models.MailJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return nil, fmt.Errorf("decode mail job %s: %w", id, err)
		}
		claimed = append(claimed, ClaimedMail{ID: id, Job: job})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail jobs: %w", err)
	}
	return claimed, nil
}

// LookupEmail returns the email of users/<uid>, or "" when the user does not
// exist or has none.
func (r *PostgresRepository) LookupEmail(ctx context.Context, uid string) (string, error) {
	snap, err := r.store.Get(ctx, models.UsersCollection+"/"+uid)
	if err != nil {
		return "", err
	}
	v, ok := snap.Get("email")
	if !ok {
		return "", nil
	}
	email, _ := v.(string)
	return email, nil
}

func (r *PostgresRepository) SaveDelivery(ctx context.Context, id string, delivery models.Delivery) error {
	return r.store.Merge(ctx, models.MailCollection+"/"+id, map[string]interface{}{"delivery": delivery})
}
