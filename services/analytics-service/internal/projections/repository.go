package projections

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/fitbook/libs/db"
	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	"github.com/md-rashed-zaman/fitbook/services/analytics-service/internal/inbox"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool  *db.Pool
	inbox *inbox.Repository
}

var _ Store = (*Repository)(nil)

func NewRepository(pool *db.Pool, inboxRepo *inbox.Repository) *Repository {
	return &Repository{pool: pool, inbox: inboxRepo}
}

// ApplyAppointment upserts the appointment fact. Events can arrive out of
// order across topics, so the status only moves forward in occurrence time
// and booked_at keeps the earliest occurrence seen.
func (r *Repository) ApplyAppointment(ctx context.Context, meta kafkax.EventMeta, evt AppointmentEvent) (bool, error) {
	applied := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		ok, err := r.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
		if err != nil || !ok {
			return err
		}
		applied = true
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_facts
				(appointment_id, member_id, trainer_id, service_id, status, price, start_time, end_time, booked_at, last_event_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $9)
			ON CONFLICT (appointment_id) DO UPDATE SET
				status = CASE WHEN appointment_facts.last_event_at <= EXCLUDED.last_event_at
					THEN EXCLUDED.status ELSE appointment_facts.status END,
				last_event_at = GREATEST(appointment_facts.last_event_at, EXCLUDED.last_event_at),
				booked_at = LEAST(appointment_facts.booked_at, EXCLUDED.booked_at),
				updated_at = now()
		`, evt.AppointmentID, evt.MemberID, evt.TrainerID, evt.ServiceID, evt.Status,
			evt.Price.StringFixed(2), evt.StartTime.UTC(), evt.EndTime.UTC(), evt.OccurredAt.UTC())
		if err != nil {
			return fmt.Errorf("upsert appointment fact: %w", err)
		}
		return nil
	})
	return applied, err
}

func (r *Repository) ApplyUser(ctx context.Context, meta kafkax.EventMeta, evt UserEvent) (bool, error) {
	applied := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		ok, err := r.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
		if err != nil || !ok {
			return err
		}
		applied = true
		_, err = tx.Exec(ctx, `
			INSERT INTO user_facts (user_id, role, trainer_id, created_at)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4)
			ON CONFLICT (user_id) DO NOTHING
		`, evt.UserID, evt.Role, evt.TrainerID, evt.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert user fact: %w", err)
		}
		return nil
	})
	return applied, err
}

func (r *Repository) Stats(ctx context.Context, limit int) (Stats, error) {
	var s Stats
	var revenue string
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM user_facts WHERE role = 'member'),
			(SELECT count(*) FROM user_facts WHERE role = 'trainer'),
			(SELECT count(*) FROM appointment_facts),
			(SELECT COALESCE(sum(price), 0)::text FROM appointment_facts WHERE status = 'completed')
	`).Scan(&s.TotalMembers, &s.TotalTrainers, &s.TotalAppointments, &revenue)
	if err != nil {
		return Stats{}, fmt.Errorf("totals: %w", err)
	}
	if s.CompletedRevenue, err = decimal.NewFromString(revenue); err != nil {
		return Stats{}, fmt.Errorf("parse revenue: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM appointment_facts GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("status counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[StatusCount])
	if err != nil {
		return Stats{}, fmt.Errorf("status counts: %w", err)
	}
	s.ByStatus = statusMap(counts)

	rows, err = r.pool.Query(ctx, `
		SELECT trainer_id::text, count(*)
		FROM appointment_facts
		WHERE status = 'completed'
		GROUP BY trainer_id
		ORDER BY count(*) DESC, trainer_id
		LIMIT $1
	`, limit)
	if err != nil {
		return Stats{}, fmt.Errorf("top trainers: %w", err)
	}
	if s.TopTrainers, err = pgx.CollectRows(rows, pgx.RowToStructByPos[TrainerCount]); err != nil {
		return Stats{}, fmt.Errorf("top trainers: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT service_id::text, count(*)
		FROM appointment_facts
		GROUP BY service_id
		ORDER BY count(*) DESC, service_id
		LIMIT $1
	`, limit)
	if err != nil {
		return Stats{}, fmt.Errorf("popular services: %w", err)
	}
	if s.PopularServices, err = pgx.CollectRows(rows, pgx.RowToStructByPos[ServiceCount]); err != nil {
		return Stats{}, fmt.Errorf("popular services: %w", err)
	}
	return s, nil
}
