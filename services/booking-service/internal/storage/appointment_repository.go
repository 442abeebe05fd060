package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/fitbook/libs/db"
	"github.com/md-rashed-zaman/fitbook/libs/outbox"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// OutboxTable is the booking service's outbox table.
const OutboxTable = "booking_outbox_events"

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL booking store.
type Repository struct {
	queries
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{queries: queries{q: pool}, pool: pool, outbox: outboxRepo}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&repoTx{queries: queries{q: tx}, outbox: r.outbox})
	})
}

type queries struct {
	q dbtx
}

const appointmentColumns = `id::text, member_id::text, trainer_id::text, service_id::text,
	start_time, end_time, status, price::text, notes, created_at, updated_at`

const windowColumns = `id::text, trainer_id::text, weekday, start_minute, end_minute, active, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, price string
	if err := row.Scan(&a.ID, &a.MemberID, &a.TrainerID, &a.ServiceID, &a.StartTime, &a.EndTime,
		&status, &price, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Appointment{}, notFound(err)
	}
	a.Status = model.Status(status)
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s price: %w", a.ID, err)
	}
	a.Price = p
	return a, nil
}

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var w model.AvailabilityWindow
	var weekday int
	if err := row.Scan(&w.ID, &w.TrainerID, &weekday, &w.StartMinute, &w.EndMinute, &w.Active, &w.CreatedAt); err != nil {
		return model.AvailabilityWindow{}, notFound(err)
	}
	w.Weekday = time.Weekday(weekday)
	return w, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return model.ErrNotFound
	}
	return err
}

func (r queries) ActiveWindows(ctx context.Context, trainerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE trainer_id = $1 AND weekday = $2 AND active
		ORDER BY start_minute
	`, trainerID, int(weekday))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWindow)
}

func (r queries) Windows(ctx context.Context, trainerID string) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE trainer_id = $1
		ORDER BY weekday, start_minute
	`, trainerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWindow)
}

func (r queries) Occupying(ctx context.Context, trainerID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE trainer_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, trainerID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

// Service reads the catalog table maintained by salon-service.
func (r queries) Service(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	var price string
	err := r.q.QueryRow(ctx, `
		SELECT id::text, salon_id::text, name, duration_minutes, price::text, active
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.SalonID, &s.Name, &s.DurationMinutes, &price, &s.Active)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return model.Service{}, fmt.Errorf("service %s price: %w", id, err)
	}
	return s, nil
}

func (r queries) Trainers(ctx context.Context, serviceID string) ([]model.Trainer, error) {
	query := `
		SELECT t.id::text, t.salon_id::text, t.first_name, t.last_name, t.active
		FROM trainers t
		WHERE t.active
		ORDER BY t.first_name, t.last_name`
	args := []any{}
	if serviceID != "" {
		query = `
		SELECT t.id::text, t.salon_id::text, t.first_name, t.last_name, t.active
		FROM trainers t
		JOIN trainer_services ts ON ts.trainer_id = t.id
		WHERE t.active AND ts.service_id = $1
		ORDER BY t.first_name, t.last_name`
		args = append(args, serviceID)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (model.Trainer, error) {
		var t model.Trainer
		err := row.Scan(&t.ID, &t.SalonID, &t.FirstName, &t.LastName, &t.Active)
		return t, err
	})
}

func (r queries) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r queries) Appointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.MemberID != "" {
		add("member_id = $%d", f.MemberID)
	}
	if f.TrainerID != "" {
		add("trainer_id = $%d", f.TrainerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		add("status = ANY($%d)", statuses)
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}

	query := "SELECT " + appointmentColumns + " FROM appointments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY start_time ASC"
	} else {
		query += " ORDER BY start_time DESC"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r queries) History(ctx context.Context, appointmentID string) ([]model.StatusChange, error) {
	rows, err := r.q.Query(ctx, `
		SELECT appointment_id::text, COALESCE(from_status, ''), to_status, actor_id, reason, changed_at
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (model.StatusChange, error) {
		var c model.StatusChange
		var from, to string
		err := row.Scan(&c.AppointmentID, &from, &to, &c.ActorID, &c.Reason, &c.ChangedAt)
		c.From, c.To = model.Status(from), model.Status(to)
		return c, err
	})
}

func (r queries) TrainerTotals(ctx context.Context, trainerID string) (model.TrainerTotals, error) {
	var t model.TrainerTotals
	err := r.q.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'pending'),
			count(DISTINCT member_id)
		FROM appointments
		WHERE trainer_id = $1
	`, trainerID).Scan(&t.All, &t.Completed, &t.Pending, &t.Members)
	return t, err
}

type repoTx struct {
	queries
	outbox *outbox.Repository
}

// LockTrainer takes a transaction-scoped advisory lock on the trainer id.
func (t *repoTx) LockTrainer(ctx context.Context, trainerID string) error {
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, trainerID)
	return err
}

func (t *repoTx) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(t.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *repoTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments
			(id, member_id, trainer_id, service_id, start_time, end_time, status, price, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11)
	`, a.ID, a.MemberID, a.TrainerID, a.ServiceID, a.StartTime, a.EndTime, string(a.Status),
		a.Price.StringFixed(2), a.Notes, a.CreatedAt, a.UpdatedAt)
	if db.IsExclusionViolation(err) {
		return model.ErrOverlap
	}
	return err
}

func (t *repoTx) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return model.ErrOverlap
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *repoTx) AppendHistory(ctx context.Context, c model.StatusChange) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointment_status_history (appointment_id, from_status, to_status, actor_id, reason, changed_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
	`, c.AppointmentID, string(c.From), string(c.To), c.ActorID, c.Reason, c.ChangedAt)
	return err
}

func (t *repoTx) InsertWindow(ctx context.Context, w model.AvailabilityWindow) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO availability_windows (id, trainer_id, weekday, start_minute, end_minute, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.ID, w.TrainerID, int(w.Weekday), w.StartMinute, w.EndMinute, w.Active, w.CreatedAt)
	return err
}

func (t *repoTx) UpdateWindow(ctx context.Context, w model.AvailabilityWindow) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE availability_windows
		SET weekday = $3, start_minute = $4, end_minute = $5, active = $6, updated_at = now()
		WHERE id = $1 AND trainer_id = $2
	`, w.ID, w.TrainerID, int(w.Weekday), w.StartMinute, w.EndMinute, w.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *repoTx) DeleteWindow(ctx context.Context, trainerID, id string) error {
	tag, err := t.q.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE id = $1 AND trainer_id = $2
	`, id, trainerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *repoTx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.q, evt)
}

var (
	_ booking.Store = (*Repository)(nil)
	_ booking.Tx    = (*repoTx)(nil)
)
