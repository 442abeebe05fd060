package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/fitbook/libs/db"
	"github.com/shopspring/decimal"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrMissingReference, err)
	}
	return err
}

const salonColumns = `id::text, name, address, phone, to_char(opens_at, 'HH24:MI'), to_char(closes_at, 'HH24:MI'),
	description, active, created_at`

func scanSalon(row pgx.Row) (Salon, error) {
	var s Salon
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.OpensAt, &s.ClosesAt, &s.Description, &s.Active, &s.CreatedAt)
	return s, err
}

func (r *Repository) ListSalons(ctx context.Context, includeInactive bool) ([]Salon, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+salonColumns+`
		FROM salons
		WHERE active OR $1
		ORDER BY name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Salon
	for rows.Next() {
		s, err := scanSalon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) CreateSalon(ctx context.Context, s Salon) (Salon, error) {
	s.ID = uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO salons (id, name, address, phone, opens_at, closes_at, description, active)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, $8)
		RETURNING `+salonColumns,
		s.ID, s.Name, s.Address, s.Phone, s.OpensAt, s.ClosesAt, s.Description, s.Active)
	created, err := scanSalon(row)
	return created, classify(err)
}

const serviceColumns = `id::text, salon_id::text, name, description, kind, duration_minutes, price::text,
	active, created_at, updated_at`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	var price string
	if err := row.Scan(&s.ID, &s.SalonID, &s.Name, &s.Description, &s.Kind, &s.DurationMinutes, &price,
		&s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Service{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Service{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	s.Price = p
	return s, nil
}

func (r *Repository) ListServices(ctx context.Context, f ServiceFilter) ([]Service, error) {
	query := "SELECT " + serviceColumns + " FROM services WHERE (active OR $1)"
	args := []any{f.IncludeInactive}
	if f.SalonID != "" {
		args = append(args, f.SalonID)
		query += " AND salon_id = $2"
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, id string) (Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	return s, classify(err)
}

func (r *Repository) CreateService(ctx context.Context, s Service) (Service, error) {
	s.ID = uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO services (id, salon_id, name, description, kind, duration_minutes, price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		RETURNING `+serviceColumns,
		s.ID, s.SalonID, s.Name, s.Description, s.Kind, s.DurationMinutes, s.Price.StringFixed(2), s.Active)
	created, err := scanService(row)
	return created, classify(err)
}

func (r *Repository) UpdateService(ctx context.Context, s Service) (Service, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE services
		SET salon_id = $2, name = $3, description = $4, kind = $5, duration_minutes = $6,
			price = $7::numeric, active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns,
		s.ID, s.SalonID, s.Name, s.Description, s.Kind, s.DurationMinutes, s.Price.StringFixed(2), s.Active)
	updated, err := scanService(row)
	return updated, classify(err)
}

// DeactivateService hides a service from new bookings. Existing
// appointments keep their snapshot of it.
func (r *Repository) DeactivateService(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE services SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const trainerColumns = `t.id::text, t.salon_id::text, t.first_name, t.last_name, t.email, t.phone, t.specialties,
	t.bio, t.active, t.created_at`

func scanTrainer(row pgx.Row) (Trainer, error) {
	var t Trainer
	err := row.Scan(&t.ID, &t.SalonID, &t.FirstName, &t.LastName, &t.Email, &t.Phone, &t.Specialties,
		&t.Bio, &t.Active, &t.CreatedAt)
	return t, err
}

func (r *Repository) ListTrainers(ctx context.Context, f TrainerFilter) ([]Trainer, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !f.IncludeInactive {
		where = append(where, "t.active")
	}
	if f.SalonID != "" {
		where = append(where, "t.salon_id = "+arg(f.SalonID))
	}
	if f.ServiceID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM trainer_services ts WHERE ts.trainer_id = t.id AND ts.service_id = "+arg(f.ServiceID)+")")
	}
	query := "SELECT " + trainerColumns + " FROM trainers t"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.first_name, t.last_name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTrainer returns the trainer with the ids of the services it offers.
func (r *Repository) GetTrainer(ctx context.Context, id string) (Trainer, error) {
	t, err := scanTrainer(r.pool.QueryRow(ctx, `SELECT `+trainerColumns+` FROM trainers t WHERE t.id = $1`, id))
	if err != nil {
		return Trainer{}, classify(err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT service_id::text FROM trainer_services WHERE trainer_id = $1 ORDER BY service_id
	`, id)
	if err != nil {
		return Trainer{}, err
	}
	t.ServiceIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Trainer{}, err
	}
	return t, nil
}

func (r *Repository) CreateTrainer(ctx context.Context, t Trainer) (Trainer, error) {
	t.ID = uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO trainers AS t (id, salon_id, first_name, last_name, email, phone, specialties, bio, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+trainerColumns,
		t.ID, t.SalonID, t.FirstName, t.LastName, t.Email, t.Phone, t.Specialties, t.Bio, t.Active)
	created, err := scanTrainer(row)
	return created, classify(err)
}

func (r *Repository) UpdateTrainer(ctx context.Context, t Trainer) (Trainer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE trainers AS t
		SET salon_id = $2, first_name = $3, last_name = $4, email = $5, phone = $6,
			specialties = $7, bio = $8, active = $9, updated_at = now()
		WHERE t.id = $1
		RETURNING `+trainerColumns,
		t.ID, t.SalonID, t.FirstName, t.LastName, t.Email, t.Phone, t.Specialties, t.Bio, t.Active)
	updated, err := scanTrainer(row)
	return updated, classify(err)
}

func (r *Repository) ToggleTrainer(ctx context.Context, id string) (Trainer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE trainers AS t
		SET active = NOT t.active, updated_at = now()
		WHERE t.id = $1
		RETURNING `+trainerColumns, id)
	t, err := scanTrainer(row)
	return t, classify(err)
}

// SetTrainerServices replaces the set of services a trainer offers.
func (r *Repository) SetTrainerServices(ctx context.Context, trainerID string, serviceIDs []string) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT true FROM trainers WHERE id = $1 FOR UPDATE
		`, trainerID).Scan(&exists); err != nil {
			return classify(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM trainer_services WHERE trainer_id = $1`, trainerID); err != nil {
			return err
		}
		for _, serviceID := range serviceIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO trainer_services (trainer_id, service_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, trainerID, serviceID); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}
