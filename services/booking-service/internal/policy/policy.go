// Package policy decides which caller may see or change which appointment.
package policy

import (
	"github.com/md-rashed-zaman/fitbook/libs/auth"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/fitbook/services/booking-service/internal/model"
)

var trainerTargets = map[model.Status]bool{
	model.StatusConfirmed: true,
	model.StatusRejected:  true,
	model.StatusCompleted: true,
	model.StatusCancelled: true,
}

// CanTransition: admins may do anything, trainers act on their own
// appointments, members may only cancel their own.
func CanTransition(p auth.Principal, a model.Appointment, target model.Status) bool {
	switch {
	case p.IsAdmin():
		return true
	case p.IsTrainer():
		return a.TrainerID == p.TrainerID && trainerTargets[target]
	case p.IsMember():
		return a.MemberID == p.UserID && target == model.StatusCancelled
	}
	return false
}

// Guard adapts CanTransition to the booking transition hook.
func Guard(p auth.Principal) booking.Guard {
	return func(a model.Appointment, target model.Status) error {
		if !CanTransition(p, a, target) {
			return booking.ErrForbidden
		}
		return nil
	}
}

func CanView(p auth.Principal, a model.Appointment) bool {
	switch {
	case p.IsAdmin():
		return true
	case p.IsTrainer():
		return a.TrainerID == p.TrainerID
	case p.IsMember():
		return a.MemberID == p.UserID
	}
	return false
}

// Scope narrows a listing filter to what p may see. It reports false when p
// may not list appointments at all.
func Scope(p auth.Principal, f model.AppointmentFilter) (model.AppointmentFilter, bool) {
	switch {
	case p.IsAdmin():
		return f, true
	case p.IsTrainer():
		f.TrainerID = p.TrainerID
		return f, true
	case p.IsMember():
		f.MemberID = p.UserID
		return f, true
	}
	return f, false
}

// CanBook reports whether p may create appointments. Members book for
// themselves; admins may book for any member.
func CanBook(p auth.Principal) bool {
	return p.IsAdmin() || p.IsMember()
}

func CanManageWindows(p auth.Principal, trainerID string) bool {
	return p.IsAdmin() || (p.IsTrainer() && p.TrainerID == trainerID)
}
