package projections

import "github.com/shopspring/decimal"

type Stats struct {
	TotalMembers      int64
	TotalTrainers     int64
	TotalAppointments int64
	ByStatus          map[string]int64
	CompletedRevenue  decimal.Decimal
	TopTrainers       []TrainerCount
	PopularServices   []ServiceCount
}

type StatusCount struct {
	Status string
	Count  int64
}

type TrainerCount struct {
	TrainerID string
	Completed int64
}

type ServiceCount struct {
	ServiceID string
	Bookings  int64
}

// statusMap reports every known status, zero when no appointment has it.
func statusMap(counts []StatusCount) map[string]int64 {
	out := map[string]int64{
		"pending": 0, "confirmed": 0, "rejected": 0, "cancelled": 0, "completed": 0,
	}
	for _, c := range counts {
		out[c.Status] = c.Count
	}
	return out
}
