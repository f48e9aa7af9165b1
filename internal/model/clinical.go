package model

import "time"

// The types below are the loaded shapes the ownership rules read. Only the
// fields that matter for ownership and auditing are modelled.

type Patient struct {
	ID int64 `db:"id" json:"id"`
	// UserID is nil until the patient registers a login.
	UserID    *int64    `db:"user_id" json:"user_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Clinician struct {
	ID     int64  `db:"id" json:"id"`
	UserID *int64 `db:"user_id" json:"user_id,omitempty"`
	Name   string `db:"name" json:"name"`
}

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCheckedIn AppointmentStatus = "checked_in"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

type Appointment struct {
	ID        int64             `db:"id" json:"id"`
	Patient   Patient           `db:"-" json:"patient"`
	Clinician Clinician         `db:"-" json:"clinician"`
	StartTime time.Time         `db:"start_time" json:"start_time"`
	Status    AppointmentStatus `db:"status" json:"status"`
}

type Prescription struct {
	ID         int64     `db:"id" json:"id"`
	Patient    Patient   `db:"-" json:"patient"`
	Medication string    `db:"medication" json:"medication"`
	Dosage     string    `db:"dosage" json:"dosage"`
	IssuedAt   time.Time `db:"issued_at" json:"issued_at"`
}

type Invoice struct {
	ID          int64   `db:"id" json:"id"`
	Patient     Patient `db:"-" json:"patient"`
	AmountCents int64   `db:"amount_cents" json:"amount_cents"`
	Paid        bool    `db:"paid" json:"paid"`
}

type MedicalHistoryEntry struct {
	ID        int64     `db:"id" json:"id"`
	Patient   Patient   `db:"-" json:"patient"`
	Condition string    `db:"condition" json:"condition"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	Recorded  time.Time `db:"recorded_at" json:"recorded_at"`
}

type Surgery struct {
	ID          int64      `db:"id" json:"id"`
	Patient     Patient    `db:"-" json:"patient"`
	Surgeon     Clinician  `db:"-" json:"surgeon"`
	Procedure   string     `db:"procedure" json:"procedure"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	PerformedAt *time.Time `db:"performed_at" json:"performed_at,omitempty"`
}

type Room struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Equipment struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	RoomID *int64 `db:"room_id" json:"room_id,omitempty"`
}
