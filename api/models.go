package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is an opaque identifier. The server emits integers for some resources and
// strings for others, so decoding accepts both and the value is kept as text.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Hospital is one entry of a locality search.
type Hospital struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Locality string `json:"locality"`
	Address  string `json:"address"`
}

// Doctor is scoped to the hospital it was listed under.
type Doctor struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	Specialty       string `json:"specialty"`
	Ward            string `json:"ward,omitempty"`
	Qualification   string `json:"qualification,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	IsAvailable     bool   `json:"is_available"`
}

// Booking is a history item. Status vocabulary is defined by the server.
type Booking struct {
	ID          ID     `json:"id"`
	Doctor      string `json:"doctor"`
	Hospital    string `json:"hospital"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// StatusBooked is the only status that can be cancelled.
const StatusBooked = "booked"

// Cancellable reports whether the booking still exposes a cancel control.
func (b Booking) Cancellable() bool {
	return strings.EqualFold(b.Status, StatusBooked)
}

// Identity is returned by login and register.
type Identity struct {
	UserID   ID     `json:"user_id"`
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// EffectiveID prefers user_id and falls back to id.
func (i Identity) EffectiveID() ID {
	if i.UserID != "" {
		return i.UserID
	}
	return i.ID
}

// BookingRequest is the body of POST /api/book. The doctor is not sent.
type BookingRequest struct {
	HospitalID  ID     `json:"hospital_id,omitempty"`
	ScheduledAt string `json:"scheduled_at"`
	UserID      ID     `json:"user_id"`
	Note        string `json:"note,omitempty"`
}

// BookingResult carries the created appointment id under either key.
type BookingResult struct {
	AppointmentID ID     `json:"appointment_id"`
	ID            ID     `json:"id"`
	Message       string `json:"message,omitempty"`
}

// EffectiveID prefers appointment_id and falls back to id.
func (r BookingResult) EffectiveID() ID {
	if r.AppointmentID != "" {
		return r.AppointmentID
	}
	return r.ID
}

// Availability is the per-doctor booking summary.
type Availability struct {
	DoctorID    ID   `json:"doctor_id"`
	IsAvailable bool `json:"is_available"`
	BookedCount int  `json:"booked_count"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type ownerBody struct {
	UserID ID `json:"user_id"`
}

type errorBody struct {
	Error string `json:"error"`
}
