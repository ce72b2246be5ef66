package cli

import (
	"fmt"
	"io"
	"strings"

	"hospital-appointments/api"
	"hospital-appointments/auth"
	"hospital-appointments/booking"
	"hospital-appointments/history"
)

func renderHospitals(w io.Writer, locality string, hospitals []api.Hospital) {
	if len(hospitals) == 0 {
		fmt.Fprintf(w, "No hospitals found in '%s'.\n", locality)
		return
	}
	fmt.Fprintf(w, "Found %d hospital(s) in '%s':\n", len(hospitals), locality)
	fmt.Fprintf(w, "%-6s %-32s %-18s %s\n", "ID", "Name", "Locality", "Address")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, h := range hospitals {
		fmt.Fprintf(w, "%-6s %-32s %-18s %s\n",
			h.ID, truncateString(h.Name, 32), truncateString(h.Locality, 18), h.Address)
	}
}

func renderDoctors(w io.Writer, hospital api.Hospital, doctors []api.Doctor) {
	name := hospital.Name
	if name == "" {
		name = "hospital " + hospital.ID.String()
	}
	if len(doctors) == 0 {
		fmt.Fprintf(w, "No doctors listed at %s.\n", name)
		return
	}
	fmt.Fprintf(w, "Doctors at %s:\n", name)
	fmt.Fprintf(w, "%-6s %-26s %-20s %-10s %s\n", "ID", "Name", "Specialty", "Available", "Experience")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, d := range doctors {
		avail := "Yes"
		if !d.IsAvailable {
			avail = "No"
		}
		exp := ""
		if d.ExperienceYears > 0 {
			exp = fmt.Sprintf("%d yrs", d.ExperienceYears)
		}
		fmt.Fprintf(w, "%-6s %-26s %-20s %-10s %s\n",
			d.ID, truncateString(d.Name, 26), truncateString(d.Specialty, 20), avail, exp)
	}
}

func renderHistory(w io.Writer, v history.View) {
	if v.Placeholder != history.Listed {
		fmt.Fprintln(w, v.Placeholder.Message())
		return
	}
	fmt.Fprintf(w, "%-6s %-24s %-26s %-22s %-10s %s\n", "ID", "Doctor", "Hospital", "When", "Status", "")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range v.Entries {
		b := e.Booking
		action := ""
		switch {
		case e.Busy:
			action = "(cancelling…)"
		case e.CanCancel():
			action = "[cancel " + b.ID.String() + "]"
		}
		fmt.Fprintf(w, "%-6s %-24s %-26s %-22s %-10s %s\n",
			b.ID, truncateString(b.Doctor, 24), truncateString(b.Hospital, 26), b.ScheduledAt, b.Status, action)
	}
	if v.Err != "" {
		fmt.Fprintf(w, "Error: %s\n", v.Err)
	}
}

func renderHeader(w io.Writer, st auth.HeaderState, username string) {
	if st.Href == "" {
		fmt.Fprintf(w, "[%s] not signed in\n", st.Label)
		return
	}
	fmt.Fprintf(w, "[%s] %s → %s\n", st.Label, username, st.Href)
}

func renderBooking(w io.Writer, st booking.Status) {
	switch st.State {
	case booking.Idle:
		fmt.Fprintf(w, "Book %s at %s\n", st.Target.DoctorName, st.Target.HospitalName)
	default:
		if st.Message != "" {
			fmt.Fprintln(w, st.Message)
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
