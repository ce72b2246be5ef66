package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hospital-appointments/api"
	"hospital-appointments/history"
	"hospital-appointments/theme"
)

func newShellCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with live search and booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newShell(rt).run(cmd.Context())
		},
	}
}

func newSearchCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "search <locality>",
		Short: "List hospitals in a locality",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			locality := strings.TrimSpace(strings.Join(args, " "))
			hospitals, err := rt.app.Directory.SearchHospitals(cmd.Context(), locality)
			if err != nil {
				return err
			}
			renderHospitals(rt.out, locality, hospitals)
			return nil
		},
	}
}

func newDoctorsCommand(rt *runtime) *cobra.Command {
	var locality string
	cmd := &cobra.Command{
		Use:   "doctors <hospital-id>",
		Short: "List the doctors at a hospital",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := rt.selectHospital(cmd, api.ID(args[0]), locality)
			if err != nil {
				return err
			}
			renderDoctors(rt.out, h, rt.app.Directory.State().Doctors)
			return nil
		},
	}
	cmd.Flags().StringVar(&locality, "locality", "", "search this locality first to show the hospital's name")
	return cmd
}

func newAvailabilityCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "availability <doctor-id>",
		Short: "Show whether a doctor takes bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			av, err := rt.app.Directory.Availability(cmd.Context(), api.ID(args[0]))
			if err != nil {
				return err
			}
			state := "not available"
			if av.IsAvailable {
				state = "available"
			}
			fmt.Fprintf(rt.out, "Doctor %s is %s (%d booked)\n", av.DoctorID, state, av.BookedCount)
			return nil
		},
	}
}

func newBookCommand(rt *runtime) *cobra.Command {
	var hospitalID, doctorID, at, note, locality string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment with a doctor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.selectHospital(cmd, api.ID(hospitalID), locality); err != nil {
				return err
			}
			if err := rt.app.OpenBooking(api.ID(doctorID)); err != nil {
				return err
			}
			rt.app.BookingForm.Date.SetValue(at)
			rt.app.BookingForm.Note.SetValue(note)

			st, err := rt.app.SubmitBooking(cmd.Context())
			if err != nil {
				return errors.New(st.Message)
			}
			renderBooking(rt.out, st)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&hospitalID, "hospital", "", "hospital id")
	f.StringVar(&doctorID, "doctor", "", "doctor id")
	f.StringVar(&at, "at", "", "date and time, e.g. 2024-01-01T10:00:00Z")
	f.StringVar(&note, "note", "", "optional note for the doctor")
	f.StringVar(&locality, "locality", "", "search this locality first to resolve the hospital's name")
	cmd.MarkFlagRequired("hospital")
	cmd.MarkFlagRequired("doctor")
	return cmd
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A failed fetch is shown as a placeholder, not an error.
			rt.app.History.Refresh(cmd.Context(), rt.app.Sessions.Get().UserID)
			renderHistory(rt.out, rt.app.History.View())
			return nil
		},
	}
}

func newCancelCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <booking-id>",
		Short: "Cancel one of your bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := rt.app.Sessions.Get()
			if !sess.Active() {
				return errors.New(history.MsgSignedOut)
			}
			if err := rt.app.History.Refresh(cmd.Context(), sess.UserID); err != nil {
				return fmt.Errorf("load bookings: %w", err)
			}
			if err := rt.app.History.Cancel(cmd.Context(), api.ID(args[0])); err != nil {
				return err
			}
			renderHistory(rt.out, rt.app.History.View())
			return nil
		},
	}
}

func newClearHistoryCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Remove all of your bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := rt.app.Sessions.Get()
			if !sess.Active() {
				return errors.New(history.MsgSignedOut)
			}
			if err := rt.app.History.ClearAll(cmd.Context(), sess.UserID); err != nil {
				return err
			}
			renderHistory(rt.out, rt.app.History.View())
			return nil
		},
	}
}

func newLoginCommand(rt *runtime, register bool) *cobra.Command {
	use, short := "login [username]", "Sign in"
	if register {
		use, short = "register [username]", "Create an account"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var username string
			if len(args) == 1 {
				username = args[0]
			} else {
				username, _ = rt.in.line("Username: ")
			}
			password, err := rt.in.readPassword("Password: ")
			if err != nil {
				return err
			}

			if register {
				_, err = rt.app.Auth.Register(cmd.Context(), username, password)
			} else {
				_, err = rt.app.Auth.Login(cmd.Context(), username, password)
			}
			if err != nil {
				return errors.New(rt.app.Auth.Status().Message)
			}
			fmt.Fprintln(rt.out, rt.app.Auth.Status().Message)
			return nil
		},
	}
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sent, err := rt.app.Logout(cmd.Context())
			if err != nil {
				return err
			}
			// The process exits next; let the request go out first.
			select {
			case <-sent:
			case <-cmd.Context().Done():
			}
			fmt.Fprintln(rt.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderHeader(rt.out, rt.app.Header.State(), rt.app.Sessions.Get().Username)
			return nil
		},
	}
}

func newThemeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [toggle|light|dark]",
		Short:     "Show or change the colour theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"toggle", "light", "dark"},
		RunE: func(cmd *cobra.Command, args []string) error {
			t := rt.app.Theme.Current()
			var err error
			if len(args) == 1 {
				switch args[0] {
				case "toggle":
					t, err = rt.app.Theme.Toggle()
				default:
					t, err = rt.app.Theme.Set(theme.Theme(args[0]))
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "Theme: %s %s\n", t, t.Next().Icon())
			return nil
		},
	}
}

// selectHospital makes id the directory's selected hospital and loads its
// doctors. With a locality the hospital is looked up first so its name is
// known.
func (rt *runtime) selectHospital(cmd *cobra.Command, id api.ID, locality string) (api.Hospital, error) {
	h := api.Hospital{ID: id}
	if locality != "" {
		if _, err := rt.app.Directory.SearchHospitals(cmd.Context(), locality); err != nil {
			return h, err
		}
		found, ok := rt.app.Directory.FindHospital(id)
		if !ok {
			return h, api.NewValidationError("hospital", fmt.Sprintf("hospital %s is not in %s", id, locality))
		}
		h = found
	}
	if _, err := rt.app.Directory.SelectHospital(cmd.Context(), h); err != nil {
		return h, err
	}
	return h, nil
}
