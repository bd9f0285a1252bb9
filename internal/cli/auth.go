package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("WHATIF_PASSWORD")
			}
			if password == "" {
				password, err = readLine(cmd, "Password: ")
				if err != nil {
					return err
				}
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}
			if err := rt.auth.Login(cmd.Context(), username, password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			households, err := rt.auth.ListHouseholds(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing households: %w", err)
			}
			if len(households) == 1 && rt.sess.HouseholdID() == "" {
				if err := rt.sess.SetHousehold(households[0].ID); err != nil {
					return err
				}
			}
			writeln(a.out, "Logged in as %s", username)
			if rt.sess.HouseholdID() == "" && len(households) > 1 {
				writeln(a.out, "Pick a household with: whatif households use <id>")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (or WHATIF_PASSWORD)")
	return cmd
}

func readLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := rt.sess.Clear(); err != nil {
				return err
			}
			writeln(a.out, "Logged out")
			return nil
		},
	}
}

type statusOutput struct {
	BaseURL         string     `json:"baseUrl"`
	HasToken        bool       `json:"hasToken"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	HouseholdID     string     `json:"householdId,omitempty"`
	AccessExpires   *time.Time `json:"accessExpires,omitempty"`
	Expired         bool       `json:"expired"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			p := rt.sess.Presence()
			out := statusOutput{
				BaseURL:         rt.cfg.API.BaseURL,
				HasToken:        p.HasToken,
				HasRefreshToken: p.HasRefreshToken,
				HouseholdID:     rt.sess.HouseholdID(),
			}
			if exp, ok := rt.sess.AccessExpiry(); ok {
				out.AccessExpires = &exp
				out.Expired = time.Now().After(exp)
			}
			if a.asJSON {
				return printJSON(a.out, out)
			}

			writeln(a.out, "Backend:        %s", out.BaseURL)
			writeln(a.out, "Access token:   %s", yesNo(out.HasToken))
			writeln(a.out, "Refresh token:  %s", yesNo(out.HasRefreshToken))
			if out.HouseholdID != "" {
				writeln(a.out, "Household:      %s", out.HouseholdID)
			} else {
				writeln(a.out, "Household:      none")
			}
			if out.AccessExpires != nil {
				state := "valid"
				if out.Expired {
					state = "expired, refreshed on next call"
				}
				writeln(a.out, "Access expires: %s (%s)", out.AccessExpires.Local().Format(time.RFC3339), state)
			}
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newHouseholdsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "households",
		Short: "List households or pick the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			list, err := rt.auth.ListHouseholds(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(a.out, list)
			}
			tw := table(a.out)
			fmt.Fprintln(tw, "ID\tNAME\tACTIVE")
			for _, h := range list {
				active := ""
				if h.ID == rt.sess.HouseholdID() {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", h.ID, h.Name, active)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Send requests for this household",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			if err := rt.sess.SetHousehold(args[0]); err != nil {
				return err
			}
			if err := rt.svc.Invalidate(cmd.Context(), ""); err != nil {
				return err
			}
			writeln(a.out, "Using household %s", args[0])
			return nil
		},
	})
	return cmd
}
