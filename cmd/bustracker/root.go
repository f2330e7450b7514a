package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bus-tracker/internal/auth"
	"bus-tracker/internal/config"
	"bus-tracker/internal/db"
	"bus-tracker/internal/fleetapi"
	"bus-tracker/internal/log"
	"bus-tracker/internal/session"
)

// env bundles what every subcommand needs after startup.
type env struct {
	cfg   *config.Config
	api   *fleetapi.Client
	conn  *sql.DB
	store *session.SQLStore
}

func newRootCommand() *cobra.Command {
	logOpts := log.NewOptions()
	var e env

	root := &cobra.Command{
		Use:          "bustracker",
		Short:        "Bus fleet tracker: driver location reporting and live fleet map.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			// Environment sets the log level unless a flag overrides it.
			if !cmd.Flags().Changed("log.level") {
				logOpts.Level = cfg.LogLevel
			}
			if !cmd.Flags().Changed("log.format") {
				logOpts.Format = cfg.LogFormat
			}
			logOpts.Name = "bustracker"
			log.Init(logOpts)

			conn, dialect, err := db.Open(cfg.SessionDSN)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			if err := db.Ping(cmd.Context(), conn); err != nil {
				conn.Close()
				return fmt.Errorf("ping session store: %w", err)
			}
			store := session.NewSQLStore(conn, dialect, cfg.SessionKey)
			if err := store.Migrate(cmd.Context()); err != nil {
				conn.Close()
				return err
			}
			e = env{cfg: cfg, api: fleetapi.New(cfg.FleetAPIURL, cfg.HTTPTimeout), conn: conn, store: store}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.conn != nil {
				e.conn.Close()
			}
		},
	}
	logOpts.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(&e),
		newLoginCommand(&e),
		newLogoutCommand(&e),
		newZonesCommand(&e),
	)
	return root
}

func (e *env) auth() *auth.Service {
	return auth.New(e.api, e.store, e.cfg.SuperAdminPassword)
}

func newLoginCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "login", Short: "Log in and store the session on this device."}

	var zone, password string
	var busID int
	driver := &cobra.Command{
		Use:   "driver",
		Short: "Log in as the driver of a bus.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.auth().LoginDriver(cmd.Context(), zone, busID, password)
			if err != nil {
				return report(err)
			}
			cmd.Printf("logged in as driver of bus %d (%s)\n", sess.BusID, sess.Zone)
			return nil
		},
	}
	driver.Flags().StringVar(&zone, "zone", "", "Zone of the bus.")
	driver.Flags().IntVar(&busID, "bus", 0, "Bus id.")
	driver.Flags().StringVar(&password, "password", "", "Bus password.")

	var adminZone, adminPassword string
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Log in as a zone admin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := e.auth().LoginAdmin(cmd.Context(), adminZone, adminPassword)
			if err != nil {
				return report(err)
			}
			cmd.Printf("logged in as admin of %s\n", sess.Zone)
			return nil
		},
	}
	admin.Flags().StringVar(&adminZone, "zone", "", "Zone to administer.")
	admin.Flags().StringVar(&adminPassword, "password", "", "Admin password.")

	var superPassword string
	super := &cobra.Command{
		Use:   "super",
		Short: "Log in as the super admin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := e.auth().LoginSuperAdmin(cmd.Context(), superPassword); err != nil {
				return report(err)
			}
			cmd.Println("logged in as super admin")
			return nil
		},
	}
	super.Flags().StringVar(&superPassword, "password", "", "Super admin password.")

	cmd.AddCommand(driver, admin, super)
	return cmd
}

func newLogoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.auth().Logout(cmd.Context()); err != nil {
				return report(err)
			}
			cmd.Println("logged out")
			return nil
		},
	}
}

func newZonesCommand(e *env) *cobra.Command {
	var admin bool
	var zone string
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "List zones, or the buses of one zone with --zone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.HTTPTimeout)
			defer cancel()
			svc := e.auth()
			if zone != "" {
				ids, err := svc.DriverBuses(ctx, zone)
				if err != nil {
					return report(err)
				}
				for _, id := range ids {
					cmd.Println(strconv.Itoa(id))
				}
				return nil
			}
			list := svc.DriverZones
			if admin {
				list = svc.AdminZones
			}
			zones, err := list(ctx)
			if err != nil {
				return report(err)
			}
			for _, z := range zones {
				cmd.Println(z)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "List zones that have an admin.")
	cmd.Flags().StringVar(&zone, "zone", "", "List the buses registered in this zone.")
	return cmd
}

// report logs err once and hands it back to cobra for the exit code.
func report(err error) error {
	switch {
	case errors.Is(err, auth.ErrCredentialRejected), errors.Is(err, auth.ErrMissingFields):
		log.Warn("login failed", "reason", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Error(err, "fleet api timed out")
	default:
		log.Error(err, "command failed")
	}
	return err
}
