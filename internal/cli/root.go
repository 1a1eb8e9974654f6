package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"timetable/internal/config"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/refresh"
	"timetable/internal/timetable"
	"timetable/internal/web"
)

const defaultConfigPath = "/etc/timetable/config.yaml"

// App carries the state shared by all subcommands. Config is loaded by the
// root command before any subcommand runs.
type App struct {
	ConfigPath string
	Verbose    bool
	Config     *config.Config
}

// Server wires the feed loader into an API server for the loaded config.
func (a *App) Server() (*web.Server, *ics.Loader) {
	loader := ics.NewLoader(ics.NewFetcher(a.Config.CacheDir), a.Config.Location(), a.Config.MaxOccurrencesPerEvent)
	return web.NewServer(a.Config, loader), loader
}

// NewRootCmd creates the top-level "timetable" command.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "timetable",
		Short:         "Timetable layout engine over ICS feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
			cfg, err := config.Load(app.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config %s: %w", app.ConfigPath, err)
			}
			app.Config = cfg
			appLog.Debug("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"view_type", cfg.ViewType,
				"time_step_minutes", cfg.TimeStepMinutes,
				"day", cfg.DayStart+"-"+cfg.DayEnd,
				"groups", len(cfg.Groups),
			)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newServeCmd(app),
		newLayoutCmd(app),
		newAxisCmd(app),
	)
	return root
}

func newServeCmd(app *App) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and refresh feeds on schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				app.Config.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, loader := app.Server()
			sources := web.Sources(app.Config)
			sched, err := refresh.New(app.Config.RefreshCron, app.Config.Location(), func(ctx context.Context) error {
				return loader.Refresh(ctx, sources)
			})
			if err != nil {
				return err
			}
			if err := sched.RunNow(ctx); err != nil {
				// The API still serves the feeds that loaded.
				appLog.Error("initial refresh incomplete", err)
			}
			sched.Start(ctx)
			defer sched.Stop()

			err = srv.Serve(ctx)
			appLog.Info("timetable exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// viewFlags are the window and granularity flags of layout and axis.
type viewFlags struct {
	start, end, view, step string
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "Window start (YYYY-MM-DD or RFC 3339, default today)")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end, exclusive (default start + window_days)")
	cmd.Flags().StringVar(&f.view, "view", "", "View type: hours, days, weeks, months, years")
	cmd.Flags().StringVar(&f.step, "step", "", "Slot minutes of the hours view")
}

func newLayoutCmd(app *App) *cobra.Command {
	var flags viewFlags
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the packed layout of a window as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _ := app.Server()
			q, err := srv.NewQuery(flags.start, flags.end, flags.view, flags.step)
			if err != nil {
				return err
			}
			total := len(app.Config.Groups)
			groups := timetable.EntryRange{Start: offset, End: total}
			if limit > 0 && offset+limit < total {
				groups.End = offset + limit
			}
			resp, err := srv.Layout(cmd.Context(), q, groups)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&offset, "offset", 0, "First group to load")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of groups to load (0 = all)")
	return cmd
}

func newAxisCmd(app *App) *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "axis",
		Short: "Print the time axis of a window as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, _ := app.Server()
			q, err := srv.NewQuery(flags.start, flags.end, flags.view, flags.step)
			if err != nil {
				return err
			}
			ax, err := srv.Axis(q)
			if err != nil {
				return err
			}
			return printJSON(cmd, ax)
		},
	}
	flags.register(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
