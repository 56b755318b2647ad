package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"streakline/internal/app"
	"streakline/internal/board"
	"streakline/internal/clock"
	"streakline/internal/db"
	"streakline/internal/domain"
	"streakline/internal/engine"
	"streakline/internal/server"
	"streakline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Streakline CLI",
	Long: `Streakline tracks fixed-length daily missions: pick a challenge of 7, 10,
14 or 30 days, check in once every calendar day, and the streak board fills
up one slot per day. Miss a single day and the mission fails; check every
day and it completes. No pausing, no catch-up.

Concepts:
- Workspace: the .streakline directory holding the database.
- Mission: one challenge with a title and a fixed duration.
- Check-in: 'sl mission check' once per day, in your own time zone.
- Boards: each duration has its own board (grapes, stickers,
  constellation, garden) filled slot by slot.
- Event log: diary of mission changes, view with 'sl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STREAKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner-id", "local-user", "mission owner identifier")
	rootCmd.PersistentFlags().String("timezone", "", "IANA time zone for calendar days (default: config, then UTC)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner-id", rootCmd.PersistentFlags().Lookup("owner-id"))
	_ = viper.BindPFlag("timezone", rootCmd.PersistentFlags().Lookup("timezone"))
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionCheckCmd())
	m.AddCommand(missionDeleteCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var title string
	var duration int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.CreateMission(ctx, viper.GetString("owner-id"), title, duration)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().IntVar(&duration, "duration", 7, "challenge length in days (7, 10, 14 or 30)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func missionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				missions, err := a.Engine.ListMissions(ctx, viper.GetString("owner-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Board", "Progress", "Status", "Next Day"})
				for _, m := range missions {
					tw.AppendRow(table.Row{
						m.ID,
						m.Title,
						board.Layout(m.Duration),
						fmt.Sprintf("%d/%d", len(m.Checks), m.Duration),
						missionStatus(m),
						missionNextDay(m),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission and its board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.GetMission(ctx, viper.GetString("owner-id"), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"mission": m, "board": board.For(m)})
				}
				printMission(m)
				return nil
			})
		},
	}
	return cmd
}

func missionCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <mission-id>",
		Short: "Check in for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("mission id required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.CheckIn(ctx, viper.GetString("owner-id"), args[0])
				if errors.Is(err, engine.ErrMissedDay) {
					fmt.Println("Mission failed: a required day passed without a check-in.")
					printMission(m)
					return nil
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				if m.Completed {
					fmt.Printf("Mission complete! %d/%d days.\n", len(m.Checks), m.Duration)
				} else {
					fmt.Printf("Checked in. %d/%d days.\n", len(m.Checks), m.Duration)
				}
				printMission(m)
				return nil
			})
		},
	}
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <mission-id>",
		Short: "Delete a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteMission(ctx, viper.GetString("owner-id"), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "slk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.New().String(),
					OwnerID:   viper.GetString("owner-id"),
					Name:      name,
					KeyHash:   store.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Store.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is shown once and never stored.
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"owner_id": key.OwnerID,
					"name":     key.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Store.ListAPIKeys(ctx, viper.GetString("owner-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Store.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: missions created, checked, completed, failed and deleted.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, missionID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rows, err := a.Events.Latest(ctx, n, evtType, missionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				for _, r := range rows {
					fmt.Printf("%s  %-18s  %s  %s\n", r.TS, r.Type, r.MissionID, r.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&missionID, "mission", "", "filter by mission id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("STREAKLINE_JWT_SECRET"),
				AllowLegacyActorHeader: a.Config.Server.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("STREAKLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Keys:     a.Store,
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Streakline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default: config)")
	return cmd
}

// withApp opens the workspace, applies the zone override and runs fn.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	if tz := viper.GetString("timezone"); tz != "" {
		ctx = engine.WithZone(ctx, clock.LoadZone(tz))
	}
	return fn(ctx, a)
}

func missionStatus(m domain.Mission) string {
	switch {
	case m.Completed:
		return "completed"
	case m.Failed:
		return "failed"
	default:
		return "active"
	}
}

func missionNextDay(m domain.Mission) string {
	if m.Terminal() {
		return "-"
	}
	return m.ExpectedDay().String()
}

func printMission(m domain.Mission) {
	fmt.Printf("%s  (%s, %d days, %s)\n", m.Title, board.Layout(m.Duration), m.Duration, missionStatus(m))
	fmt.Printf("id: %s\n", m.ID)
	fmt.Printf("started: %s\n", m.CreatedDay)
	if !m.Terminal() {
		fmt.Printf("next check-in day: %s\n", m.ExpectedDay())
	}
	v := board.For(m)
	var b strings.Builder
	for _, s := range v.Slots {
		if s.Filled {
			b.WriteString("[x]")
		} else {
			b.WriteString("[ ]")
		}
	}
	fmt.Printf("board: %s  %d/%d\n", b.String(), v.Checked, v.Duration)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
