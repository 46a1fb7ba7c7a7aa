package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shiftline/internal/app"
	"shiftline/internal/domain"
	"shiftline/internal/engine"
	"shiftline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Shiftline CLI",
	Long: `Shiftline schedules employees on activities and scores the work they report.
Core concepts:
- Activity: a kind of work (harvest, weeding) with a target that changes over time.
- Criterion: a target (unit + value) valid over a date window. Windows of one activity never overlap.
- Assignment: one employee on one activity for one day. It can only be created when a criterion covers that day.
- Evaluation: the actual value reached; the completion percentage is actual / target, rounded.
- Payment lock: once an assignment is included in a payment batch it is frozen until the batch is cancelled; paid is final.
- History: every attempted change, accepted or rejected, view with 'sl history <id>'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SHIFTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in history")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(criterionCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(gridCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func actor() string {
	return viper.GetString("actor-id")
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage shiftline.yml",
		Long:  "shiftline.yml tunes retries, persistence timeouts, grid limits, the HTTP server and webhooks. Defaults apply when it is absent.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default shiftline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.WriteDefaultConfig(viper.GetString("workspace"), force)
			if err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate shiftline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage activities"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityStatusCmd())
	return act
}

func activityCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{ID: id, Name: name, ActorID: actor()})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "activity id (derived from name if empty)")
	cmd.Flags().StringVar(&name, "name", "", "activity name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func activityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActivities(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status today"})
				today := domain.Day(time.Now())
				for _, a := range items {
					status, err := e.ActivityStatus(ctx, a.ID, today)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{a.ID, a.Name, status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activityStatusCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "status <activity-id>",
		Short: "Show whether an activity has a criterion on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dateOrToday(asOf)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				status, err := e.ActivityStatus(ctx, args[0], day)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"activity_id": args[0], "as_of": domain.FormatDate(day), "status": status})
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func criterionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "criterion",
		Short: "Manage completion criteria",
		Long:  "A criterion is the target of an activity over a date window. Windows are inclusive; leave --end empty for an open window.",
	}
	c.AddCommand(criterionAddCmd())
	c.AddCommand(criterionListCmd())
	c.AddCommand(criterionActiveCmd())
	c.AddCommand(criterionUpdateCmd())
	c.AddCommand(criterionDeleteCmd())
	return c
}

func criterionAddCmd() *cobra.Command {
	var activityID, unit, start, end string
	var value float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add criterion to an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDay, err := domain.ParseDate(start)
			if err != nil {
				return err
			}
			endDay, err := optionalDate(end)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCriterion(ctx, engine.CriterionCreateOptions{
					ActivityID: activityID,
					UnitCode:   unit,
					Value:      value,
					StartDate:  startDay,
					EndDate:    endDay,
					ActorID:    actor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&unit, "unit", "", "unit code (KG, ROWS, ...)")
	cmd.Flags().Float64Var(&value, "value", 0, "target value, > 0")
	cmd.Flags().StringVar(&start, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day YYYY-MM-DD (empty for open-ended)")
	_ = cmd.MarkFlagRequired("activity")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func criterionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <activity-id>",
		Short: "List criteria of an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCriteria(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Unit", "Value", "Start", "End"})
				for _, c := range items {
					end := "open"
					if c.EndDate != nil {
						end = domain.FormatDate(*c.EndDate)
					}
					tw.AppendRow(table.Row{c.ID, c.UnitCode, c.Value, domain.FormatDate(c.StartDate), end})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func criterionActiveCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "active <activity-id>",
		Short: "Show the criterion valid on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dateOrToday(asOf)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, ok, err := e.ActiveCriterion(ctx, args[0], day)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no criterion for %s on %s", args[0], domain.FormatDate(day))
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func criterionUpdateCmd() *cobra.Command {
	var unit, start, end string
	var value float64
	var openEnded bool
	cmd := &cobra.Command{
		Use:   "update <criterion-id>",
		Short: "Change a criterion target or window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.CriterionUpdateOptions{ID: args[0], OpenEnded: openEnded, ActorID: actor()}
			if cmd.Flags().Changed("unit") {
				opts.UnitCode = &unit
			}
			if cmd.Flags().Changed("value") {
				opts.Value = &value
			}
			if cmd.Flags().Changed("start") {
				d, err := domain.ParseDate(start)
				if err != nil {
					return err
				}
				opts.StartDate = &d
			}
			if cmd.Flags().Changed("end") {
				d, err := domain.ParseDate(end)
				if err != nil {
					return err
				}
				opts.EndDate = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateCriterion(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "unit code")
	cmd.Flags().Float64Var(&value, "value", 0, "target value")
	cmd.Flags().StringVar(&start, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day YYYY-MM-DD")
	cmd.Flags().BoolVar(&openEnded, "open-ended", false, "remove the end date")
	return cmd
}

func criterionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <criterion-id>",
		Short: "Delete a criterion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCriterion(ctx, args[0], actor())
			})
		},
	}
}

func assignCmd() *cobra.Command {
	a := &cobra.Command{Use: "assign", Short: "Manage assignments"}
	a.AddCommand(assignCreateCmd())
	a.AddCommand(assignShowCmd())
	a.AddCommand(assignMoveCmd())
	a.AddCommand(assignDeleteCmd())
	a.AddCommand(assignListCmd())
	return a
}

func assignCreateCmd() *cobra.Command {
	var id, activityID, employeeID, date string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule an employee on an activity for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := domain.ParseDate(date)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAssignment(ctx, engine.AssignmentCreateOptions{
					ID:         id,
					ActivityID: activityID,
					EmployeeID: employeeID,
					Date:       day,
					ActorID:    actor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "assignment id (generated if empty)")
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&date, "date", "", "day YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("activity")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func assignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <assignment-id>",
		Short: "Show an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAssignment(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func assignMoveCmd() *cobra.Command {
	var activityID, employeeID, date string
	cmd := &cobra.Command{
		Use:   "move <assignment-id>",
		Short: "Change activity, employee or day of an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.AssignmentUpdateOptions{ID: args[0], ActorID: actor()}
			if cmd.Flags().Changed("activity") {
				opts.ActivityID = &activityID
			}
			if cmd.Flags().Changed("employee") {
				opts.EmployeeID = &employeeID
			}
			if cmd.Flags().Changed("date") {
				d, err := domain.ParseDate(date)
				if err != nil {
					return err
				}
				opts.Date = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAssignment(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "new activity id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "new employee id")
	cmd.Flags().StringVar(&date, "date", "", "new day YYYY-MM-DD")
	return cmd
}

func assignDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <assignment-id>",
		Short: "Delete an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAssignment(ctx, args[0], actor())
			})
		},
	}
}

func assignListCmd() *cobra.Command {
	var employeeID, from, to, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments by employee, date range or status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDay, err := optionalDate(from)
			if err != nil {
				return err
			}
			toDay, err := optionalDate(to)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.Assignment
				switch {
				case employeeID != "":
					items, err = e.ListByEmployee(ctx, employeeID, fromDay, toDay)
				case status != "":
					items, err = e.ListByStatus(ctx, domain.Status(strings.ToUpper(status)))
				case fromDay != nil && toDay != nil:
					items, err = e.ListByDateRange(ctx, *fromDay, *toDay)
				default:
					return fmt.Errorf("--employee, --status or --from and --to required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printAssignments(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD")
	cmd.Flags().StringVar(&status, "status", "", "ASSIGNED or COMPLETED")
	return cmd
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <assignment-id> <actual-value>",
		Short: "Record the actual value reached on an assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actual, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("actual value: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Evaluate(ctx, args[0], actual, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <assignment-id>",
		Short: "Mark an assignment complete at its target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.MarkComplete(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func paymentCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "payment",
		Short: "Payment locks on assignments",
		Long:  "A locked assignment cannot be moved, deleted or re-evaluated. unlock and cancel release it; finalize records the payment and is permanent.",
	}
	p.AddCommand(paymentLockCmd())
	p.AddCommand(paymentReleaseCmd("unlock", "Remove an assignment from its payment batch", func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
		return e.ClearLock
	}))
	p.AddCommand(paymentReleaseCmd("cancel", "Release an assignment from a cancelled batch", func(e engine.Engine) func(context.Context, string, string) (domain.Assignment, error) {
		return e.CancelLock
	}))
	p.AddCommand(paymentFinalizeCmd())
	return p
}

func paymentLockCmd() *cobra.Command {
	var paymentID, status string
	cmd := &cobra.Command{
		Use:   "lock <assignment-id>",
		Short: "Include an assignment in a payment batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetLock(ctx, args[0], paymentID, domain.PaymentStatus(strings.ToUpper(status)), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment", "", "payment batch id")
	cmd.Flags().StringVar(&status, "status", "", "DRAFT, PENDING_PAYMENT or APPROVED (default DRAFT)")
	_ = cmd.MarkFlagRequired("payment")
	return cmd
}

func paymentReleaseCmd(use, short string, op func(engine.Engine) func(context.Context, string, string) (domain.Assignment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <assignment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := op(e)(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func paymentFinalizeCmd() *cobra.Command {
	var paymentID string
	cmd := &cobra.Command{
		Use:   "finalize <assignment-id>",
		Short: "Record that the payment holding an assignment was paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.FinalizeLock(ctx, args[0], paymentID, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment", "", "payment batch id")
	_ = cmd.MarkFlagRequired("payment")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <entity-id>",
		Short: "Show every attempted change of an entity, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "Time", "Operation", "Actor", "Outcome", "Error"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.Seq, entry.TS.Format(time.RFC3339), entry.Operation, entry.ActorID, entry.Outcome, entry.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func gridCmd() *cobra.Command {
	var from, to, cursor string
	var employees []string
	var limit int
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Show employees by day with their assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDay, err := domain.ParseDate(from)
			if err != nil {
				return err
			}
			toDay, err := domain.ParseDate(to)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				grid, err := e.Project(ctx, engine.GridQuery{
					EmployeeIDs: employees,
					From:        fromDay,
					To:          toDay,
					Limit:       limit,
					Cursor:      cursor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(grid)
				}
				printGrid(grid)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&employees, "employee", nil, "employee ids (default everyone scheduled in range)")
	cmd.Flags().IntVar(&limit, "limit", 0, "employees per page")
	cmd.Flags().StringVar(&cursor, "cursor", "", "next_cursor of the previous page")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer sess.Close()
			if !cmd.Flags().Changed("addr") && sess.Config.Server.Addr != "" {
				addr = sess.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && sess.Config.Server.BasePath != "" {
				basePath = sess.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt_secret"),
				AllowLegacyActorHeader: viper.GetBool("allow_actor_header"),
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("SHIFTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:            sess.Engine,
				BasePath:          basePath,
				Auth:              authCfg,
				RateLimit:         sess.Config.Server.RateLimit.PerSecond,
				Burst:             sess.Config.Server.RateLimit.Burst,
				TrustForwardedFor: sess.Config.Server.RateLimit.TrustForwardedFor,
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(cmd.Context(), sess.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Shiftline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().Bool("allow-actor-header", false, "accept X-Actor-Id without a token")
	_ = viper.BindPFlag("allow_actor_header", cmd.Flags().Lookup("allow-actor-header"))
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Issue a bearer token signed with SHIFTLINE_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.IssueToken(viper.GetString("jwt_secret"), args[0], ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "actor_id": args[0], "expires_in": ttl.String()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	sess, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(ctx, sess.Engine)
}

func printAssignments(items []domain.Assignment) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Date", "Employee", "Activity", "Status", "%", "Payment"})
	for _, a := range items {
		pct := ""
		if a.Evaluation != nil {
			pct = strconv.FormatInt(a.Evaluation.CompletionPercentage, 10)
		}
		payment := string(a.PaymentStatus)
		if a.IncludedInPaymentID != nil {
			payment += " " + *a.IncludedInPaymentID
		}
		tw.AppendRow(table.Row{a.ID, domain.FormatDate(a.Date), a.EmployeeID, a.ActivityID, a.Status(), pct, payment})
	}
	tw.Render()
}

func printGrid(g domain.Grid) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	header := table.Row{"Employee"}
	for _, d := range g.Dates {
		header = append(header, d)
	}
	tw.AppendHeader(header)
	for _, row := range g.Rows {
		r := table.Row{row.EmployeeID}
		for _, cell := range row.Cells {
			r = append(r, gridCellText(cell))
		}
		tw.AppendRow(r)
	}
	tw.Render()
	if g.NextCursor != "" {
		fmt.Println("next cursor:", g.NextCursor)
	}
}

func gridCellText(cell domain.GridCell) string {
	if cell.Assignment == nil {
		return ""
	}
	text := cell.Assignment.ActivityID
	if ev := cell.Assignment.Evaluation; ev != nil {
		text += fmt.Sprintf(" %d%%", ev.CompletionPercentage)
	}
	if cell.Hidden > 0 {
		text += fmt.Sprintf(" +%d", cell.Hidden)
	}
	return text
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

func optionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateOrToday(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return domain.Day(time.Now()), nil
	}
	return domain.ParseDate(s)
}
