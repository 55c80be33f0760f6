package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/config"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

type rootFlags struct {
	cfgPath string
	envFile string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Telegram reminder bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(f.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVarP(&f.cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(runCmd(f), tasksCmd(f), fireCmd(f))
	return root
}

func runCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), f)
		},
	}
}

func runBot(parent context.Context, f *rootFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(f.cfgPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("fatal start: %w", err)
	}

	reason := app.StopUnknown
	select {
	case s := <-sigs:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func tasksCmd(f *rootFlags) *cobra.Command {
	var (
		chatID  int64
		asJSON  bool
		showAll bool
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List a chat's tasks from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == 0 {
				return errors.New("--chat is required")
			}
			cfg, err := config.NewManager(f.cfgPath).Parse()
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(strings.TrimSpace(cfg.Scheduler.Timezone))
			if err != nil {
				return fmt.Errorf("scheduler.timezone: %w", err)
			}
			sc, err := app.StorageConfig(cfg)
			if err != nil {
				return err
			}
			st, err := storage.Open(sc, logx.NewConsole("warn"))
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListByChat(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			if !showAll {
				active := recs[:0]
				for _, r := range recs {
					if r.Active {
						active = append(active, r)
					}
				}
				recs = active
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			return printTasks(out, recs, loc)
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&showAll, "all", false, "include retired tasks")
	return cmd
}

// printTasks writes recs as a table, timestamps in loc.
func printTasks(w io.Writer, recs []task.Record, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tFREQUENCY\tSLOT\tACTIVE\tLAST FIRED")
	for _, r := range recs {
		last := "-"
		if r.LastFiredAt != nil {
			last = r.LastFiredAt.In(loc).Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.TaskName, r.Label(), r.CheckTime, r.Active, last)
	}
	return tw.Flush()
}

func fireCmd(f *rootFlags) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "fire SLOT",
		Short: "Dispatch one check-point now (morning, afternoon or evening)",
		Long: `Dispatch one check-point now.

When http.addr is configured the slot is handed to the running bot through
POST /v1/slots/{slot}/fire, so it dispatches under the bot's own per-record
locks. If nothing answers there, or with --local, the batch runs in this
process against the configured store. A local run does not coordinate with a
bot running without the ops API: a reminder being sent by both at the same
moment can go out twice.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(task.Morning), string(task.Afternoon), string(task.Evening)},
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := task.ParseCheckTime(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !local {
				cfg, err := config.NewManager(f.cfgPath).Parse()
				if err != nil {
					return err
				}
				if addr := strings.TrimSpace(cfg.HTTP.Addr); addr != "" {
					client := &http.Client{Timeout: 15 * time.Second}
					reached, err := fireRemote(cmd.Context(), client, addr, cfg.HTTP.Token, slot)
					if err != nil {
						return err
					}
					if reached {
						fmt.Fprintf(out, "%s: handed to the running bot\n", slot)
						return nil
					}
				}
			}

			a, err := app.New(f.cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.DispatchNow(cmd.Context(), slot)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: candidates=%d sent=%d failed=%d skipped=%d (%s)\n",
				rep.Slot, rep.Candidates, rep.Sent, rep.Failed, rep.Skipped, rep.Took.Round(time.Millisecond))
			if rep.Failed > 0 {
				return fmt.Errorf("%d reminder(s) failed", rep.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "dispatch in this process even if the bot's ops API answers")
	return cmd
}
