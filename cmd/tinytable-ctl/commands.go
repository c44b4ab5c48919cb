package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/pingcap-incubator/tinytable/table/api"
	"github.com/pingcap-incubator/tinytable/table/timeline"
	"github.com/pingcap-incubator/tinytable/table/transaction"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func newTimelineCommand() *cobra.Command {
	var pendingOnly bool
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "List the operations of the table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			at, closeFn, err := openTimeline(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			snap := at.Snapshot()
			if pendingOnly {
				snap = snap.FilterPending()
			}
			now := time.Now()
			for _, inst := range snap.Instants() {
				fmt.Printf("%s\t%-12s\t%-9s\t%s\n", inst.Timestamp, inst.Action, inst.State, age(now, inst))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "only list requested and inflight operations")
	return cmd
}

func newPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending [timestamp action]",
		Short: "Print the pending snapshot a writer would take, optionally excluding its own instant",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var excluding timeline.Instant
			if len(args) > 0 {
				inst, err := parseInstantArgs(args)
				if err != nil {
					return err
				}
				excluding = inst
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			at, closeFn, err := openTimeline(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			pending, err := transaction.PendingSnapshot(at, excluding)
			if err != nil {
				return err
			}
			for _, id := range pending.IDs() {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <timestamp> <action>",
		Short: "Check a persisted operation against the operations it races with",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInstantArgs(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			strategy, err := transaction.NewConflictResolutionStrategy(cfg.Concurrency.ConflictResolutionStrategy)
			if err != nil {
				return err
			}
			at, closeFn, err := openTimeline(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			current, ok := at.Snapshot().Get(id.ID())
			if !ok {
				return errors.Errorf("%s not found in table %s", id.ID(), cfg.TableName)
			}
			this, err := transaction.NewConcurrentOperation(at, current)
			if err != nil {
				return err
			}
			it, err := strategy.CandidateInstants(at, current, nil)
			if err != nil {
				return err
			}
			conflicts := 0
			for ; it.Valid(); it.Next() {
				that, err := transaction.NewConcurrentOperation(at, it.Item())
				if err != nil {
					return err
				}
				if err := strategy.ResolveConflict(this, that); err != nil {
					conflicts++
					fmt.Println(err)
					continue
				}
				fmt.Printf("%s\tok\n", that)
			}
			if conflicts > 0 {
				return errors.Errorf("%s has %d write conflicts", current, conflicts)
			}
			return nil
		},
	}
	return cmd
}

func newLockCommand() *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Take the table lock through the configured provider and hold it for a while",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := transaction.NewTransactionManager(cfg)
			if err != nil {
				return err
			}
			defer m.Close()
			if !m.IsLockRequired() {
				return errors.Errorf("table %s runs in %s mode and takes no lock", cfg.TableName, cfg.Concurrency.Mode)
			}
			owner := timeline.NewInstant(timeline.Requested, timeline.Commit, timeline.NewInstantTime())
			if err := m.BeginTransaction(context.Background(), &owner); err != nil {
				return err
			}
			fmt.Printf("lock held by %s\n", owner)
			time.Sleep(hold)
			return m.EndTransaction(&owner)
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 5*time.Second, "how long to hold the lock")
	return cmd
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline, conflict checks and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			strategy, err := transaction.NewConflictResolutionStrategy(cfg.Concurrency.ConflictResolutionStrategy)
			if err != nil {
				return err
			}
			at, closeFn, err := openTimeline(cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			log.Info("serving table status", zap.String("table", cfg.TableName), zap.String("addr", addr))
			return errors.WithStack(http.ListenAndServe(addr, api.NewHandler(at, strategy)))
		},
	}
	addAddrFlag(cmd.Flags(), &addr)
	return cmd
}

func addAddrFlag(fs *pflag.FlagSet, addr *string) {
	fs.StringVar(addr, "addr", "127.0.0.1:9090", "address the status server listens on")
}

// age describes when inst completed relative to now, or what it is still doing.
func age(now time.Time, inst timeline.Instant) string {
	if !inst.IsCompleted() {
		return "-"
	}
	t, err := timeline.ParseInstantTime(inst.CompletionTime)
	if err != nil {
		return inst.CompletionTime
	}
	return inst.CompletionTime + " (" + units.HumanDuration(now.Sub(t)) + " ago)"
}

func parseInstantArgs(args []string) (timeline.Instant, error) {
	if len(args) != 2 {
		return timeline.Instant{}, errors.New("need both a timestamp and an action")
	}
	action, err := timeline.ParseAction(args[1])
	if err != nil {
		return timeline.Instant{}, err
	}
	return timeline.NewInstant(timeline.Requested, action, args[0]), nil
}
