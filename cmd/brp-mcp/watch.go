package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/bevy-brp-mcp/internal/brp"
	"github.com/HendryAvila/bevy-brp-mcp/internal/config"
	"github.com/HendryAvila/bevy-brp-mcp/internal/history"
	"github.com/HendryAvila/bevy-brp-mcp/internal/logging"
	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// followInterval is how often a followed log is polled for new lines.
const followInterval = 200 * time.Millisecond

// ---------------------------------------------------------------------------
// watchCmd
// ---------------------------------------------------------------------------

func watchCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch an entity from the terminal until Ctrl-C",
	}
	cmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "BRP port (default: configured port)")

	getCmd := &cobra.Command{
		Use:   "get <entity> <component>...",
		Short: "Stream component value changes of an entity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), port, func(m *watch.Manager) (watch.StartResult, error) {
				return m.StartValueWatch(entity, args[1:], port)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "Stream component additions and removals of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), port, func(m *watch.Manager) (watch.StartResult, error) {
				return m.StartStructureWatch(entity, port)
			})
		},
	}

	cmd.AddCommand(getCmd, listCmd)
	return cmd
}

func parseEntity(s string) (uint64, error) {
	entity, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("entity must be a non-negative integer, got %q", s)
	}
	return entity, nil
}

// runWatch starts one watch through a private manager and copies its log
// to stdout until the watch ends or the user interrupts.
func runWatch(parent context.Context, port int, start func(*watch.Manager) (watch.StartResult, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		if err := config.ValidatePort(port); err != nil {
			return err
		}
	}
	logger := logging.Console(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	opts := watch.Options{
		LogDir:      cfg.LogDir,
		MaxWatches:  cfg.MaxWatches,
		StopTimeout: cfg.StopTimeout,
		DefaultPort: cfg.DefaultPort,
		Logger:      logger,
	}
	if cfg.History {
		hcfg := history.DefaultConfig(cfg.HistoryPath())
		hcfg.Logger = logger
		store, err := history.New(hcfg)
		if err != nil {
			logger.Warn("watch history disabled", zap.Error(err))
		} else {
			defer store.Close()
			opts.Observer = store
		}
	}

	client := brp.NewClient(brp.Options{
		Host:           cfg.Host,
		RequestTimeout: cfg.RequestTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger,
	})
	m := watch.NewManager(watch.ClientTransport(client), opts)

	ctx, cancel := interruptible(parent)
	defer cancel()

	res, err := start(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watch %d started, logging to %s (Ctrl-C to stop)\n", res.ID, res.LogPath)

	followErr := follow(ctx, res.LogPath, os.Stdout, func() bool {
		_, err := m.Get(res.ID)
		return errors.Is(err, watch.ErrNotFound)
	})

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer drainCancel()
	if err := m.Shutdown(drainCtx); err != nil {
		return err
	}
	if followErr != nil && !errors.Is(followErr, context.Canceled) {
		return followErr
	}
	return nil
}

// interruptible derives a context from parent that also ends on SIGINT
// or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	sigCtx, sigCancel := signalContext()
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(sigCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
		sigCancel()
	}
}

// follow copies lines appended to path into w until ctx is done or ended
// reports true. Lines written before ended flipped are still copied.
func follow(ctx context.Context, path string, w io.Writer, ended func() bool) error {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	t := &tailer{w: w}
	defer t.close()
	for {
		// Sample ended before opening and draining so the last lines are
		// not lost, even when the file appears just before the watch ends.
		done := ended()
		if err := t.open(path); err != nil {
			return err
		}
		if err := t.drain(); err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			_ = t.drain()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tailer copies complete lines from a growing file.
type tailer struct {
	w       io.Writer
	f       *os.File
	r       *bufio.Reader
	pending []byte
}

// open opens path once it exists. A missing file is not an error: the
// sink creates it on the first record.
func (t *tailer) open(path string) error {
	if t.f != nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	t.f, t.r = f, bufio.NewReader(f)
	return nil
}

// drain writes every complete line available. A partial last line is held
// until its newline arrives.
func (t *tailer) drain() error {
	if t.r == nil {
		return nil
	}
	for {
		chunk, err := t.r.ReadBytes('\n')
		t.pending = append(t.pending, chunk...)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading log: %w", err)
		}
		if _, err := t.w.Write(t.pending); err != nil {
			return err
		}
		t.pending = t.pending[:0]
	}
}

func (t *tailer) close() {
	if t.f != nil {
		_ = t.f.Close()
	}
}
