// Command tfsmrt runs a timed finite-state-machine document as a
// monitored, controllable process: it loads the document, builds the
// automaton, attaches a UDP channel, and pumps peer commands and
// optional stdin input into it until shutdown.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/timedfsm/tfsm"
)

var (
	bindAddr string
	peerAddr string
	watch    bool
	useStdin bool

	logger = slog.Default()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tfsmrt <fsm.json>",
		Short: "Run a timed finite-state-machine document as a monitored, controllable process",
		Args:  cobra.ExactArgs(1),
		RunE:  runDriver,
	}
	cmd.Flags().StringVar(&bindAddr, "bind", "0.0.0.0:45454", "local UDP bind address")
	cmd.Flags().StringVar(&peerAddr, "peer", "127.0.0.1:45455", "peer UDP address to send snapshots to")
	cmd.Flags().BoolVar(&watch, "watch", false, "hot-reload the document when it changes on disk")
	cmd.Flags().BoolVar(&useStdin, "stdin", true, "read name:value lines from stdin and inject them")
	return cmd
}

func runDriver(cmd *cobra.Command, args []string) error {
	docPath := args[0]

	doc, warn, err := tfsm.LoadDocument(docPath)
	if err != nil {
		return err
	}
	if warn != nil {
		for _, line := range warn.All {
			logger.Warn(line)
		}
	}

	channel, err := tfsm.NewUDPChannel(bindAddr, peerAddr)
	if err != nil {
		return err
	}
	defer channel.Close()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	current, err := startAutomaton(rootCtx, doc, channel, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	var watcher *fsnotify.Watcher
	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("document watch disabled", "error", err)
		} else if err := w.Add(docPath); err != nil {
			logger.Warn("document watch disabled", "error", err)
			_ = w.Close()
		} else {
			watcher = w
			watchEvents = w.Events
			watchErrors = w.Errors
			defer watcher.Close()
		}
	}

	var stdinLines chan string
	if useStdin {
		stdinLines = make(chan string, 16)
		go pumpStdin(stdinLines)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-current.done:
			return nil

		case <-sigCh:
			current.automaton.RequestStop()

		case line, ok := <-stdinLines:
			if !ok {
				stdinLines = nil
				continue
			}
			if name, value, ok := splitStdinLine(line); ok {
				current.automaton.InjectInput(name, value)
			}

		case ev := <-watchEvents:
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			current = reloadAutomaton(rootCtx, docPath, channel, current)

		case watchErr := <-watchErrors:
			logger.Warn("document watch error", "error", watchErr)

		case <-ticker.C:
			pollChannel(channel, current.automaton, logger)
		}
	}
}

// runningAutomaton pairs a live Automaton with the goroutine driving its
// executor loop, so the driver can tell when a shutdown has completed
// and swap in a freshly built automaton after a hot reload.
type runningAutomaton struct {
	automaton *tfsm.Automaton
	done      chan struct{}
}

func startAutomaton(ctx context.Context, doc *tfsm.Document, channel tfsm.Channel, logger *slog.Logger) (*runningAutomaton, error) {
	automaton, err := buildAutomaton(doc, logger)
	if err != nil {
		return nil, err
	}
	automaton.AttachChannel(channel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := automaton.Run(ctx); err != nil {
			logger.Error("executor exited with error", "error", err)
		}
	}()

	return &runningAutomaton{automaton: automaton, done: done}, nil
}

// reloadAutomaton stops the current automaton, waits for its executor to
// finish the step it was in, and starts a freshly built one over the same
// channel. The old instance finishes cleanly before the new one takes
// over, so no snapshot interleaving between the two is possible.
func reloadAutomaton(ctx context.Context, docPath string, channel tfsm.Channel, current *runningAutomaton) *runningAutomaton {
	doc, warn, err := tfsm.LoadDocument(docPath)
	if err != nil {
		logger.Warn("reload failed, keeping current automaton running", "error", err)
		return current
	}
	if warn != nil {
		logger.Warn(warn.Message)
	}

	current.automaton.RequestStop()
	<-current.done

	next, err := startAutomaton(ctx, doc, channel, logger)
	if err != nil {
		logger.Error("rebuild after reload failed, driver is shutting down", "error", err)
		idle := make(chan struct{})
		close(idle)
		return &runningAutomaton{automaton: current.automaton, done: idle}
	}
	logger.Info("document reloaded", "path", docPath)
	return next
}

// buildAutomaton maps a Document onto a fresh Automaton: variables with
// their typed initial values, states with compiled entry actions,
// transitions with compiled guards and from/to resolved through the
// state-index table built as states are added.
func buildAutomaton(doc *tfsm.Document, logger *slog.Logger) (*tfsm.Automaton, error) {
	automaton := tfsm.NewAutomaton(logger)
	host := tfsm.NewScriptHost()

	varNames := make([]string, 0, len(doc.Variables))
	for _, vd := range doc.Variables {
		varNames = append(varNames, vd.Name)
	}

	for _, vd := range doc.Variables {
		automaton.AddVariable(tfsm.NewVariable(vd.Name, vd.Type, vd.Init))
	}

	for _, sd := range doc.States {
		state := tfsm.NewState(sd.ID)
		if sd.OnEnter != "" {
			action, err := host.CompileAction(sd.OnEnter, varNames)
			if err != nil {
				return nil, errors.Wrapf(err, "state %q entry action", sd.ID)
			}
			state = state.WithEnterAction(action)
		}
		automaton.AddState(state, sd.Initial)
	}

	for _, td := range doc.Transitions {
		srcIdx, ok := automaton.StateIndex(td.From)
		if !ok {
			return nil, errors.Newf("transition references unknown state %q", td.From)
		}
		dstIdx, ok := automaton.StateIndex(td.To)
		if !ok {
			return nil, errors.Newf("transition references unknown state %q", td.To)
		}

		var guard *tfsm.CompiledGuard
		if td.Guard != "" {
			g, err := host.CompileGuard(td.Guard, varNames)
			if err != nil {
				return nil, errors.Wrapf(err, "transition %s->%s guard", td.From, td.To)
			}
			guard = g
		}

		automaton.AddTransition(tfsm.NewTransition(td.Trigger, guard, td.Delay, srcIdx, dstIdx))
	}

	return automaton, nil
}

func pollChannel(channel tfsm.Channel, automaton *tfsm.Automaton, logger *slog.Logger) {
	for {
		data, ok := channel.Poll()
		if !ok {
			return
		}
		msg, err := tfsm.DecodePeerMessage(data)
		if err != nil {
			logger.Debug("dropping malformed datagram", "error", err)
			continue
		}
		if !msg.Dispatch(automaton) {
			logger.Debug("ignoring unknown message type", "type", msg.Type)
		}
	}
}

func pumpStdin(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func splitStdinLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}
