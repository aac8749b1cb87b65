// Package supervisor is a typed client for the in-container supervisor
// protocol described by the runtime driver's exec channel: reread, update,
// start/stop/restart/remove <prog>, and status. It is the only place that
// knows the supervisor's CLI argv shape and status-line format; everything
// above it (poolmanager, health, migration) talks in terms of program names
// and ProgramState values.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

// ProgramState mirrors the supervisor's own process states.
type ProgramState string

const (
	StateRunning ProgramState = "RUNNING"
	StateStopped ProgramState = "STOPPED"
	StateFatal   ProgramState = "FATAL"
	StateBackoff ProgramState = "BACKOFF"
	StateUnknown ProgramState = "UNKNOWN"
	// StateAbsent is not a real supervisor state; it is what Client.Status
	// returns for a program the supervisor has no record of at all.
	StateAbsent ProgramState = "ABSENT"
)

const binary = "supervisorctl"

// Client drives the supervisor running inside one container.
type Client struct {
	runtime       runtime.ContainerRuntime
	containerName string
}

func NewClient(rt runtime.ContainerRuntime, containerName string) *Client {
	return &Client{runtime: rt, containerName: containerName}
}

func (c *Client) exec(ctx context.Context, args ...string) (runtime.ExecResult, error) {
	argv := append([]string{binary}, args...)
	res, err := c.runtime.ExecInContainer(ctx, c.containerName, argv)
	if err != nil {
		return runtime.ExecResult{}, fmt.Errorf("%w: %v", runtime.ErrExecFailed, err)
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w: supervisorctl %s exited %d: %s", runtime.ErrExecFailed, strings.Join(args, " "), res.ExitCode, res.Stderr)
	}
	return res, nil
}

// Reread tells the supervisor to notice newly-dropped bot-*.conf files.
func (c *Client) Reread(ctx context.Context) error {
	_, err := c.exec(ctx, "reread")
	return err
}

// Update applies the reread changes, starting/stopping programs as needed.
func (c *Client) Update(ctx context.Context) error {
	_, err := c.exec(ctx, "update")
	return err
}

func (c *Client) Start(ctx context.Context, program string) error {
	_, err := c.exec(ctx, "start", program)
	return err
}

func (c *Client) Stop(ctx context.Context, program string) error {
	_, err := c.exec(ctx, "stop", program)
	return err
}

func (c *Client) Restart(ctx context.Context, program string) error {
	_, err := c.exec(ctx, "restart", program)
	return err
}

func (c *Client) Remove(ctx context.Context, program string) error {
	_, err := c.exec(ctx, "remove", program)
	return err
}

// Status returns the state of one program, StateAbsent if the supervisor
// has no record of it.
func (c *Client) Status(ctx context.Context, program string) (ProgramState, error) {
	states, err := c.StatusAll(ctx)
	if err != nil {
		return StateUnknown, err
	}
	state, ok := states[program]
	if !ok {
		return StateAbsent, nil
	}
	return state, nil
}

// StatusAll returns the state of every program the supervisor knows about,
// keyed by program name. Parses supervisorctl's line-oriented status format:
// "<name>  <STATE>  <extra...>".
func (c *Client) StatusAll(ctx context.Context) (map[string]ProgramState, error) {
	res, err := c.exec(ctx, "status")
	if err != nil {
		// supervisorctl status exits non-zero if any program is not RUNNING;
		// that is not itself an error for our purposes, so parse the output
		// we did get rather than surfacing it as a failure.
		if res.Stdout == "" {
			return nil, err
		}
	}

	out := make(map[string]ProgramState)
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		switch ProgramState(fields[1]) {
		case StateRunning:
			out[name] = StateRunning
		case StateStopped:
			out[name] = StateStopped
		case StateFatal:
			out[name] = StateFatal
		case StateBackoff:
			out[name] = StateBackoff
		default:
			out[name] = StateUnknown
		}
	}
	return out, nil
}

// Probe reports whether the supervisor itself is reachable, independent of
// any particular program's state.
func (c *Client) Probe(ctx context.Context) bool {
	_, err := c.exec(ctx, "version")
	return err == nil
}

// BotProgramName returns the conventional supervisor program name for a bot
// instance, matching the bot-*.conf glob convention.
func BotProgramName(instanceID string) string {
	return "bot-" + instanceID
}

// BotConfFileName returns the conventional per-bot program file name.
func BotConfFileName(instanceID string) string {
	return BotProgramName(instanceID) + ".conf"
}
