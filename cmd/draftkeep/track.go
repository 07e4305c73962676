package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/ops"
)

// trackResult is printed when tracking ends.
type trackResult struct {
	Key       string       `json:"key"`
	Updates   int          `json:"updates"`
	Skipped   int          `json:"skipped"`
	Status    draft.Status `json:"status"`
	Recovered bool         `json:"recovered"`
}

// trackCmd creates the track command. Each stdin line is the form's full
// payload; lines are debounced into the store like keystrokes in a form.
// End of input or SIGINT/SIGTERM acts as the page unloading.
func trackCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Autosave NDJSON form snapshots read from stdin",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "debounce", Usage: "Quiet period before a change is written (default from config)"},
			&cli.StringFlag{Name: "recovery", Value: "resume", Usage: "What to do with a stored draft: resume|discard"},
		},
		Action: func(c *cli.Context) error {
			key, err := ops.ValidateKey(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			recovery := c.String("recovery")
			if recovery != "resume" && recovery != "discard" {
				return outputError(errors.NewInvalidRequest("recovery must be one of: resume, discard"))
			}
			debounce := c.Duration("debounce")
			if debounce <= 0 {
				debounce = env.cfg.Debounce()
			}

			unload := draft.NewUnload()
			ctl := draft.New(env.store, json.RawMessage(nil), draft.Options{
				Key:      key,
				MaxAge:   env.cfg.MaxAge(),
				Debounce: debounce,
				Unload:   unload,
				Logger:   &env.log,
			})
			defer ctl.Close()

			result := trackResult{Key: key}
			if ctl.Status() == draft.StatusRecovered {
				result.Recovered = true
				if recovery == "resume" {
					data, _ := ctl.AcceptRecovery()
					ctl.Update(data)
					// The host loads this line before sending its own snapshots.
					fmt.Fprintf(c.App.Writer, "%s\n", compactJSON(data))
				} else {
					ctl.DismissRecovery()
				}
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			lines := make(chan []byte)
			scanErr := make(chan error, 1)
			go func() {
				scanner := bufio.NewScanner(c.App.Reader)
				scanner.Buffer(make([]byte, 0, 64*1024), int(maxInputBytes(env.cfg)))
				for scanner.Scan() {
					line := append([]byte(nil), scanner.Bytes()...)
					select {
					case lines <- line:
					case <-ctx.Done():
						return
					}
				}
				scanErr <- scanner.Err()
				close(lines)
			}()

			consume(ctx, ctl, lines, &result, env)
			select {
			case err := <-scanErr:
				if err != nil {
					env.log.Warn().Err(err).Msg("stopped reading input")
				}
			default:
			}

			unload.Fire()
			result.Status = ctl.Status()
			return outputJSON(c.App.Writer, result)
		},
	}
}

// consume feeds lines into ctl until input ends or ctx is cancelled.
func consume(ctx context.Context, ctl *draft.Controller[json.RawMessage], lines <-chan []byte, result *trackResult, env *appEnv) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if len(line) == 0 {
				continue
			}
			if !json.Valid(line) {
				env.log.Warn().Int("bytes", len(line)).Msg("skipping line that is not valid JSON")
				result.Skipped++
				continue
			}
			ctl.Update(json.RawMessage(line))
			result.Updates++
		}
	}
}

func compactJSON(data json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}
