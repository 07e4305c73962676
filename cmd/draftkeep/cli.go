package main

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/ops"
	"github.com/hpungsan/draftkeep/internal/prompt"
	"github.com/hpungsan/draftkeep/internal/web"
)

// appEnv carries what every command needs once storage is open.
type appEnv struct {
	store   *draft.Store
	cfg     *config.Config
	baseDir string
	log     zerolog.Logger
}

func (e *appEnv) policy() ops.PathPolicy {
	return ops.NewPathPolicy(e.cfg, e.baseDir)
}

// newCLIApp creates the CLI application with all commands.
// env may be nil when only help or version output is needed.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "draftkeep",
		Usage:   "Local draft persistence for long forms",
		Version: Version,
		Commands: []*cli.Command{
			writeCmd(env),
			readCmd(env),
			removeCmd(env),
			listCmd(env),
			purgeCmd(env),
			exportCmd(env),
			importCmd(env),
			recoverCmd(env),
			trackCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// writeCmd creates the write command.
func writeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "write",
		Usage:     "Store a draft (reads the JSON payload from stdin)",
		ArgsUsage: "<key>",
		Action: func(c *cli.Context) error {
			if !stdinHasData(c.App.Reader) {
				return outputError(errors.NewInvalidRequest("draft data must be piped via stdin"))
			}
			data, err := readStdin(c.App.Reader, maxInputBytes(env.cfg))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			output, err := ops.Write(env.store, ops.WriteInput{
				Key:  c.Args().First(),
				Data: json.RawMessage(data),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// readCmd creates the read command.
func readCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Print a stored draft",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			maxAgeFlag(),
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Read(env.store, ops.ReadInput{
				Key:    c.Args().First(),
				MaxAge: maxAge(c, env.cfg),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// removeCmd creates the remove command.
func removeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete a stored draft",
		ArgsUsage: "<key>",
		Action: func(c *cli.Context) error {
			output, err := ops.Remove(env.store, ops.RemoveInput{Key: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored drafts",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results (max 100)"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
			maxAgeFlag(),
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(env.store, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
				MaxAge: maxAge(c, env.cfg),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete drafts too old to be recovered",
		Flags: []cli.Flag{
			maxAgeFlag(),
			&cli.BoolFlag{Name: "corrupt", Usage: "Also delete envelopes that cannot be parsed"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Purge(env.store, ops.PurgeInput{
				MaxAge:         maxAge(c, env.cfg),
				IncludeCorrupt: c.Bool("corrupt"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export drafts to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.draftkeep/exports/<prefix>-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env.store, env.policy(), ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import drafts from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, env.store, env.policy(), ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// recoverResult is printed by the recover command.
type recoverResult struct {
	Key    string          `json:"key"`
	Choice string          `json:"choice"` // "resume", "start_new", or "none"
	Data   json.RawMessage `json:"data,omitempty"`
}

// recoverCmd creates the recover command.
func recoverCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "recover",
		Usage:     "Offer a stored draft for recovery and resume or discard it",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Usage: "Form name shown in the prompt (e.g. \"permit\")"},
			&cli.StringFlag{Name: "choice", Aliases: []string{"c"}, Usage: "Answer without asking: r (resume) or n (start new)"},
			&cli.StringFlag{Name: "tz", Usage: "IANA time zone for the saved-at time (default: local)"},
		},
		Action: func(c *cli.Context) error {
			key, err := ops.ValidateKey(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			loc, err := location(c.String("tz"))
			if err != nil {
				return outputError(err)
			}

			ctl := draft.New(env.store, json.RawMessage(nil), draft.Options{
				Key:    key,
				MaxAge: env.cfg.MaxAge(),
				Logger: &env.log,
			})
			defer ctl.Close()

			result := recoverResult{Key: key, Choice: "none"}
			p := prompt.ForController(ctl, c.String("label"), func(data json.RawMessage) { result.Data = data })
			if !p.IsOpen {
				fmt.Fprintf(c.App.ErrWriter, "No recoverable draft for %q\n", key)
				return outputJSON(c.App.Writer, result)
			}

			choice := strings.ToLower(strings.TrimSpace(c.String("choice")))
			if choice == "" {
				fmt.Fprintln(c.App.ErrWriter, p.RenderTerminal(env.store.Clock().Now(), loc, 0))
				fmt.Fprint(c.App.ErrWriter, "> ")
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && !stderrors.Is(err, io.EOF) {
					return outputError(errors.NewInternal(err))
				}
				choice = strings.ToLower(strings.TrimSpace(line))
			}

			switch choice {
			case "r", "resume":
				p.Resume()
				result.Choice = "resume"
			case "n", "new", "start_new":
				p.StartNew()
				result.Choice = "start_new"
			default:
				p.Close()
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown choice %q (want r or n)", choice)))
			}

			return outputJSON(c.App.Writer, result)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve draft sessions over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			sessions := web.NewSessions(env.store, env.cfg, env.log)
			srv := web.NewServer(sessions, env.store, env.cfg, env.log, c.String("bind"), c.Int("port"))
			if err := web.Run(srv, sessions, env.log); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

func maxAgeFlag() cli.Flag {
	return &cli.DurationFlag{Name: "max-age", Usage: "Staleness threshold, e.g. 24h (default from config)"}
}

// maxAge returns the --max-age flag, falling back to the configured value.
func maxAge(c *cli.Context, cfg *config.Config) time.Duration {
	if d := c.Duration("max-age"); d > 0 {
		return d
	}
	return cfg.MaxAge()
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.NewInvalidRequest("unknown time zone: " + tz)
	}
	return loc, nil
}

// maxInputBytes bounds a piped payload; envelopes are capped well below it.
func maxInputBytes(cfg *config.Config) int64 {
	if cfg.MaxEnvelopeBytes > 0 {
		return int64(cfg.MaxEnvelopeBytes) * 2
	}
	return 16 << 20
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var dErr *errors.DraftError
	if stderrors.As(err, &dErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", dErr.Code, dErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if r has piped data (is not a terminal).
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of r, failing if it exceeds limit bytes.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
