// Package summaries exposes the summary memory manager on the command line.
package summaries

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/cmd/cmdutil"
	"github.com/chirino/summary-memory/internal/config"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/chirino/summary-memory/internal/summary"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type options struct {
	cfg      config.Config
	cacheTTL string

	userID          string
	conversationID  string
	memoryConfig    string
	cadence         float64
	charLimit       float64
	disabled        bool
	personalization bool
}

// Command returns the summaries sub-command.
func Command() *cli.Command {
	o := &options{cfg: config.DefaultConfig()}
	return &cli.Command{
		Name:  "summaries",
		Usage: "Inspect and write persisted conversation summaries",
		Flags: append(cmdutil.Flags(&o.cfg, &o.cacheTTL), o.flags()...),
		Commands: []*cli.Command{
			listCommand(o),
			latestCommand(o),
			persistCommand(o),
			replayCommand(o),
		},
	}
}

func (o *options) flags() []cli.Flag {
	return []cli.Flag{
		// ── Session ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "user",
			Category:    "Session:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_USER"),
			Destination: &o.userID,
			Usage:       "User that owns the memory entries",
		},
		&cli.StringFlag{
			Name:        "conversation",
			Category:    "Session:",
			Destination: &o.conversationID,
			Usage:       "Conversation id",
		},

		// ── Memory policy ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "memory-config",
			Category:    "Memory policy:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_CONFIG"),
			Destination: &o.memoryConfig,
			Usage:       "YAML file with the account memory policy",
		},
		&cli.FloatFlag{
			Name:        "summary-cadence",
			Category:    "Memory policy:",
			Destination: &o.cadence,
			Usage:       "Persist every Nth generated summary (overrides --memory-config)",
		},
		&cli.FloatFlag{
			Name:        "summary-char-limit",
			Category:    "Memory policy:",
			Destination: &o.charLimit,
			Usage:       "Truncate persisted summaries to this many characters (overrides --memory-config)",
		},
		&cli.BoolFlag{
			Name:        "memory-disabled",
			Category:    "Memory policy:",
			Destination: &o.disabled,
			Usage:       "Disable summary memory for the account",
		},
		&cli.BoolFlag{
			Name:        "personalization",
			Category:    "Memory policy:",
			Destination: &o.personalization,
			Value:       true,
			Usage:       "User-level personalization switch; false disables summary memory",
		},
	}
}

func (o *options) memoryPolicy(cmd *cli.Command) (*summary.MemoryConfig, error) {
	mc := &summary.MemoryConfig{}
	if o.memoryConfig != "" {
		loaded, err := summary.LoadMemoryConfig(o.memoryConfig)
		if err != nil {
			return nil, err
		}
		mc = loaded
	}
	if cmd.IsSet("summary-cadence") {
		v := o.cadence
		mc.SummaryCadence = &v
	}
	if cmd.IsSet("summary-char-limit") {
		v := o.charLimit
		mc.CharLimit = &v
	}
	if cmd.IsSet("memory-disabled") {
		mc.Disabled = o.disabled
	}
	return mc, nil
}

// session holds what every sub-command action needs.
type session struct {
	ctx     context.Context
	store   registrystore.EntryStore
	cleanup cmdutil.Cleanup
	manager *summary.Manager
	out     io.Writer
}

func (o *options) open(ctx context.Context, cmd *cli.Command, requireConversation bool) (*session, error) {
	if strings.TrimSpace(o.userID) == "" {
		return nil, fmt.Errorf("--user is required")
	}
	if requireConversation && strings.TrimSpace(o.conversationID) == "" {
		return nil, fmt.Errorf("--conversation is required")
	}
	ctx, err := cmdutil.Setup(ctx, &o.cfg, o.cacheTTL)
	if err != nil {
		return nil, err
	}
	mc, err := o.memoryPolicy(cmd)
	if err != nil {
		return nil, err
	}
	store, cleanup, err := cmdutil.OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := summary.Options{UserID: o.userID, Config: mc, ConversationID: o.conversationID}
	if cmd.IsSet("personalization") {
		v := o.personalization
		opts.Personalization = &v
	}
	m := summary.New(store, opts)
	if !m.Enabled() {
		log.Warn("Summary memory is disabled for this session", "user", o.userID)
	}
	policy := m.Policy()
	log.Debug("Summary memory policy", "cadence", policy.Cadence, "charLimit", policy.CharLimit)
	return &session{ctx: ctx, store: store, cleanup: cleanup, manager: m, out: cmd.Root().Writer}, nil
}

func (o *options) close(s *session) {
	if s == nil {
		return
	}
	cmdutil.PushMetrics(s.ctx, &o.cfg)
	if s.cleanup != nil {
		s.cleanup(s.ctx)
	}
}

func listCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print persisted summary keys, for one conversation in storage order or for every conversation",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := o.open(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer o.close(s)

			if o.conversationID == "" {
				entries, err := s.store.ListEntries(s.ctx, o.userID)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if strings.HasPrefix(e.Key, summary.KeyPrefix) {
						fmt.Fprintln(s.out, e.Key)
					}
				}
				return nil
			}

			res := s.manager.EnsureLoaded(s.ctx, "")
			if res.Status == summary.LoadFailed {
				return res.Err
			}
			for _, e := range res.Entries {
				fmt.Fprintln(s.out, e.Key)
			}
			return nil
		},
	}
}

func latestCommand(o *options) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Print the latest persisted summary of a conversation as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := o.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer o.close(s)

			msg := s.manager.LatestSummaryMessage(s.ctx, "")
			if msg == nil {
				return nil
			}
			enc := json.NewEncoder(s.out)
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		},
	}
}

func persistCommand(o *options) *cli.Command {
	var text string
	var tokenCount int
	var attempt int
	return &cli.Command{
		Name: "persist",
		Usage: "Record one summary generation attempt; the summary is read from stdin when --summary is not set. " +
			"Each invocation starts from the persisted count, so pass --attempt when the cadence is above 1",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "summary",
				Destination: &text,
				Usage:       "Summary text",
			},
			&cli.IntFlag{
				Name:        "token-count",
				Destination: &tokenCount,
				Usage:       "Token count of the summary",
			},
			&cli.IntFlag{
				Name:        "attempt",
				Destination: &attempt,
				Usage:       "1-based generation attempt of this summary in the conversation",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := o.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer o.close(s)

			if !cmd.IsSet("summary") {
				data, err := io.ReadAll(cmd.Root().Reader)
				if err != nil {
					return fmt.Errorf("read summary from stdin: %w", err)
				}
				text = string(data)
			}
			req := summary.PersistRequest{Summary: text}
			if cmd.IsSet("token-count") {
				v := tokenCount
				req.TokenCount = &v
			}
			if cmd.IsSet("attempt") {
				if attempt < 1 {
					return fmt.Errorf("--attempt must be at least 1")
				}
				req.Attempt = attempt
			} else if s.manager.Enabled() && s.manager.Policy().Cadence > 1 {
				log.Warn("Persisting without --attempt; cadence counts from the persisted summaries",
					"cadence", s.manager.Policy().Cadence, "hint", "pass --attempt or use replay")
			}
			res := s.manager.PersistSummary(s.ctx, req)
			printResult(s.out, res)
			if res.Status == summary.PersistFailed {
				return res.Err
			}
			return nil
		},
	}
}

func replayCommand(o *options) *cli.Command {
	var file string
	return &cli.Command{
		Name:  "replay",
		Usage: "Feed each summary of a file as a successive generation attempt through one manager; a conversation id is generated when none is given",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Destination: &file,
				Required:    true,
				Usage:       "Text file with one summary per line, or a YAML list of summaries (.yaml/.yml)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			summaries, err := readSummaries(file)
			if err != nil {
				return err
			}
			if o.conversationID == "" {
				o.conversationID = uuid.NewString()
				log.Info("Generated conversation id", "conversation", o.conversationID)
			}
			s, err := o.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer o.close(s)

			failed := 0
			for _, text := range summaries {
				res := s.manager.PersistSummary(s.ctx, summary.PersistRequest{Summary: text})
				printResult(s.out, res)
				if res.Status == summary.PersistFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d summaries failed to persist", failed, len(summaries))
			}
			return nil
		},
	}
}

func printResult(w io.Writer, res summary.PersistResult) {
	line := res.Status.String()
	if res.Attempt > 0 {
		line += fmt.Sprintf(" attempt=%d", res.Attempt)
	}
	if res.Key != "" {
		line += " key=" + res.Key
	}
	fmt.Fprintln(w, line)
}

func readSummaries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var items []string
		if err := yaml.NewDecoder(f).Decode(&items); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parse replay file %s: %w", path, err)
		}
		return items, nil
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	return lines, nil
}
