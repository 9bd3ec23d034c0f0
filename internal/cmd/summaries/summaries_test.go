package summaries

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/chirino/summary-memory/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := &cli.Command{
		Name:      "summary-memory",
		Commands:  []*cli.Command{Command()},
		Writer:    &out,
		ErrWriter: &out,
		Reader:    strings.NewReader(stdin),
	}
	err := root.Run(context.Background(), append([]string{"summary-memory"}, args...))
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func dbFlags(t *testing.T) []string {
	t.Helper()
	return []string{"--db-kind", "sqlite", "--db-url", filepath.Join(t.TempDir(), "memory.db"), "--log-level", "error"}
}

func persistArgs(db []string, extra ...string) []string {
	args := append([]string{"summaries", "persist"}, db...)
	args = append(args, "--user", "alice", "--conversation", "C1", "--summary-cadence", "3")
	return append(args, extra...)
}

func TestPersist_AttemptKeepsCadenceAcrossInvocations(t *testing.T) {
	db := dbFlags(t)

	var got []string
	for attempt := 1; attempt <= 6; attempt++ {
		out, err := run(t, "", persistArgs(db, "--attempt", strconv.Itoa(attempt), "--summary", fmt.Sprintf("summary %d", attempt))...)
		require.NoError(t, err)
		got = append(got, strings.TrimSpace(out))
	}
	assert.Equal(t, []string{
		"persisted attempt=1 key=convo-summary-c1-1",
		"skipped_cadence attempt=2",
		"persisted attempt=3 key=convo-summary-c1-2",
		"skipped_cadence attempt=4",
		"skipped_cadence attempt=5",
		"persisted attempt=6 key=convo-summary-c1-3",
	}, got)
}

// Without --attempt each invocation is a cold start: the attempt is always
// one past the persisted count, so only the first call writes at cadence 3.
func TestPersist_WithoutAttemptCountsFromPersisted(t *testing.T) {
	db := dbFlags(t)

	var got []string
	for i := 1; i <= 4; i++ {
		out, err := run(t, "", persistArgs(db, "--summary", fmt.Sprintf("summary %d", i))...)
		require.NoError(t, err)
		got = append(got, strings.TrimSpace(out))
	}
	assert.Equal(t, []string{
		"persisted attempt=1 key=convo-summary-c1-1",
		"skipped_cadence attempt=2",
		"skipped_cadence attempt=2",
		"skipped_cadence attempt=2",
	}, got)
}

func TestPersist_RejectsNonPositiveAttempt(t *testing.T) {
	_, err := run(t, "", persistArgs(dbFlags(t), "--attempt", "0", "--summary", "x")...)
	require.ErrorContains(t, err, "--attempt must be at least 1")
}

func TestPersist_ReadsStdinAndTokenCount(t *testing.T) {
	db := dbFlags(t)
	args := append([]string{"summaries", "persist"}, db...)
	args = append(args, "--user", "alice", "--conversation", "C1", "--token-count", "9")

	out, err := run(t, "  summary from stdin \n", args...)
	require.NoError(t, err)
	assert.Contains(t, out, "persisted")

	latest := append([]string{"summaries", "latest"}, db...)
	out, err = run(t, "", append(latest, "--user", "alice", "--conversation", "C1")...)
	require.NoError(t, err)

	var msg summary.SummaryMessage
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Equal(t, "convo-summary-c1-1", msg.MessageID)
	assert.Equal(t, "summary from stdin", msg.Summary)
	assert.Equal(t, 9, msg.TokenCount)
}

func TestPersist_RequiresConversation(t *testing.T) {
	args := append([]string{"summaries", "persist"}, dbFlags(t)...)
	_, err := run(t, "", append(args, "--user", "alice", "--summary", "x")...)
	require.ErrorContains(t, err, "--conversation is required")
}

func TestPersist_RequiresUser(t *testing.T) {
	args := append([]string{"summaries", "persist"}, dbFlags(t)...)
	_, err := run(t, "", append(args, "--conversation", "c", "--summary", "x")...)
	require.ErrorContains(t, err, "--user is required")
}

func TestPersist_DisabledPolicies(t *testing.T) {
	db := dbFlags(t)
	args := append([]string{"summaries", "persist"}, db...)
	args = append(args, "--user", "alice", "--conversation", "C1", "--summary", "x")

	out, err := run(t, "", append(args, "--memory-disabled")...)
	require.NoError(t, err)
	assert.Equal(t, "disabled", strings.TrimSpace(out))

	out, err = run(t, "", append(args, "--personalization=false")...)
	require.NoError(t, err)
	assert.Equal(t, "disabled", strings.TrimSpace(out))
}

func TestReplay_CadenceThree(t *testing.T) {
	db := dbFlags(t)
	file := filepath.Join(t.TempDir(), "summaries.txt")
	require.NoError(t, os.WriteFile(file, []byte("s1\ns2\n\ns3\ns4\ns5\ns6\ns7\n"), 0o644))

	args := append([]string{"summaries", "replay"}, db...)
	out, err := run(t, "", append(args, "--user", "alice", "--conversation", "C1", "--summary-cadence", "3", "--file", file)...)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"persisted attempt=1 key=convo-summary-c1-1",
		"skipped_cadence attempt=2",
		"persisted attempt=3 key=convo-summary-c1-2",
		"skipped_cadence attempt=4",
		"skipped_cadence attempt=5",
		"persisted attempt=6 key=convo-summary-c1-3",
		"skipped_cadence attempt=7",
	}, lines(out))

	list := append([]string{"summaries", "list"}, db...)
	out, err = run(t, "", append(list, "--user", "alice", "--conversation", "C1")...)
	require.NoError(t, err)
	assert.Equal(t, []string{"convo-summary-c1-1", "convo-summary-c1-2", "convo-summary-c1-3"}, lines(out))
}

func TestReplay_YAMLWithMemoryConfigFile(t *testing.T) {
	db := dbFlags(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "summaries.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- alpha summary\n- alpha summary\n- beta summary that is long\n"), 0o644))
	policy := filepath.Join(dir, "memory.yaml")
	require.NoError(t, os.WriteFile(policy, []byte("summaryCadence: 1\ncharLimit: 10\n"), 0o644))

	args := append([]string{"summaries", "replay"}, db...)
	out, err := run(t, "", append(args, "--user", "bob", "--conversation", "Chat", "--memory-config", policy, "--file", file)...)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"persisted attempt=1 key=convo-summary-chat-1",
		"skipped_duplicate attempt=2",
		"persisted attempt=3 key=convo-summary-chat-2",
	}, lines(out))

	latest := append([]string{"summaries", "latest"}, db...)
	out, err = run(t, "", append(latest, "--user", "bob", "--conversation", "Chat")...)
	require.NoError(t, err)
	var msg summary.SummaryMessage
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	assert.Equal(t, "beta summa", msg.Summary)
}

func TestList_AllConversationsWithLocalCache(t *testing.T) {
	db := append(dbFlags(t), "--cache-kind", "local")
	persist := append([]string{"summaries", "persist"}, db...)
	for _, conv := range []string{"b", "a"} {
		_, err := run(t, "", append(persist, "--user", "carol", "--conversation", conv, "--summary", "hello "+conv)...)
		require.NoError(t, err)
	}

	list := append([]string{"summaries", "list"}, db...)
	out, err := run(t, "", append(list, "--user", "carol")...)
	require.NoError(t, err)
	assert.Equal(t, []string{"convo-summary-a-1", "convo-summary-b-1"}, lines(out))
}

func TestLatest_EmptyConversationPrintsNothing(t *testing.T) {
	args := append([]string{"summaries", "latest"}, dbFlags(t)...)
	out, err := run(t, "", append(args, "--user", "dave", "--conversation", "none")...)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadSummaries(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "s.txt")
	require.NoError(t, os.WriteFile(txt, []byte("  one \n\n two\n"), 0o644))
	got, err := readSummaries(txt)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	_, err = readSummaries(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}
