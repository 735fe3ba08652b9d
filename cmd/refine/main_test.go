// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/internal/config"
	"github.com/pdiddy/reference-refine/internal/workflow"
	"github.com/pdiddy/reference-refine/pkg/types"
)

const workingFile = `[1] Newport, C. (2016). Deep Work. Grand Central Publishing.
Relevance: sustained attention in knowledge work

[2] Kahneman, D. (2011). Thinking, Fast and Slow. Farrar, Straus and Giroux.
Q: Kahneman thinking fast and slow
`

// workdir runs the test from a fresh directory holding refine.yaml and the
// working file, with no credentials in the environment.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	t.Setenv("HOME", dir)
	for _, env := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_CSE_API_KEY", "GOOGLE_CSE_ID", "JINA_API_KEY"} {
		t.Setenv(env, "")
	}

	require.NoError(t, os.WriteFile("refine.yaml", []byte("files:\n  working: refs.txt\n  final: final.txt\nlog:\n  level: error\n"), 0o644))
	require.NoError(t, os.WriteFile("refs.txt", []byte(workingFile), 0o644))
	return dir
}

// execute runs the CLI with args. Flags are reset first because the command
// tree is package state shared between runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func loadRefs(t *testing.T) map[int]types.Reference {
	t.Helper()
	data, err := os.ReadFile("refs.txt")
	require.NoError(t, err)
	doc, issues := codec.Parse(string(data))
	require.Empty(t, issues)
	refs := map[int]types.Reference{}
	for _, r := range doc.References {
		refs[r.ID] = r
	}
	return refs
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "list", "stats", "show", "queries", "search", "set", "edit-queries", "finalize", "reconcile", "validate", "add", "version"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"resume", "sample-size", "batch-size", "auto-finalize"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestListAndShow(t *testing.T) {
	workdir(t)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Deep Work")
	assert.Contains(t, out, "2 references")

	out, err = execute(t, "list", "--status", "queried")
	require.NoError(t, err)
	assert.Contains(t, out, "Thinking, Fast and Slow")
	assert.NotContains(t, out, "Deep Work")

	out, err = execute(t, "list", "--q", "ATTENTION")
	require.NoError(t, err)
	assert.Contains(t, out, "1 references")

	_, err = execute(t, "list", "--missing", "sometimes")
	assert.ErrorContains(t, err, "unsupported --missing")

	out, err = execute(t, "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Q: Kahneman thinking fast and slow")
	assert.Contains(t, out, "Status: queried")

	_, err = execute(t, "show", "9")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestSetFinalizeAndAudit(t *testing.T) {
	workdir(t)

	_, err := execute(t, "set", "1", "--primary", "https://www.hachettebookgroup.com/titles/cal-newport/deep-work/9781455586691/")
	require.NoError(t, err)

	out, err := execute(t, "finalize", "1", "2")
	require.ErrorIs(t, err, workflow.ErrFinalizationRejected)
	assert.Contains(t, out, "Finalized [1]")
	assert.Contains(t, out, "1 of 2 reference(s) rejected")

	refs := loadRefs(t)
	assert.Equal(t, types.StatusFinalized, refs[1].Status)
	assert.Equal(t, types.StatusQueried, refs[2].Status)

	final, err := os.ReadFile("final.txt")
	require.NoError(t, err)
	assert.Contains(t, string(final), "[1] Newport")
	assert.NotContains(t, string(final), "[2]")

	audit, err := os.ReadFile("overrides.ndjson")
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"event":"primary_override"`)
	assert.Contains(t, string(audit), `"event":"finalize"`)
	assert.Contains(t, string(audit), `"event":"finalize_rejected"`)

	_, err = execute(t, "set", "1", "--primary", "")
	assert.ErrorIs(t, err, workflow.ErrFinalizationRejected)
}

func TestFinalizeRefusesUnrankedQueries(t *testing.T) {
	workdir(t)
	_, err := execute(t, "set", "2", "--primary", "https://us.macmillan.com/books/9780374533557")
	require.NoError(t, err)

	out, err := execute(t, "finalize", "2")
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Contains(t, out, "1 of 1 reference(s) rejected")
	assert.Equal(t, types.StatusQueried, loadRefs(t)[2].Status)
	assert.NoFileExists(t, "final.txt")
}

func TestReconcileRepairsFinalFile(t *testing.T) {
	workdir(t)
	_, err := execute(t, "set", "1", "--primary", "https://example.org/deep-work")
	require.NoError(t, err)
	_, err = execute(t, "finalize", "1")
	require.NoError(t, err)

	require.NoError(t, os.Remove("final.txt"))
	out, err := execute(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Rewrote 1 block(s): [1]")

	out, err = execute(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
}

func TestEditQueriesAndAdd(t *testing.T) {
	workdir(t)

	out, err := execute(t, "edit-queries", "1", "\"Deep Work\" Newport", "Deep Work site:worldcat.org")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] now has 2 queries (queried)")

	out, err = execute(t, "add", "Doe, J. (2020). A New Book. University Press.", "--relevance", "background")
	require.NoError(t, err)
	assert.Contains(t, out, "Added [3] A New Book")

	refs := loadRefs(t)
	require.Contains(t, refs, 3)
	assert.Equal(t, "background", refs[3].Relevance)
	assert.Equal(t, []string{`"Deep Work" Newport`, "Deep Work site:worldcat.org"}, refs[1].Queries)

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "References:      3")
}

func TestRunRequiresCredentials(t *testing.T) {
	workdir(t)
	_, err := execute(t, "run")
	require.ErrorIs(t, err, config.ErrCredentialMissing)

	// Nothing was created or touched.
	_, statErr := os.Stat("runs")
	assert.True(t, os.IsNotExist(statErr))
	data, err := os.ReadFile("refs.txt")
	require.NoError(t, err)
	assert.Equal(t, workingFile, string(data))
}

func TestWritersAreExclusive(t *testing.T) {
	dir := workdir(t)
	c, err := config.Load("", nil)
	require.NoError(t, err)
	ws, err := openWritable(c)
	require.NoError(t, err)
	defer ws.Close()

	_, err = execute(t, "set", "1", "--relevance", "x")
	assert.ErrorContains(t, err, "locked")

	// Readers need no lock.
	_, err = execute(t, "list")
	assert.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "refs.txt.lock"))
}

func TestValidateURL(t *testing.T) {
	workdir(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paywall":
			w.Write([]byte("Subscribe to continue reading"))
		default:
			w.Write([]byte("Deep Work: Rules for Focused Success in a Distracted World by Cal Newport, 2016"))
		}
	}))
	defer ts.Close()

	out, err := execute(t, "validate", ts.URL+"/book", "--citation", "Newport, C. (2016). Deep Work: Rules for Focused Success. Grand Central.")
	require.NoError(t, err)
	assert.Contains(t, out, "100")

	_, err = execute(t, "set", "1", "--primary", ts.URL+"/book", "--secondary", ts.URL+"/paywall")
	require.NoError(t, err)
	out, err = execute(t, "validate", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] primary")
	assert.Contains(t, out, "2 URLs: 1 accessible, 1 paywalled")
}

func TestListFilter(t *testing.T) {
	refs := []types.Reference{
		{ID: 1, Title: "A", Status: types.StatusDraft},
		{ID: 2, Title: "B", Status: types.StatusRanked, PrimaryURL: "https://b"},
		{ID: 3, Title: "C", Status: types.StatusFinalized, PrimaryURL: "https://c", SecondaryURL: "https://c2"},
	}
	tests := []struct {
		name string
		f    listFilter
		want []int
	}{
		{"no filter", listFilter{}, []int{1, 2, 3}},
		{"missing primary", listFilter{missing: "primary"}, []int{1}},
		{"missing secondary", listFilter{missing: "secondary"}, []int{1, 2}},
		{"missing any", listFilter{missing: "any"}, []int{1, 2}},
		{"status", listFilter{status: types.StatusFinalized}, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, r := range refs {
				if tt.f.match(r) {
					got = append(got, r.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
