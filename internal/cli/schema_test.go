package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree() *cobra.Command {
	root := &cobra.Command{Use: "tenantpal", Short: "root"}
	root.PersistentFlags().String("log-level", "", "Log level")
	AddHelpJSONFlag(root)

	run := &cobra.Command{Use: "run", Short: "Run the crew", RunE: func(*cobra.Command, []string) error { return nil }}
	run.Flags().String("crew", "", "Crew file")
	run.Flags().IntP("max-parallel", "m", 3, "Concurrency")

	ingest := &cobra.Command{Use: "ingest", Short: "Ingest", RunE: func(*cobra.Command, []string) error { return nil }}
	ingest.Flags().String("document", "", "Document")
	_ = ingest.MarkFlagRequired("document")

	crew := &cobra.Command{Use: "crew", Short: "Crew tools"}
	crew.AddCommand(&cobra.Command{Use: "validate", Short: "Validate", RunE: func(*cobra.Command, []string) error { return nil }})

	hidden := &cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}}

	root.AddCommand(run, ingest, crew, hidden)
	return root
}

func findFlag(flags []FlagSchema, name string) (FlagSchema, bool) {
	for _, f := range flags {
		if f.Name == name {
			return f, true
		}
	}
	return FlagSchema{}, false
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(newTestTree())

	assert.Equal(t, "tenantpal", schema.Name)
	assert.False(t, schema.Runnable)
	require.Len(t, schema.Subcommands, 3)

	var names []string
	for _, sub := range schema.Subcommands {
		names = append(names, sub.Name)
	}
	assert.ElementsMatch(t, []string{"run", "ingest", "crew"}, names)

	_, ok := findFlag(schema.Flags, HelpJSONFlag)
	assert.False(t, ok)
}

func TestGenerateSchema_Flags(t *testing.T) {
	root := newTestTree()
	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)

	schema := GenerateSchema(run)

	assert.Equal(t, "tenantpal run", schema.Path)
	assert.True(t, schema.Runnable)

	parallel, ok := findFlag(schema.Flags, "max-parallel")
	require.True(t, ok)
	assert.Equal(t, "m", parallel.Shorthand)
	assert.Equal(t, "int", parallel.Type)
	assert.Equal(t, "3", parallel.Default)
	assert.False(t, parallel.Inherited)

	level, ok := findFlag(schema.Flags, "log-level")
	require.True(t, ok)
	assert.True(t, level.Inherited)
}

func TestGenerateSchema_RequiredFlag(t *testing.T) {
	root := newTestTree()
	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)

	doc, ok := findFlag(GenerateSchema(ingest).Flags, "document")
	require.True(t, ok)
	assert.True(t, doc.Required)
}

func TestHandleHelpJSON(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		handled  bool
		wantName string
	}{
		{"no flag", []string{"run"}, false, ""},
		{"root", []string{"--help-json"}, true, "tenantpal"},
		{"subcommand", []string{"run", "--help-json"}, true, "run"},
		{"nested", []string{"crew", "validate", "--help-json"}, true, "validate"},
		{"flags before", []string{"--log-level", "debug", "crew", "--help-json"}, true, "crew"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			handled, err := HandleHelpJSON(newTestTree(), tt.args, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.handled, handled)
			if !tt.handled {
				assert.Empty(t, out.String())
				return
			}

			var schema CommandSchema
			require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
			assert.Equal(t, tt.wantName, schema.Name)
		})
	}
}
