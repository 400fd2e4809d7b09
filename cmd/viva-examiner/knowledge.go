// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/viva-examiner/internal/knowledge"
)

// --- build ---

var buildCmd = &cobra.Command{
	Use:   "build [document]",
	Short: "Index a parsed paper into a new retrieval index version",
	Long: `Build loads a parsed paper (Markdown with ## headings and <!-- page N -->
markers, or a YAML/JSON document), splits it into chunks, embeds them, extracts
candidate concepts, and writes a new immutable index version for the paper.
Sessions already running keep the version they started on.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	paperID, _ := cmd.Flags().GetString("paper")
	if paperID == "" {
		return fmt.Errorf("--paper is required")
	}

	svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	kb, err := svc.BuildKnowledgeBase(cmd.Context(), args[0], paperID)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %s: %d chunks, %d concepts\n", kb.PaperID, len(kb.Chunks), len(kb.Concepts))
	fmt.Printf("Index: %s\n", kb.IndexRef)
	return nil
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve the chunks of a paper closest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	paperID, _ := cmd.Flags().GetString("paper")
	k, _ := cmd.Flags().GetInt("k")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Query(cmd.Context(), paperID, strings.Join(args, " "), k)
	if err != nil {
		return err
	}
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []knowledge.Retrieved, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-6s  %-60s  %-20s  %s\n", "Rank", "Score", "Text", "Section", "Page")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, r := range results {
		text := strings.Join(strings.Fields(r.Text), " ")
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		section := r.Metadata.Section
		if len(section) > 20 {
			section = section[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-6.3f  %-60s  %-20s  %d\n", i+1, r.Score, text, section, r.Metadata.Page)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- versions ---

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the index versions of a paper, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		paperID, _ := cmd.Flags().GetString("paper")
		refs, err := knowledge.Versions(cfg.Store.IndexDir, paperID)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Printf("No index for paper %s.\n", paperID)
			return nil
		}
		for _, ref := range refs {
			fmt.Println(ref)
		}
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an index's chunks and concepts to YAML or JSON",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	paperID, _ := cmd.Flags().GetString("paper")
	ref, _ := cmd.Flags().GetString("index")
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("output")
	if paperID == "" && ref == "" {
		return fmt.Errorf("--paper or --index is required")
	}
	if out == "" {
		ext := format
		if ext == "" {
			ext = "yaml"
		}
		out = fmt.Sprintf("%s-export.%s", paperID, ext)
		if paperID == "" {
			out = "export." + ext
		}
	}

	svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Export(cmd.Context(), paperID, ref, out, format); err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", out)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{buildCmd, queryCmd, versionsCmd, exportCmd} {
		c.Flags().String("paper", "", "paper identifier")
	}
	_ = queryCmd.MarkFlagRequired("paper")
	_ = versionsCmd.MarkFlagRequired("paper")

	queryCmd.Flags().Int("k", knowledge.DefaultK, "number of chunks to return")
	queryCmd.Flags().Bool("json", false, "output results as JSON")

	exportCmd.Flags().String("index", "", "index file to export (default: the paper's latest)")
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	exportCmd.Flags().String("output", "", "output path (default: <paper>-export.<format>)")

	rootCmd.AddCommand(buildCmd, queryCmd, versionsCmd, exportCmd)
}
