package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var themeDocIDs []string

var themesCmd = &cobra.Command{
	Use:   "themes [query]",
	Short: "Answer a question across documents and synthesise themes",
	Long: `Answers the query against each selected completed document, then groups the
answers into themes. Without --doc every completed document is used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runThemes,
}

func init() {
	themesCmd.Flags().StringArrayVarP(&themeDocIDs, "doc", "d", nil, "document id (repeatable)")
	rootCmd.AddCommand(themesCmd)
}

func runThemes(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Analysis.QueryDocuments(ctx, strings.Join(args, " "), themeDocIDs)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, res)
	}

	cmd.Println("Document answers:")
	for _, r := range res.DocumentResults {
		cmd.Printf("  [%s] %s\n", r.DocID, r.Answer)
		cmd.Printf("      %s (%.2f)\n", r.Citation, r.Confidence)
	}
	cmd.Println()
	cmd.Println("Themes:")
	for i, t := range res.Themes {
		cmd.Printf("  %d. %s\n", i+1, t.Name)
		cmd.Printf("     docs: %s\n", strings.Join(t.DocIDs, ", "))
	}
	cmd.Println()
	cmd.Println(res.SynthesizedAnswer)
	return nil
}
