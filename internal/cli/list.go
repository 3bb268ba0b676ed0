package cli

import (
	"context"

	"github.com/spf13/cobra"

	"pai-docqa-go/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents and their status",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Documents.List(ctx)
	if err != nil {
		return err
	}
	views := make([]model.DocumentView, 0, len(docs))
	for i := range docs {
		views = append(views, model.NewDocumentView(&docs[i]))
	}
	if outputJSON {
		return printJSON(cmd, views)
	}
	if len(views) == 0 {
		cmd.Println("No documents.")
		return nil
	}
	for _, v := range views {
		cmd.Printf("%s  %-10s %-5s %4d  %s\n", v.DocID, v.Status, v.FileType, v.ChunksCount, v.OriginalFile)
	}
	return nil
}
