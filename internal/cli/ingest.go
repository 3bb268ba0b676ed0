package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pai-docqa-go/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest one or more files",
	Long: `Stores each file, queues it and runs the extraction worker until every
file has reached a terminal status.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var ids []string
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := a.Documents.Upload(ctx, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		ids = append(ids, doc.DocID)
	}

	if err := a.Queue.Close(); err != nil {
		return err
	}
	if err := a.Worker.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	views := make([]model.DocumentView, 0, len(ids))
	for _, id := range ids {
		doc, err := a.Documents.Get(ctx, id)
		if err != nil {
			return err
		}
		views = append(views, model.NewDocumentView(doc))
	}
	if outputJSON {
		return printJSON(cmd, views)
	}
	for _, v := range views {
		line := fmt.Sprintf("%s  %-10s %s (%d chunks", v.DocID, v.Status, v.OriginalFile, v.ChunksCount)
		if v.OCRUsed {
			line += ", OCR"
		}
		line += ")"
		if v.ErrorMessage != "" {
			line += ": " + v.ErrorMessage
		}
		cmd.Println(line)
	}
	return nil
}
