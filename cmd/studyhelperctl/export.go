package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"studyhelper/internal/bootstrap"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/export"
	"studyhelper/pkg/store"
)

var exportCmd = &cobra.Command{
	Use:   "export-highlights <bookId>",
	Short: "Export a user's highlights on a book as CSV or XLSX",
	Long: `Write every highlight a user made on a book, in page order, together with
its AI explanation. Output goes to --out or stdout.`,
	Example: `  studyhelperctl export-highlights 65f1c2a9e4b0a1b2c3d4e5f6 --user u-42 --format xlsx --out notes.xlsx
  studyhelperctl export-highlights 65f1c2a9e4b0a1b2c3d4e5f6 -u u-42 > notes.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		rawFormat, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		if strings.TrimSpace(userID) == "" {
			return errors.New("--user is required")
		}
		format, ok := export.ParseFormat(rawFormat)
		if !ok {
			return fmt.Errorf("unsupported format %q (csv, xlsx)", rawFormat)
		}
		cfg, err := setup()
		if err != nil {
			return err
		}
		st, err := bootstrap.OpenStore(cfg.StoreConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		if out == "" || out == "-" {
			_, err := exportHighlights(st, cmd.OutOrStdout(), args[0], userID, format)
			return err
		}
		n, err := exportHighlightsToFile(st, out, args[0], userID, format)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d highlights to %s\n", n, out)
		return nil
	},
}

var createFile = func(name string) (io.WriteCloser, error) { return os.Create(name) }

// exportHighlightsToFile writes the export to path. A failed close means the
// file may be truncated, so it is reported like a write error.
func exportHighlightsToFile(st store.Store, path, bookID, userID string, format export.Format) (int, error) {
	f, err := createFile(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := exportHighlights(st, f, bookID, userID, format)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	return n, nil
}

func init() {
	exportCmd.Flags().StringP("user", "u", "", "ID of the user whose highlights are exported")
	exportCmd.Flags().StringP("format", "f", string(export.FormatCSV), "Output format: csv or xlsx")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

// exportHighlights writes the user's highlights on a book and returns how many
// rows were written.
func exportHighlights(st store.Store, w io.Writer, bookID, userID string, format export.Format) (int, error) {
	bookID = strings.TrimSpace(bookID)
	book, ok, err := st.GetBook(bookID)
	if err != nil {
		return 0, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("book %s not found", bookID)
	}
	highlights, _, err := st.ListHighlights(store.HighlightQuery{UserID: userID, BookID: book.ID})
	if err != nil {
		return 0, fmt.Errorf("list highlights: %w", err)
	}
	explanations, _, err := st.ListExplanations(store.ExplanationQuery{UserID: userID, BookID: book.ID})
	if err != nil {
		return 0, fmt.Errorf("list explanations: %w", err)
	}
	byHighlight := make(map[string]domain.AIExplanation, len(explanations))
	for _, e := range explanations {
		byHighlight[e.HighlightID] = e
	}
	rows := export.Rows(highlights, byHighlight)
	if err := export.Write(w, format, rows); err != nil {
		return 0, fmt.Errorf("write %s: %w", format, err)
	}
	return len(rows), nil
}
