package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bookrag/internal/app"
	"bookrag/internal/bootstrap"
	"bookrag/internal/domain"
	"bookrag/internal/pkg/pdfextract"
)

func ingestCMD() *cobra.Command {
	var subject, namespace, name string
	var async bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk, embed and index a PDF or text document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document failed: %w", err)
			}
			text, err := pdfextract.DocumentText(data)
			if err != nil {
				return fmt.Errorf("extract text failed: %w", err)
			}
			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			input := app.IngestInput{
				Name:      name,
				Subject:   subject,
				Namespace: namespace,
				Source:    filepath.Base(args[0]),
				Text:      text,
			}

			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				out := cmd.OutOrStdout()
				if async {
					id, err := a.Ingest.Enqueue(cmd.Context(), input)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "queued job %s\n", id)
					return nil
				}

				events := make(chan domain.ProgressEvent, 16)
				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					for ev := range events {
						printEvent(cmd, ev)
					}
				}()
				report, err := a.Ingest.Ingest(cmd.Context(), input, events)
				close(events)
				wg.Wait()

				if report != nil {
					fmt.Fprintf(out, "%s: %s, %d/%d chunks, vectors %d -> %d in %s\n",
						report.Document, report.State, report.Processed, report.Total,
						report.VectorsBefore, report.VectorsAfter, report.Elapsed)
					for _, w := range report.Warnings {
						fmt.Fprintf(out, "warning: %s\n", w)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject index to write to")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace inside the subject index")
	cmd.Flags().StringVar(&name, "name", "", "document name (default file name without extension)")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue the document for the ingest worker")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func printEvent(cmd *cobra.Command, ev domain.ProgressEvent) {
	out := cmd.OutOrStdout()
	switch ev.Type {
	case domain.EventProgress:
		fmt.Fprintf(out, "\r%d/%d chunks (%.2f%%)", ev.ChunksProcessed, ev.TotalChunks, ev.Percentage)
		if ev.ChunksProcessed == ev.TotalChunks {
			fmt.Fprintln(out)
		}
	case domain.EventError:
		fmt.Fprintf(out, "\nerror: %s", ev.Message)
		if ev.Details != "" {
			fmt.Fprintf(out, " (%s)", ev.Details)
		}
		fmt.Fprintln(out)
	default:
		fmt.Fprintln(out, ev.Message)
	}
}
