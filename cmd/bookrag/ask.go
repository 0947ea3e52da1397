package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bookrag/internal/app"
	"bookrag/internal/bootstrap"
)

func askCMD() *cobra.Command {
	var subject string
	var count int
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from an ingested subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				in := app.QueryInput{Query: strings.Join(args, " "), Subject: subject}
				if cmd.Flags().Changed("count") {
					in.Count = &count
				}
				result, err := a.Query.Ask(cmd.Context(), in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "[%s] %s\n", result.AIResponse.Source, result.AIResponse.Body)
				if result.Error != nil {
					fmt.Fprintf(out, "error: %s\n", result.Error.Message)
				}
				if showSources {
					for _, m := range result.Results {
						fmt.Fprintf(out, "  %.3f  chunk %d  %s\n", m.Score, m.ChunkNumber, preview(m.Text, 80))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject index to search")
	cmd.Flags().IntVarP(&count, "count", "k", 0, "number of passages to use (default from config)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved passages")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func quizCMD() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "quiz <topic>",
		Short: "Generate a multiple-choice question from an ingested subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				result, err := a.Quiz.Generate(cmd.Context(), app.QuizInput{
					Topic:   strings.Join(args, " "),
					Subject: subject,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !result.Parsed {
					fmt.Fprintln(out, result.Raw)
					return nil
				}
				q := result.Question
				fmt.Fprintln(out, q.Question)
				for _, opt := range q.Options {
					fmt.Fprintf(out, "  %s) %s\n", opt.Letter, opt.Text)
				}
				fmt.Fprintf(out, "answer: %s\n", q.Answer)
				if q.Explanation != "" {
					fmt.Fprintf(out, "explanation: %s\n", q.Explanation)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject index to draw from")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
