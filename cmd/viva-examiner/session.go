// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions for a paper without starting a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		paperID, _ := cmd.Flags().GetString("paper")
		count, _ := cmd.Flags().GetInt("count")

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		kb, err := svc.KnowledgeBase(cmd.Context(), paperID, "")
		if err != nil {
			return err
		}
		questions, err := svc.GenerateQuestions(cmd.Context(), kb, count)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, questions)
	},
}

// --- start ---

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Generate questions and start a viva session",
	RunE: func(cmd *cobra.Command, args []string) error {
		paperID, _ := cmd.Flags().GetString("paper")
		userID, _ := cmd.Flags().GetString("user")
		count, _ := cmd.Flags().GetInt("count")

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		s, err := svc.StartSession(cmd.Context(), userID, paperID, count)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started with %d questions.\n", s.ID, len(s.Questions))
		if q := s.CurrentQuestion(); q != nil {
			printQuestion(os.Stdout, 1, len(s.Questions), q)
		}
		return nil
	},
}

// --- answer ---

var answerCmd = &cobra.Command{
	Use:   "answer [session-id] [answer text]",
	Short: "Answer the current question of a session",
	Long: `Answer grades the answer against the session's current question and advances
the session. With no answer text, the answer is read from stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer := strings.Join(args[1:], " ")
		if answer == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading answer: %w", err)
			}
			answer = strings.TrimSpace(string(data))
		}

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		result, snap, err := svc.SubmitAnswer(cmd.Context(), args[0], answer)
		if err != nil {
			return err
		}
		fmt.Printf("Score: %d (%s)\n", result.Score, result.Correctness)
		fmt.Printf("Feedback: %s\n", result.Feedback)
		printList(os.Stdout, "Factual errors", result.FactualErrors)
		printList(os.Stdout, "Missing concepts", result.MissingConcepts)
		fmt.Println()

		if snap.CurrentQuestion != nil {
			printQuestion(os.Stdout, snap.CurrentQuestionIndex+1, snap.TotalQuestions, snap.CurrentQuestion)
		} else {
			fmt.Printf("Session complete. Average score: %.2f\n", snap.AverageScore)
		}
		return nil
	},
}

// --- pause / resume ---

var pauseCmd = &cobra.Command{
	Use:   "pause [session-id]",
	Short: "Pause an in-progress session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], true)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a paused session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], false)
	},
}

func runTransition(cmd *cobra.Command, sessionID string, pause bool) error {
	svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	verb, transition := "resume", svc.Resume
	if pause {
		verb, transition = "pause", svc.Pause
	}
	ok, err := transition(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot %s session %s in its current state", verb, sessionID)
	}
	fmt.Printf("Session %s: %sd.\n", sessionID, verb)
	return nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the progress of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		snap, err := svc.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, snap)
		}
		fmt.Printf("Session:   %s\n", snap.SessionID)
		fmt.Printf("User:      %s\n", snap.UserID)
		fmt.Printf("Paper:     %s\n", snap.PaperID)
		fmt.Printf("Status:    %s\n", snap.Status)
		fmt.Printf("Progress:  %d/%d answered\n", len(snap.Answers), snap.TotalQuestions)
		fmt.Printf("Score:     %d total, %.2f average\n", snap.TotalScore, snap.AverageScore)
		if snap.CurrentQuestion != nil {
			fmt.Println()
			printQuestion(os.Stdout, snap.CurrentQuestionIndex+1, snap.TotalQuestions, snap.CurrentQuestion)
		}
		return nil
	},
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary [session-id]",
	Short: "Summarize a completed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		sum, err := svc.Summary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, sum)
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a user's completed sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		list, err := svc.Sessions(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No completed sessions.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-9s  %-7s  %s\n", "Session", "Paper", "Questions", "Average", "Completed")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
		for _, s := range list {
			fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-9d  %-7.2f  %s\n",
				s.SessionID, s.PaperID, s.NumQuestions, s.AverageScore, s.CompletedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- shared helpers ---

func printQuestion(w io.Writer, n, total int, q *types.Question) {
	fmt.Fprintf(w, "Question %d/%d [%s, difficulty %d]:\n  %s\n", n, total, q.Type, q.Difficulty, q.Text)
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, startCmd} {
		c.Flags().String("paper", "", "paper identifier")
		c.Flags().Int("count", 0, "number of questions (0 = question.num_questions)")
		_ = c.MarkFlagRequired("paper")
	}
	startCmd.Flags().String("user", "", "examinee identifier")
	_ = startCmd.MarkFlagRequired("user")

	sessionsCmd.Flags().String("user", "", "examinee identifier")
	_ = sessionsCmd.MarkFlagRequired("user")

	statusCmd.Flags().Bool("json", false, "output the snapshot as JSON")

	rootCmd.AddCommand(generateCmd, startCmd, answerCmd, pauseCmd, resumeCmd, statusCmd, summaryCmd, sessionsCmd)
}
