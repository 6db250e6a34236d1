package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/lifecycle"
	"github.com/Spok95/classtrack-portal/internal/models"
	"github.com/Spok95/classtrack-portal/internal/validate"
)

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", what, s)
	}
	return id, nil
}

// userErr keeps the taxonomy message and drops transport detail.
func userErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindUnknown {
		return err
	}
	return fmt.Errorf("%s", apperr.Message(err))
}

func assignmentsCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assignments",
		Short: "List your assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := get().authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			list, err := c.MyAssignments(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDUE")
			for _, a := range list {
				due := "-"
				if a.DueDate != nil {
					due = a.DueDate.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", a.ID, a.Name, due)
			}
			return tw.Flush()
		},
	}
}

func printSubmission(cmd *cobra.Command, state lifecycle.State, s models.Submission) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Submission %d: %s, submitted %s\n", s.ID, state, s.SubmittedAt.Format(time.RFC3339))
	if s.FileName != nil {
		fmt.Fprintf(out, "  file: %s\n", *s.FileName)
	}
	if s.Grade != nil {
		fmt.Fprintf(out, "  grade: %g\n", *s.Grade)
	}
	if s.Feedback != nil {
		fmt.Fprintf(out, "  feedback: %s\n", *s.Feedback)
	}
}

func statusCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <assignment-id>",
		Short: "Show your submission for an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			assignmentID, err := parseID(args[0], "assignment id")
			if err != nil {
				return err
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			t := lifecycle.NewTracker(c, assignmentID, a.log)
			defer t.Close()
			if err := t.Load(cmd.Context()); err != nil {
				return userErr(err)
			}
			sub, ok := t.Submission()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing submitted yet")
				return nil
			}
			printSubmission(cmd, t.State(), sub)
			return nil
		},
	}
}

func submitCmd(get func() *app) *cobra.Command {
	var (
		content, link, file string
		minutes             float64
	)
	cmd := &cobra.Command{
		Use:   "submit <assignment-id>",
		Short: "Submit, or resubmit, your work for an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			assignmentID, err := parseID(args[0], "assignment id")
			if err != nil {
				return err
			}
			d := models.SubmissionDraft{AssignmentID: assignmentID, Content: content, LinkURL: link, TimeSpentMinutes: minutes}
			if file != "" {
				info, err := os.Stat(file)
				if err != nil {
					return err
				}
				// checked before reading so a huge file is never loaded
				if err := validate.File(file, info.Size()); err != nil {
					return userErr(err)
				}
				if d.File, err = os.ReadFile(file); err != nil {
					return err
				}
				d.FileName = filepath.Base(file)
			}

			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			t := lifecycle.NewTracker(c, assignmentID, a.log)
			defer t.Close()
			if err := t.Load(cmd.Context()); err != nil {
				return userErr(err)
			}
			sub, err := t.Submit(cmd.Context(), d)
			if err != nil {
				return userErr(err)
			}
			printSubmission(cmd, t.State(), sub)
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "text answer")
	cmd.Flags().StringVar(&link, "link", "", "link to your work")
	cmd.Flags().StringVar(&file, "file", "", "file to attach (.pdf .doc .docx .txt .jpg .jpeg .png .gif, up to 10MB)")
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "time spent, in minutes")
	return cmd
}

func unsubmitCmd(get func() *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unsubmit <assignment-id>",
		Short: "Withdraw your submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			assignmentID, err := parseID(args[0], "assignment id")
			if err != nil {
				return err
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			t := lifecycle.NewTracker(c, assignmentID, a.log)
			defer t.Close()
			if err := t.Load(cmd.Context()); err != nil {
				return userErr(err)
			}
			err = t.Unsubmit(cmd.Context(), confirmer(cmd, yes))
			switch err {
			case nil:
				fmt.Fprintln(cmd.OutOrStdout(), "Submission withdrawn")
				return nil
			case lifecycle.ErrCancelled:
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			return userErr(err)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func rosterCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "roster <assignment-id>",
		Short: "List submissions for an assignment you teach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			assignmentID, err := parseID(args[0], "assignment id")
			if err != nil {
				return err
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			g := lifecycle.NewGrader(c, a.log)
			subs, err := g.LoadRoster(cmd.Context(), assignmentID)
			if err != nil {
				return userErr(err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTUDENT\tSUBMITTED\tMIN\tGRADE")
			for _, s := range subs {
				grade := "-"
				if s.Grade != nil {
					grade = strconv.FormatFloat(*s.Grade, 'f', -1, 64)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%s\n", s.ID, s.StudentName, s.SubmittedAt.Format("2006-01-02 15:04"), s.TimeSpentMinutes, grade)
			}
			return tw.Flush()
		},
	}
}

func gradeCmd(get func() *app) *cobra.Command {
	var (
		assignmentID int64
		feedback     string
	)
	cmd := &cobra.Command{
		Use:   "grade <submission-id> <grade>",
		Short: "Grade one submission (0-100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			id, err := parseID(args[0], "submission id")
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("grade must be a number, got %q", args[1])
			}
			if err := validate.GradeValue(value); err != nil {
				return userErr(err)
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			g := lifecycle.NewGrader(c, a.log)
			if _, err := g.LoadRoster(cmd.Context(), assignmentID); err != nil {
				return userErr(err)
			}
			var fb *string
			if feedback != "" {
				fb = &feedback
			}
			sub, err := g.Grade(cmd.Context(), id, value, fb)
			if err != nil {
				return userErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Graded submission %d: %g\n", sub.ID, value)
			return nil
		},
	}
	cmd.Flags().Int64Var(&assignmentID, "assignment", 0, "assignment the submission belongs to")
	cmd.Flags().StringVar(&feedback, "feedback", "", "feedback for the student")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func engagementCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "engagement <assignment-id>",
		Short: "Show time-spent insight for an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID, err := parseID(args[0], "assignment id")
			if err != nil {
				return err
			}
			c, _, err := get().authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			e, err := c.Engagement(cmd.Context(), assignmentID)
			if err != nil {
				return userErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %d submissions, %.1f min average, score %.1f\n",
				e.AssignmentName, e.ClassName, e.TotalSubmissions, e.AverageTimeSpent, e.EngagementScore)
			return nil
		},
	}
}

func telegramCmd(get func() *app) *cobra.Command {
	var unlink bool
	cmd := &cobra.Command{
		Use:   "telegram [chat-id]",
		Short: "Send grade notifications to a Telegram chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var chat *int64
			switch {
			case unlink && len(args) == 0:
			case !unlink && len(args) == 1:
				id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil || id == 0 {
					return fmt.Errorf("invalid chat id %q", args[0])
				}
				chat = &id
			default:
				return errors.New("give a chat id or --unlink")
			}
			c, _, err := get().authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			if err := c.LinkTelegram(cmd.Context(), chat); err != nil {
				return userErr(err)
			}
			if chat == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Telegram notifications off")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Grade notifications go to chat %d\n", *chat)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unlink, "unlink", false, "stop Telegram notifications")
	return cmd
}

func downloadCmd(get func() *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <submission-id>",
		Short: "Save the file attached to a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "submission id")
			if err != nil {
				return err
			}
			c, _, err := get().authed(cmd.Context())
			if err != nil {
				return userErr(err)
			}
			name, data, err := c.Download(cmd.Context(), id)
			if err != nil {
				return userErr(err)
			}
			dst := filepath.Join(dir, filepath.Base(name))
			if err := os.WriteFile(dst, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", dst, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "o", ".", "directory to save into")
	return cmd
}
