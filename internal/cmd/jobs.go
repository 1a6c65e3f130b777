package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/goethite/gostint-tui/internal/tui"
)

var jobsSkip int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and manage submitted jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first, ten per page",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get JOB_ID",
	Short: "Show one job with its output",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete JOB_ID",
	Short: "Delete a finished job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

var jobsKillCmd = &cobra.Command{
	Use:   "kill JOB_ID",
	Short: "Ask gostint to kill a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsKill,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch JOB_ID",
	Short: "Poll a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWatch,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsDeleteCmd, jobsKillCmd, jobsWatchCmd)
	jobsListCmd.Flags().IntVar(&jobsSkip, "skip", 0, "number of jobs to skip")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func renderJobs(out io.Writer, page *tui.JobPage) {
	rows := make([][]string, 0, len(page.Data))
	for _, job := range page.Data {
		rows = append(rows, job.Cells())
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(tui.ResultColumns...).
		Rows(rows...)
	_, _ = fmt.Fprintln(out, t.Render())

	pager := tui.Pager{Skip: page.Skip, Total: page.Total}
	_, _ = fmt.Fprintf(out, "page %d/%d, %d jobs\n", pager.Page(), pager.Pages(), page.Total)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}
	page, err := clients.Gostint.ListJobs(ctx, sess.APIToken, jobsSkip)
	if err != nil {
		return err
	}
	renderJobs(cmd.OutOrStdout(), page)
	return nil
}

func renderJob(out io.Writer, job *tui.JobResult) {
	cells := job.Cells()
	for i, title := range tui.ResultColumns {
		_, _ = fmt.Fprintf(out, "%-12s %s\n", title+":", cells[i])
	}
	if job.NodeUUID != "" {
		_, _ = fmt.Fprintf(out, "%-12s %s\n", "Node:", job.NodeUUID)
	}
	if job.Output != "" {
		_, _ = fmt.Fprintf(out, "\n%s", ensureNewline(job.Output))
	}
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}
	job, err := clients.Gostint.GetJob(ctx, sess.APIToken, args[0])
	if err != nil {
		return err
	}
	renderJob(cmd.OutOrStdout(), job)
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}
	if err := clients.Gostint.DeleteJob(ctx, sess.APIToken, args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runJobsKill(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}
	resp, err := clients.Gostint.KillJob(ctx, sess.APIToken, args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kill requested for %s (status %s)\n", resp.ID, resp.Status)
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	sess, clients, err := login(ctx)
	if err != nil {
		return err
	}
	return followJob(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), clients.Gostint, sess, args[0])
}
