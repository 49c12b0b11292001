package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/trezcool/aits/client"
	"github.com/trezcool/aits/core/issue"
)

func newTabWriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func (cli *commandLine) printIssue(iss issue.Issue) error {
	w := newTabWriter(cli.out)
	fmt.Fprintf(w, "Issue:\t#%d\n", iss.ID)
	fmt.Fprintf(w, "Category:\t%s\n", iss.Category)
	fmt.Fprintf(w, "Status:\t%s\n", iss.Status)
	fmt.Fprintf(w, "Description:\t%s\n", iss.Description)
	fmt.Fprintf(w, "Submitted by:\t%d\n", iss.SubmittedBy)
	if iss.AssignedTo.Valid {
		fmt.Fprintf(w, "Assigned to:\t%d\n", iss.AssignedTo.Int)
	}
	fmt.Fprintf(w, "Created:\t%s\n", formatTime(iss.CreatedAt))
	if iss.ResolvedAt.Valid {
		fmt.Fprintf(w, "Resolved:\t%s\n", formatTime(iss.ResolvedAt.Time))
	}
	return w.Flush()
}

func (cli *commandLine) listIssues(ctx context.Context, status string) error {
	issues, err := cli.api.ListIssues(ctx, client.IssueFilter{Status: status})
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Fprintln(cli.out, "No issues")
		return nil
	}
	w := newTabWriter(cli.out)
	fmt.Fprintln(w, "ID\tCATEGORY\tSTATUS\tCREATED\tDESCRIPTION")
	for _, iss := range issues {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", iss.ID, iss.Category, iss.Status, formatTime(iss.CreatedAt), iss.Description)
	}
	return w.Flush()
}

func (cli *commandLine) showIssue(ctx context.Context, id int) error {
	iss, err := cli.api.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	return cli.printIssue(iss)
}

func (cli *commandLine) createIssue(ctx context.Context, category, desc string) error {
	iss, err := cli.api.CreateIssue(ctx, issue.NewIssue{Category: category, Description: desc})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Submitted issue #%d\n", iss.ID)
	return nil
}

func (cli *commandLine) updateIssue(ctx context.Context, id int, category, desc string) error {
	var ui issue.UpdateIssue
	if category != "" {
		ui.Category = &category
	}
	if desc != "" {
		ui.Description = &desc
	}
	iss, err := cli.api.UpdateIssue(ctx, id, ui)
	if err != nil {
		return err
	}
	return cli.printIssue(iss)
}

func (cli *commandLine) deleteIssue(ctx context.Context, id int) error {
	if err := cli.api.DeleteIssue(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Deleted issue #%d\n", id)
	return nil
}

func (cli *commandLine) assignIssue(ctx context.Context, id, lecturerID int) error {
	if _, err := cli.api.AssignIssue(ctx, id, lecturerID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Assigned issue #%d to lecturer %d\n", id, lecturerID)
	return nil
}

func (cli *commandLine) resolveIssue(ctx context.Context, id int) error {
	if _, err := cli.api.ResolveIssue(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Resolved issue #%d\n", id)
	return nil
}

func (cli *commandLine) listNotifications(ctx context.Context) error {
	notes, err := cli.api.ListNotifications(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(cli.out, "No notifications")
		return nil
	}
	w := newTabWriter(cli.out)
	fmt.Fprintln(w, "ID\tREAD\tDATE\tMESSAGE")
	for _, n := range notes {
		fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", n.ID, n.IsRead, formatTime(n.CreatedAt), n.Message)
	}
	return w.Flush()
}

func (cli *commandLine) markNotificationRead(ctx context.Context, id int) error {
	if _, err := cli.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Notification %d marked as read\n", id)
	return nil
}
