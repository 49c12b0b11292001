package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/aits/client"
)

func (cli *commandLine) login(ctx context.Context, creds client.Credentials) error {
	res, err := cli.api.Login(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Logged in as %s (%s)\n", res.User.FullName(), res.User.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	if err := cli.api.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Logged out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	usr, err := cli.api.Restore(ctx)
	if err != nil {
		if errors.Cause(err) == client.ErrNotLoggedIn {
			fmt.Fprintln(cli.out, "Not logged in")
			return nil
		}
		return err
	}

	w := newTabWriter(cli.out)
	fmt.Fprintf(w, "ID:\t%d\n", usr.ID)
	fmt.Fprintf(w, "Username:\t%s\n", usr.Username)
	fmt.Fprintf(w, "Name:\t%s\n", usr.FullName())
	fmt.Fprintf(w, "Email:\t%s\n", usr.Email)
	fmt.Fprintf(w, "Role:\t%s\n", usr.Role)
	if usr.Department != "" {
		fmt.Fprintf(w, "Department:\t%s\n", usr.Department)
	}
	if usr.StudentNumber != "" {
		fmt.Fprintf(w, "Student number:\t%s\n", usr.StudentNumber)
	}
	return w.Flush()
}

func (cli *commandLine) register(ctx context.Context, reg client.Registration) error {
	usr, err := cli.api.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Registered %s (%s). You can now log in.\n", usr.Username, usr.Role)
	return nil
}

func (cli *commandLine) lecturers(ctx context.Context) error {
	users, err := cli.api.ListUsers(ctx, "lecturer")
	if err != nil {
		return err
	}
	w := newTabWriter(cli.out)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tDEPARTMENT\tACTIVE")
	for _, usr := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", usr.ID, usr.Username, usr.FullName(), usr.Department, usr.IsActive)
	}
	return w.Flush()
}
