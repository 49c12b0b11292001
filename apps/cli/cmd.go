package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/trezcool/aits/client"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	api    *client.Client
	out    io.Writer
	errOut io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -username USERNAME|EMAIL [-role ROLE] - log in; the password is prompted next")
	fmt.Fprintln(cli.out, "  logout - log out")
	fmt.Fprintln(cli.out, "  whoami - show the logged in user")
	fmt.Fprintln(cli.out, "  register -username U -email E -first-name F -last-name L -role R [...] - create an account")
	fmt.Fprintln(cli.out, "  issues list [-status STATUS] - list the issues you can see")
	fmt.Fprintln(cli.out, "  issues show -id ID - show an issue")
	fmt.Fprintln(cli.out, "  issues create -category CATEGORY -description TEXT - submit an issue (students)")
	fmt.Fprintln(cli.out, "  issues update -id ID [-category CATEGORY] [-description TEXT] - edit a pending issue")
	fmt.Fprintln(cli.out, "  issues delete -id ID - delete an issue")
	fmt.Fprintln(cli.out, "  issues assign -id ID -lecturer LECTURER_ID - assign an issue (registrars)")
	fmt.Fprintln(cli.out, "  issues resolve -id ID - resolve an issue assigned to you (lecturers)")
	fmt.Fprintln(cli.out, "  lecturers - list lecturers (registrars)")
	fmt.Fprintln(cli.out, "  notifications list - list your notifications")
	fmt.Fprintln(cli.out, "  notifications read -id ID - mark a notification as read")
}

// sessionExpired is called by the session when a token refresh failed.
func (cli *commandLine) sessionExpired(error) {
	fmt.Fprintln(cli.errOut, "Your session has expired. Please log in again: aits login -username USERNAME")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses args into fs; it returns errHelp when a required flag is missing.
func parse(fs *flag.FlagSet, args []string, required func() bool) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	if required != nil && !required() {
		fs.Usage()
		return errHelp
	}
	return nil
}

func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "login":
		return cli.runLogin(ctx, args[2:])
	case "logout":
		return cli.logout(ctx)
	case "whoami":
		return cli.whoami(ctx)
	case "register":
		return cli.runRegister(ctx, args[2:])
	case "issues":
		return cli.runIssues(ctx, args[2:])
	case "lecturers":
		return cli.lecturers(ctx)
	case "notifications":
		return cli.runNotifications(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runLogin(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("login")
	uname := fs.String("username", "", "Your username or email. The password will be prompted next.")
	role := fs.String("role", "", "Log in as student, lecturer or registrar.")
	if err := parse(fs, args, func() bool { return *uname != "" }); err != nil {
		return err
	}

	pwd, err := cli.promptPassword("Enter password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		fs.Usage()
		return errHelp
	}
	return cli.login(ctx, client.Credentials{Identifier: *uname, Password: pwd, Role: *role})
}

func (cli *commandLine) runRegister(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("register")
	var reg client.Registration
	fs.StringVar(&reg.Username, "username", "", "Username.")
	fs.StringVar(&reg.Email, "email", "", "Email address.")
	fs.StringVar(&reg.FirstName, "first-name", "", "First name.")
	fs.StringVar(&reg.LastName, "last-name", "", "Last name.")
	fs.StringVar(&reg.Role, "role", "", "student, lecturer or registrar.")
	fs.StringVar(&reg.Department, "department", "", "Department.")
	fs.StringVar(&reg.College, "college", "", "College.")
	fs.StringVar(&reg.StudentNumber, "student-number", "", "Student number (students).")
	if err := parse(fs, args, func() bool { return reg.Username != "" && reg.Email != "" && reg.Role != "" }); err != nil {
		return err
	}

	var err error
	if reg.Password, err = cli.promptPassword("Enter password:"); err != nil {
		return err
	}
	if reg.PasswordConfirm, err = cli.promptPassword("Confirm password:"); err != nil {
		return err
	}
	return cli.register(ctx, reg)
}

func (cli *commandLine) runIssues(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}

	fs := cli.newFlagSet("issues " + args[0])
	id := fs.Int("id", 0, "The issue ID.")
	switch args[0] {
	case "list":
		status := fs.String("status", "", "Only list issues with this status: pending, in_progress or resolved.")
		if err := parse(fs, args[1:], nil); err != nil {
			return err
		}
		return cli.listIssues(ctx, *status)
	case "show":
		if err := parse(fs, args[1:], func() bool { return *id > 0 }); err != nil {
			return err
		}
		return cli.showIssue(ctx, *id)
	case "create":
		category := fs.String("category", "", "missing_marks, appeal, correction or other.")
		desc := fs.String("description", "", "What the issue is about.")
		if err := parse(fs, args[1:], func() bool { return *category != "" && *desc != "" }); err != nil {
			return err
		}
		return cli.createIssue(ctx, *category, *desc)
	case "update":
		category := fs.String("category", "", "The new category.")
		desc := fs.String("description", "", "The new description.")
		if err := parse(fs, args[1:], func() bool { return *id > 0 && (*category != "" || *desc != "") }); err != nil {
			return err
		}
		return cli.updateIssue(ctx, *id, *category, *desc)
	case "delete":
		if err := parse(fs, args[1:], func() bool { return *id > 0 }); err != nil {
			return err
		}
		return cli.deleteIssue(ctx, *id)
	case "assign":
		lecturer := fs.Int("lecturer", 0, "The ID of the lecturer to assign the issue to.")
		if err := parse(fs, args[1:], func() bool { return *id > 0 && *lecturer > 0 }); err != nil {
			return err
		}
		return cli.assignIssue(ctx, *id, *lecturer)
	case "resolve":
		if err := parse(fs, args[1:], func() bool { return *id > 0 }); err != nil {
			return err
		}
		return cli.resolveIssue(ctx, *id)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runNotifications(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}

	switch args[0] {
	case "list":
		return cli.listNotifications(ctx)
	case "read":
		fs := cli.newFlagSet("notifications read")
		id := fs.Int("id", 0, "The notification ID.")
		if err := parse(fs, args[1:], func() bool { return *id > 0 }); err != nil {
			return err
		}
		return cli.markNotificationRead(ctx, *id)
	default:
		cli.printUsage()
		return errHelp
	}
}
