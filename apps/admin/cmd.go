package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	ut "github.com/go-playground/universal-translator"
	"golang.org/x/term"

	"github.com/trezcool/aits/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB
	usrSvc     *user.Service
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Fprintln(cli.out, "  adduser -username U -email E -role R [-first-name F -last-name L -student-number N] - create a user; the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - set a new password; it is prompted next")
	fmt.Fprintln(cli.out, "  activate -username USERNAME|EMAIL - allow a user to log in again")
	fmt.Fprintln(cli.out, "  deactivate -username USERNAME|EMAIL - forbid a user to log in or refresh tokens")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	var nu user.NewUser
	addUserCmd.StringVar(&nu.Username, "username", "", "The user's username.")
	addUserCmd.StringVar(&nu.Email, "email", "", "The user's email.")
	addUserCmd.StringVar(&nu.Role, "role", "", "student, lecturer or registrar.")
	addUserCmd.StringVar(&nu.FirstName, "first-name", "Admin", "The user's first name.")
	addUserCmd.StringVar(&nu.LastName, "last-name", "User", "The user's last name.")
	addUserCmd.StringVar(&nu.Department, "department", "", "The user's department.")
	addUserCmd.StringVar(&nu.StudentNumber, "student-number", "", "The student number (students).")

	resetPwdCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPwdCmd.SetOutput(cli.out)
	resetPwdUname := resetPwdCmd.String("username", "", "The user's username or email.")

	activeCmd := flag.NewFlagSet(args[1], flag.ContinueOnError)
	activeCmd.SetOutput(cli.out)
	activeUname := activeCmd.String("username", "", "The user's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := parseFlags(addUserCmd, args[2:]); err != nil {
			return err
		}
		if nu.Username == "" || nu.Email == "" || nu.Role == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		nu.Password = pwd
		nu.PasswordConfirm = pwd
		return cli.addUser(nu)
	case "resetpassword":
		if err := parseFlags(resetPwdCmd, args[2:]); err != nil {
			return err
		}
		if *resetPwdUname == "" {
			resetPwdCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPwdCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPwdUname, pwd)
	case "activate", "deactivate":
		if err := parseFlags(activeCmd, args[2:]); err != nil {
			return err
		}
		if *activeUname == "" {
			activeCmd.Usage()
			return errHelp
		}
		return cli.setActive(*activeUname, args[1] == "activate")
	default:
		cli.printUsage()
		return errHelp
	}
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
