package main

import (
	"context"
	"fmt"

	"github.com/trezcool/aits/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	err := cli.usrSvc.ResetPassword(context.Background(), uname, user.PasswordReset{Password: pwd, PasswordConfirm: pwd})
	if err != nil {
		return cli.describe(err)
	}
	fmt.Fprintf(cli.out, "Password of %s updated\n", uname)
	return nil
}

// setActive toggles whether a user may log in. Tokens already issued to a
// deactivated user are rejected by the API on their next use.
func (cli *commandLine) setActive(uname string, active bool) error {
	usr, err := cli.usrSvc.SetActive(context.Background(), uname, active)
	if err != nil {
		return err
	}
	state := "deactivated"
	if usr.IsActive {
		state = "activated"
	}
	fmt.Fprintf(cli.out, "User %s %s\n", usr.Username, state)
	return nil
}
