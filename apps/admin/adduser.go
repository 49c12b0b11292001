package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/aits/core"
	"github.com/trezcool/aits/core/user"
)

// addUser registers an active user with the same rules as the API.
func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Register(context.Background(), nu)
	if err != nil {
		return cli.describe(err)
	}
	fmt.Fprintf(cli.out, "Created %s %s (id %d)\n", usr.Role, usr.Username, usr.ID)
	return nil
}

// describe flattens validation errors into a single readable error.
func (cli *commandLine) describe(err error) error {
	var fields map[string]string
	switch origErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		fields = core.TranslateErrors(origErr, cli.translator)
	case *core.ValidationError:
		fields = origErr.FieldMap()
	default:
		return err
	}
	if len(fields) == 0 {
		return err
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, name+": "+fields[name])
	}
	return errors.New(strings.Join(msgs, "; "))
}
