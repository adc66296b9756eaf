package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pressly/goose/v3"
	"github.com/volatiletech/null/v8"
	"golang.org/x/term"

	"github.com/trezcool/escolar/core/catalog"
	"github.com/trezcool/escolar/core/user"
	"github.com/trezcool/escolar/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = goose.RunContext  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	dialect  string
	validate *validator.Validate
	usrSvc   *user.Service
	catSvc   *catalog.Service
	out      io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run goose COMMAND (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix)\n")
	cli.printf("  adduser -email EMAIL -first-name NAME -last-name NAME [-level LEVEL] - create a user, the password is prompted next\n")
	cli.printf("  addcode -code CODE [-level LEVEL] [-description TEXT] - create a registration access code\n")
	cli.printf("  resetpassword -email EMAIL - reset user's password\n")
	cli.printf("  cleantokens - delete expired and revoked refresh tokens\n")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserFirst := addUserCmd.String("first-name", "", "The user's first name.")
	addUserLast := addUserCmd.String("last-name", "", "The user's last name.")
	addUserLevel := addUserCmd.String("level", catalog.LevelAdmin, "The user's access level.")

	addCodeCmd := flag.NewFlagSet("addcode", flag.ContinueOnError)
	addCodeCode := addCodeCmd.String("code", "", "The code to register with.")
	addCodeLevel := addCodeCmd.String("level", catalog.LevelTeacher, "The access level given to users registering with the code.")
	addCodeDesc := addCodeCmd.String("description", "", "An optional description.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2], args[3:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" || *addUserFirst == "" || *addUserLast == "" {
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
		return cli.addUser(ctx, *addUserEmail, *addUserFirst, *addUserLast, *addUserLevel, pwd)

	case "addcode":
		if err := addCodeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addCodeCode == "" {
			addCodeCmd.Usage()
			return errHelp
		}
		return cli.addCode(ctx, *addCodeCode, *addCodeLevel, *addCodeDesc)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "cleantokens":
		deleted, err := cli.usrSvc.CleanupRefreshTokens(ctx)
		if err != nil {
			return err
		}
		cli.printf("deleted %d stale refresh tokens\n", deleted)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	return string(pwd), err
}

func (cli *commandLine) migrate(ctx context.Context, command string, args []string) error {
	dir, err := database.SetupGoose(cli.dialect)
	if err != nil {
		return err
	}
	return gooseRunFunc(ctx, command, cli.db, dir, args...)
}

// addUser creates an active user with the given access level. The password policy applies.
func (cli *commandLine) addUser(ctx context.Context, email, firstName, lastName, level, pwd string) error {
	lvl, err := cli.catSvc.AccessLevelByName(ctx, level)
	if err != nil {
		return err
	}

	active := true
	nu := user.NewUser{
		Email:           email,
		FirstName:       firstName,
		LastName:        lastName,
		AccessLevelID:   lvl.ID,
		IsActive:        &active,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}

	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	cli.printf("created %s user %s (id: %d)\n", level, usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) addCode(ctx context.Context, code, level, description string) error {
	lvl, err := cli.catSvc.AccessLevelByName(ctx, level)
	if err != nil {
		return err
	}

	nc := user.NewAccessCode{Code: code, AccessLevelID: lvl.ID}
	if description != "" {
		nc.Description = null.StringFrom(description)
	}
	if err = nc.Validate(cli.validate); err != nil {
		return err
	}

	ac, err := cli.usrSvc.CreateAccessCode(ctx, user.User{}, nc)
	if err != nil {
		return err
	}
	cli.printf("created access code %s for %s users (id: %d)\n", ac.Code, level, ac.ID)
	return nil
}

// resetPassword sets the password of a user, bypassing the password policy.
func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr, pwd)
	return err
}
