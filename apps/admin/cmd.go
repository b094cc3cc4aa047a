package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"golang.org/x/term"

	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.RunGoose // mockable

	errHelp = errors.New("help provided")

	// operator acts on behalf of the platform
	operator = rbac.Actor{Roles: []string{rbac.RolePlatformAdmin}}
)

type commandLine struct {
	db        *sql.DB
	usrRepo   user.Repository
	tenantSvc tenant.Service
	validate  *validator.Validate
	clock     clockwork.Clock
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-admin] [-agency ID] - create or update an admin user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                  - reset user's password")
	fmt.Fprintln(cli.out, "  addagency -name NAME -slug SLUG                         - create an agency")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Make the user a platform admin.")
	addUserAgency := addUserCmd.String("agency", "", "Make the user an admin of this agency.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addAgencyCmd := flag.NewFlagSet("addagency", flag.ContinueOnError)
	addAgencyName := addAgencyCmd.String("name", "", "The agency's name.")
	addAgencySlug := addAgencyCmd.String("slug", "", "The agency's slug, unique on the platform.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, addAgencyCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if (*addUserUname == "" && *addUserEmail == "") || (!*addUserAdmin && *addUserAgency == "") {
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
		_, err = cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin, *addUserAgency)
		return err

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
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
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "addagency":
		if err := addAgencyCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addAgencyName == "" || *addAgencySlug == "" {
			addAgencyCmd.Usage()
			return errHelp
		}
		agency, err := cli.addAgency(*addAgencyName, *addAgencySlug)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "agency %q created: %s\n", agency.Slug, agency.ID)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
