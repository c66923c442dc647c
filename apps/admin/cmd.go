package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/kazi/core"
	secretsvc "github.com/trezcool/kazi/services/secrets"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	db      *sql.DB
	secrets *secretsvc.Service
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate <up|up-by-one|up-to|down|down-to|redo|reset|status|version|create|fix> [args] - run DB migrations")
	fmt.Fprintln(cli.out, "  sealcredentials -id ID -username USERNAME - seal a git credential; the password will be prompted next")
	fmt.Fprintln(cli.out, "  mkroot -tenant TENANT - create a tenant's storage base directory")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	sealCmd := flag.NewFlagSet("sealcredentials", flag.ExitOnError)
	sealID := sealCmd.String("id", "", "The credential identifier referenced by assignments.")
	sealUname := sealCmd.String("username", "", "The git username. The password will be prompted next.")

	mkrootCmd := flag.NewFlagSet("mkroot", flag.ExitOnError)
	mkrootTenant := mkrootCmd.String("tenant", "", "The tenant whose storage base directory to create.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "sealcredentials":
		if err := sealCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sealID == "" || *sealUname == "" {
			sealCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			sealCmd.Usage()
			return errHelp
		}
		return cli.sealCredentials(*sealID, *sealUname, string(pwd))
	case "mkroot":
		if err := mkrootCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *mkrootTenant == "" {
			mkrootCmd.Usage()
			return errHelp
		}
		return cli.mkRoot(*mkrootTenant)
	default:
		cli.printUsage()
		return errHelp
	}
}
