package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"golang.org/x/term"

	echoapi "github.com/linguadesk/staffdesk/apps/api/echo"
	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type instructorRepository interface {
	attendance.Roster
	CreateInstructor(ctx context.Context, ins attendance.Instructor) (attendance.Instructor, error)
}

type commandLine struct {
	conf   *core.Config
	db     *sql.DB
	roster instructorRepository
	attSvc *attendance.Service
	out    io.Writer
	outFd  int
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  addinstructor -id ID -name NAME -school SCHOOL_ID - add or update an instructor")
	fmt.Println("  stats -period YYYY-MM[-DD] [-school SCHOOL_ID] - print the attendance report of a day or month")
	fmt.Println("  token -operator ID [-username NAME] [-admin] - issue an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addInstructorCmd := flag.NewFlagSet("addinstructor", flag.ContinueOnError)
	addInstructorID := addInstructorCmd.String("id", "", "The instructor's ID.")
	addInstructorName := addInstructorCmd.String("name", "", "The instructor's name.")
	addInstructorSchool := addInstructorCmd.String("school", "", "The instructor's school ID.")

	statsCmd := flag.NewFlagSet("stats", flag.ContinueOnError)
	statsPeriod := statsCmd.String("period", "", "A day (YYYY-MM-DD) or a month (YYYY-MM).")
	statsSchool := statsCmd.String("school", "", "Limit the report to a school.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenOperator := tokenCmd.String("operator", "", "The operator's ID; recorded on the records they write.")
	tokenUsername := tokenCmd.String("username", "", "The operator's username.")
	tokenAdmin := tokenCmd.Bool("admin", false, "Grant admin rights.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addinstructor":
		if err := addInstructorCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addInstructorName == "" || *addInstructorSchool == "" {
			addInstructorCmd.Usage()
			return errHelp
		}
		return cli.addInstructor(*addInstructorID, *addInstructorName, *addInstructorSchool)
	case "stats":
		if err := statsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statsPeriod == "" {
			statsCmd.Usage()
			return errHelp
		}
		return cli.stats(*statsPeriod, *statsSchool)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenOperator == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(core.Operator{ID: *tokenOperator, Username: *tokenUsername}, *tokenAdmin)
	default:
		cli.printUsage()
		return errHelp
	}
}

// writeJSON indents the output when it goes to a terminal.
func (cli *commandLine) writeJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	if isTerminalFunc(cli.outFd) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func (cli *commandLine) token(op core.Operator, isAdmin bool) error {
	token, err := echoapi.GenerateToken(echoapi.NewOperatorClaims(op, isAdmin, cli.conf), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}
