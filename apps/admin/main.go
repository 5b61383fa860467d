package main

import (
	"log"
	"os"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
	emailsvc "github.com/linguadesk/staffdesk/services/email"
	logsvc "github.com/linguadesk/staffdesk/services/logger"
	"github.com/linguadesk/staffdesk/storage/database"
	sqlxrepos "github.com/linguadesk/staffdesk/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	// set up DB
	db, err := database.OpenX(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	// start CLI
	roster := sqlxrepos.NewInstructorRepository(db)
	attSvc, err := attendance.NewService(
		sqlxrepos.NewAttendanceRepository(db), roster, emailsvc.NewConsoleService(conf, logger), conf, logger,
	)
	if err != nil {
		logger.Fatal("setting up attendance service", err)
	}
	cli := commandLine{
		conf:   conf,
		db:     db.DB,
		roster: roster,
		attSvc: attSvc,
		out:    os.Stdout,
		outFd:  int(os.Stdout.Fd()),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		db.Close()
		os.Exit(1)
	}
}
