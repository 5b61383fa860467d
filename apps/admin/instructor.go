package main

import (
	"context"

	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
)

// addInstructor updates or creates an attendance.Instructor
func (cli *commandLine) addInstructor(id, name, schoolID string) error {
	ins, err := cli.roster.CreateInstructor(context.Background(), attendance.Instructor{
		ID:       core.CleanString(id),
		Name:     core.CleanString(name),
		SchoolID: core.CleanString(schoolID),
	})
	if err != nil {
		return err
	}
	return cli.writeJSON(ins)
}

func (cli *commandLine) stats(period, schoolID string) error {
	scope, err := attendance.ParseScope(period, schoolID)
	if err != nil {
		return err
	}
	rep, err := cli.attSvc.Stats(context.Background(), scope)
	if err != nil {
		return err
	}
	return cli.writeJSON(rep)
}
