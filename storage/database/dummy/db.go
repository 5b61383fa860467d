package dummydb

import (
	"sync"

	"github.com/linguadesk/staffdesk/core/attendance"
)

type (
	// DB is an in-memory store for tests and local runs.
	DB struct {
		instructor *instructorTable
		record     *recordTable
	}

	instructorTable struct {
		sync.RWMutex
		order []string
		table map[string]*attendance.Instructor
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*attendance.Record
		byDay map[string]string // instructorID|day -> record id
	}
)

func Open() (*DB, error) {
	db := &DB{
		instructor: &instructorTable{table: make(map[string]*attendance.Instructor)},
		record: &recordTable{
			table: make(map[string]*attendance.Record),
			byDay: make(map[string]string),
		},
	}
	return db, nil
}
