package attendance

import (
	"fmt"
	"net/mail"

	"github.com/linguadesk/staffdesk/core"
)

const lateArrivalsTemplate = "late_arrivals"

// LateArrival is an instructor whose present check-in was reclassified as late.
type LateArrival struct {
	InstructorID string `json:"instructor_id"`
	Name         string `json:"name"`
	TimeIn       string `json:"time_in"`
}

type lateArrivalsData struct {
	Date        string
	SchoolID    string
	RecordedBy  string
	Instructors []LateArrival
}

func newLateArrivalsMessage(to []mail.Address, date, schoolID, recordedBy string, late []LateArrival) *core.EmailMessage {
	return &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Late arrivals on %s", date),
		TemplateName: lateArrivalsTemplate,
		TemplateData: lateArrivalsData{
			Date:        date,
			SchoolID:    schoolID,
			RecordedBy:  recordedBy,
			Instructors: late,
		},
	}
}

func parseRecipients(addrs []string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range core.UniqueStrings(addrs) {
		if addr, err := mail.ParseAddress(a); err == nil {
			out = append(out, *addr)
		}
	}
	return out
}
