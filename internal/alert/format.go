package alert

import (
	"fmt"

	"jobalert-engine/internal/record"
)

// Divider is sent after every alert so consecutive jobs read as separate
// cards in the chat.
const Divider = "--------------------"

// Format renders the outbound alert. The exact byte layout is a presentation
// contract; tests pin it.
func Format(r record.JobRecord) string {
	return fmt.Sprintf(
		"💼 New Job Opportunity!\n📝 Title: %s\n🏢 Company: %s\n📍 Location: %s\n🔗 %s",
		r.Title, r.Company, r.Location, r.URL,
	)
}
