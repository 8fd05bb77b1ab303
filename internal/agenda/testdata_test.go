package agenda

import (
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
)

var testLoc = time.FixedZone("PDT", -7*3600)

// at returns 2024-07-23 (a Tuesday) hh:mm in testLoc.
func at(hh, mm int) time.Time {
	return time.Date(2024, 7, 23, hh, mm, 0, 0, testLoc)
}

func sessionEvent(key, title string, start time.Time) model.Event {
	return model.Event{
		Key:              key,
		Title:            title,
		Start:            start,
		End:              start.Add(time.Hour),
		SessionTypeLabel: "Session",
		Area:             "sec",
		Group:            "g" + key,
	}
}
