package domain

import (
	"time"

	experiencedomain "github.com/roamlabs/fieldtrip/internal/experience/domain"
)

// EndTimeConfidence describes which rung of the fallback chain produced
// the effective end time. Sweeps log it so operators can spot listings
// with bad schedule data.
type EndTimeConfidence string

const (
	EndTimeExplicit     EndTimeConfidence = "explicit"
	EndTimeFromDuration EndTimeConfidence = "from_duration"
	EndTimeAssumedDay   EndTimeConfidence = "assumed_day"
	EndTimeCreationCap  EndTimeConfidence = "creation_cap"
)

const (
	assumedDayLength = 24 * time.Hour
	creationHardCap  = 7 * 24 * time.Hour
)

// EffectiveEndTime resolves when an experience is considered over for
// temporal gating. Listings never block forever: with no schedule at all
// the booking creation time plus seven days caps the wait.
func EffectiveEndTime(exp *experiencedomain.Experience, bookingCreatedAt time.Time) (time.Time, EndTimeConfidence) {
	if exp != nil && exp.EndsAt != nil {
		return exp.EndsAt.UTC(), EndTimeExplicit
	}
	if exp != nil && exp.StartsAt != nil {
		if exp.DurationMinutes > 0 {
			return exp.StartsAt.UTC().Add(time.Duration(exp.DurationMinutes) * time.Minute), EndTimeFromDuration
		}
		return exp.StartsAt.UTC().Add(assumedDayLength), EndTimeAssumedDay
	}
	return bookingCreatedAt.UTC().Add(creationHardCap), EndTimeCreationCap
}
