// Package pricing holds the versioned credit cost table. The table ships
// with the binary: price changes apply only to requests admitted after a
// deploy, in-flight work keeps the cost charged at admission.
package pricing

import "pixelmint/internal/model"

const (
	ImageCost     = 6
	ImageEditCost = 10
)

// videoTiers maps supported video durations (seconds) to credit cost.
var videoTiers = map[int]int64{
	5:  50,
	10: 100,
	15: 150,
}

// videoFallbackCost is charged for durations outside the tier table.
// Deliberately the priciest tier so an unknown duration can never
// undercharge.
const videoFallbackCost = 150

// Cost returns the credit cost for a request. Pure lookup, no side effects.
func Cost(req model.GenerationRequest) int64 {
	switch req.Kind {
	case model.KindImage:
		return ImageCost
	case model.KindImageEdit:
		return ImageEditCost
	case model.KindVideo:
		if c, ok := videoTiers[req.DurationSeconds]; ok {
			return c
		}
		return videoFallbackCost
	}
	return 0
}

// VideoCost returns the cost for a video of the given duration.
func VideoCost(durationSeconds int) int64 {
	if c, ok := videoTiers[durationSeconds]; ok {
		return c
	}
	return videoFallbackCost
}
