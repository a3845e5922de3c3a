package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pixelmint/internal/model"
)

func TestCost_ImageAndEdit(t *testing.T) {
	assert.EqualValues(t, 6, Cost(model.GenerationRequest{Kind: model.KindImage}))
	assert.EqualValues(t, 10, Cost(model.GenerationRequest{Kind: model.KindImageEdit}))
}

func TestCost_VideoTiers(t *testing.T) {
	assert.EqualValues(t, 50, Cost(model.GenerationRequest{Kind: model.KindVideo, DurationSeconds: 5}))
	assert.EqualValues(t, 100, Cost(model.GenerationRequest{Kind: model.KindVideo, DurationSeconds: 10}))
	assert.EqualValues(t, 150, Cost(model.GenerationRequest{Kind: model.KindVideo, DurationSeconds: 15}))
}

func TestCost_VideoFallbackIsPriciestTier(t *testing.T) {
	// Unsupported durations never undercharge: they land on the top tier,
	// not some multiple of it.
	for _, dur := range []int{0, 1, 7, 30, 3600} {
		cost := Cost(model.GenerationRequest{Kind: model.KindVideo, DurationSeconds: dur})
		assert.EqualValues(t, 150, cost, "duration %d", dur)
	}
}

func TestCost_UnknownKindIsZero(t *testing.T) {
	assert.EqualValues(t, 0, Cost(model.GenerationRequest{Kind: "audio"}))
}
