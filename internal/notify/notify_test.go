package notify

import (
	"context"
	"testing"

	"github.com/xtrntr/parimut/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_CloseClosesBothWriters(t *testing.T) {
	p := NewProducer("localhost:9092", "stakes", "settled")
	require.NoError(t, p.Close())

	// A closed writer rejects publishes without dialing the broker; both
	// topics must refuse, not just the first one closed.
	ctx := context.Background()
	assert.Error(t, p.PublishStakeAccepted(ctx, StakeAccepted{EventID: 1}))
	assert.Error(t, p.PublishEventSettled(ctx, EventSettled{Report: models.SettlementReport{EventID: 1}}))
}
