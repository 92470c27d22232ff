package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/lcr/pkg/dynamixel"
)

type fakePinger map[int]uint16

func (p fakePinger) Ping(ctx context.Context, id int) (uint16, error) {
	n, ok := p[id]
	if !ok {
		return 0, dynamixel.ErrTimeout
	}
	return n, nil
}

func TestPingAll_Puppet(t *testing.T) {
	bus := fakePinger{1: 1060, 2: 1060, 3: 1200, 4: 1200, 5: 1190, 6: 1200}

	found, err := pingAll(context.Background(), bus)
	require.NoError(t, err)
	require.Len(t, found, 6)
	assert.Equal(t, FoundServo{ID: 1, Model: "XL430-W250", Family: FamilyXL430}, found[0])
	assert.Equal(t, FoundServo{ID: 5, Model: "XL330-M077", Family: FamilyXL330}, found[4])

	v, ok := MatchVariant(found)
	require.True(t, ok)
	assert.Equal(t, VariantPuppet, v)
}

func TestPingAll_Partial(t *testing.T) {
	bus := fakePinger{1: 1200, 3: 9999}

	found, err := pingAll(context.Background(), bus)
	require.NoError(t, err)
	assert.Equal(t, []FoundServo{
		{ID: 1, Model: "XL330-M288", Family: FamilyXL330},
		{ID: 3, Model: "model 9999"},
	}, found)

	_, ok := MatchVariant(found)
	assert.False(t, ok)
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context, id int) (uint16, error) {
	return 0, dynamixel.ErrChecksum
}

func TestPingAll_Error(t *testing.T) {
	_, err := pingAll(context.Background(), failingPinger{})
	assert.True(t, errors.Is(err, dynamixel.ErrChecksum))
}

func TestMatchVariant(t *testing.T) {
	var master, so101 []FoundServo
	for id := 1; id <= 6; id++ {
		master = append(master, FoundServo{ID: id, Family: FamilyXL330})
		so101 = append(so101, FoundServo{ID: id, Family: FamilySTS3215})
	}

	v, ok := MatchVariant(master)
	assert.True(t, ok)
	assert.Equal(t, VariantMaster, v)

	v, ok = MatchVariant(so101)
	assert.True(t, ok)
	assert.Equal(t, VariantSO101, v)
}
