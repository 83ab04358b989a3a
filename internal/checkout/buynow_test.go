package checkout_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kehinde-o/storefront-pay/internal/checkout"
)

func TestBuyNowItemExpires(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := checkout.RedisItemStore{R: client, TTL: time.Minute}
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "store-a", "sess-1", checkout.Item{ProductID: "p-1", Quantity: 1, UnitPrice: 100}))

	item, err := s.Load(ctx, "store-a", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, item)

	mr.FastForward(2 * time.Minute)

	item, err = s.Load(ctx, "store-a", "sess-1")
	require.NoError(t, err)
	require.Nil(t, item)
}

func TestBuyNowItemsAreScopedPerStoreAndSession(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := checkout.RedisItemStore{R: client, TTL: time.Minute}
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "store-a", "sess-1", checkout.Item{ProductID: "p-1", Quantity: 1, UnitPrice: 100}))

	item, err := s.Load(ctx, "store-b", "sess-1")
	require.NoError(t, err)
	require.Nil(t, item)

	item, err = s.Load(ctx, "store-a", "sess-2")
	require.NoError(t, err)
	require.Nil(t, item)
}
