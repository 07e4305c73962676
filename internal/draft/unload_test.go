package draft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnload_FireInOrder(t *testing.T) {
	u := NewUnload()
	var calls []int

	u.Subscribe(func() { calls = append(calls, 1) })
	cancel := u.Subscribe(func() { calls = append(calls, 2) })
	u.Subscribe(func() { calls = append(calls, 3) })
	require.Equal(t, 3, u.Len())

	u.Fire()
	require.Equal(t, []int{1, 2, 3}, calls)

	cancel()
	cancel()
	require.Equal(t, 2, u.Len())

	calls = nil
	u.Fire()
	require.Equal(t, []int{1, 3}, calls)
}

func TestUnload_SubscriberMayUnsubscribeDuringFire(t *testing.T) {
	u := NewUnload()
	var cancel func()
	fired := 0
	cancel = u.Subscribe(func() {
		fired++
		cancel()
	})

	u.Fire()
	u.Fire()
	require.Equal(t, 1, fired)
	require.Equal(t, 0, u.Len())
}
