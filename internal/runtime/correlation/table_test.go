package correlation

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/replybus/internal/runtime/errors"
)

func TestResolveInvokesOnceAndRemoves(t *testing.T) {
	table := NewTable()
	var calls int
	var gotBody []byte
	require.NoError(t, table.Register("id-1", func(body []byte, err error) {
		calls++
		gotBody = body
		assert.NoError(t, err)
	}, 0))
	assert.Equal(t, 1, table.Len())

	assert.True(t, table.Resolve("id-1", []byte("ok"), nil))
	assert.False(t, table.Resolve("id-1", []byte("again"), nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []byte("ok"), gotBody)
	assert.Zero(t, table.Len())
}

func TestResolveUnknownIDIsNoop(t *testing.T) {
	table := NewTable()
	assert.False(t, table.Resolve("missing", nil, nil))
	assert.False(t, table.Cancel("missing"))
}

func TestRegisterRejectsDuplicatesAndNilCallbacks(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register("id", func([]byte, error) {}, 0))
	assert.ErrorIs(t, table.Register("id", func([]byte, error) {}, 0), errspkg.ErrDuplicateID)
	assert.ErrorIs(t, table.Register("other", nil, 0), errspkg.ErrHandlerRequired)
	assert.Equal(t, 1, table.Len())
}

func TestCallbackDoesNotObserveItsOwnEntry(t *testing.T) {
	table := NewTable()
	stillPending := -1
	require.NoError(t, table.Register("id", func([]byte, error) {
		stillPending = table.Len()
		// Re-registering the same id from inside the callback must not deadlock.
		require.NoError(t, table.Register("id", func([]byte, error) {}, 0))
	}, 0))

	table.Resolve("id", nil, nil)

	assert.Zero(t, stillPending)
	assert.Equal(t, 1, table.Len())
}

func TestCancelDropsWithoutInvoking(t *testing.T) {
	table := NewTable()
	invoked := false
	require.NoError(t, table.Register("id", func([]byte, error) { invoked = true }, 0))

	assert.True(t, table.Cancel("id"))
	assert.False(t, table.Resolve("id", nil, nil))
	assert.False(t, invoked)
}

func TestTimeoutResolvesWithErrRequestTimeout(t *testing.T) {
	table := NewTable()
	expired := make(chan string, 1)
	table.OnExpired = func(id string) { expired <- id }

	result := make(chan error, 1)
	require.NoError(t, table.Register("slow", func(_ []byte, err error) { result <- err }, 10*time.Millisecond))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errspkg.ErrRequestTimeout)
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	assert.Equal(t, "slow", <-expired)
	assert.Zero(t, table.Len())
}

func TestResolveBeforeTimeoutStopsTimer(t *testing.T) {
	table := NewTable()
	var calls atomic.Int32
	table.OnExpired = func(string) { t.Error("request should not expire") }
	require.NoError(t, table.Register("fast", func([]byte, error) { calls.Add(1) }, 20*time.Millisecond))

	assert.True(t, table.Resolve("fast", nil, nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCloseResolvesEverythingAndRejectsLateRegistrations(t *testing.T) {
	table := NewTable()
	closeErr := errors.New("closing")
	var got []error
	var mu sync.Mutex
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, table.Register(id, func(_ []byte, err error) {
			mu.Lock()
			got = append(got, err)
			mu.Unlock()
		}, time.Minute))
	}

	table.Close(closeErr)

	assert.Len(t, got, 3)
	for _, err := range got {
		assert.ErrorIs(t, err, closeErr)
	}
	assert.Zero(t, table.Len())

	invoked := false
	err := table.Register("late", func([]byte, error) { invoked = true }, 0)
	assert.ErrorIs(t, err, closeErr)
	assert.Zero(t, table.Len())
	assert.False(t, invoked)
}

func TestConcurrentResolveIsExactlyOnce(t *testing.T) {
	table := NewTable()
	var calls atomic.Int32
	require.NoError(t, table.Register("id", func([]byte, error) { calls.Add(1) }, 0))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.Resolve("id", nil, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
