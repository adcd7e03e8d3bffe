package cacherouter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPWA/internal/domain/models"
)

func TestSync(t *testing.T) {
	h := newHarness(t)

	handled, err := h.w.Sync(context.Background(), "portfolio-sync")
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = h.w.Sync(context.Background(), "unknown-tag")
	require.NoError(t, err)
	assert.False(t, handled)

	require.Len(t, h.clients.messages, 1)
	assert.Equal(t, "PORTFOLIO_SYNC", h.clients.messages[0].Type)
}

func TestBuildNotification(t *testing.T) {
	h := newHarness(t)

	empty := h.w.BuildNotification(nil)
	assert.Equal(t, "Portfolio Tracker", empty.Title)
	assert.Equal(t, "New financial update available", empty.Body)
	assert.Equal(t, []int{100, 50, 100}, empty.Vibrate)
	require.Len(t, empty.Actions, 2)
	assert.Nil(t, empty.Data)

	text := h.w.BuildNotification([]byte("AAPL crossed 200"))
	assert.Equal(t, "AAPL crossed 200", text.Body)
	assert.Nil(t, text.Data)

	doc := h.w.BuildNotification([]byte(`{"title":"Price alert","body":"BTC -5%","url":"/alerts"}`))
	assert.Equal(t, "Price alert", doc.Title)
	assert.Equal(t, "BTC -5%", doc.Body)
	assert.JSONEq(t, `{"title":"Price alert","body":"BTC -5%","url":"/alerts"}`, string(doc.Data))

	array := h.w.BuildNotification([]byte(`[1,2]`))
	assert.Equal(t, "[1,2]", array.Body)
}

func TestPush(t *testing.T) {
	h := newHarness(t)

	n, err := h.w.Push(context.Background(), []byte(`{"body":"rebalance due"}`))
	require.NoError(t, err)
	assert.Equal(t, "rebalance due", n.Body)
	require.Len(t, h.clients.notes, 1)
	assert.Equal(t, "Portfolio Tracker", h.clients.notes[0].Title)
}

func TestNotificationClick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.w.NotificationClick(ctx, models.NotificationClick{Action: ActionDismiss}))
	assert.Empty(t, h.clients.opened)
	assert.Empty(t, h.clients.focused)

	require.NoError(t, h.w.NotificationClick(ctx, models.NotificationClick{Action: ActionView}))
	assert.Equal(t, []string{"/"}, h.clients.opened)

	h.clients.hasOpen = true
	data := json.RawMessage(`{"url":"/alerts"}`)
	require.NoError(t, h.w.NotificationClick(ctx, models.NotificationClick{Data: data}))
	assert.Equal(t, []string{"/alerts"}, h.clients.focused)
	assert.Len(t, h.clients.opened, 1)
}
