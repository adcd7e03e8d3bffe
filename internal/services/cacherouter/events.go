package cacherouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"FinPWA/internal/domain/models"
	"FinPWA/pkg/logger"
)

// Notification actions offered on every push notification.
const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
	ActionClose   = "close"
)

// Sync posts the message type mapped to tag to every client. Unknown tags
// are ignored and report false.
func (w *Worker) Sync(ctx context.Context, tag string) (bool, error) {
	typ, ok := w.cfg.SyncTags[tag]
	if !ok {
		w.logger.Debug("ignoring unknown sync tag", logger.String("tag", tag))
		return false, nil
	}
	if w.clients == nil {
		return true, nil
	}

	n, err := w.clients.PostMessage(ctx, models.ClientMessage{Type: typ, Message: tag})
	if w.metrics != nil {
		w.metrics.RecordLifecycle("sync", err)
	}
	if err != nil {
		return true, fmt.Errorf("sync %s: %w", tag, err)
	}
	w.logger.Info("background sync", logger.String("tag", tag), logger.Int("clients", n))
	return true, nil
}

// BuildNotification turns a push payload into a notification. An empty
// payload uses the default body, a JSON object may set title and body, and
// anything else is the body text.
func (w *Worker) BuildNotification(payload []byte) models.Notification {
	d := w.cfg.Notification
	n := models.Notification{
		Title:   d.Title,
		Body:    d.Body,
		Icon:    d.Icon,
		Badge:   d.Badge,
		Vibrate: append([]int(nil), d.Vibrate...),
		Actions: []models.NotificationAction{
			{Action: ActionView, Title: "View", Icon: d.Icon},
			{Action: ActionDismiss, Title: "Dismiss"},
		},
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return n
	}
	if gjson.Valid(text) && gjson.Parse(text).IsObject() {
		doc := gjson.Parse(text)
		if t := doc.Get("title"); t.Exists() && t.String() != "" {
			n.Title = t.String()
		}
		if b := doc.Get("body"); b.Exists() && b.String() != "" {
			n.Body = b.String()
		}
		n.Data = json.RawMessage(text)
		return n
	}
	n.Body = text
	return n
}

// Push shows a notification built from payload on the clients.
func (w *Worker) Push(ctx context.Context, payload []byte) (models.Notification, error) {
	n := w.BuildNotification(payload)
	if w.clients == nil {
		return n, nil
	}
	err := w.clients.ShowNotification(ctx, n)
	if w.metrics != nil {
		w.metrics.RecordLifecycle("push", err)
	}
	if err != nil {
		return n, fmt.Errorf("show notification: %w", err)
	}
	return n, nil
}

// NotificationClick focuses an open client on the app root, or asks for one
// to be opened. Dismiss and close actions do nothing.
func (w *Worker) NotificationClick(ctx context.Context, click models.NotificationClick) error {
	switch click.Action {
	case ActionDismiss, ActionClose:
		return nil
	}
	if w.clients == nil {
		return nil
	}

	target := w.cfg.Notification.OpenURL
	if u := gjson.GetBytes(click.Data, "url"); u.Exists() && strings.HasPrefix(u.String(), "/") {
		target = u.String()
	}

	focused, err := w.clients.Focus(ctx, target)
	if err == nil && !focused {
		err = w.clients.OpenWindow(ctx, target)
	}
	if w.metrics != nil {
		w.metrics.RecordLifecycle("notificationclick", err)
	}
	if err != nil {
		return fmt.Errorf("notification click: %w", err)
	}
	return nil
}
