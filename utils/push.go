package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"lexnexy/config"
	"lexnexy/models"
)

// Pusher sends push notifications through Firebase Cloud Messaging.
type Pusher struct {
	client    *http.Client
	serverKey string
}

const fcmEndpoint = "https://fcm.googleapis.com/fcm/send"

func NewPusher() *Pusher {
	return &Pusher{
		client:    &http.Client{Timeout: 10 * time.Second},
		serverKey: config.AppConfig.FCMServerKey,
	}
}

type fcmMessage struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
	Data         map[string]any  `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// SendPush delivers a notification to the user's registered device. Users
// without a registered FCM token are skipped silently.
func (p *Pusher) SendPush(user *models.User, notification *models.Notification) error {
	if user.FCMToken == nil || *user.FCMToken == "" {
		return nil
	}
	if p.serverKey == "" {
		return fmt.Errorf("FCM is not configured")
	}

	sound := ""
	if notification.Priority == models.NotificationPriorityCritical {
		sound = "emergency"
	}

	payload := fcmMessage{
		To: *user.FCMToken,
		Notification: fcmNotification{
			Title: notification.Title,
			Body:  notification.Message,
			Sound: sound,
		},
		Data: map[string]any{
			"notification_id": notification.ID,
			"type":            notification.Type,
			"priority":        notification.Priority,
			"action_url":      notification.ActionURL,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, fcmEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.serverKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}
	return nil
}
