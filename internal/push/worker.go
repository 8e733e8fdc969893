// Package push relays operator notifications to subscribed browsers.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"bagmachine-remote/internal/model"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/session"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the part of the store the relay needs.
type SubscriptionStore interface {
	SubscriptionsFor(ctx context.Context, failure bool) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Message is one notification to relay.
type Message struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Failure bool      `json:"failure"`
	At      time.Time `json:"at"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Message
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	log     *logrus.Entry
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, store SubscriptionStore, webpushOptions *webpush.Options, log *logrus.Entry) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Message, size*8),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log := wp.log.WithField("worker", id)
	log.Debug("push worker started")
	for {
		select {
		case msg := <-wp.jobs:
			wp.deliver(ctx, msg)
		case <-ctx.Done():
			log.Debug("push worker shutting down")
			return
		}
	}
}

// Dispatch queues msg for delivery. It never blocks; when the queue is full
// the message is dropped.
func (wp *WorkerPool) Dispatch(msg Message) bool {
	select {
	case wp.jobs <- msg:
		return true
	default:
		wp.log.WithField("body", msg.Body).Warn("push queue full, dropping notification")
		return false
	}
}

// Listener returns a notify.Listener that relays every shown notification.
func (wp *WorkerPool) Listener() notify.Listener {
	return func(e notify.Event, n notify.Notification) {
		if e != notify.Shown {
			return
		}
		wp.Dispatch(Message{
			Title:   "Bagging machine",
			Body:    n.Message,
			Failure: session.IsFailureMessage(n.Message),
			At:      n.CreatedAt,
		})
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, msg Message) {
	subscriptions, err := wp.store.SubscriptionsFor(ctx, msg.Failure)
	if err != nil {
		wp.log.WithError(err).Error("failed to load push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		wp.log.WithError(err).Error("failed to encode push payload")
		return
	}

	wp.log.WithField("count", len(subscriptions)).Debug("sending push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send push notification")
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are removed.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.WithField("endpoint", sub.Endpoint).Info("push subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to delete expired subscription")
		}
	}
}
