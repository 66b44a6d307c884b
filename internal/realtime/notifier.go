// Package realtime pushes debate events to clients over PubNub. Every
// user listens on their own "user-<id>" channel; debate rooms share a
// "debate-<id>" channel.
package realtime

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier is the push collaborator. Delivery is best-effort; failures
// are logged, never propagated, so a push outage cannot stall a debate.
type Notifier interface {
	PublishToUser(userID string, message map[string]any)
	PublishToDebate(debateID string, message map[string]any)
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (n *PubNubNotifier) PublishToUser(userID string, message map[string]any) {
	n.publish(fmt.Sprintf("user-%s", userID), message)
}

func (n *PubNubNotifier) PublishToDebate(debateID string, message map[string]any) {
	n.publish(fmt.Sprintf("debate-%s", debateID), message)
}

func (n *PubNubNotifier) publish(channel string, message map[string]any) {
	_, pubStatus, err := n.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Error("pubnub publish failed", "channel", channel, "error", err)
		return
	}
	if pubStatus.Error != nil {
		slog.Error("pubnub publish rejected", "channel", channel, "status", pubStatus.StatusCode)
	}
}

// Noop discards all messages. Used in tests and when push is not
// configured.
type Noop struct{}

func (Noop) PublishToUser(string, map[string]any)   {}
func (Noop) PublishToDebate(string, map[string]any) {}
