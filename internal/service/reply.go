package service

import (
	"github.com/pichehq/workspace-messaging/internal/model"
)

// SnapshotReply projects a message into the immutable snapshot embedded in a
// reply. Captured at send time and never re-resolved: if the original later
// becomes unavailable the snapshot stays renderable on its own.
func SnapshotReply(msg model.Message, senderName string) model.Reply {
	if senderName == "" {
		senderName = msg.SenderName
	}
	return model.Reply{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Kind:       msg.Kind,
		Text:       msg.Text,
		ImageURL:   msg.ImageURL,
		CreatedAt:  msg.CreatedAt,
	}
}
