package services

import (
	"strings"

	"forumai/models"
)

// ContextType names how much thread content was sent with a reply
// generation request.
type ContextType string

const (
	ContextTypeFirstPostOnly ContextType = "first_post_only"
	ContextTypeWholeTopic    ContextType = "whole_topic"
	ContextTypeLastPost      ContextType = "last_post"
)

// TopicContext is the thread excerpt handed to the generation API plus
// the threading decision: ParentPostID is zero for a top-level reply and
// the most recent post's ID when the reply nests under it.
type TopicContext struct {
	ContextType  ContextType
	Content      string
	ParentPostID uint
}

// BuildTopicContext assembles the reply-generation context for a topic
// according to the configured strategy. Posts must be ordered by creation
// time. When the last_post strategy finds that the most recent post is
// the topic's first post, it falls back to first_post_only and threads
// the reply at top level.
func BuildTopicContext(topic *models.Topic, strategy models.ReplyStrategy) TopicContext {
	if topic == nil || len(topic.Posts) == 0 {
		return TopicContext{ContextType: ContextTypeFirstPostOnly}
	}
	first := topic.Posts[0]
	last := topic.Posts[len(topic.Posts)-1]

	switch strategy {
	case models.ReplyStrategyWholeTopic:
		var sb strings.Builder
		sb.WriteString("Topic: " + topic.Title + "\n\n")
		for _, p := range topic.Posts {
			sb.WriteString(p.Body + "\n\n")
		}
		return TopicContext{
			ContextType: ContextTypeWholeTopic,
			Content:     strings.TrimSpace(sb.String()),
		}
	case models.ReplyStrategyLastPost:
		if last.ID == first.ID || last.IsFirstPost {
			// The thread has no replies yet; there is no "last post"
			// distinct from the opening post to respond to.
			return TopicContext{
				ContextType: ContextTypeFirstPostOnly,
				Content:     "Topic: " + topic.Title + "\n\n" + first.Body,
			}
		}
		return TopicContext{
			ContextType:  ContextTypeLastPost,
			Content:      "Topic: " + topic.Title + "\n\nOpening post:\n" + first.Body + "\n\nMost recent post:\n" + last.Body,
			ParentPostID: last.ID,
		}
	default: // first_post
		return TopicContext{
			ContextType: ContextTypeFirstPostOnly,
			Content:     "Topic: " + topic.Title + "\n\n" + first.Body,
		}
	}
}
