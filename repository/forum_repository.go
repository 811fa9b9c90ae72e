package repository

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"forumai/models"

	"gorm.io/gorm"
)

// TopicFilter narrows eligible topics for the reply generator. Zero
// values mean "no constraint".
type TopicFilter struct {
	ForumIDs        []uint
	NewerThan       *time.Time
	OlderThan       *time.Time
	ExcludeReplied  bool // skip topics that already have replies
	ExcludeByUserID uint // skip topics whose last post is by this user
	Limit           int
}

// ForumRepository defines the interface for reading and writing forum
// content (topics, posts, tags, permalinks) on behalf of AI tasks.
type ForumRepository interface {
	CreateTopic(topic *models.Topic, firstPostBody string) (*models.Topic, error)
	CreateReply(post *models.Post) (*models.Post, error)
	GetTopicWithPosts(topicID uint) (*models.Topic, error)
	GetTopicsByIDs(ids []uint) ([]*models.Topic, error)
	SampleTopics(filter TopicFilter) ([]*models.Topic, error)
	GetTopicsForTagging(limit int) ([]*models.Topic, error)
	UpdateTopicTags(topicID uint, tags []string, taskID uint) error
	ResolvePermalink(postID uint) (string, bool)
}

type forumRepository struct {
	db      *gorm.DB
	baseURL string
}

// NewForumRepository creates a new instance of ForumRepository. baseURL is
// the forum's public URL root used when resolving permalinks.
func NewForumRepository(db *gorm.DB, baseURL string) ForumRepository {
	return &forumRepository{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

// CreateTopic creates a topic together with its first post. Author and
// status are re-asserted with a direct update after the insert so that any
// moderation hook on the model cannot override the values chosen for
// AI-generated content.
func (r *forumRepository) CreateTopic(topic *models.Topic, firstPostBody string) (*models.Topic, error) {
	if topic == nil {
		return nil, errors.New("topic cannot be nil")
	}
	wantStatus := topic.Status
	wantUser := topic.UserID
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(topic).Error; err != nil {
			return err
		}
		post := &models.Post{
			TopicID:     topic.ID,
			Title:       topic.Title,
			Body:        firstPostBody,
			UserID:      wantUser,
			IsFirstPost: true,
			Status:      string(wantStatus),
		}
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		topic.FirstPostID = post.ID
		topic.LastPostID = post.ID
		topic.PostCount = 1
		// Final overwrite of the moderated fields, last-writer-wins.
		return tx.Model(&models.Topic{}).Where("id = ?", topic.ID).
			Updates(map[string]interface{}{
				"first_post_id": post.ID,
				"last_post_id":  post.ID,
				"post_count":    1,
				"status":        wantStatus,
				"user_id":       wantUser,
			}).Error
	})
	if err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to create topic '%s': %v", topic.Title, err)
		return nil, fmt.Errorf("failed to create topic '%s': %w", topic.Title, err)
	}
	log.Printf("INFO: [ForumRepository] Created topic ID %d ('%s') in forum %d.", topic.ID, topic.Title, topic.ForumID)
	return topic, nil
}

// CreateReply appends a post to an existing topic and maintains the
// topic's last-post pointer and post count.
func (r *forumRepository) CreateReply(post *models.Post) (*models.Post, error) {
	if post == nil {
		return nil, errors.New("post cannot be nil")
	}
	if post.TopicID == 0 {
		return nil, errors.New("reply must reference a topic")
	}
	wantStatus := post.Status
	wantUser := post.UserID
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		// Re-assert author and status after creation hooks.
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			Updates(map[string]interface{}{"status": wantStatus, "user_id": wantUser}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Topic{}).Where("id = ?", post.TopicID).
			Updates(map[string]interface{}{
				"last_post_id": post.ID,
				"post_count":   gorm.Expr("post_count + 1"),
			}).Error
	})
	if err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to create reply in topic %d: %v", post.TopicID, err)
		return nil, fmt.Errorf("failed to create reply in topic %d: %w", post.TopicID, err)
	}
	log.Printf("INFO: [ForumRepository] Created reply ID %d in topic %d.", post.ID, post.TopicID)
	return post, nil
}

// GetTopicWithPosts retrieves a topic and its posts ordered by creation
// time. Returns (nil, nil) when the topic does not exist.
func (r *forumRepository) GetTopicWithPosts(topicID uint) (*models.Topic, error) {
	var topic models.Topic
	err := r.db.Preload("Posts", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at asc, id asc")
	}).First(&topic, topicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("ERROR: [ForumRepository] Failed to retrieve topic ID %d: %v", topicID, err)
		return nil, fmt.Errorf("failed to retrieve topic ID %d: %w", topicID, err)
	}
	return &topic, nil
}

// GetTopicsByIDs retrieves the given topics, dropping IDs that do not
// exist or are not publicly visible.
func (r *forumRepository) GetTopicsByIDs(ids []uint) ([]*models.Topic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var topics []*models.Topic
	err := r.db.
		Where("id IN ? AND status = ?", ids, models.TopicStatusApproved).
		Find(&topics).Error
	if err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to retrieve topics by IDs: %v", err)
		return nil, fmt.Errorf("failed to retrieve topics by IDs: %w", err)
	}
	return topics, nil
}

// SampleTopics randomly selects eligible topics for reply generation.
// Private, closed and unapproved topics are always excluded.
func (r *forumRepository) SampleTopics(filter TopicFilter) ([]*models.Topic, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1
	}
	q := r.db.Where("status = ?", models.TopicStatusApproved)
	if len(filter.ForumIDs) > 0 {
		q = q.Where("forum_id IN ?", filter.ForumIDs)
	}
	if filter.NewerThan != nil {
		q = q.Where("created_at >= ?", *filter.NewerThan)
	}
	if filter.OlderThan != nil {
		q = q.Where("created_at <= ?", *filter.OlderThan)
	}
	if filter.ExcludeReplied {
		q = q.Where("post_count <= 1")
	}
	if filter.ExcludeByUserID != 0 {
		q = q.Where("id NOT IN (?)", r.db.Model(&models.Post{}).
			Select("topic_id").Where("user_id = ?", filter.ExcludeByUserID))
	}
	var topics []*models.Topic
	if err := q.Order("RANDOM()").Limit(limit).Find(&topics).Error; err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to sample topics: %v", err)
		return nil, fmt.Errorf("failed to sample topics: %w", err)
	}
	log.Printf("INFO: [ForumRepository] Sampled %d eligible topics (limit %d).", len(topics), limit)
	return topics, nil
}

// GetTopicsForTagging returns approved topics not yet processed by any tag
// maintenance task (task_tag marker is zero), oldest first.
func (r *forumRepository) GetTopicsForTagging(limit int) ([]*models.Topic, error) {
	if limit <= 0 {
		limit = 5
	}
	var topics []*models.Topic
	err := r.db.
		Where("status = ? AND task_tag = 0", models.TopicStatusApproved).
		Order("created_at asc").
		Limit(limit).
		Find(&topics).Error
	if err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to fetch topics for tagging: %v", err)
		return nil, fmt.Errorf("failed to fetch topics for tagging: %w", err)
	}
	return topics, nil
}

// UpdateTopicTags stores the merged tag list and marks the topic as
// processed by the given task so it is not reselected.
func (r *forumRepository) UpdateTopicTags(topicID uint, tags []string, taskID uint) error {
	err := r.db.Model(&models.Topic{}).Where("id = ?", topicID).
		Updates(map[string]interface{}{
			"tags":     strings.Join(tags, ","),
			"task_tag": taskID,
		}).Error
	if err != nil {
		log.Printf("ERROR: [ForumRepository] Failed to update tags for topic %d: %v", topicID, err)
		return fmt.Errorf("failed to update tags for topic %d: %w", topicID, err)
	}
	log.Printf("INFO: [ForumRepository] Updated tags for topic %d (%d tags, task %d).", topicID, len(tags), taskID)
	return nil
}

// ResolvePermalink maps a post ID to its public URL. The second return is
// false when the post does not exist; callers treat that as "leave the
// citation as literal text".
func (r *forumRepository) ResolvePermalink(postID uint) (string, bool) {
	var post models.Post
	err := r.db.Select("id", "topic_id").First(&post, postID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("WARN: [ForumRepository] Permalink lookup failed for post %d: %v", postID, err)
		}
		return "", false
	}
	return fmt.Sprintf("%s/topic/%d/#post-%d", r.baseURL, post.TopicID, post.ID), true
}
