package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"forumai/models"
	"forumai/repository"

	"gorm.io/datatypes"
)

// RunResult summarizes one task execution for callers and for the
// admin UI's "run now" action.
type RunResult struct {
	Status       models.TaskLogStatus `json:"status"`
	ItemsCreated int                  `json:"items_created"`
	CreditsUsed  int                  `json:"credits_used"`
	Message      string               `json:"message,omitempty"`
}

// ExecutorService turns a due task into generated forum content: one
// external API call per run, credit accounting, and a task log entry
// mirrored into the central admin log. There is no retry inside a run;
// the next scheduled cycle is the retry mechanism.
type ExecutorService interface {
	RunTask(ctx context.Context, task *models.Task) (*RunResult, error)
	RunTaskByID(ctx context.Context, taskID uint) (*RunResult, error)
	// OnContentApproved runs an event-triggered (run_on_approval) task
	// scoped to the single just-approved topic.
	OnContentApproved(ctx context.Context, taskID, topicID uint) (*RunResult, error)
	// CheckCreditThreshold reports whether the task may spend credits
	// today. False means the daily cap is already reached.
	CheckCreditThreshold(task *models.Task, cfg *models.TaskConfig) (bool, error)
}

type executorService struct {
	taskRepo  repository.TaskRepository
	forumRepo repository.ForumRepository
	adminLogs repository.AdminLogRepository
	client    AIClient
}

// NewExecutorService creates an executor with its storage and API
// collaborators.
func NewExecutorService(
	taskRepo repository.TaskRepository,
	forumRepo repository.ForumRepository,
	adminLogs repository.AdminLogRepository,
	client AIClient,
) ExecutorService {
	return &executorService{
		taskRepo:  taskRepo,
		forumRepo: forumRepo,
		adminLogs: adminLogs,
		client:    client,
	}
}

func (e *executorService) RunTaskByID(ctx context.Context, taskID uint) (*RunResult, error) {
	task, err := e.taskRepo.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	return e.RunTask(ctx, task)
}

func (e *executorService) RunTask(ctx context.Context, task *models.Task) (*RunResult, error) {
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}
	cfg, err := models.DecodeTaskConfig(task.Config)
	if err != nil {
		log.Printf("ERROR: [Executor] Task %d has malformed config: %v", task.ID, err)
		e.finishRun(task, time.Now(), &RunResult{Status: models.TaskLogStatusError, Message: "malformed task config"}, nil)
		return nil, fmt.Errorf("task %d has malformed config: %w", task.ID, err)
	}
	return e.run(ctx, task, cfg)
}

func (e *executorService) OnContentApproved(ctx context.Context, taskID, topicID uint) (*RunResult, error) {
	task, err := e.taskRepo.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d not found", taskID)
	}
	if task.Status != models.TaskStatusActive {
		log.Printf("INFO: [Executor] Approval hook ignored for task %d (status %s).", task.ID, task.Status)
		return &RunResult{Status: models.TaskLogStatusSkipped, Message: "task not active"}, nil
	}
	cfg, err := models.DecodeTaskConfig(task.Config)
	if err != nil {
		return nil, fmt.Errorf("task %d has malformed config: %w", task.ID, err)
	}
	if !cfg.RunOnApproval {
		log.Printf("INFO: [Executor] Approval hook ignored for task %d (not event-triggered).", task.ID)
		return &RunResult{Status: models.TaskLogStatusSkipped, Message: "task is not event-triggered"}, nil
	}
	// Scope the run to the one approved item.
	scoped := *cfg
	scoped.ItemsPerRun = 1
	scoped.TopicIDs = []uint{topicID}
	log.Printf("INFO: [Executor] Approval hook firing task %d for topic %d.", task.ID, topicID)
	return e.run(ctx, task, &scoped)
}

// run is the shared per-run contract: credit guard, type dispatch, stat
// updates, log row, admin-log mirror.
func (e *executorService) run(ctx context.Context, task *models.Task, cfg *models.TaskConfig) (*RunResult, error) {
	started := time.Now()

	allowed, err := e.CheckCreditThreshold(task, cfg)
	if err != nil {
		log.Printf("ERROR: [Executor] Credit check failed for task %d: %v", task.ID, err)
		result := &RunResult{Status: models.TaskLogStatusError, Message: "credit check failed"}
		e.finishRun(task, started, result, nil)
		return result, err
	}
	if !allowed {
		result := &RunResult{Status: models.TaskLogStatusSkipped, Message: "daily credit limit reached"}
		if cfg.PauseOnCreditLimit {
			task.Status = models.TaskStatusPaused
			result.Message = "daily credit limit reached; task paused"
			log.Printf("WARN: [Executor] Task %d paused after hitting its daily credit limit.", task.ID)
		} else {
			log.Printf("INFO: [Executor] Task %d skipped this run: daily credit limit reached.", task.ID)
		}
		e.finishRun(task, started, result, nil)
		return result, nil
	}

	var result *RunResult
	var resultData map[string]interface{}
	switch task.Type {
	case models.TaskTypeTopicGenerator:
		result, resultData, err = e.runTopicGenerator(ctx, task, cfg)
	case models.TaskTypeReplyGenerator:
		result, resultData, err = e.runReplyGenerator(ctx, task, cfg)
	case models.TaskTypeTagMaintenance:
		result, resultData, err = e.runTagMaintenance(ctx, task, cfg)
	default:
		err = fmt.Errorf("unknown task type '%s'", task.Type)
		result = &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}
	}
	if err != nil && result == nil {
		result = &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}
	}

	e.finishRun(task, started, result, resultData)
	return result, err
}

// finishRun updates cumulative task statistics, appends the task log row
// and mirrors a summary into the central admin log.
func (e *executorService) finishRun(task *models.Task, started time.Time, result *RunResult, resultData map[string]interface{}) {
	now := time.Now()
	task.TotalRuns++
	task.ItemsCreated += result.ItemsCreated
	task.CreditsUsed += result.CreditsUsed
	task.LastRunTime = &now
	if err := e.taskRepo.UpdateTask(task); err != nil {
		log.Printf("ERROR: [Executor] Failed to update statistics for task %d: %v", task.ID, err)
	}

	var blob datatypes.JSON
	if resultData != nil {
		if raw, err := json.Marshal(resultData); err == nil {
			blob = datatypes.JSON(raw)
		}
	}
	entry := &models.TaskLog{
		TaskID:            task.ID,
		ExecutionTime:     started,
		Status:            result.Status,
		ItemsCreated:      result.ItemsCreated,
		CreditsUsed:       result.CreditsUsed,
		ExecutionDuration: now.Sub(started).Milliseconds(),
		ErrorMessage:      errorMessageFor(result),
		ResultData:        blob,
	}
	if err := e.taskRepo.AppendLog(entry); err != nil {
		log.Printf("ERROR: [Executor] Failed to append log for task %d: %v", task.ID, err)
	}

	level := "info"
	if result.Status == models.TaskLogStatusError {
		level = "error"
	}
	mirror := &models.AdminLog{
		Source:  "task_executor",
		Level:   level,
		Message: fmt.Sprintf("Task '%s' (%s) finished with status %s: %d items, %d credits.", task.Name, task.Type, result.Status, result.ItemsCreated, result.CreditsUsed),
		TaskID:  task.ID,
	}
	if err := e.adminLogs.Append(mirror); err != nil {
		log.Printf("ERROR: [Executor] Failed to mirror admin log for task %d: %v", task.ID, err)
	}
}

func errorMessageFor(result *RunResult) string {
	if result.Status == models.TaskLogStatusCompleted {
		return ""
	}
	return result.Message
}

func (e *executorService) CheckCreditThreshold(task *models.Task, cfg *models.TaskConfig) (bool, error) {
	if cfg.MaxDailyCredits <= 0 {
		return true, nil
	}
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	used, err := e.taskRepo.SumCreditsUsedSince(task.ID, midnight)
	if err != nil {
		return false, fmt.Errorf("failed to sum today's credits for task %d: %w", task.ID, err)
	}
	return used < cfg.MaxDailyCredits, nil
}

// instructionsFor expands the config's tone/length knobs into plain
// instruction text sent to the generation API.
func instructionsFor(cfg *models.TaskConfig) string {
	var parts []string
	switch cfg.Tone {
	case "casual":
		parts = append(parts, "Write in a relaxed, conversational tone.")
	case "professional":
		parts = append(parts, "Write in a clear, professional tone.")
	case "friendly":
		parts = append(parts, "Write in a warm, friendly tone.")
	}
	switch cfg.Length {
	case "short":
		parts = append(parts, "Keep the content brief, one or two paragraphs.")
	case "medium":
		parts = append(parts, "Aim for three to five paragraphs.")
	case "long":
		parts = append(parts, "Write a detailed, in-depth piece.")
	}
	return strings.Join(parts, " ")
}

// ragContext fetches semantic-search context for generation. Search
// failures degrade to no context so a broken index never blocks a run;
// the failure is logged loudly instead.
func (e *executorService) ragContext(ctx context.Context, cfg *models.TaskConfig, query string) []string {
	if !cfg.UseRAGContext {
		return nil
	}
	results, err := e.client.RAGSearch(ctx, query, 5)
	if err != nil {
		log.Printf("WARN: [Executor] RAG context search failed, proceeding without context: %v", err)
		return nil
	}
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, r.Title+": "+r.Excerpt)
	}
	return snippets
}

func (e *executorService) runTopicGenerator(ctx context.Context, task *models.Task, cfg *models.TaskConfig) (*RunResult, map[string]interface{}, error) {
	req := GenerateRequest{
		TaskType:     string(models.TaskTypeTopicGenerator),
		Count:        cfg.ItemsPerRun,
		Instructions: instructionsFor(cfg),
		Context:      e.ragContext(ctx, cfg, task.Name),
	}
	resp, err := e.client.GenerateContent(ctx, req)
	if err != nil {
		return &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}, nil, err
	}

	forumID := uint(0)
	if len(cfg.ForumIDs) > 0 {
		forumID = cfg.ForumIDs[0]
	}

	created := 0
	skippedDuplicates := 0
	var createdIDs []uint
	for _, item := range resp.Items {
		if cfg.DuplicateCheck {
			similarity, dupErr := e.client.CheckDuplicate(ctx, item.Title, item.Content)
			if dupErr != nil {
				// Fail-open: a broken duplicate check must not stop
				// content generation.
				log.Printf("WARN: [Executor] Duplicate check failed for '%s', allowing item: %v", item.Title, dupErr)
			} else if similarity >= cfg.DuplicateThreshold {
				log.Printf("INFO: [Executor] Task %d skipped near-duplicate topic '%s' (similarity %.2f).", task.ID, item.Title, similarity)
				skippedDuplicates++
				continue
			}
		}
		topic := &models.Topic{
			ForumID: forumID,
			Title:   item.Title,
			Status:  models.TopicStatusApproved,
			UserID:  cfg.AuthorID,
			Tags:    strings.Join(item.Tags, ","),
		}
		saved, saveErr := e.forumRepo.CreateTopic(topic, item.Content)
		if saveErr != nil {
			log.Printf("ERROR: [Executor] Task %d failed to persist topic '%s': %v", task.ID, item.Title, saveErr)
			continue
		}
		created++
		createdIDs = append(createdIDs, saved.ID)
	}

	status := models.TaskLogStatusCompleted
	message := ""
	if created == 0 && len(resp.Items) > 0 {
		status = models.TaskLogStatusSkipped
		message = "all generated topics were skipped or failed to persist"
	}
	result := &RunResult{Status: status, ItemsCreated: created, CreditsUsed: resp.CreditsUsed, Message: message}
	data := map[string]interface{}{"topic_ids": createdIDs, "skipped_duplicates": skippedDuplicates}
	return result, data, nil
}

func (e *executorService) runReplyGenerator(ctx context.Context, task *models.Task, cfg *models.TaskConfig) (*RunResult, map[string]interface{}, error) {
	topics, err := e.selectReplyTargets(cfg)
	if err != nil {
		return &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}, nil, err
	}
	if len(topics) == 0 {
		log.Printf("INFO: [Executor] Task %d found no eligible topics to reply to.", task.ID)
		return &RunResult{Status: models.TaskLogStatusSkipped, Message: "no eligible topics"}, nil, nil
	}

	type replyTarget struct {
		topic *models.Topic
		ctx   TopicContext
	}
	targets := make([]replyTarget, 0, cfg.ItemsPerRun)
	payloads := make([]GenerateTopicPayload, 0, cfg.ItemsPerRun)
	byID := make(map[uint]replyTarget, cfg.ItemsPerRun)
	for _, t := range topics {
		if len(targets) >= cfg.ItemsPerRun {
			break
		}
		full, loadErr := e.forumRepo.GetTopicWithPosts(t.ID)
		if loadErr != nil || full == nil {
			log.Printf("WARN: [Executor] Task %d could not load topic %d, skipping.", task.ID, t.ID)
			continue
		}
		target := replyTarget{topic: full, ctx: BuildTopicContext(full, cfg.ReplyStrategy)}
		targets = append(targets, target)
		byID[full.ID] = target
		payloads = append(payloads, GenerateTopicPayload{
			TopicID: full.ID,
			Title:   full.Title,
			Excerpt: target.ctx.Content,
		})
	}
	if len(targets) == 0 {
		log.Printf("INFO: [Executor] Task %d could not load any of its target topics.", task.ID)
		return &RunResult{Status: models.TaskLogStatusSkipped, Message: "no target topics could be loaded"}, nil, nil
	}

	// All replies of this run go in a single batched API call.
	req := GenerateRequest{
		TaskType:     string(models.TaskTypeReplyGenerator),
		Count:        len(targets),
		Instructions: instructionsFor(cfg),
		Context:      e.ragContext(ctx, cfg, task.Name),
		Topics:       payloads,
	}
	resp, err := e.client.GenerateContent(ctx, req)
	if err != nil {
		return &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}, nil, err
	}

	created := 0
	var replyIDs []uint
	for i, item := range resp.Items {
		target, ok := byID[item.TopicID]
		if !ok {
			// Items without a topic reference pair up positionally.
			if item.TopicID == 0 && i < len(targets) {
				target = targets[i]
			} else {
				log.Printf("WARN: [Executor] Task %d received a reply for unknown topic %d, ignoring.", task.ID, item.TopicID)
				continue
			}
		}
		post := &models.Post{
			TopicID:  target.topic.ID,
			ParentID: target.ctx.ParentPostID,
			Title:    "RE: " + target.topic.Title,
			Body:     item.Content,
			UserID:   cfg.AuthorID,
			Status:   string(models.TopicStatusApproved),
		}
		saved, saveErr := e.forumRepo.CreateReply(post)
		if saveErr != nil {
			log.Printf("ERROR: [Executor] Task %d failed to persist reply in topic %d: %v", task.ID, target.topic.ID, saveErr)
			continue
		}
		created++
		replyIDs = append(replyIDs, saved.ID)
	}

	result := &RunResult{Status: models.TaskLogStatusCompleted, ItemsCreated: created, CreditsUsed: resp.CreditsUsed}
	if created == 0 {
		result.Status = models.TaskLogStatusSkipped
		result.Message = "no replies were created"
	}
	data := map[string]interface{}{"reply_ids": replyIDs}
	return result, data, nil
}

func (e *executorService) selectReplyTargets(cfg *models.TaskConfig) ([]*models.Topic, error) {
	if len(cfg.TopicIDs) > 0 {
		return e.forumRepo.GetTopicsByIDs(cfg.TopicIDs)
	}
	filter := repository.TopicFilter{
		ForumIDs:        cfg.ForumIDs,
		NewerThan:       cfg.TopicsNewerThan,
		OlderThan:       cfg.TopicsOlderThan,
		ExcludeReplied:  cfg.SkipRepliedTopics,
		ExcludeByUserID: excludeAuthorFor(cfg),
		Limit:           cfg.ItemsPerRun,
	}
	return e.forumRepo.SampleTopics(filter)
}

// excludeAuthorFor avoids replying to topics the task's own author has
// already posted in, when replied topics are being skipped.
func excludeAuthorFor(cfg *models.TaskConfig) uint {
	if cfg.SkipRepliedTopics {
		return cfg.AuthorID
	}
	return 0
}

func (e *executorService) runTagMaintenance(ctx context.Context, task *models.Task, cfg *models.TaskConfig) (*RunResult, map[string]interface{}, error) {
	topics, err := e.forumRepo.GetTopicsForTagging(cfg.TopicsPerRun)
	if err != nil {
		return &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}, nil, err
	}
	if len(topics) == 0 {
		log.Printf("INFO: [Executor] Task %d found no topics awaiting tag maintenance.", task.ID)
		return &RunResult{Status: models.TaskLogStatusSkipped, Message: "no topics to process"}, nil, nil
	}

	// All topics of this run go in a single batched API call.
	payloads := make([]GenerateTopicPayload, 0, len(topics))
	byID := make(map[uint]*models.Topic, len(topics))
	for _, t := range topics {
		payloads = append(payloads, GenerateTopicPayload{
			TopicID: t.ID,
			Title:   t.Title,
			Tags:    splitTags(t.Tags),
		})
		byID[t.ID] = t
	}
	req := GenerateRequest{
		TaskType:     string(models.TaskTypeTagMaintenance),
		Count:        len(payloads),
		Instructions: instructionsFor(cfg),
		Topics:       payloads,
	}
	resp, err := e.client.GenerateContent(ctx, req)
	if err != nil {
		return &RunResult{Status: models.TaskLogStatusError, Message: err.Error()}, nil, err
	}

	processed := 0
	for _, item := range resp.Items {
		topic, ok := byID[item.TopicID]
		if !ok {
			log.Printf("WARN: [Executor] Task %d received tags for unknown topic %d, ignoring.", task.ID, item.TopicID)
			continue
		}
		merged := MergeTags(splitTags(topic.Tags), item.Tags, item.IrrelevantTags, cfg)
		if err := e.forumRepo.UpdateTopicTags(topic.ID, merged, task.ID); err != nil {
			log.Printf("ERROR: [Executor] Task %d failed to update tags for topic %d: %v", task.ID, topic.ID, err)
			continue
		}
		processed++
	}

	result := &RunResult{Status: models.TaskLogStatusCompleted, ItemsCreated: processed, CreditsUsed: resp.CreditsUsed}
	if processed == 0 {
		result.Status = models.TaskLogStatusSkipped
		result.Message = "no topics were updated"
	}
	data := map[string]interface{}{"topics_processed": processed}
	return result, data, nil
}

func splitTags(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// MergeTags combines a topic's existing tags with AI-suggested ones
// according to the task's tag flags: preserve-existing keeps the current
// tags as the base, drop-irrelevant removes tags the AI flagged,
// lowercase normalizes case, and remove-duplicates dedupes
// case-insensitively while keeping first occurrence order.
func MergeTags(existing, suggested, irrelevant []string, cfg *models.TaskConfig) []string {
	var merged []string
	if cfg.PreserveExisting {
		merged = append(merged, existing...)
	}
	if cfg.DropIrrelevant && len(irrelevant) > 0 {
		drop := make(map[string]bool, len(irrelevant))
		for _, t := range irrelevant {
			drop[strings.ToLower(strings.TrimSpace(t))] = true
		}
		kept := merged[:0]
		for _, t := range merged {
			if !drop[strings.ToLower(strings.TrimSpace(t))] {
				kept = append(kept, t)
			}
		}
		merged = kept
	}
	merged = append(merged, suggested...)

	if cfg.LowercaseTags {
		for i, t := range merged {
			merged[i] = strings.ToLower(t)
		}
	}
	if cfg.RemoveDuplicates {
		seen := make(map[string]bool, len(merged))
		deduped := merged[:0]
		for _, t := range merged {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			deduped = append(deduped, t)
		}
		merged = deduped
	}
	return merged
}
