package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/crewdeck-dev/crewdeck/internal/mailer"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

const queueSize = 256

// Dispatcher consumes domain events on a single worker goroutine and
// performs the notification fan-out: one Notification row per
// recipient, then one outbound message per recipient referencing the
// created notification. A delivery failure is retried once and never
// propagates to the request that raised the event.
type Dispatcher struct {
	db   *gorm.DB
	mail mailer.Outbound

	// OnNotify, when set, is invoked with each recipient id after their
	// notification is written. The websocket handler uses it to nudge
	// connected clients.
	OnNotify func(userID uint)

	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(conn *gorm.DB, mail mailer.Outbound) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		db:     conn,
		mail:   mail,
		queue:  make(chan Event, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case event := <-d.queue:
				d.handle(event)
			}
		}
	}()
	log.Println("Event dispatcher started")
}

// Stop drains nothing: queued events are dropped, which is acceptable
// for a process shutdown since delivery is at-least-once per process
// lifetime, not durable.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	log.Println("Event dispatcher stopped")
}

// Dispatch enqueues an event for asynchronous fan-out. Callers invoke
// it only after their transaction has committed.
func (d *Dispatcher) Dispatch(event Event) {
	select {
	case d.queue <- event:
	case <-d.ctx.Done():
		log.Printf("Dispatcher stopped, dropping %s event", event.Name())
	}
}

func (d *Dispatcher) handle(event Event) {
	var err error

	switch ev := event.(type) {
	case TaskAssigned:
		err = d.handleTaskAssigned(ev)
	case CommentCreated:
		err = d.handleCommentCreated(ev)
	default:
		log.Printf("Unsupported event type %T", event)
		return
	}

	if err != nil {
		log.Printf("Fan-out for %s failed: %v", event.Name(), err)
	}
}

// handleTaskAssigned notifies the new assignee only. The notification
// is created already read: it is a confirmation, not an alert.
func (d *Dispatcher) handleTaskAssigned(ev TaskAssigned) error {
	var task models.Task
	if err := d.db.Preload("Project").Preload("Assignee").First(&task, ev.TaskID).Error; err != nil {
		return err
	}

	payload := map[string]interface{}{
		"task_id":  task.ID,
		"name":     task.Name,
		"deadline": task.DueDate,
		"project":  task.Project.Name,
	}

	now := time.Now()
	notification, err := d.createNotification(task.AssigneeID, "task_assigned", payload, &now)
	if err != nil {
		return err
	}
	d.notifyClient(task.AssigneeID)

	d.deliver(task.Assignee.Email, mailer.TemplateTaskAssigned, payload, notification.ID)
	return nil
}

// handleCommentCreated walks the graph as of dispatch time: for a task
// parent the recipients are the assignee, the project's workers, and
// the team owner; for a project parent the creator, the workers, and
// the team owner. The set is deduplicated and each recipient gets one
// unread notification followed by one outbound message.
func (d *Dispatcher) handleCommentCreated(ev CommentCreated) error {
	recipients, payload, err := d.commentRecipients(ev)
	if err != nil {
		return err
	}

	for _, userID := range recipients {
		notification, err := d.createNotification(userID, "comment_created", payload, nil)
		if err != nil {
			return err
		}
		d.notifyClient(userID)

		var recipient models.User
		if err := d.db.First(&recipient, userID).Error; err != nil {
			log.Printf("Recipient %d not found for comment notification: %v", userID, err)
			continue
		}
		d.deliver(recipient.Email, mailer.TemplateCommentCreated, payload, notification.ID)
	}

	return nil
}

// commentRecipients is read-only and pure over the current graph state;
// rerunning it for a retried event is safe.
func (d *Dispatcher) commentRecipients(ev CommentCreated) ([]uint, map[string]interface{}, error) {
	switch ev.ParentKind {
	case types.ParentTask:
		var task models.Task
		if err := d.db.Preload("Project.Team").First(&task, ev.ParentID).Error; err != nil {
			return nil, nil, err
		}
		workers, err := d.workerIDs(task.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		recipients := dedupe(append([]uint{task.AssigneeID, task.Project.Team.OwnerID}, workers...))
		payload := map[string]interface{}{
			"task_id":  task.ID,
			"name":     task.Name,
			"deadline": task.DueDate,
			"project":  task.Project.Name,
		}
		return recipients, payload, nil

	case types.ParentProject:
		var project models.Project
		if err := d.db.Preload("Team").First(&project, ev.ParentID).Error; err != nil {
			return nil, nil, err
		}
		workers, err := d.workerIDs(project.ID)
		if err != nil {
			return nil, nil, err
		}
		recipients := dedupe(append([]uint{project.CreatorID, project.Team.OwnerID}, workers...))
		payload := map[string]interface{}{
			"project_id": project.ID,
			"name":       project.Name,
			"deadline":   project.DueDate,
			"team":       project.Team.Name,
		}
		return recipients, payload, nil
	}

	return nil, nil, nil
}

func (d *Dispatcher) workerIDs(projectID uint) ([]uint, error) {
	var edges []models.ProjectWorker
	if err := d.db.Where("project_id = ?", projectID).Find(&edges).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.UserID)
	}
	return ids, nil
}

func (d *Dispatcher) createNotification(userID uint, kind string, payload map[string]interface{}, readAt *time.Time) (*models.Notification, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	notification := models.Notification{
		UserID: userID,
		Type:   kind,
		Data:   datatypes.JSON(data),
		ReadAt: readAt,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

// deliver schedules the outbound message, retrying once. A second
// failure is logged and abandoned; the notification row already exists
// and the in-app surface is authoritative.
func (d *Dispatcher) deliver(address string, kind mailer.TemplateKind, payload map[string]interface{}, notificationID uint) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["notification_id"] = notificationID

	if err := d.mail.Schedule(address, kind, body); err != nil {
		log.Printf("Outbound delivery to %s failed, retrying: %v", address, err)
		if err := d.mail.Schedule(address, kind, body); err != nil {
			log.Printf("Outbound delivery to %s failed twice, giving up: %v", address, err)
		}
	}
}

func (d *Dispatcher) notifyClient(userID uint) {
	if d.OnNotify != nil {
		d.OnNotify(userID)
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
