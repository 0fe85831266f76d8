// Package tools – crontool.go
// Tool giving the model access to the scheduler, so reminders can be set
// from conversation.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hkuds/nanobot/pkg/nanobot/cron"
)

// CronTool manages scheduled jobs on behalf of the model. Jobs created
// here deliver to the conversation the request came from.
type CronTool struct {
	service *cron.Service
}

func NewCronTool(service *cron.Service) *CronTool {
	return &CronTool{service: service}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Manage scheduled jobs: add a reminder, list jobs, or remove one."
}

func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":     map[string]any{"type": "string", "enum": []any{"add", "list", "remove"}},
			"name":       map[string]any{"type": "string", "description": "Job name (add)."},
			"message":    map[string]any{"type": "string", "description": "Prompt the agent runs when the job fires (add)."},
			"every_s":    map[string]any{"type": "integer", "description": "Interval in seconds (add)."},
			"cron_expr":  map[string]any{"type": "string", "description": "5-field cron expression (add)."},
			"at":         map[string]any{"type": "string", "description": "RFC 3339 time for a one-shot job (add)."},
			"job_id":     map[string]any{"type": "string", "description": "Job id (remove)."},
		},
		"required": []any{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	action, err := stringArg(args, "action")
	if err != nil {
		return "", err
	}

	switch action {
	case "add":
		return t.add(ctx, args)
	case "list":
		return t.list()
	case "remove":
		id, err := stringArg(args, "job_id")
		if err != nil {
			return "", err
		}
		if err := t.service.Remove(id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed job %s", id), nil
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (t *CronTool) add(ctx context.Context, args map[string]any) (string, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", err
	}
	message, err := stringArg(args, "message")
	if err != nil {
		return "", err
	}

	var sched cron.Schedule
	switch {
	case args["every_s"] != nil:
		secs, ok := args["every_s"].(float64)
		if !ok || secs <= 0 {
			return "", fmt.Errorf("every_s must be a positive number")
		}
		sched = cron.Schedule{Kind: cron.KindEvery, EveryMS: int64(secs * 1000)}
	case args["cron_expr"] != nil:
		expr, _ := args["cron_expr"].(string)
		sched = cron.Schedule{Kind: cron.KindCron, CronExpr: expr}
	case args["at"] != nil:
		raw, _ := args["at"].(string)
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", fmt.Errorf("invalid at time %q: %w", raw, err)
		}
		sched = cron.Schedule{Kind: cron.KindAt, AtMS: at.UnixMilli()}
	default:
		return "", fmt.Errorf("one of every_s, cron_expr, or at is required")
	}

	convo, _ := ConvoFrom(ctx)

	job, err := t.service.Add(name, sched, cron.Payload{
		Message: message,
		Channel: convo.Channel,
		To:      convo.ChatID,
		Deliver: true,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled job %s (%s)", job.ID, job.Name), nil
}

func (t *CronTool) list() (string, error) {
	jobs := t.service.List(false)
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	var b strings.Builder
	for _, job := range jobs {
		next := "-"
		if job.NextRunMS > 0 {
			next = time.UnixMilli(job.NextRunMS).Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%s  %s  [%s]  next: %s\n", job.ID, job.Name, job.State, next)
	}
	return b.String(), nil
}
