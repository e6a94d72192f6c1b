package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/peridot-guide/internal/observe"
	"github.com/MrWong99/peridot-guide/internal/resilience"
	"google.golang.org/genai"
)

// Role identifies the author of a chat [Message].
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role Role
	Text string
	Time time.Time

	// IsError marks a message that reported a failure to the user. Such
	// messages are never sent back to the model.
	IsError bool
}

// Source is a web page the model grounded its answer on.
type Source struct {
	URI   string
	Title string
}

// Reply is the model's answer to a chat message.
type Reply struct {
	Text    string
	Sources []Source

	// Model is the model that produced the reply.
	Model string
}

// ErrEmptyMessage is returned by [Assistant.Chat] for a blank message.
var ErrEmptyMessage = errors.New("assistant: empty message")

// Chat sends text along with the tail of history and returns the answer.
// When the configured chat model fails the fallback models are tried in
// order.
func (a *Assistant) Chat(ctx context.Context, history []Message, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	ctx, span := observe.StartSpan(ctx, "assistant.chat")
	defer span.End()

	contents := append(a.historyContents(history), &genai.Content{
		Role:  string(RoleUser),
		Parts: []*genai.Part{{Text: text}},
	})
	cfg := &genai.GenerateContentConfig{}
	if a.cfg.Instructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: a.cfg.Instructions}}}
	}
	if a.cfg.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	start := time.Now()
	reply, err := resilience.ExecuteWithResult(ctx, a.chat, func(model string) (Reply, error) {
		resp, err := a.gen.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return Reply{}, err
		}
		r := replyFrom(resp)
		r.Model = model
		return r, nil
	})
	a.record(ctx, a.metrics.ChatDuration, "chat", start, err)
	observe.SetSpanResult(span, err)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: chat: %w", err)
	}
	span.SetAttributes(observe.AttrModel.String(reply.Model))

	observe.Logger(ctx, a.log).Debug("chat reply", "model", reply.Model, "sources", len(reply.Sources))
	return reply, nil
}

// historyContents converts the last History non-error messages.
func (a *Assistant) historyContents(history []Message) []*genai.Content {
	var kept []Message
	for _, m := range history {
		if m.IsError || strings.TrimSpace(m.Text) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > a.cfg.History {
		kept = kept[len(kept)-a.cfg.History:]
	}

	out := make([]*genai.Content, 0, len(kept)+1)
	for _, m := range kept {
		role := RoleUser
		if m.Role == RoleModel {
			role = RoleModel
		}
		out = append(out, &genai.Content{
			Role:  string(role),
			Parts: []*genai.Part{{Text: m.Text}},
		})
	}
	return out
}

// replyFrom extracts the answer text and grounding sources of the first
// candidate.
func replyFrom(resp *genai.GenerateContentResponse) Reply {
	var r Reply
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return r
	}
	c := resp.Candidates[0]

	if c.Content != nil {
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			b.WriteString(p.Text)
		}
		r.Text = b.String()
	}

	if c.GroundingMetadata != nil {
		for _, ch := range c.GroundingMetadata.GroundingChunks {
			if ch == nil || ch.Web == nil {
				continue
			}
			title := ch.Web.Title
			if title == "" {
				title = "Source"
			}
			r.Sources = append(r.Sources, Source{URI: ch.Web.URI, Title: title})
		}
	}
	return r
}
