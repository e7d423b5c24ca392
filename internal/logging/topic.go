package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// TopicKey is the attribute naming a record's component.
const TopicKey = "topic"

// Topics lists the components that tag their records. "all" enables every one.
var Topics = []string{"probe", "sampler", "ui", "wake"}

// TopicHandler wraps an slog.Handler and gates chatter by component. Records
// below Warn that carry a topic pass only when the topic is enabled; untagged
// records and warnings or errors always pass.
type TopicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // bound through WithAttrs
}

// NewTopicHandler returns a handler passing the given topics.
func NewTopicHandler(inner slog.Handler, topics map[string]bool) *TopicHandler {
	if topics == nil {
		topics = map[string]bool{}
	}
	return &TopicHandler{inner: inner, topics: topics}
}

// ParseTopics turns a comma-separated -log value into a topic set. Unknown
// names are left out of the set and reported in the error.
func ParseTopics(list string, verbose bool) (map[string]bool, error) {
	topics := make(map[string]bool)
	if verbose {
		topics["all"] = true
	}
	var unknown []string
	for _, t := range strings.Split(list, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		switch {
		case t == "":
		case t == "all" || slices.Contains(Topics, t):
			topics[t] = true
		default:
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		return topics, fmt.Errorf("unknown log topics %s (known: all, %s)",
			strings.Join(unknown, ", "), strings.Join(Topics, ", "))
	}
	return topics, nil
}

// New builds a debug-level text logger on w filtered by topics.
func New(w io.Writer, topics map[string]bool) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTopicHandler(inner, topics))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (h *TopicHandler) allows(topic string, level slog.Level) bool {
	return topic == "" || level >= slog.LevelWarn || h.topics["all"] || h.topics[topic]
}

// Enabled rejects records early when the bound topic is switched off.
func (h *TopicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.allows(h.topic, level) && h.inner.Enabled(ctx, level)
}

func (h *TopicHandler) Handle(ctx context.Context, r slog.Record) error {
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == TopicKey {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if !h.allows(topic, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *TopicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == TopicKey {
			next.topic = a.Value.String()
		}
	}
	return &next
}

func (h *TopicHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	return &next
}
