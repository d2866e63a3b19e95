package fulfillment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is the shape-agnostic view of a gateway notification.
type Event struct {
	Type    string
	Status  string
	OrderID string
	UserID  string
}

// Ours reports whether the event carries the correlation ids set at checkout.
func (e Event) Ours() bool {
	return e.OrderID != "" && e.UserID != ""
}

// fieldPath is a sequence of object keys from the document root.
type fieldPath []string

// extractionStrategy locates metadata and status for one known payload shape.
type extractionStrategy struct {
	name     string
	metadata fieldPath
	status   fieldPath
}

// strategies are tried in order; the first whose metadata object exists wins.
var strategies = []extractionStrategy{
	{name: "payload", metadata: fieldPath{"payload", "metadata"}, status: fieldPath{"payload", "status"}},
	{name: "data.object", metadata: fieldPath{"data", "object", "metadata"}, status: fieldPath{"data", "object", "status"}},
	{name: "data", metadata: fieldPath{"data", "metadata"}, status: fieldPath{"data", "status"}},
	{name: "root", metadata: fieldPath{"metadata"}, status: fieldPath{"status"}},
}

var (
	orderIDKeys = []string{"orderId", "order_id", "orderID"}
	userIDKeys  = []string{"userId", "user_id", "userID"}
)

// ParseEvent decodes body and probes the known shapes. It fails only when body is not a
// JSON object; an event with no recognizable metadata comes back with empty ids.
func ParseEvent(body []byte) (Event, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc == nil {
		return Event{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	ev := Event{Type: stringAt(doc, fieldPath{"type"})}

	for _, s := range strategies {
		meta, ok := lookup(doc, s.metadata).(map[string]any)
		if !ok {
			continue
		}
		ev.OrderID = firstString(meta, orderIDKeys)
		ev.UserID = firstString(meta, userIDKeys)
		ev.Status = stringAt(doc, s.status)
		break
	}

	if ev.Status == "" {
		ev.Status = firstStatus(doc)
	}
	if ev.Status == "" {
		ev.Status = statusFromType(ev.Type)
	}
	ev.Status = strings.ToLower(strings.TrimSpace(ev.Status))
	return ev, nil
}

// firstStatus falls back to any status field when the metadata shape had none beside it.
func firstStatus(doc map[string]any) string {
	for _, s := range strategies {
		if v := stringAt(doc, s.status); v != "" {
			return v
		}
	}
	return ""
}

// statusFromType maps "payment.succeeded" style event types to their status suffix.
func statusFromType(eventType string) string {
	if i := strings.LastIndexAny(eventType, "._"); i >= 0 {
		return eventType[i+1:]
	}
	return ""
}

func lookup(doc map[string]any, path fieldPath) any {
	var cur any = doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func stringAt(doc map[string]any, path fieldPath) string {
	s, _ := lookup(doc, path).(string)
	return s
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
