package realtime

import "encoding/json"

// Event types the gateway inspects; everything else is relayed untouched.
const (
	typeSessionUpdate         = "session.update"
	typeSessionCreated        = "session.created"
	typeConversationItemAdded = "conversation.item.created"
	typeOutputItemAdded       = "response.output_item.added"
	typeOutputItemDone        = "response.output_item.done"
	typeFuncArgsDelta         = "response.function_call_arguments.delta"
	typeFuncArgsDone          = "response.function_call_arguments.done"
	typeResponseDone          = "response.done"
)

// event is a decoded protocol frame. The gateway is a proxy: frames are
// decoded to generic maps so unknown fields survive the round trip.
type event map[string]interface{}

func parseEvent(data []byte) (event, bool) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false
	}
	return ev, true
}

func (e event) eventType() string {
	return getString(e, "type")
}

func (e event) marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e event) getMap(key string) map[string]interface{} {
	m, _ := e[key].(map[string]interface{})
	return m
}

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getFloat(m map[string]interface{}, key string, fallback float64) float64 {
	f, ok := m[key].(float64)
	if !ok {
		return fallback
	}
	return f
}
