// Package events publishes the lifecycle XML blob described in
// spec.md §4.5/§4.7 at each hook point, fanning out to whichever
// transport the config selects.
package events

import "fmt"

// Publisher fires the lifecycle event for hook at cookie.
type Publisher interface {
	Publish(hook, cookie string) error
	Close() error
}

// Render produces the `<event type='<hook>' session='<cookie>' />`
// blob every Publisher implementation sends verbatim.
func Render(hook, cookie string) []byte {
	return []byte(fmt.Sprintf("<event type='%s' session='%s' />\n", hook, cookie))
}

// Noop discards every event; used when the config selects driver "none".
type Noop struct{}

func (Noop) Publish(string, string) error { return nil }
func (Noop) Close() error                 { return nil }
