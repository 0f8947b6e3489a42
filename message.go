package bus

import "github.com/pagebus/busd/internal/page"

// Message is one immutable unit published to a topic.
type Message struct {
	ID        int64
	Content   []byte
	Headers   map[string]string
	CreatedAt int64 // unix micros
}

func (m Message) toPage() page.Message {
	return page.Message{Content: m.Content, Headers: m.Headers}
}
