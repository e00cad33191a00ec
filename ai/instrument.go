package ai

import "context"

// InstrumentedClient wraps a Client and reports every upstream call through
// onCall, with failed=true when the call returned an error.
type InstrumentedClient struct {
	inner  Client
	onCall func(failed bool)
}

func NewInstrumentedClient(inner Client, onCall func(failed bool)) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, onCall: onCall}
}

func (c *InstrumentedClient) ChatCompletion(ctx context.Context, req Request) (string, error) {
	content, err := c.inner.ChatCompletion(ctx, req)
	c.report(err)
	return content, err
}

func (c *InstrumentedClient) StreamChatCompletion(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	content, err := c.inner.StreamChatCompletion(ctx, req, onDelta)
	c.report(err)
	return content, err
}

func (c *InstrumentedClient) Model() string {
	return c.inner.Model()
}

func (c *InstrumentedClient) report(err error) {
	if c.onCall != nil {
		c.onCall(err != nil)
	}
}
