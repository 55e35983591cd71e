package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient creates a new connection to a NATS server. When url is empty the
// NATS_URL environment variable is used, falling back to nats.DefaultURL.
// Without explicit options the connection is named "streamgate" and uses compression.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = os.Getenv("NATS_URL")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("streamgate"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
