// internal/model/client.go
package model

// Client is the read side of the CRM contact record. Only the fields the
// campaign pipeline consumes are mapped.
type Client struct {
	Phone string `bson:"phone" json:"phone"`
	OptIn bool   `bson:"opt_in" json:"opt_in"`
}

// CanReceive reports whether a message may be sent to the client.
func (c *Client) CanReceive() bool {
	return c != nil && c.OptIn
}
