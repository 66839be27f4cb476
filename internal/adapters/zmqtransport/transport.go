// Package zmqtransport is the ZeroMQ CloudTransport backing. Some venue
// networks block outbound HTTPS but pass raw TCP; REQ/REP over ZeroMQ with
// msgpack envelopes covers those deployments.
package zmqtransport

import (
	"context"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

// Envelope operations
const (
	opPing = "ping"
	opPush = "push"
	opPull = "pull"
)

// envelope is the msgpack request/response frame.
type envelope struct {
	Op     string `msgpack:"op"`
	Branch string `msgpack:"branch"`
	Token  string `msgpack:"token"`

	Records []changeDTO `msgpack:"records,omitempty"`
	Cursor  string      `msgpack:"cursor,omitempty"`
	Limit   int         `msgpack:"limit,omitempty"`

	OK          bool          `msgpack:"ok"`
	Error       string        `msgpack:"error,omitempty"`
	AcceptedIDs []string      `msgpack:"accepted_ids,omitempty"`
	Rejected    []rejectedDTO `msgpack:"rejected,omitempty"`
	NextCursor  string        `msgpack:"next_cursor,omitempty"`
}

type changeDTO struct {
	ID             string         `msgpack:"id"`
	EntityType     string         `msgpack:"entity_type"`
	EntityID       string         `msgpack:"entity_id"`
	Operation      string         `msgpack:"operation"`
	Payload        map[string]any `msgpack:"payload"`
	OriginBranch   string         `msgpack:"origin_branch"`
	LocalTimestamp int64          `msgpack:"local_timestamp"`
	Version        int64          `msgpack:"version"`
}

type rejectedDTO struct {
	ID        string `msgpack:"id"`
	Reason    string `msgpack:"reason"`
	Permanent bool   `msgpack:"permanent"`
}

func toDTO(r *models.ChangeRecord) changeDTO {
	return changeDTO{
		ID:             r.ID,
		EntityType:     r.EntityType,
		EntityID:       r.EntityID,
		Operation:      string(r.Operation),
		Payload:        r.Payload,
		OriginBranch:   r.OriginBranch,
		LocalTimestamp: r.LocalTimestamp.UnixNano(),
		Version:        r.Version,
	}
}

func fromDTO(d changeDTO) *models.ChangeRecord {
	return &models.ChangeRecord{
		ID:             d.ID,
		EntityType:     d.EntityType,
		EntityID:       d.EntityID,
		Operation:      models.Operation(d.Operation),
		Payload:        d.Payload,
		OriginBranch:   d.OriginBranch,
		LocalTimestamp: time.Unix(0, d.LocalTimestamp).UTC(),
		Version:        d.Version,
	}
}

// Client is the ZeroMQ CloudTransport. Each request uses a short-lived
// REQ socket: REQ sockets are stateful and a timed-out one cannot be
// reused.
type Client struct {
	addr    string
	branch  string
	token   string
	timeout time.Duration
}

// NewClient creates a ZeroMQ cloud transport. addr is a ZeroMQ endpoint,
// e.g. "tcp://cloud.example.com:8744".
func NewClient(addr, branch, token string, timeout time.Duration) *Client {
	return &Client{addr: addr, branch: branch, token: token, timeout: timeout}
}

// Ping is a lightweight reachability probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, envelope{Op: opPing})
	return err
}

// Push delivers a batch of change records.
func (c *Client) Push(ctx context.Context, branch string, batch []*models.ChangeRecord) (*secondary.PushResult, error) {
	req := envelope{Op: opPush, Records: make([]changeDTO, len(batch))}
	for i, r := range batch {
		req.Records[i] = toDTO(r)
	}

	rep, err := c.request(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &secondary.PushResult{AcceptedIDs: rep.AcceptedIDs}
	for _, rej := range rep.Rejected {
		result.Rejected = append(result.Rejected, secondary.RejectedChange{
			ID: rej.ID, Reason: rej.Reason, Permanent: rej.Permanent,
		})
	}
	return result, nil
}

// Pull fetches remote changes this branch has not yet seen.
func (c *Client) Pull(ctx context.Context, branch, cursor string, limit int) (*secondary.PullResult, error) {
	rep, err := c.request(ctx, envelope{Op: opPull, Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}

	result := &secondary.PullResult{NextCursor: rep.NextCursor}
	for _, d := range rep.Records {
		result.Records = append(result.Records, fromDTO(d))
	}
	return result, nil
}

// request runs one REQ/REP exchange on a fresh socket.
func (c *Client) request(ctx context.Context, req envelope) (*envelope, error) {
	req.Branch = c.branch
	req.Token = c.token

	zctx, err := zmq.NewContext()
	if err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}
	defer zctx.Term()

	sock, err := zctx.NewSocket(zmq.REQ)
	if err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}
	defer sock.Close()
	sock.SetLinger(0)

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	sock.SetSndtimeo(timeout)
	sock.SetRcvtimeo(timeout)

	if err := sock.Connect(c.addr); err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}

	out, err := msgpack.Marshal(req)
	if err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}
	if _, err := sock.SendBytes(out, 0); err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}

	raw, err := sock.RecvBytes(0)
	if err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: err}
	}

	var rep envelope
	if err := msgpack.Unmarshal(raw, &rep); err != nil {
		return nil, &secondary.TransportError{Op: req.Op, Err: fmt.Errorf("decode reply: %w", err)}
	}
	if !rep.OK {
		return nil, &secondary.TransportError{Op: req.Op, Err: fmt.Errorf("cloud refused: %s", rep.Error)}
	}
	return &rep, nil
}

// Ensure Client implements the interface.
var _ secondary.CloudTransport = (*Client)(nil)
