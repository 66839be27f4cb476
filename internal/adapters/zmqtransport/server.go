package zmqtransport

import (
	"context"
	"log"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
)

// Server exposes the cloud authority's Receiver over a ZeroMQ REP socket.
type Server struct {
	receiver primary.Receiver
	logger   *log.Logger
}

// NewServer creates the cloud ZeroMQ surface.
func NewServer(receiver primary.Receiver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{receiver: receiver, logger: logger}
}

// Serve binds addr and answers requests until ctx is cancelled. The REP
// loop polls with a short timeout so cancellation is noticed promptly.
func (s *Server) Serve(ctx context.Context, addr string) error {
	zctx, err := zmq.NewContext()
	if err != nil {
		return err
	}
	defer zctx.Term()

	sock, err := zctx.NewSocket(zmq.REP)
	if err != nil {
		return err
	}
	defer sock.Close()
	sock.SetLinger(0)
	sock.SetRcvtimeo(500 * time.Millisecond)

	if err := sock.Bind(addr); err != nil {
		return err
	}
	s.logger.Printf("zmq sync endpoint listening on %s", addr)

	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := sock.RecvBytes(0)
		if err != nil {
			// Receive timeout: loop back and check for cancellation.
			continue
		}

		reply := s.handle(ctx, raw)
		out, err := msgpack.Marshal(reply)
		if err != nil {
			s.logger.Printf("failed to encode reply: %v", err)
			out, _ = msgpack.Marshal(envelope{Error: "internal error"})
		}
		if _, err := sock.SendBytes(out, 0); err != nil {
			s.logger.Printf("failed to send reply: %v", err)
		}
	}
}

func (s *Server) handle(ctx context.Context, raw []byte) envelope {
	var req envelope
	if err := msgpack.Unmarshal(raw, &req); err != nil {
		return envelope{Error: "malformed request"}
	}
	if !s.receiver.AuthorizeBranch(req.Token) {
		s.logger.Printf("unauthorized %s from branch %q", req.Op, req.Branch)
		return envelope{Error: "invalid branch token"}
	}

	switch req.Op {
	case opPing:
		return envelope{OK: true}

	case opPush:
		records := make([]*models.ChangeRecord, len(req.Records))
		for i, d := range req.Records {
			records[i] = fromDTO(d)
		}
		result, err := s.receiver.ReceiveBatch(ctx, primary.ReceiveRequest{
			Branch:  req.Branch,
			Records: records,
		})
		if err != nil {
			s.logger.Printf("receive batch from %s failed: %v", req.Branch, err)
			return envelope{Error: "receive failed"}
		}
		rep := envelope{OK: true, AcceptedIDs: result.AcceptedIDs}
		for _, rej := range result.Rejected {
			rep.Rejected = append(rep.Rejected, rejectedDTO{ID: rej.ID, Reason: rej.Reason, Permanent: rej.Permanent})
		}
		return rep

	case opPull:
		resp, err := s.receiver.PullChanges(ctx, primary.PullRequest{
			Branch: req.Branch,
			Cursor: req.Cursor,
			Limit:  req.Limit,
		})
		if err != nil {
			s.logger.Printf("pull from %s failed: %v", req.Branch, err)
			return envelope{Error: "pull failed"}
		}
		rep := envelope{OK: true, NextCursor: resp.NextCursor}
		for _, rec := range resp.Records {
			rep.Records = append(rep.Records, toDTO(rec))
		}
		return rep
	}

	return envelope{Error: "unknown op " + req.Op}
}
