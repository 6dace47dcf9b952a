package server

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/incppect/incppect-go/pkg/protocol"
)

// tick runs one snapshot/encode pass across all clients in id order.
func (s *Server) tick() {
	if s.stopping {
		return
	}

	start := time.Now()
	framesSent := 0

	var endSpan func()
	if s.tracer != nil {
		_, sp := s.tracer.Start(context.Background(), "incppect.tick")
		sp.SetAttributes(attribute.Int("clients", len(s.order)))
		endSpan = func() {
			sp.SetAttributes(attribute.Int("frames", framesSent))
			sp.End()
		}
	}

	for _, id := range s.order {
		if s.encodeClient(s.clients[id]) {
			framesSent++
		}
	}

	s.metrics.encodeDuration.Observe(time.Since(start).Seconds())
	if endSpan != nil {
		endSpan()
	}
}

// encodeClient evaluates the eligible requests of one client, assembles the
// aggregate frame, applies the outer diff, and submits the result. Returns
// true when a frame was sent.
func (s *Server) encodeClient(c *client) bool {
	// Backpressure gate: while the transport still holds unwritten bytes for
	// this connection no new frame is produced and no state is mutated, so
	// the next successful tick diffs against exactly what the client has.
	if amt := c.conn.BufferedAmount(); amt > 0 {
		s.logger.Debug("backpressure, skipping update", "client", c.id, "buffered", amt)
		s.metrics.backpressureSkips.Inc()
		return false
	}

	c.cur = protocol.AppendUint32(c.cur[:0], protocol.OuterFull)

	for _, reqID := range c.sortedRequestIDs() {
		req := c.requests[reqID]
		now := s.now()

		active := (req.tTimeoutMs < 0 && req.tLastRequestedMs >= 0) ||
			now-req.tLastRequestedMs < req.tTimeoutMs
		if !active || now-req.tLastUpdatedMs <= req.tMinUpdateMs {
			continue
		}
		if req.tTimeoutMs < 0 {
			// Latch the once-activated-forever rule: 0 marks "was activated"
			// without re-matching the activation clock on later ticks.
			req.tLastRequestedMs = 0
		}

		payload := s.registry.Getter(req.getterID)(req.idxs)
		paddedSize := protocol.PaddedSize(len(payload))

		inner := protocol.InnerFull
		if len(req.prev) == paddedSize && len(payload) > diffThreshold {
			inner = protocol.InnerDiff
		}

		c.cur = protocol.AppendInt32(c.cur, reqID)
		c.cur = protocol.AppendUint32(c.cur, inner)

		if inner == protocol.InnerFull {
			c.cur = protocol.AppendUint32(c.cur, uint32(paddedSize))
			c.cur = append(c.cur, payload...)
			c.cur = protocol.AppendPadding(c.cur, len(payload))
		} else {
			c.scratch = protocol.AppendDiff(c.scratch[:0], req.prev, payload)
			c.cur = protocol.AppendUint32(c.cur, uint32(len(c.scratch)))
			c.cur = append(c.cur, c.scratch...)
		}

		req.prev = protocol.AppendPadding(append(req.prev[:0], payload...), len(payload))
		req.tLastUpdatedMs = now
	}

	// Only the header: nothing eligible this tick.
	if len(c.cur) <= protocol.WordSize {
		return false
	}

	frame := c.cur
	if len(c.cur) == len(c.prev) && len(c.cur) > diffThreshold {
		c.diff = protocol.AppendUint32(c.diff[:0], protocol.OuterDiff)
		c.diff = protocol.AppendDiff(c.diff, c.prev[protocol.WordSize:], c.cur[protocol.WordSize:])
		frame = c.diff
	}

	if len(frame) > s.params.MaxPayload {
		s.logger.Warn("frame exceeds max payload",
			"client", c.id, "size", len(frame), "max_payload", s.params.MaxPayload)
		s.metrics.oversizedFrames.Inc()
	}

	if !c.conn.Send(frame, true, len(frame) > compressThreshold) {
		s.logger.Warn("backpressure for client increased", "client", c.id)
		s.metrics.sendBackpressure.Inc()
	}

	// tx accounting uses the uncompressed pre-outer-diff size.
	s.txTotal += float64(len(c.cur))
	s.metrics.txBytes.Add(float64(len(frame)))
	s.metrics.framesSent.Inc()

	// The previous aggregate is always the pre-outer-diff form.
	c.prev, c.cur = c.cur, c.prev
	return true
}

func leInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func leFloat64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}
