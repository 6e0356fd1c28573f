// Package signaling contains the relay's WebSocket signaling surface: the
// wire protocol used between browsers and the relay, and the per-connection
// dispatcher that registers members in rooms and forwards SDP offers,
// answers and ICE candidates point-to-point.
//
// The relay never inspects media; it only brokers small JSON control frames.
package signaling
