// Package wire defines the framed TCP protocol shared by the server and
// pkg/client: a 5-byte header ([1B opcode or frame type][4B BE body length])
// followed by a JSON body. Requests carry an opcode; responses are either
// FrameResponse with the operation's result or FrameError with a stable
// code string plus message.
package wire
