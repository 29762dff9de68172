// Package rtmp implements a minimal RTMP publisher.
package rtmp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/amf0"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/bytecounter"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/handshake"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

const (
	clientFlashVersion = "LNX 9,0,124,2"
	clientWindowSize   = 2500000
	clientChunkSize    = 65536

	// PublishMessageStreamID is the message stream ID used after publish.
	PublishMessageStreamID = 0x1000000
)

func splitPath(u *url.URL) (string, string) {
	pathsegs := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")

	switch {
	case len(pathsegs) == 1:
		return pathsegs[0], ""

	default:
		return pathsegs[0], strings.Join(pathsegs[1:], "/")
	}
}

// Client is a RTMP client that publishes a stream.
type Client struct {
	// URL of the stream, in the form rtmp://host[:port]/app/stream.
	URL          *url.URL
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	nconn     net.Conn
	bc        *bytecounter.ReadWriter
	mrw       *message.ReadWriter
	commandID int
}

// Initialize dials the server, performs the handshake and the
// connect / createStream / publish sequence.
func (c *Client) Initialize(ctx context.Context) error {
	host := c.URL.Host
	if c.URL.Port() == "" {
		host = net.JoinHostPort(host, "1935")
	}

	app, stream := splitPath(c.URL)

	var err error
	c.nconn, err = (&net.Dialer{}).DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}

	if c.ReadTimeout > 0 {
		c.nconn.SetDeadline(time.Now().Add(c.ReadTimeout)) //nolint:errcheck
	}

	c.bc = bytecounter.NewReadWriter(c.nconn)

	err = handshake.DoClient(c.bc)
	if err != nil {
		c.nconn.Close()
		return err
	}

	c.mrw = message.NewReadWriter(c.bc, false)

	err = c.connect(app)
	if err != nil {
		c.nconn.Close()
		return err
	}

	err = c.publish(stream)
	if err != nil {
		c.nconn.Close()
		return err
	}

	c.nconn.SetDeadline(time.Time{}) //nolint:errcheck
	return nil
}

func (c *Client) connect(app string) error {
	tcURL := "rtmp://" + c.URL.Host + "/" + app

	err := c.mrw.Write(&message.SetWindowAckSize{Value: clientWindowSize})
	if err != nil {
		return err
	}

	err = c.mrw.Write(&message.SetChunkSize{Value: clientChunkSize})
	if err != nil {
		return err
	}

	err = c.writeCommand(&message.CommandAMF0{
		ChunkStreamID: message.CommandChunkStreamID,
		Name:          "connect",
		Arguments: amf0.Data{
			amf0.Object{
				{Key: "app", Value: app},
				{Key: "flashVer", Value: clientFlashVersion},
				{Key: "tcUrl", Value: tcURL},
			},
		},
	})
	if err != nil {
		return err
	}

	_, err = c.readResult(c.commandID)
	return err
}

func (c *Client) publish(stream string) error {
	err := c.writeCommand(&message.CommandAMF0{
		ChunkStreamID: message.CommandChunkStreamID,
		Name:          "createStream",
		Arguments:     amf0.Data{nil},
	})
	if err != nil {
		return err
	}

	_, err = c.readResult(c.commandID)
	if err != nil {
		return err
	}

	err = c.writeCommand(&message.CommandAMF0{
		ChunkStreamID:   message.AudioChunkStreamID,
		MessageStreamID: PublishMessageStreamID,
		Name:            "publish",
		Arguments:       amf0.Data{nil, stream, "live"},
	})
	if err != nil {
		return err
	}

	return c.waitOnStatus("NetStream.Publish.Start")
}

func (c *Client) writeCommand(cmd *message.CommandAMF0) error {
	c.commandID++
	cmd.CommandID = c.commandID
	return c.mrw.Write(cmd)
}

// readResult waits for the _result answering the given command,
// answering pings and skipping control messages in the meantime.
func (c *Client) readResult(commandID int) (*message.CommandAMF0, error) {
	for {
		msg, err := c.read()
		if err != nil {
			return nil, err
		}

		cmd, ok := msg.(*message.CommandAMF0)
		if !ok || cmd.CommandID != commandID {
			continue
		}

		switch cmd.Name {
		case "_result":
			return cmd, nil

		case "_error":
			return nil, fmt.Errorf("command rejected: %v", cmd.Arguments)
		}
	}
}

func (c *Client) waitOnStatus(expected string) error {
	for {
		msg, err := c.read()
		if err != nil {
			return err
		}

		cmd, ok := msg.(*message.CommandAMF0)
		if !ok || cmd.Name != "onStatus" {
			continue
		}

		if len(cmd.Arguments) < 2 {
			return fmt.Errorf("invalid onStatus payload")
		}

		status, ok := cmd.Arguments[1].(amf0.Object)
		if !ok {
			return fmt.Errorf("invalid onStatus payload")
		}

		code, _ := status.GetString("code")
		if code != expected {
			return fmt.Errorf("server refused stream: %s", code)
		}

		return nil
	}
}

func (c *Client) read() (message.Message, error) {
	msg, err := c.mrw.Read()
	if err != nil {
		return nil, err
	}

	if uc, ok := msg.(*message.UserControl); ok && uc.EventType == message.UserControlTypePingRequest {
		err = c.mrw.Write(&message.UserControl{
			EventType: message.UserControlTypePingResponse,
			Payload:   uc.Payload,
		})
		if err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// Write writes a message.
func (c *Client) Write(msg message.Message) error {
	if c.WriteTimeout > 0 {
		c.nconn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)) //nolint:errcheck
	}

	return c.mrw.Write(msg)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.nconn.Close()
}

// BytesReceived returns the number of bytes received.
func (c *Client) BytesReceived() uint64 {
	return c.bc.Reader.Count()
}

// BytesSent returns the number of bytes sent.
func (c *Client) BytesSent() uint64 {
	return c.bc.Writer.Count()
}
