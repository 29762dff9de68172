// Package handshake implements the plain RTMP handshake.
package handshake

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	rtmpVersion = 3
	bodySize    = 1536
)

func random1536() ([]byte, error) {
	buf := make([]byte, bodySize)

	// time and version are left at zero
	_, err := rand.Read(buf[8:])
	if err != nil {
		return nil, err
	}

	return buf, nil
}

func readVersion(rw io.Reader) error {
	header := make([]byte, 1)
	_, err := io.ReadFull(rw, header)
	if err != nil {
		return err
	}

	if header[0] != rtmpVersion {
		return fmt.Errorf("unsupported RTMP version %d", header[0])
	}

	return nil
}

// DoClient performs the client side of the handshake.
func DoClient(rw io.ReadWriter) error {
	c1, err := random1536()
	if err != nil {
		return err
	}

	// C0 + C1
	if _, err = rw.Write([]byte{rtmpVersion}); err != nil {
		return err
	}
	if _, err = rw.Write(c1); err != nil {
		return err
	}

	// S0
	if err = readVersion(rw); err != nil {
		return err
	}

	// S1 + S2
	s1 := make([]byte, bodySize)
	if _, err = io.ReadFull(rw, s1); err != nil {
		return err
	}
	s2 := make([]byte, bodySize)
	if _, err = io.ReadFull(rw, s2); err != nil {
		return err
	}

	// C2
	_, err = rw.Write(s1)
	return err
}

// DoServer performs the server side of the handshake.
func DoServer(rw io.ReadWriter) error {
	// C0
	if err := readVersion(rw); err != nil {
		return err
	}

	// C1
	c1 := make([]byte, bodySize)
	if _, err := io.ReadFull(rw, c1); err != nil {
		return err
	}

	s1, err := random1536()
	if err != nil {
		return err
	}

	// S0 + S1 + S2
	if _, err = rw.Write([]byte{rtmpVersion}); err != nil {
		return err
	}
	if _, err = rw.Write(s1); err != nil {
		return err
	}
	if _, err = rw.Write(c1); err != nil {
		return err
	}

	// C2
	c2 := make([]byte, bodySize)
	_, err = io.ReadFull(rw, c2)
	return err
}
