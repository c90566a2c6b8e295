package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/newtdock/internal/protocol/dock"
	"github.com/danmuck/newtdock/internal/protocol/nsof"
	"github.com/rs/zerolog/log"
)

// Session runs the handshake and command exchanges over a dock.Conn.
type Session struct {
	conn        *dock.Conn
	handshake   *Handshake
	outstanding *Outstanding
	now         func() time.Time
}

func New(conn *dock.Conn, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		conn:        conn,
		handshake:   NewHandshake(cfg),
		outstanding: NewOutstanding(),
		now:         time.Now,
	}, nil
}

func (s *Session) Handshake() *Handshake {
	return s.handshake
}

func (s *Session) Outstanding() *Outstanding {
	return s.outstanding
}

// Negotiate runs the handshake until the session is established or ends.
func (s *Session) Negotiate(ctx context.Context) error {
	if err := s.handshake.Start(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.receive(); err != nil {
			return err
		}
		switch s.handshake.State() {
		case Established:
			log.Info().Msgf("session.Session.Negotiate established kind=%s protocol=%d",
				s.handshake.Kind(), s.handshake.ProtocolVersion())
			return nil
		case Disconnected:
			return s.handshake.Err()
		}
	}
}

// receive reads one command, applies it to the handshake and sends any
// reply.
func (s *Session) receive() (dock.Command, error) {
	cmd, err := s.conn.Receive()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: stream closed", ErrDisconnected)
	}
	if err != nil {
		return nil, err
	}
	replies, herr := s.handshake.Handle(cmd)
	for _, reply := range replies {
		if err := s.conn.Send(reply); err != nil {
			return nil, err
		}
	}
	if herr != nil {
		return nil, herr
	}
	return cmd, nil
}

// Cancel aborts the session and tells the device.
func (s *Session) Cancel() error {
	s.outstanding.Clear()
	return s.conn.Send(s.handshake.Cancel())
}

// Disconnect ends the session and tells the device.
func (s *Session) Disconnect() error {
	s.outstanding.Clear()
	return s.conn.Send(s.handshake.Disconnect())
}

// Exchange sends req and feeds every following device command to until
// until it reports done. The exchange stops early when the session
// disconnects, returning ErrCanceled or ErrDisconnected.
func (s *Session) Exchange(ctx context.Context, key string, req dock.Command, until func(dock.Command) (bool, error)) error {
	if s.handshake.State() != Established {
		return ErrNotEstablished
	}
	if err := s.outstanding.Begin(key, req.Name(), s.now()); err != nil {
		return err
	}
	defer s.outstanding.Complete(key)

	if err := s.conn.Send(req); err != nil {
		return err
	}
	for {
		if err := s.aborted(ctx); err != nil {
			return err
		}
		cmd, err := s.receive()
		if err != nil {
			return err
		}
		if s.handshake.State() == Disconnected {
			return s.handshake.Err()
		}
		done, err := until(cmd)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (s *Session) aborted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.handshake.Context().Err() != nil {
		return context.Cause(s.handshake.Context())
	}
	return nil
}

func resultDone(cmd dock.Command) (bool, error) {
	res, ok := cmd.(*dock.Result)
	if !ok {
		return false, nil
	}
	if code := res.ErrorCode(); code != 0 {
		return true, &ResultError{Code: code}
	}
	return true, nil
}

// StoreNames asks the device for its stores.
func (s *Session) StoreNames(ctx context.Context) ([]*nsof.Frame, error) {
	var stores []*nsof.Frame
	err := s.Exchange(ctx, "stores", dock.NewGetStoreNames(), func(cmd dock.Command) (bool, error) {
		if c, ok := cmd.(*dock.StoreNames); ok {
			var err error
			stores, err = c.Stores()
			return true, err
		}
		return resultDone(cmd)
	})
	return stores, err
}

// SoupNames asks the device for the soups of the current store.
func (s *Session) SoupNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.Exchange(ctx, "soups", dock.NewGetSoupNames(), func(cmd dock.Command) (bool, error) {
		if c, ok := cmd.(*dock.SoupNames); ok {
			var err error
			names, err = c.Names()
			return true, err
		}
		return resultDone(cmd)
	})
	return names, err
}

// SetCurrentStore selects the store later soup commands refer to.
func (s *Session) SetCurrentStore(ctx context.Context, store *nsof.Frame) error {
	return s.Exchange(ctx, "store", dock.NewSetCurrentStore(store), resultDone)
}

// SoupEntries selects soup and streams its entries to fn until the device
// reports the soup is done.
func (s *Session) SoupEntries(ctx context.Context, soup string, fn func(*nsof.Frame) error) error {
	if err := s.Exchange(ctx, "soup", dock.NewSetCurrentSoup(soup), resultDone); err != nil {
		return err
	}
	count := 0
	err := s.Exchange(ctx, "soup", dock.NewSendSoup(), func(cmd dock.Command) (bool, error) {
		switch c := cmd.(type) {
		case *dock.Entry:
			f, err := c.Frame()
			if err != nil {
				return true, err
			}
			count++
			return false, fn(f)
		}
		if cmd.Name() == dock.NameBackupSoupDone {
			return true, nil
		}
		return resultDone(cmd)
	})
	log.Debug().Msgf("session.Session.SoupEntries soup=%s entries=%d err=%v", soup, count, err)
	return err
}
