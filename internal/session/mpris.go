package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/util"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	mprisPlayer     = "org.mpris.MediaPlayer2.Player"
	propsInterface  = "org.freedesktop.DBus.Properties"
	propsChanged    = propsInterface + ".PropertiesChanged"
	nameOwnerSignal = "org.freedesktop.DBus.NameOwnerChanged"
)

// busConn is the subset of a D-Bus connection the MPRIS source needs.
type busConn interface {
	ListNames() ([]string, error)
	GetProperty(dest, path, prop string) (dbus.Variant, error)
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

type sessionBus struct {
	conn *dbus.Conn
}

func dialSessionBus() (busConn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &sessionBus{conn: conn}, nil
}

func (b *sessionBus) ListNames() ([]string, error) {
	var names []string
	err := b.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (b *sessionBus) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	return b.conn.Object(dest, dbus.ObjectPath(path)).GetProperty(prop)
}

func (b *sessionBus) AddMatchSignal(options ...dbus.MatchOption) error {
	return b.conn.AddMatchSignal(options...)
}

func (b *sessionBus) Signal(ch chan<- *dbus.Signal)       { b.conn.Signal(ch) }
func (b *sessionBus) RemoveSignal(ch chan<- *dbus.Signal) { b.conn.RemoveSignal(ch) }
func (b *sessionBus) Close() error                        { return b.conn.Close() }

// MPRISSource reads media sessions from MPRIS players on the D-Bus session bus.
// The current session is the first playing player, else the previously
// selected one while it exists, else the first player by name.
type MPRISSource struct {
	logger *util.Logger
	dial   func() (busConn, error)

	mu       sync.Mutex
	conn     busConn
	player   string
	handlers map[EventKind]map[uint64]func()
	nextID   uint64

	signals chan *dbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewMPRISSource creates a source for the user's session bus.
func NewMPRISSource(logger *util.Logger) *MPRISSource {
	return newMPRISSource(logger, dialSessionBus)
}

func newMPRISSource(logger *util.Logger, dial func() (busConn, error)) *MPRISSource {
	return &MPRISSource{
		logger:   logger,
		dial:     dial,
		handlers: make(map[EventKind]map[uint64]func()),
	}
}

// Connect opens the bus and subscribes to player signals.
func (s *MPRISSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return fmt.Errorf("match PropertiesChanged: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		s.logger.Warnf("match NameOwnerChanged: %v; new players are only seen on poll", err)
	}
	s.conn = conn
	s.signals = make(chan *dbus.Signal, 16)
	s.done = make(chan struct{})
	conn.Signal(s.signals)
	s.wg.Add(1)
	go s.loop(s.signals, s.done)
	return nil
}

func (s *MPRISSource) loop(signals <-chan *dbus.Signal, done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.handleSignal(sig)
		}
	}
}

func (s *MPRISSource) handleSignal(sig *dbus.Signal) {
	if sig == nil {
		return
	}
	switch sig.Name {
	case nameOwnerSignal:
		if len(sig.Body) < 1 {
			return
		}
		name, _ := sig.Body[0].(string)
		if strings.HasPrefix(name, mprisPrefix) {
			s.logger.Debugf("player %s appeared or vanished", name)
			s.fire(EventSessionChanged)
		}
	case propsChanged:
		if len(sig.Body) < 2 {
			return
		}
		iface, _ := sig.Body[0].(string)
		if iface != mprisPlayer {
			return
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if _, ok := changed["PlaybackStatus"]; ok {
			// Which player is current depends on playback status.
			s.fire(EventSessionChanged)
			s.fire(EventPlaybackInfoChanged)
		}
		if _, ok := changed["Metadata"]; ok {
			s.fire(EventMediaPropertiesChanged)
		}
	}
}

func (s *MPRISSource) fire(kind EventKind) {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.handlers[kind]))
	for _, fn := range s.handlers[kind] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Register adds a handler for kind.
func (s *MPRISSource) Register(kind EventKind, fn func()) (Registration, error) {
	if fn == nil {
		return Registration{}, errors.New("nil handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.handlers[kind] == nil {
		s.handlers[kind] = make(map[uint64]func())
	}
	s.handlers[kind][s.nextID] = fn
	return Registration{Kind: kind, ID: s.nextID}, nil
}

// Unregister removes a handler added by Register.
func (s *MPRISSource) Unregister(reg Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[reg.Kind][reg.ID]; !ok {
		return fmt.Errorf("unknown registration %d for %s", reg.ID, reg.Kind)
	}
	delete(s.handlers[reg.Kind], reg.ID)
	return nil
}

// RefreshSession re-selects the current player.
func (s *MPRISSource) RefreshSession(ctx context.Context) error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	players, err := listPlayers(conn)
	if err != nil {
		return err
	}
	selected := ""
	for _, name := range players {
		if status, err := playbackStatus(conn, name); err == nil && status == media.StatusPlaying {
			selected = name
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if selected == "" {
		for _, name := range players {
			if name == s.player {
				selected = name
				break
			}
		}
	}
	if selected == "" && len(players) > 0 {
		selected = players[0]
	}
	if selected != s.player {
		s.logger.Debugf("media session: %q -> %q", s.player, selected)
	}
	s.player = selected
	return nil
}

// Current reads the selected player's metadata and playback status.
func (s *MPRISSource) Current(ctx context.Context) (media.Properties, bool, error) {
	conn, err := s.connection()
	if err != nil {
		return media.Properties{}, false, err
	}
	s.mu.Lock()
	player := s.player
	s.mu.Unlock()
	if player == "" {
		return media.Properties{}, false, nil
	}

	variant, err := conn.GetProperty(player, mprisPath, mprisPlayer+".Metadata")
	if err != nil {
		if gone, lerr := s.playerGone(conn, player); lerr == nil && gone {
			return media.Properties{}, false, nil
		}
		return media.Properties{}, false, fmt.Errorf("read metadata from %s: %w", player, err)
	}
	metadata, _ := variant.Value().(map[string]dbus.Variant)
	props := parseMetadata(metadata)
	props.AppID = strings.TrimPrefix(player, mprisPrefix)

	status, err := playbackStatus(conn, player)
	if err != nil {
		return media.Properties{}, false, fmt.Errorf("read playback status from %s: %w", player, err)
	}
	props.Status = status
	return props, true, nil
}

// playerGone clears the selection when the player has left the bus.
func (s *MPRISSource) playerGone(conn busConn, player string) (bool, error) {
	players, err := listPlayers(conn)
	if err != nil {
		return false, err
	}
	for _, name := range players {
		if name == player {
			return false, nil
		}
	}
	s.mu.Lock()
	if s.player == player {
		s.player = ""
	}
	s.mu.Unlock()
	return true, nil
}

func (s *MPRISSource) connection() (busConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, errors.New("media session source not connected")
	}
	return s.conn, nil
}

// Close stops signal delivery and closes the bus connection.
func (s *MPRISSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	signals, done := s.signals, s.done
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.RemoveSignal(signals)
	close(done)
	err := conn.Close()
	s.wg.Wait()
	return err
}

func listPlayers(conn busConn) ([]string, error) {
	names, err := conn.ListNames()
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	sort.Strings(players)
	return players, nil
}

func playbackStatus(conn busConn, player string) (media.PlaybackStatus, error) {
	variant, err := conn.GetProperty(player, mprisPath, mprisPlayer+".PlaybackStatus")
	if err != nil {
		return "", err
	}
	status, _ := variant.Value().(string)
	return media.ParsePlaybackStatus(status), nil
}

func parseMetadata(metadata map[string]dbus.Variant) media.Properties {
	var props media.Properties
	if v, ok := metadata["xesam:title"]; ok {
		props.Title, _ = v.Value().(string)
	}
	if v, ok := metadata["xesam:album"]; ok {
		props.Album, _ = v.Value().(string)
	}
	if v, ok := metadata["xesam:artist"]; ok {
		switch artist := v.Value().(type) {
		case []string:
			props.Artist = strings.Join(artist, ", ")
		case string:
			props.Artist = artist
		}
	}
	return props
}
