package envisalink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/sync/cio"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/j-keck/arping"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "envisalink",
})

// SetLogLevel sets the level of the client logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrLoginTimeout    = errors.New("login timed out")
	ErrNotConnected    = errors.New("not connected")
	ErrInvalidZone     = errors.New("invalid zone")
)

const (
	defaultPort             = "4025"
	defaultTimeout          = 10 * time.Second
	defaultKeepalive        = 60 * time.Second
	defaultZoneDumpInterval = 30 * time.Second
	defaultMaxZones         = 64
	defaultMaxPartitions    = 8
	defaultEVLVersion       = 4
)

type Options struct {
	Host             string
	Port             string
	WebPort          string
	User             string
	Password         string
	EVLVersion       int
	MaxZones         int
	MaxPartitions    int
	Timeout          time.Duration
	Keepalive        time.Duration
	ZoneDumpInterval time.Duration
}

// WithDefaults fills unset options and clamps the zone and partition counts
// to what the board supports.
func (o Options) WithDefaults() Options {
	if o.Port == "" {
		o.Port = defaultPort
	}
	if o.WebPort == "" {
		o.WebPort = "80"
	}
	if o.User == "" {
		o.User = "user"
	}
	if o.EVLVersion == 0 {
		o.EVLVersion = defaultEVLVersion
	}
	if o.MaxZones <= 0 || o.MaxZones > defaultMaxZones {
		o.MaxZones = defaultMaxZones
	}
	if o.MaxPartitions <= 0 || o.MaxPartitions > defaultMaxPartitions {
		o.MaxPartitions = defaultMaxPartitions
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Keepalive <= 0 {
		o.Keepalive = defaultKeepalive
	}
	if o.ZoneDumpInterval <= 0 {
		o.ZoneDumpInterval = defaultZoneDumpInterval
	}
	return o
}

// Client keeps a TPI session with an EnvisaLink board and the alarm state
// it reports.
type Client struct {
	opts Options

	mu        sync.RWMutex
	state     AlarmState
	info      Info
	connected bool

	connMu sync.Mutex
	conn   net.Conn

	cbMu      sync.RWMutex
	callbacks []func(Update)
}

func New(opts Options) *Client {
	opts = opts.WithDefaults()
	return &Client{
		opts:  opts,
		state: newAlarmState(opts.MaxZones, opts.MaxPartitions),
		info: Info{
			PanelType:         PanelTypeDSC,
			EnvisalinkVersion: opts.EVLVersion,
			FirmwareVersion:   "unknown",
			Host:              opts.Host,
			MaxZones:          opts.MaxZones,
			MaxPartitions:     opts.MaxPartitions,
		},
	}
}

func MacAddress(ip string) (string, error) {
	hw, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}

func (c *Client) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) Zone(n int) (Zone, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zone, ok := c.state.Zones[n]
	return zone, ok
}

func (c *Client) Partition(n int) (Partition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part, ok := c.state.Partitions[n]
	return part, ok
}

func (c *Client) AlarmState() AlarmState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// OnUpdate registers fn to be called after every state change. Callbacks
// run on the reader goroutine and must not block.
func (c *Client) OnUpdate(fn func(Update)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

func (c *Client) notify(updates []Update) {
	c.cbMu.RLock()
	callbacks := c.callbacks
	c.cbMu.RUnlock()
	for _, u := range updates {
		for _, fn := range callbacks {
			fn(u)
		}
	}
}

// ToggleZoneBypass sends the keypad sequence that flips the bypass flag of
// the given zone.
func (c *Client) ToggleZoneBypass(ctx context.Context, zone int) error {
	if zone < 1 || zone > c.opts.MaxZones {
		return fmt.Errorf("%w: %d", ErrInvalidZone, zone)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info("toggle zone bypass", "zone", zone)
	if err := c.send(cmdKeystrokes, "1"+bypassKeys(zone)); err != nil {
		return fmt.Errorf("could not toggle bypass of zone %d: %w", zone, err)
	}
	return nil
}

// Run keeps a session open until ctx is done, reconnecting with an
// exponential backoff. It only gives up on a rejected password.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := c.session(ctx, bo.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrInvalidPassword) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Error("envisalink session failed", "err", err, "retry_in", d)
	})
}

func (c *Client) session(ctx context.Context, onLogin func()) error {
	addr := net.JoinHostPort(c.opts.Host, c.opts.Port)
	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("could not close connection", "err", err)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	reader := bufio.NewReader(cio.TimeoutReader(conn, c.opts.Keepalive*2))
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.Timeout))
	if err := c.login(conn, reader); err != nil {
		return fmt.Errorf("could not login: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.setConn(conn)
	defer c.setConn(nil)
	onLogin()
	log.Info("logged in", "addr", addr)

	for _, cmd := range []string{cmdStatusReport, cmdDumpZoneTimers} {
		if err := c.send(cmd, ""); err != nil {
			return err
		}
	}

	go c.keepalive(done)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("could not read: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		msg, err := parseMessage(line)
		if err != nil {
			log.Warn("invalid message", "err", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) login(conn net.Conn, reader *bufio.Reader) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		msg, err := parseMessage(line)
		if err != nil {
			log.Warn("invalid message", "err", err)
			continue
		}
		if msg.code != evtLogin {
			log.Debug("ignoring message before login", "msg", msg)
			continue
		}
		switch msg.data {
		case loginRequest:
			if _, err := conn.Write(makePayload(cmdLogin, c.opts.Password)); err != nil {
				return err
			}
		case loginOK:
			return nil
		case loginFailed:
			return ErrInvalidPassword
		case loginTimeout:
			return ErrLoginTimeout
		default:
			return fmt.Errorf("unknown login response: %q", msg.data)
		}
	}
}

func (c *Client) keepalive(done <-chan struct{}) {
	poll := time.NewTicker(c.opts.Keepalive)
	defer poll.Stop()
	dump := time.NewTicker(c.opts.ZoneDumpInterval)
	defer dump.Stop()

	for {
		select {
		case <-done:
			return
		case <-poll.C:
			if err := c.send(cmdPoll, ""); err != nil {
				log.Warn("keepalive failed", "err", err)
			}
		case <-dump.C:
			if err := c.send(cmdDumpZoneTimers, ""); err != nil {
				log.Warn("zone timer dump failed", "err", err)
			}
		}
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.mu.Lock()
	c.connected = conn != nil
	c.mu.Unlock()
	c.notify([]Update{{Kind: UpdateConnection}})
}

func (c *Client) send(cmd, data string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	log.Debug("send", "cmd", cmd)
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	if _, err := c.conn.Write(makePayload(cmd, data)); err != nil {
		return fmt.Errorf("could not send %s: %w", cmd, err)
	}
	return nil
}

func (c *Client) handle(msg message) {
	updates, err := c.apply(msg)
	if err != nil {
		log.Warn("could not handle message", "msg", msg, "err", err)
		return
	}
	c.notify(updates)
}

func (c *Client) apply(msg message) ([]Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.code {
	case evtAck:
		log.Debug("ack", "cmd", msg.data)
		return nil, nil
	case evtCommandError:
		log.Warn("envisalink rejected the last command")
		return nil, nil
	case evtSystemError:
		log.Warn("envisalink system error", "code", msg.data)
		return nil, nil
	case evtLogin:
		return nil, nil

	case evtZoneOpen:
		return c.updateZone(msg.data, func(z *Zone) {
			z.Status.Open = true
			z.LastFault = 0
		})
	case evtZoneRestored:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Open = false })
	case evtZoneFault:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Fault = true })
	case evtZoneFaultRestore:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Fault = false })
	case evtZoneAlarm:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Alarm = true })
	case evtZoneAlarmRestore:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Alarm = false })
	case evtZoneTamper:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Tamper = true })
	case evtZoneTamperRestore:
		return c.updateZone(msg.data, func(z *Zone) { z.Status.Tamper = false })
	case evtZoneTimerDump:
		return c.applyZoneTimers(msg.data)
	case evtBypassedZonesDump:
		return c.applyBypassedZones(msg.data)

	case evtKeypadLEDState:
		return c.applyLEDs(msg.data)
	case evtKeypadLEDFlash:
		return nil, nil

	case evtPartitionReady:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Ready"
			s.Ready = true
		})
	case evtPartitionNotReady:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Not Ready"
			s.Ready = false
		})
	case evtPartitionForceArm:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Ready - Force Arming Enabled"
			s.Ready = true
		})
	case evtPartitionArmed:
		return c.applyArmed(msg.data)
	case evtPartitionAlarm:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Alarm"
			s.Alarm = true
			s.AlarmInMemory = true
		})
	case evtPartitionDisarmed:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Disarmed"
			s.clearArmed()
			s.Alarm = false
		})
	case evtExitDelay:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Exit Delay In Progress"
			s.ExitDelay = true
		})
	case evtEntryDelay:
		return c.updatePartition(msg.data, func(s *PartitionStatus) {
			s.Alpha = "Entry Delay In Progress"
			s.EntryDelay = true
		})
	case evtKeypadLockout:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Alpha = "Keypad Lockout" })
	case evtPartitionArmFailed, evtFailedToArm:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Alpha = "Failed to Arm" })
	case evtPartitionBusy:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Alpha = "Partition Busy" })
	case evtArming:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Alpha = "Arming In Progress" })
	case evtChimeEnabled:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Chime = true })
	case evtChimeDisabled:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Chime = false })
	case evtTroubleLEDOn:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Trouble = true })
	case evtTroubleLEDOff:
		return c.updatePartition(msg.data, func(s *PartitionStatus) { s.Trouble = false })

	case evtBatteryTrouble:
		return c.updateAllPartitions(func(s *PartitionStatus) { s.BatteryTrouble = true }), nil
	case evtBatteryRestore:
		return c.updateAllPartitions(func(s *PartitionStatus) { s.BatteryTrouble = false }), nil
	case evtACTrouble:
		return c.updateAllPartitions(func(s *PartitionStatus) { s.ACPresent = false }), nil
	case evtACRestore:
		return c.updateAllPartitions(func(s *PartitionStatus) { s.ACPresent = true }), nil
	}

	log.Debug("unhandled message", "code", msg.code, "data", msg.data)
	return nil, nil
}

func (c *Client) updateZone(data string, fn func(z *Zone)) ([]Update, error) {
	n, err := zoneFromData(data)
	if err != nil {
		return nil, err
	}
	zone, ok := c.state.Zones[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZone, n)
	}
	fn(&zone)
	c.state.Zones[n] = zone
	return []Update{{Kind: UpdateZone, Number: n}}, nil
}

func (c *Client) updatePartition(data string, fn func(s *PartitionStatus)) ([]Update, error) {
	n, err := partitionFromData(data)
	if err != nil {
		return nil, err
	}
	part, ok := c.state.Partitions[n]
	if !ok {
		return nil, fmt.Errorf("invalid partition: %d", n)
	}
	fn(&part.Status)
	c.state.Partitions[n] = part
	return []Update{{Kind: UpdatePartition, Number: n}}, nil
}

func (c *Client) updateAllPartitions(fn func(s *PartitionStatus)) []Update {
	var updates []Update
	for n := 1; n <= c.opts.MaxPartitions; n++ {
		part := c.state.Partitions[n]
		fn(&part.Status)
		c.state.Partitions[n] = part
		updates = append(updates, Update{Kind: UpdatePartition, Number: n})
	}
	return updates
}

func (c *Client) applyArmed(data string) ([]Update, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("invalid armed data: %q", data)
	}
	mode, err := strconv.Atoi(data[1:2])
	if err != nil {
		return nil, fmt.Errorf("invalid armed mode: %w", err)
	}
	return c.updatePartition(data, func(s *PartitionStatus) {
		s.clearArmed()
		s.Ready = false
		switch mode {
		case 0:
			s.Alpha = "Armed Away"
			s.ArmedAway = true
		case 1:
			s.Alpha = "Armed Stay"
			s.ArmedStay = true
		case 2:
			s.Alpha = "Armed Zero Entry Away"
			s.ArmedAway = true
			s.ArmedZeroEntryDelay = true
		case 3:
			s.Alpha = "Armed Zero Entry Stay"
			s.ArmedStay = true
			s.ArmedZeroEntryDelay = true
		default:
			s.Alpha = "Armed"
			s.ArmedAway = true
		}
	})
}

// applyZoneTimers refreshes the last fault and the open flag of every zone.
// The status report only resends open zones, so this is how a zone that
// closed while disconnected gets restored.
func (c *Client) applyZoneTimers(data string) ([]Update, error) {
	timers, err := parseZoneTimers(data)
	if err != nil {
		return nil, err
	}
	var updates []Update
	for i, timer := range timers {
		n := i + 1
		zone, ok := c.state.Zones[n]
		if !ok || (zone.LastFault == timer.LastFault && zone.Status.Open == timer.Open) {
			continue
		}
		zone.LastFault = timer.LastFault
		zone.Status.Open = timer.Open
		c.state.Zones[n] = zone
		updates = append(updates, Update{Kind: UpdateZone, Number: n})
	}
	return updates, nil
}

func (c *Client) applyBypassedZones(data string) ([]Update, error) {
	bypassed, err := parseBypassedZones(data)
	if err != nil {
		return nil, err
	}
	var updates []Update
	for i, b := range bypassed {
		n := i + 1
		zone, ok := c.state.Zones[n]
		if !ok || zone.Bypassed == b {
			continue
		}
		zone.Bypassed = b
		c.state.Zones[n] = zone
		updates = append(updates, Update{Kind: UpdateZoneBypass, Number: n})
	}
	return updates, nil
}

// applyLEDs handles the keypad led state, which the board only reports for
// partition 1.
func (c *Client) applyLEDs(data string) ([]Update, error) {
	leds, err := parseLEDs(data)
	if err != nil {
		return nil, err
	}
	part, ok := c.state.Partitions[1]
	if !ok {
		return nil, nil
	}
	part.Status.Ready = leds&ledReady > 0
	part.Status.AlarmInMemory = leds&ledMemory > 0
	part.Status.ArmedBypass = leds&ledBypass > 0
	part.Status.Trouble = leds&ledTrouble > 0
	part.Status.Fire = leds&ledFire > 0
	if leds&ledArmed == 0 {
		part.Status.ArmedAway = false
		part.Status.ArmedStay = false
	}
	c.state.Partitions[1] = part
	return []Update{{Kind: UpdatePartition, Number: 1}}, nil
}
